package media

import "errors"

// Kind classifies failures so callers can map them without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks a missing or empty request field.
	KindValidation
	// KindExtraction marks a failure reported by the extraction client.
	KindExtraction
	// KindIO marks a filesystem failure while writing or reading a stored file.
	KindIO
	// KindNotFound marks a stored file that does not exist or cannot be served.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExtraction:
		return "extraction"
	case KindIO:
		return "io"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind    Kind
	Field   string // Request field that failed validation, if any
	Message string // Human-readable message, safe to return to callers
	Err     error  // Underlying error, if any
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

func validationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func wrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
