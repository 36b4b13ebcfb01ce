package media

import (
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// Library serves files from the download directory.
type Library struct {
	dir string
}

func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Open resolves a percent-encoded filename token inside the library and
// opens it. The caller closes the returned file. Any name that cannot be
// opened as a regular file is reported as not found.
func (l *Library) Open(token string) (*os.File, fs.FileInfo, error) {
	name, err := url.PathUnescape(token)
	if err != nil {
		name = token
	}

	if !filepath.IsLocal(name) {
		return nil, nil, notFound(nil)
	}

	f, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		return nil, nil, notFound(err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, nil, notFound(err)
	}

	if !fi.Mode().IsRegular() {
		f.Close()

		return nil, nil, notFound(nil)
	}

	return f, fi, nil
}

func notFound(err error) *Error {
	return &Error{Kind: KindNotFound, Message: "File not found", Err: err}
}
