package progress

import (
	"errors"
	"io"
)

// Reader wraps an io.Reader and reports the cumulative number of bytes read
// every interval bytes, and once more when the underlying reader hits EOF.
type Reader struct {
	r          io.Reader
	total      int64
	interval   int64
	onProgress func(read, total int64)

	read        int64
	sinceReport int64
	done        bool
}

// NewReader returns a Reader. total may be <= 0 when the size is unknown.
func NewReader(r io.Reader, total, interval int64, onProgress func(read, total int64)) *Reader {
	return &Reader{
		r:          r,
		total:      total,
		interval:   interval,
		onProgress: onProgress,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceReport += int64(n)

		if pr.interval > 0 && pr.sinceReport >= pr.interval {
			pr.report()
		}
	}

	if errors.Is(err, io.EOF) && !pr.done {
		pr.done = true
		pr.report()
	}

	return n, err
}

// BytesRead returns how much has been read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

func (pr *Reader) report() {
	pr.sinceReport = 0

	if pr.onProgress != nil {
		pr.onProgress(pr.read, pr.total)
	}
}
