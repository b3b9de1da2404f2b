package progress

import "io"

// Reader wraps an io.Reader and reports progress through a callback every
// interval bytes and once more when the underlying reader is exhausted.
type Reader struct {
	r          io.Reader
	total      int64
	interval   int64
	onProgress func(read, total int64)

	read       int64
	lastReport int64
}

// NewReader returns a Reader. total may be -1 when the size is unknown.
func NewReader(r io.Reader, total, interval int64, onProgress func(read, total int64)) *Reader {
	return &Reader{r: r, total: total, interval: interval, onProgress: onProgress}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.read-pr.lastReport >= pr.interval {
			pr.report()
		}
	}

	if err == io.EOF && pr.lastReport != pr.read {
		pr.report()
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

func (pr *Reader) report() {
	pr.lastReport = pr.read
	if pr.onProgress != nil {
		pr.onProgress(pr.read, pr.total)
	}
}
