package downloader

import "io"

// progressReader reports the running byte count after every chunk read.
// total is -1 when the server did not send a length.
type progressReader struct {
	r      io.Reader
	total  int64
	done   int64
	report func(total, done int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.report(p.total, p.done)
	}
	return n, err
}
