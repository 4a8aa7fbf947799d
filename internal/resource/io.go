package resource

import (
	"context"
	"io"
)

type limitedReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

// Reader returns r throttled by the bandwidth limit. Bytes are charged
// after they are read.
func (c *Controller) Reader(ctx context.Context, r io.Reader) io.Reader {
	if c == nil || c.limiter == nil {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, c: c}
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.c.WaitBytes(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

type limitedWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

// Writer returns w throttled by the bandwidth limit.
func (c *Controller) Writer(ctx context.Context, w io.Writer) io.Writer {
	if c == nil || c.limiter == nil {
		return w
	}
	return &limitedWriter{ctx: ctx, w: w, c: c}
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if err := lw.c.WaitBytes(lw.ctx, len(p)); err != nil {
		return 0, err
	}
	return lw.w.Write(p)
}
