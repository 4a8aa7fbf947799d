package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrBufferLimitExceeded is returned when a buffer reservation would exceed
// the configured budget.
var ErrBufferLimitExceeded = errors.New("buffer limit exceeded")

// Config holds transfer limits. Zero values mean unlimited, except
// MaxTransfers which defaults to 1.
type Config struct {
	// MaxTransfers is the number of concurrent blob transfers.
	MaxTransfers int64

	// BufferLimitBytes bounds memory held by in-flight transfers.
	BufferLimitBytes int64

	// BytesPerSec bounds transfer throughput.
	BytesPerSec int64
}

// Controller enforces a Config.
type Controller struct {
	cfg Config

	transfers *semaphore.Weighted

	buffers     *semaphore.Weighted // nil if unlimited
	bufferBytes atomic.Int64

	limiter *rate.Limiter // nil if unlimited
	burst   int
}

// NewController creates a controller for cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxTransfers <= 0 {
		cfg.MaxTransfers = 1
	}

	c := &Controller{
		cfg:       cfg,
		transfers: semaphore.NewWeighted(cfg.MaxTransfers),
	}
	if cfg.BufferLimitBytes > 0 {
		c.buffers = semaphore.NewWeighted(cfg.BufferLimitBytes)
	}
	if cfg.BytesPerSec > 0 {
		c.burst = int(cfg.BytesPerSec)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSec), c.burst)
	}
	return c
}

// MaxTransfers returns the transfer concurrency.
func (c *Controller) MaxTransfers() int {
	if c == nil {
		return 1
	}
	return int(c.cfg.MaxTransfers)
}

// AcquireTransfer blocks until a transfer slot is free.
func (c *Controller) AcquireTransfer(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.transfers.Acquire(ctx, 1)
}

// ReleaseTransfer frees a transfer slot.
func (c *Controller) ReleaseTransfer() {
	if c == nil {
		return
	}
	c.transfers.Release(1)
}

// ReserveBuffer reserves bytes of buffer memory without blocking.
func (c *Controller) ReserveBuffer(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.buffers != nil && !c.buffers.TryAcquire(bytes) {
		return ErrBufferLimitExceeded
	}
	c.bufferBytes.Add(bytes)
	return nil
}

// ReleaseBuffer returns reserved buffer memory.
func (c *Controller) ReleaseBuffer(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.buffers != nil {
		c.buffers.Release(bytes)
	}
	c.bufferBytes.Add(-bytes)
}

// BufferUsage returns the reserved buffer memory in bytes.
func (c *Controller) BufferUsage() int64 {
	if c == nil {
		return 0
	}
	return c.bufferBytes.Load()
}

// WaitBytes blocks until the bandwidth limit admits n bytes.
// Requests larger than one second of bandwidth are admitted in slices.
func (c *Controller) WaitBytes(ctx context.Context, n int) error {
	if c == nil || c.limiter == nil {
		return nil
	}
	for n > 0 {
		step := min(n, c.burst)
		if err := c.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
