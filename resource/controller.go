// Package resource bounds the memory and I/O consumed by resource loading.
package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrBudgetExceeded is returned for a single request larger than the whole
// buffer budget; it could never succeed, so it fails instead of blocking.
var ErrBudgetExceeded = errors.New("resource: request exceeds buffer budget")

// Config holds loading limits. The zero value disables every limit except
// the in-flight read bound, which defaults to one outstanding read.
type Config struct {
	// BufferBudgetBytes caps the bytes held in load buffers at once.
	// Zero means no cap (usage is still tracked).
	BufferBudgetBytes int64

	// MaxInflightReads bounds concurrently outstanding reads.
	// Zero or negative defaults to 1, the synchronous deployment.
	MaxInflightReads int64

	// ReadBytesPerSec throttles read throughput. Zero means unlimited.
	ReadBytesPerSec int64
}

// Controller enforces Config. It is safe for concurrent use; the loader's
// worker goroutines and the owning goroutine both call into it.
type Controller struct {
	bufSem  *semaphore.Weighted // nil when unbudgeted
	bufCap  int64
	bufUsed atomic.Int64

	readSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a controller enforcing cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxInflightReads <= 0 {
		cfg.MaxInflightReads = 1
	}

	c := &Controller{
		readSem: semaphore.NewWeighted(cfg.MaxInflightReads),
	}
	if cfg.BufferBudgetBytes > 0 {
		c.bufSem = semaphore.NewWeighted(cfg.BufferBudgetBytes)
		c.bufCap = cfg.BufferBudgetBytes
	}
	if cfg.ReadBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.ReadBytesPerSec), int(cfg.ReadBytesPerSec))
	}
	return c
}

// AcquireBuffer reserves bytes of load-buffer budget, blocking until the
// budget allows it or ctx is canceled. A request larger than the whole
// budget fails immediately rather than deadlocking.
func (c *Controller) AcquireBuffer(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.bufSem != nil {
		if bytes > c.bufCap {
			return ErrBudgetExceeded
		}
		if err := c.bufSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.bufUsed.Add(bytes)
	return nil
}

// TryAcquireBuffer reserves bytes of load-buffer budget without blocking.
// It reports whether the reservation succeeded.
func (c *Controller) TryAcquireBuffer(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.bufSem != nil {
		if bytes > c.bufCap || !c.bufSem.TryAcquire(bytes) {
			return false
		}
	}
	c.bufUsed.Add(bytes)
	return true
}

// ReleaseBuffer returns bytes of load-buffer budget.
func (c *Controller) ReleaseBuffer(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.bufSem != nil {
		c.bufSem.Release(bytes)
	}
	c.bufUsed.Add(-bytes)
}

// BufferUsage returns the bytes currently held in load buffers.
func (c *Controller) BufferUsage() int64 {
	if c == nil {
		return 0
	}
	return c.bufUsed.Load()
}

// AcquireRead claims an in-flight read slot, blocking while all slots are
// busy.
func (c *Controller) AcquireRead(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.readSem.Acquire(ctx, 1)
}

// TryAcquireRead claims an in-flight read slot without blocking and
// reports whether one was free.
func (c *Controller) TryAcquireRead() bool {
	if c == nil {
		return true
	}
	return c.readSem.TryAcquire(1)
}

// ReleaseRead returns an in-flight read slot.
func (c *Controller) ReleaseRead() {
	if c == nil {
		return
	}
	c.readSem.Release(1)
}

// WaitIO blocks until the throughput limit admits n more bytes.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil || n <= 0 {
		return nil
	}
	// A burst larger than the limiter allows is admitted in limit-sized
	// chunks instead of erroring out.
	burst := c.ioLimiter.Burst()
	for n > burst {
		if err := c.ioLimiter.WaitN(ctx, burst); err != nil {
			return err
		}
		n -= burst
	}
	return c.ioLimiter.WaitN(ctx, n)
}
