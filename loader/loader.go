// Package loader fills arena-owned buffers from files without blocking the
// caller.
//
// Begin submits a read that proceeds on a worker goroutine; Await collects
// the completed buffer. In the simplest deployment Await follows Begin
// immediately, making the mechanism behave like blocking I/O with extra
// bookkeeping; nothing in the interface changes when a caller instead keeps
// several reads in flight and drains completions as they arrive.
//
// The buffer belongs to the pending read until Await succeeds, at which
// point ownership passes to the caller (usually straight into a decode
// step). Release reclaims the buffer and always waits for the worker to
// finish first, so arena memory is never rewound under an in-flight read.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/viewmem/viewmem/arena"
	"github.com/viewmem/viewmem/codec"
	"github.com/viewmem/viewmem/internal/conv"
	"github.com/viewmem/viewmem/resource"
)

// ErrShortRead is returned when a completed read transferred fewer bytes
// than the file's size at open time.
var ErrShortRead = errors.New("loader: short read")

// ErrBusy is returned by TryBegin when a read slot or buffer budget is not
// immediately available.
var ErrBusy = errors.New("loader: resource limits exhausted")

// Loader reads resource files into spans of a designated arena and hands
// them to a decoder.
//
// The arena is mutated only from the goroutine that owns the Loader;
// worker goroutines just fill committed spans and report completion.
type Loader struct {
	fsys FileSystem
	buf  *arena.Arena
	ctrl *resource.Controller
	dec  codec.Decoder
	log  *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithFileSystem sets the file system used to open resources.
func WithFileSystem(fsys FileSystem) Option {
	return func(l *Loader) {
		if fsys != nil {
			l.fsys = fsys
		}
	}
}

// WithController sets the resource controller bounding buffer memory and
// I/O.
func WithController(ctrl *resource.Controller) Option {
	return func(l *Loader) {
		l.ctrl = ctrl
	}
}

// WithDecoder sets the decoder applied by Load. Defaults to codec.Default.
func WithDecoder(dec codec.Decoder) Option {
	return func(l *Loader) {
		if dec != nil {
			l.dec = dec
		}
	}
}

// WithLogger sets the structured logger. Defaults to a discarding logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// New creates a Loader drawing buffers from buf.
func New(buf *arena.Arena, opts ...Option) *Loader {
	l := &Loader{
		fsys: DefaultFS,
		buf:  buf,
		dec:  codec.Default,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type readResult struct {
	n   int
	err error
}

// PendingRead is a read in flight. It owns its arena span until Release.
type PendingRead struct {
	l    *Loader
	path string
	span arena.Span
	done chan readResult
	res  *readResult // set once the completion has been collected
}

// Begin opens path, sizes the buffer from the file's length, allocates it
// from the loader's arena and submits the read. It does not block on I/O;
// it may block on the controller's read-slot and buffer-budget limits.
func (l *Loader) Begin(ctx context.Context, path string) (*PendingRead, error) {
	return l.begin(ctx, path, true)
}

// TryBegin is Begin without blocking on the controller: when no read slot
// or buffer budget is free right now it returns ErrBusy instead of
// waiting. Opportunistic work such as prefetching uses it so a hot limit
// degrades to a skip rather than a stall.
func (l *Loader) TryBegin(ctx context.Context, path string) (*PendingRead, error) {
	return l.begin(ctx, path, false)
}

func (l *Loader) begin(ctx context.Context, path string, wait bool) (*PendingRead, error) {
	if wait {
		if err := l.ctrl.AcquireRead(ctx); err != nil {
			return nil, err
		}
	} else if !l.ctrl.TryAcquireRead() {
		return nil, fmt.Errorf("%w: no read slot for %s", ErrBusy, path)
	}

	f, err := l.fsys.Open(path)
	if err != nil {
		l.ctrl.ReleaseRead()
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		l.ctrl.ReleaseRead()
		return nil, fmt.Errorf("loader: stat %s: %w", path, err)
	}
	size, err := conv.Int64ToInt(fi.Size())
	if err != nil || size < 0 {
		_ = f.Close()
		l.ctrl.ReleaseRead()
		return nil, fmt.Errorf("loader: stat %s: invalid size %d", path, fi.Size())
	}

	if wait {
		if err := l.ctrl.AcquireBuffer(ctx, int64(size)); err != nil {
			_ = f.Close()
			l.ctrl.ReleaseRead()
			return nil, fmt.Errorf("loader: buffer for %s: %w", path, err)
		}
	} else if !l.ctrl.TryAcquireBuffer(int64(size)) {
		_ = f.Close()
		l.ctrl.ReleaseRead()
		return nil, fmt.Errorf("%w: no buffer budget for %s", ErrBusy, path)
	}
	span, err := l.buf.Alloc(size, 0)
	if err != nil {
		_ = f.Close()
		l.ctrl.ReleaseBuffer(int64(size))
		l.ctrl.ReleaseRead()
		return nil, fmt.Errorf("loader: buffer for %s: %w", path, err)
	}

	pr := &PendingRead{
		l:    l,
		path: path,
		span: span,
		done: make(chan readResult, 1),
	}
	go l.read(ctx, f, pr)

	l.log.Debug("read submitted", "path", path, "bytes", size)
	return pr, nil
}

func (l *Loader) read(ctx context.Context, f File, pr *PendingRead) {
	defer l.ctrl.ReleaseRead()
	defer f.Close()

	if err := l.ctrl.WaitIO(ctx, pr.span.Len()); err != nil {
		pr.done <- readResult{err: err}
		return
	}
	if pr.span.Len() == 0 {
		pr.done <- readResult{}
		return
	}
	n, err := f.ReadAt(pr.span.Bytes(), 0)
	pr.done <- readResult{n: n, err: err}
}

// Await blocks until the read completes and returns the filled buffer,
// validating that the transferred byte count matches the requested size.
// The returned bytes alias the pending read's span and stay valid until
// Release.
//
// A canceled context abandons the wait but not the read; the worker still
// finishes into the span, and Release collects it.
func (pr *PendingRead) Await(ctx context.Context) ([]byte, error) {
	if pr.res == nil {
		select {
		case res := <-pr.done:
			pr.res = &res
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	res := *pr.res
	if res.err != nil && !(errors.Is(res.err, io.EOF) && res.n == pr.span.Len()) {
		return nil, fmt.Errorf("loader: read %s: %w", pr.path, res.err)
	}
	if res.n != pr.span.Len() {
		return nil, fmt.Errorf("%w: %s: %d of %d bytes", ErrShortRead, pr.path, res.n, pr.span.Len())
	}
	return pr.span.Bytes(), nil
}

// Span returns the arena span backing the read.
func (pr *PendingRead) Span() arena.Span {
	return pr.span
}

// Release reclaims the buffer. It first waits for the worker to finish, so
// the span is never rewound under an in-flight read; then it frees the
// span if it is still the arena's last allocation and returns its budget.
// Release is idempotent.
func (pr *PendingRead) Release() {
	if pr.l == nil {
		return
	}
	if pr.res == nil {
		res := <-pr.done
		pr.res = &res
	}
	pr.l.buf.FreeIfLast(pr.span)
	pr.l.ctrl.ReleaseBuffer(int64(pr.span.Len()))
	pr.l = nil
}

// Decode runs the loader's decoder over raw. It does not touch the arena
// and is safe to call from any goroutine.
func (l *Loader) Decode(path string, raw []byte) ([]byte, error) {
	decoded, err := l.dec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("loader: decode %s: %w", path, err)
	}
	return decoded, nil
}

// Load reads and decodes path in one step inside a scratch scope: the raw
// buffer is reclaimed before Load returns, and only the decoded payload
// survives. Decode failures carry codec.ErrCorrupt and must not be cached.
func (l *Loader) Load(ctx context.Context, path string) ([]byte, error) {
	scope := l.buf.Begin()
	defer scope.End()

	pr, err := l.Begin(ctx, path)
	if err != nil {
		return nil, err
	}
	defer pr.Release()

	raw, err := pr.Await(ctx)
	if err != nil {
		return nil, err
	}

	decoded, err := l.Decode(path, raw)
	if err != nil {
		return nil, err
	}
	l.log.Debug("resource loaded",
		"path", path,
		"raw_bytes", len(raw),
		"decoded_bytes", len(decoded),
		"decoder", l.dec.Name(),
	)
	return decoded, nil
}
