package viewmem

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/viewmem/viewmem/arena"
	"github.com/viewmem/viewmem/loader"
	"github.com/viewmem/viewmem/rescache"
	"github.com/viewmem/viewmem/resource"
)

// ErrClosed is returned from operations on a closed Core.
var ErrClosed = errors.New("viewmem: closed")

// Resource is a decoded resource held by the cache.
type Resource struct {
	// Path is the path the resource was loaded from.
	Path string

	// Data is the decoded payload.
	Data []byte
}

// Core ties the arenas, the resource cache and the loader together for a
// viewing application. It is confined to a single goroutine, matching the
// arena and cache ownership model; only the loader's internals fan out.
type Core struct {
	log *Logger

	persist *arena.Arena
	scratch *arena.Arena
	buffers *arena.Arena

	ctrl   *resource.Controller
	loader *loader.Loader
	cache  *rescache.Cache[*Resource]

	// handles maps paths to the slot that last held them. Entries go
	// stale on eviction and are pruned lazily when looked up.
	handles map[string]rescache.Handle

	closed bool
}

// New creates a Core with three freshly reserved arenas.
func New(opts ...Option) (*Core, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	var arenaOpts []arena.Option
	if o.eagerDecommit {
		arenaOpts = append(arenaOpts, arena.WithEagerDecommit())
	}

	persist, err := arena.New(o.persistSize, arenaOpts...)
	if err != nil {
		return nil, fmt.Errorf("viewmem: persistent arena: %w", err)
	}
	scratch, err := arena.New(o.scratchSize, arenaOpts...)
	if err != nil {
		_ = persist.Close()
		return nil, fmt.Errorf("viewmem: scratch arena: %w", err)
	}
	buffers, err := arena.New(o.bufferSize, arenaOpts...)
	if err != nil {
		_ = persist.Close()
		_ = scratch.Close()
		return nil, fmt.Errorf("viewmem: buffer arena: %w", err)
	}

	ctrl := resource.NewController(o.limits)

	c := &Core{
		log:     o.logger,
		persist: persist,
		scratch: scratch,
		buffers: buffers,
		ctrl:    ctrl,
		loader: loader.New(buffers,
			loader.WithFileSystem(o.fsys),
			loader.WithController(ctrl),
			loader.WithDecoder(o.decoder),
			loader.WithLogger(o.logger.Logger),
		),
		handles: make(map[string]rescache.Handle),
	}
	c.cache = rescache.New(o.cacheCapacity, c.releaseResource)

	return c, nil
}

func (c *Core) releaseResource(res *Resource) {
	c.log.WithPath(res.Path).Debug("resource evicted", "bytes", len(res.Data))
	delete(c.handles, res.Path)
}

// Open returns a handle to the decoded resource at path, loading it if no
// live cached copy exists. Loading may evict the oldest cached resource;
// handles returned by earlier Opens go stale when their slot is reused.
// A resource that fails to load or decode is never cached.
func (c *Core) Open(ctx context.Context, path string) (rescache.Handle, error) {
	if c.closed {
		return rescache.Handle{}, ErrClosed
	}

	if h, ok := c.handles[path]; ok {
		if _, loaded := c.cache.Get(h); loaded {
			return h, nil
		}
		delete(c.handles, path)
	}

	data, err := c.loader.Load(ctx, path)
	if err != nil {
		return rescache.Handle{}, err
	}

	h := c.cache.Next()
	c.cache.Store(h, &Resource{Path: path, Data: data})
	c.handles[path] = h
	c.log.WithPath(path).WithSlot(h.Index()).Debug("resource cached", "bytes", len(data))
	return h, nil
}

// Resource returns the cached resource for h, or false when h is stale or
// its slot holds nothing.
func (c *Core) Resource(h rescache.Handle) (*Resource, bool) {
	res, ok := c.cache.Get(h)
	if !ok {
		return nil, false
	}
	return *res, true
}

// Prefetch loads paths that are not already cached, overlapping their
// reads and decodes. It is opportunistic: paths that cannot start because
// read slots or buffer budget are busy are skipped, not waited for. All
// arena and cache mutation stays on the calling goroutine; workers only
// wait for reads and decode private buffers.
//
// The returned error joins the per-path failures, if any. Skips are not
// failures.
func (c *Core) Prefetch(ctx context.Context, paths ...string) error {
	if c.closed {
		return ErrClosed
	}

	scope := c.buffers.Begin()
	defer scope.End()

	type staged struct {
		path string
		pr   *loader.PendingRead
		data []byte
		err  error
	}

	var stage []*staged
	for _, path := range paths {
		if h, ok := c.handles[path]; ok {
			if _, loaded := c.cache.Get(h); loaded {
				continue
			}
			delete(c.handles, path)
		}

		pr, err := c.loader.TryBegin(ctx, path)
		if err != nil {
			if errors.Is(err, loader.ErrBusy) {
				c.log.WithPath(path).Debug("prefetch skipped", "reason", err)
				continue
			}
			stage = append(stage, &staged{path: path, err: err})
			continue
		}
		stage = append(stage, &staged{path: path, pr: pr})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range stage {
		s := s
		if s.pr == nil {
			continue
		}
		g.Go(func() error {
			raw, err := s.pr.Await(gctx)
			if err != nil {
				s.err = err
				return nil
			}
			s.data, s.err = c.loader.Decode(s.path, raw)
			return nil
		})
	}
	_ = g.Wait()

	// Buffers unwind last-in first-out so each free actually rewinds
	// the arena instead of leaving holes.
	for i := len(stage) - 1; i >= 0; i-- {
		if stage[i].pr != nil {
			stage[i].pr.Release()
		}
	}

	var errs []error
	for _, s := range stage {
		if s.err != nil {
			c.log.WithPath(s.path).Warn("prefetch failed", "error", s.err)
			errs = append(errs, fmt.Errorf("%s: %w", s.path, s.err))
			continue
		}
		h := c.cache.Next()
		c.cache.Store(h, &Resource{Path: s.path, Data: s.data})
		c.handles[s.path] = h
	}
	return errors.Join(errs...)
}

// Clear evicts every cached resource and resets the scratch arena. The
// persistent arena keeps its persistent allocations; volatile data in it
// belongs to the cleared context and is discarded too.
func (c *Core) Clear() {
	if c.closed {
		return
	}
	c.cache.Clear()
	c.handles = make(map[string]rescache.Handle)
	c.scratch.Reset()
	c.persist.Reset()
	c.log.Debug("cleared")
}

// Persistent returns the arena for long-lived application data.
func (c *Core) Persistent() *arena.Arena { return c.persist }

// Scratch returns the arena for transient working memory.
func (c *Core) Scratch() *arena.Arena { return c.scratch }

// Stats reports memory and cache usage.
func (c *Core) Stats() Stats {
	return Stats{
		Persistent: c.persist.Stats(),
		Scratch:    c.scratch.Stats(),
		Buffers:    c.buffers.Stats(),
		Cache:      c.cache.Stats(),
		BufferUse:  c.ctrl.BufferUsage(),
	}
}

// Close releases every arena and drops the cache. The Core is unusable
// afterwards; Close is idempotent.
func (c *Core) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.cache.Clear()
	c.handles = nil

	return errors.Join(
		c.persist.Close(),
		c.scratch.Close(),
		c.buffers.Close(),
	)
}
