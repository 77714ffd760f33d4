package viewmem

import (
	"github.com/viewmem/viewmem/codec"
	"github.com/viewmem/viewmem/loader"
	"github.com/viewmem/viewmem/resource"
)

const (
	// DefaultPersistentSize is the reserved size of the persistent arena.
	DefaultPersistentSize = 16 << 20

	// DefaultScratchSize is the reserved size of the scratch arena.
	DefaultScratchSize = 64 << 20

	// DefaultBufferSize is the reserved size of the load-buffer arena.
	DefaultBufferSize = 256 << 20
)

type options struct {
	logger        *Logger
	cacheCapacity int
	decoder       codec.Decoder
	persistSize   int
	scratchSize   int
	bufferSize    int
	limits        resource.Config
	eagerDecommit bool
	fsys          loader.FileSystem
}

// Option configures a Core.
type Option func(*options)

// WithLogger sets the structured logger. Defaults to a discarding logger.
func WithLogger(log *Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithCacheCapacity sets how many decoded resources stay cached. The value
// is rounded up to a power of two; see rescache.DefaultCapacity.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.cacheCapacity = n
	}
}

// WithDecoder sets the decoder applied to loaded resources. Defaults to
// codec.Default, which copies bytes through unchanged.
func WithDecoder(dec codec.Decoder) Option {
	return func(o *options) {
		if dec != nil {
			o.decoder = dec
		}
	}
}

// WithArenaSizes sets the reserved sizes of the persistent, scratch and
// load-buffer arenas. Reservation is address space, not memory; physical
// pages are committed on demand. Zero keeps the default for that arena.
func WithArenaSizes(persistent, scratch, buffers int) Option {
	return func(o *options) {
		if persistent > 0 {
			o.persistSize = persistent
		}
		if scratch > 0 {
			o.scratchSize = scratch
		}
		if buffers > 0 {
			o.bufferSize = buffers
		}
	}
}

// WithResourceLimits bounds load-buffer memory, in-flight reads and read
// throughput.
func WithResourceLimits(cfg resource.Config) Option {
	return func(o *options) {
		o.limits = cfg
	}
}

// WithEagerDecommit makes every arena return physical pages to the OS as
// soon as a scratch scope ends, trading commit churn for a tighter
// footprint.
func WithEagerDecommit() Option {
	return func(o *options) {
		o.eagerDecommit = true
	}
}

// WithFileSystem sets the file system resources are loaded from. Defaults
// to the local file system.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

func defaultOptions() *options {
	return &options{
		logger:      NoopLogger(),
		decoder:     codec.Default,
		persistSize: DefaultPersistentSize,
		scratchSize: DefaultScratchSize,
		bufferSize:  DefaultBufferSize,
		fsys:        loader.DefaultFS,
	}
}
