package arena

import (
	"errors"
	"fmt"

	"github.com/viewmem/viewmem/vmem"
)

// DefaultAlignment is the default allocation alignment in bytes.
const DefaultAlignment = 8

// ErrPersistentAfterVolatile is returned when a persistent allocation is
// requested after the arena has already served a volatile one. Persistent
// data must be fully established before any reset-able data exists.
var ErrPersistentAfterVolatile = errors.New("arena: persistent allocation after volatile allocation")

// Span is a view over a single arena allocation.
//
// A Span stays valid until the allocation is reclaimed by a shrink, a
// scratch scope end or a reset. Accessing a reclaimed span faults once its
// pages are decommitted.
type Span struct {
	off  int
	data []byte
}

// Bytes returns the allocated bytes. Contents are zeroed on first commit
// but an arena makes no promise beyond that; treat them as uninitialized.
func (s Span) Bytes() []byte { return s.data }

// Len returns the allocation size in bytes.
func (s Span) Len() int { return len(s.data) }

// Offset returns the allocation's byte offset within the arena.
func (s Span) Offset() int { return s.off }

// Arena is a bump allocator over one exclusively-owned vmem.Space.
//
// The forward cursor serves regular allocations; an optional string
// sub-range bumps downward from the top of the reservation for small
// variable-length byte buffers. The space between the two cursors is the
// arena's free capacity.
type Arena struct {
	space *vmem.Space
	page  int

	allocPos  int
	commitPos int // forward committed watermark, page-aligned

	strPos       int // string cursor, moves down from Size
	strCommitPos int // backward committed watermark, page-aligned

	persistMark  int
	volatileSeen bool
	scratchDepth int

	align uint64
	eager bool

	totalAllocs uint64
}

// Option configures an Arena.
type Option func(*Arena)

// WithEagerDecommit makes the arena decommit slack immediately after every
// shrink, reset and scratch-scope end. This trades extra syscalls for
// faster detection of use-after-shrink bugs; the default retains slack
// until an explicit DecommitExcess.
func WithEagerDecommit() Option {
	return func(a *Arena) {
		a.eager = true
	}
}

// WithAlignment sets the default allocation alignment. Must be a power of
// two.
func WithAlignment(align int) Option {
	return func(a *Arena) {
		if align > 0 {
			a.align = uint64(align)
		}
	}
}

// New reserves size bytes of address space and builds an arena over it.
func New(size int, opts ...Option) (*Arena, error) {
	space, err := vmem.Reserve(size)
	if err != nil {
		return nil, err
	}
	return NewFromSpace(space, opts...), nil
}

// NewFromSpace builds an arena over an existing reservation. The arena
// takes exclusive ownership of the space; Close releases it.
func NewFromSpace(space *vmem.Space, opts ...Option) *Arena {
	a := &Arena{
		space:        space,
		page:         vmem.Granularity(),
		strPos:       space.Size(),
		strCommitPos: space.Size(),
		align:        DefaultAlignment,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Size returns the reserved size in bytes.
func (a *Arena) Size() int { return a.space.Size() }

// Free returns the arena's free capacity: the gap between the forward
// cursor and the string cursor.
func (a *Arena) Free() int { return a.strPos - a.allocPos }

// Alloc bumps the forward cursor to the next offset satisfying align and
// returns a span of exactly size bytes, committing pages as needed.
//
// align must be a power of two; zero selects the arena default. Alloc
// fails with an error satisfying errors.Is(err, vmem.ErrOutOfMemory) when
// the allocation would cross the string cursor or the commit fails.
func (a *Arena) Alloc(size, align int) (Span, error) {
	s, err := a.bump(size, align)
	if err != nil {
		return Span{}, err
	}
	a.volatileSeen = true
	return s, nil
}

// AllocPersistent allocates memory that survives Reset. Persistent
// allocations are only accepted while the arena has served no volatile
// allocation and has no open scratch scope; afterward it fails with
// ErrPersistentAfterVolatile.
func (a *Arena) AllocPersistent(size, align int) (Span, error) {
	if a.volatileSeen || a.scratchDepth > 0 {
		return Span{}, ErrPersistentAfterVolatile
	}
	s, err := a.bump(size, align)
	if err != nil {
		return Span{}, err
	}
	a.persistMark = a.allocPos
	return s, nil
}

// AllocString allocates size bytes from the string sub-range growing down
// from the top of the reservation. String allocations are byte-aligned and
// meant for small variable-length buffers such as path strings; they are
// reclaimed only by scratch scopes and Reset.
func (a *Arena) AllocString(size int) (Span, error) {
	if size < 0 {
		return Span{}, fmt.Errorf("arena: invalid allocation size %d", size)
	}
	if size == 0 {
		return Span{}, nil
	}
	newPos := a.strPos - size
	if newPos < a.allocPos {
		return Span{}, fmt.Errorf("arena: string allocation of %d bytes exceeds free capacity %d: %w",
			size, a.Free(), vmem.ErrOutOfMemory)
	}
	floor := alignDown(newPos, a.page)
	if floor < a.commitPos {
		floor = a.commitPos
	}
	if floor < a.strCommitPos {
		if err := a.space.Commit(floor, a.strCommitPos-floor); err != nil {
			return Span{}, err
		}
		a.strCommitPos = floor
	}
	a.strPos = newPos
	a.volatileSeen = true
	a.totalAllocs++
	return Span{off: newPos, data: a.space.Bytes(newPos, size)}, nil
}

// IsLast reports whether span is the most recent allocation still at the
// top of the bump stack. Only the last allocation can be resized or freed
// in place.
func (a *Arena) IsLast(s Span) bool {
	return s.data != nil && s.off >= a.persistMark && s.off+len(s.data) == a.allocPos
}

// ResizeLast shrinks or grows the last allocation in place and returns the
// resized span.
//
// If span is not the last allocation, ResizeLast performs a non-owning
// check: shrinking to newSize <= span.Len() succeeds logically (the
// trailing bytes are truncated from the returned span without being
// reclaimed) and anything else fails. Growing the last allocation fails
// when it would cross the string cursor or the commit fails.
func (a *Arena) ResizeLast(s Span, newSize int) (Span, bool) {
	if newSize < 0 {
		return Span{}, false
	}
	if !a.IsLast(s) {
		if newSize <= len(s.data) {
			return Span{off: s.off, data: s.data[:newSize]}, true
		}
		return Span{}, false
	}
	newEnd := s.off + newSize
	if newEnd > a.strPos {
		return Span{}, false
	}
	if err := a.ensureCommitted(newEnd); err != nil {
		return Span{}, false
	}
	shrunk := newEnd < a.allocPos
	a.allocPos = newEnd
	if shrunk && a.eager {
		a.decommitExcess()
	}
	if newSize == 0 {
		return Span{}, true
	}
	return Span{off: s.off, data: a.space.Bytes(s.off, newSize)}, true
}

// FreeIfLast reclaims span if it is the last allocation; freeing anything
// else is a silent no-op since the arena keeps no per-allocation
// bookkeeping.
func (a *Arena) FreeIfLast(s Span) {
	if !a.IsLast(s) {
		return
	}
	a.allocPos = s.off
	if a.eager {
		a.decommitExcess()
	}
}

// Reset rewinds the forward cursor to the persistent boundary and the
// string cursor to the top, reclaiming every volatile allocation.
//
// Resetting while scratch scopes are open is a logic bug and panics.
func (a *Arena) Reset() {
	if a.scratchDepth != 0 {
		panic(fmt.Sprintf("arena: reset with %d open scratch scopes", a.scratchDepth))
	}
	a.allocPos = a.persistMark
	a.strPos = a.space.Size()
	a.volatileSeen = false
	if a.eager {
		a.decommitExcess()
	}
}

// DecommitExcess lowers both committed watermarks to the pages actually in
// use, releasing slack back to the OS. Call it after large shrinks to
// bound memory usage; with WithEagerDecommit it runs automatically.
func (a *Arena) DecommitExcess() {
	a.decommitExcess()
}

// Close releases the underlying reservation. Every span handed out by the
// arena becomes invalid.
func (a *Arena) Close() error {
	return a.space.Release()
}

func (a *Arena) bump(size, align int) (Span, error) {
	if size < 0 {
		return Span{}, fmt.Errorf("arena: invalid allocation size %d", size)
	}
	al := uint64(align)
	if al == 0 {
		al = a.align
	}
	if al&(al-1) != 0 {
		panic(fmt.Sprintf("arena: alignment %d is not a power of two", al))
	}
	if size == 0 {
		return Span{}, nil
	}
	off := alignUp(a.allocPos, int(al))
	end := off + size
	if end > a.strPos {
		return Span{}, fmt.Errorf("arena: allocation of %d bytes exceeds free capacity %d: %w",
			size, a.Free(), vmem.ErrOutOfMemory)
	}
	if err := a.ensureCommitted(end); err != nil {
		return Span{}, err
	}
	a.allocPos = end
	a.totalAllocs++
	return Span{off: off, data: a.space.Bytes(off, size)}, nil
}

// ensureCommitted extends the forward committed watermark to cover end.
// Pages at or above the string watermark are already committed and are
// never committed twice.
func (a *Arena) ensureCommitted(end int) error {
	if end <= a.commitPos {
		return nil
	}
	c := alignUp(end, a.page)
	if c > a.strCommitPos {
		c = a.strCommitPos
	}
	if c > a.commitPos {
		if err := a.space.Commit(a.commitPos, c-a.commitPos); err != nil {
			return err
		}
		a.commitPos = c
	}
	return nil
}

// decommitExcess lowers both watermarks to the pages the cursors actually
// need. The committed set is [0, commitPos) plus [strCommitPos, Size); the
// two regions may have met in the middle, so the slack between the new
// watermarks is released as up to two ranges.
func (a *Arena) decommitExcess() {
	f := alignUp(a.allocPos, a.page)
	g := alignDown(a.strPos, a.page)
	if g < f {
		g = f // cursors share a page; it stays committed
	}
	if lo, hi := f, min(g, a.commitPos); lo < hi {
		a.mustDecommit(lo, hi-lo)
	}
	if lo, hi := max(f, a.strCommitPos), g; lo < hi {
		a.mustDecommit(lo, hi-lo)
	}
	a.commitPos = f
	a.strCommitPos = g
}

func (a *Arena) mustDecommit(off, n int) {
	if err := a.space.Decommit(off, n); err != nil {
		panic(fmt.Sprintf("arena: decommit failed: %v", err))
	}
}

func alignUp(v, a int) int {
	return (v + a - 1) &^ (a - 1)
}

func alignDown(v, a int) int {
	return v &^ (a - 1)
}
