package vmem

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrOutOfAddressSpace is returned when a reservation cannot be satisfied.
	ErrOutOfAddressSpace = errors.New("vmem: out of address space")
	// ErrOutOfMemory is returned when the system refuses to back a committed range.
	ErrOutOfMemory = errors.New("vmem: out of memory")
	// ErrClosed is returned when using a Space after Release.
	ErrClosed = errors.New("vmem: space is released")
	// ErrOutOfBounds is returned when a range falls outside the reservation.
	ErrOutOfBounds = errors.New("vmem: range outside reservation")
)

// Space is a reserved, page-aligned virtual address range.
//
// The reservation has no physical backing until sub-ranges are committed.
// Reading or writing an uncommitted byte faults, so stale references into
// decommitted memory fail fast instead of returning garbage.
//
// A Space is exclusively owned by the allocator built on top of it and is
// not safe for concurrent use.
type Space struct {
	mem      []byte
	released atomic.Bool
}

// Granularity returns the platform commit granularity in bytes.
// Committed and decommitted ranges are managed in units of this size.
func Granularity() int {
	return osGranularity()
}

// Reserve claims size bytes of address space with no access and no backing.
// The reservation is rounded up to the platform granularity.
func Reserve(size int) (*Space, error) {
	if size <= 0 {
		return nil, fmt.Errorf("vmem: invalid reservation size %d", size)
	}
	r := alignUp(size, Granularity())
	mem, err := osReserve(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve %d bytes: %v", ErrOutOfAddressSpace, r, err)
	}
	return &Space{mem: mem}, nil
}

// Size returns the reserved size in bytes, a multiple of Granularity.
func (s *Space) Size() int {
	return len(s.mem)
}

// Commit backs [off, off+n) with physical memory and grants read-write
// access. The range is rounded outward to granularity. Committing an
// already-committed page is harmless.
func (s *Space) Commit(off, n int) error {
	lo, hi, err := s.spanRange(off, n)
	if err != nil {
		return err
	}
	if lo == hi {
		return nil
	}
	if err := osCommit(s.mem[lo:hi]); err != nil {
		return fmt.Errorf("%w: commit [%d,%d): %v", ErrOutOfMemory, lo, hi, err)
	}
	return nil
}

// Decommit releases physical backing and access for [off, off+n), rounded
// outward to granularity. Contents of the range become undefined; the next
// Commit yields zeroed pages.
//
// Callers treat a decommit failure as fatal: it indicates a corrupted
// reservation, not an environmental condition.
func (s *Space) Decommit(off, n int) error {
	lo, hi, err := s.spanRange(off, n)
	if err != nil {
		return err
	}
	if lo == hi {
		return nil
	}
	if err := osDecommit(s.mem[lo:hi]); err != nil {
		return fmt.Errorf("vmem: decommit [%d,%d): %w", lo, hi, err)
	}
	return nil
}

// Bytes returns a view of [off, off+n). The view is only safe to access
// while the range is committed.
func (s *Space) Bytes(off, n int) []byte {
	if s.released.Load() {
		panic("vmem: Bytes on released space")
	}
	if off < 0 || n < 0 || off+n > len(s.mem) {
		panic(fmt.Sprintf("vmem: Bytes [%d,%d) outside reservation of %d", off, off+n, len(s.mem)))
	}
	return s.mem[off : off+n : off+n]
}

// Release unmaps the entire reservation. The Space must not be used
// afterward. Release is idempotent.
func (s *Space) Release() error {
	if s.released.Swap(true) {
		return nil
	}
	mem := s.mem
	s.mem = nil
	return osRelease(mem)
}

func (s *Space) spanRange(off, n int) (int, int, error) {
	if s.released.Load() {
		return 0, 0, ErrClosed
	}
	if off < 0 || n < 0 || off+n > len(s.mem) {
		return 0, 0, fmt.Errorf("%w: [%d,%d) in %d", ErrOutOfBounds, off, off+n, len(s.mem))
	}
	g := Granularity()
	return alignDown(off, g), min(alignUp(off+n, g), len(s.mem)), nil
}

func alignUp(v, a int) int {
	return (v + a - 1) &^ (a - 1)
}

func alignDown(v, a int) int {
	return v &^ (a - 1)
}
