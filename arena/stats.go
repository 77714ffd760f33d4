package arena

import "fmt"

// Stats is a point-in-time snapshot of arena usage.
type Stats struct {
	Reserved     uint64 // reserved address space in bytes
	Committed    uint64 // bytes currently backed by physical memory
	Used         uint64 // bytes below the forward cursor
	StringUsed   uint64 // bytes above the string cursor
	Persistent   uint64 // bytes below the persistent boundary
	TotalAllocs  uint64 // cumulative allocation count
	ScratchDepth int    // currently open scratch scopes
}

// Stats returns the current arena statistics.
func (a *Arena) Stats() Stats {
	size := a.space.Size()
	return Stats{
		Reserved:     uint64(size),
		Committed:    uint64(a.commitPos + (size - a.strCommitPos)),
		Used:         uint64(a.allocPos),
		StringUsed:   uint64(size - a.strPos),
		Persistent:   uint64(a.persistMark),
		TotalAllocs:  a.totalAllocs,
		ScratchDepth: a.scratchDepth,
	}
}

func (a *Arena) String() string {
	st := a.Stats()
	return fmt.Sprintf(
		"Arena{reserved: %.2f MB, committed: %.2f MB, used: %.2f MB, strings: %.2f KB, allocs: %d, scratch: %d}",
		float64(st.Reserved)/(1024*1024),
		float64(st.Committed)/(1024*1024),
		float64(st.Used)/(1024*1024),
		float64(st.StringUsed)/1024,
		st.TotalAllocs,
		st.ScratchDepth,
	)
}
