package viewmem

import (
	"fmt"

	"github.com/viewmem/viewmem/arena"
	"github.com/viewmem/viewmem/rescache"
)

// Stats is a point-in-time snapshot of the Core's memory and cache usage.
type Stats struct {
	Persistent arena.Stats
	Scratch    arena.Stats
	Buffers    arena.Stats
	Cache      rescache.Stats

	// BufferUse is the bytes currently reserved against the load-buffer
	// budget, including reads still in flight.
	BufferUse int64
}

// Committed returns the total physical memory committed across all arenas.
func (s Stats) Committed() uint64 {
	return s.Persistent.Committed + s.Scratch.Committed + s.Buffers.Committed
}

func (s Stats) String() string {
	return fmt.Sprintf("committed=%.1fMB buffers=%.1fMB cache=%d/%d",
		float64(s.Committed())/(1<<20),
		float64(s.BufferUse)/(1<<20),
		s.Cache.Loaded, s.Cache.Capacity,
	)
}
