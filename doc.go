// Package viewmem is the memory core of a resource-viewing application:
// virtual-memory arenas, a generation-tagged resource cache and an
// asynchronous file loader, tied together behind one Core.
//
// The Core owns three independently-lived arenas (persistent data,
// transient scratch work and resource load buffers), a fixed-capacity
// cache of decoded resources and a loader that fills arena buffers off the
// calling goroutine. Open loads a file through the cache, evicting the
// oldest resource round-robin when the cache is full; handles returned by
// Open go stale on eviction and are detected by a cheap generation check.
//
// Lower-level pieces are usable on their own: see the vmem, arena,
// rescache, loader and codec packages.
package viewmem
