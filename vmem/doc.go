// Package vmem manages raw reservations of virtual address space.
//
// A Space is a page-aligned range of addresses reserved without physical
// backing. Sub-ranges are committed (backed and made read-write) and
// decommitted on demand. There is no allocation policy here; higher layers
// (package arena) decide what goes where.
//
// A Space is released as a whole. Partial release is deliberately not
// supported: spaces back single-purpose, long-lived allocators.
package vmem
