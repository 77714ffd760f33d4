// Package arena implements a bump allocator over a reserved virtual
// address range.
//
// An Arena owns one vmem.Space and serves allocations by advancing a
// cursor, committing pages on demand. There is no per-allocation metadata:
// only the most recent allocation can be grown, shrunk or freed in place.
// Scratch scopes give stack-discipline temporary allocation on top of the
// same cursor.
//
// # Ownership
//
// An Arena is exclusively owned by the subsystem that created it and is not
// safe for concurrent use. Confine all mutation to one goroutine; worker
// goroutines may read committed spans handed to them, nothing more.
//
// # Misuse
//
// Closing scratch scopes out of LIFO order, resetting with open scopes and
// similar violations corrupt the cursor invariants, so they panic instead
// of returning an error. Capacity and commit failures are ordinary errors.
package arena
