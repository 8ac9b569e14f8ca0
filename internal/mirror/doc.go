// Package mirror propagates register changes from the Primary device to the
// Secondary device.
//
// Every propagation attempt is an Operation with an explicit lifecycle:
//
//	created ──▶ dispatched ──▶ applied
//	   │                  └──▶ failed   (transport error, timeout, rejection)
//	   └──────────────────────▶ skipped (secondary known to be disconnected)
//
// Terminal states are final. The Coordinator makes exactly one attempt per
// Operation and keeps no retry queue; callers that need the Secondary to
// converge issue a new write.
//
// Connectivity is owned by a periodic health probe running on its own
// goroutine and its own lock. A failed Operation never flips the connectivity
// flag; only a probe does. A probe never touches a register store.
//
// Mirroring never affects the Primary outcome: Dispatch returns an
// Operation, not an error.
package mirror
