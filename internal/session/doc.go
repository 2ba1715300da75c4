// Package session owns the master/slave replication state machine.
//
// Ownership boundary:
// - one registry per session
// - per-frame update: snapshot send (master) or drain-and-merge (slave)
// - slave liveness tracking
//
// Roles are fixed for a session's lifetime. A session is driven from a
// single goroutine; it starts no goroutines and takes no locks.
//
// Failure policy:
// - transport and liveness failures are fatal and latch: every later
//   Update returns the same error
// - lookup, capacity and decode failures are local and leave the
//   registry unchanged
package session
