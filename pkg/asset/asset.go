// Package asset defines the persisted-state boundary of the framework: the
// directory of state slots keyed by worker state identity, and the handles
// through which compiled instructions load and save opaque snapshots.
//
// State outlives any single execution; the graph layers only ever see keys
// and handles, never storage details.
package asset

import "sync"

// Handle is one persisted-state slot. Load returns the latest snapshot or
// nil when the slot is empty. Implementations embed a lock that callers hold
// across a load/compute/save cycle, which both serializes concurrent access
// to one slot within a run and makes training commits all-or-nothing.
type Handle interface {
	sync.Locker
	Load() ([]byte, error)
	Save(snapshot []byte) error
}

// State is the accessor scoped to one compiled composition. Get is
// idempotent: repeated calls with the same key return the same handle.
type State interface {
	Get(key string) (Handle, error)
}

// Directory owns the state slots across compositions and hands out
// accessors for the given state-identity keys.
type Directory interface {
	State(keys []string) (State, error)
}
