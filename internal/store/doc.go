// Package store provides the SQLite-backed durable buffer of the relay.
//
// One database file per relay instance holds two tables:
//   - messages: telemetry items, read in (timestamp, priority tie-break) order
//   - configurations: pending configuration snapshots keyed by category
//
// # Ambient Transaction
//
// A single transaction stays open between checkpoints. Every write joins it
// implicitly; the checkpoint ticker commits and reopens it whenever a
// mutation happened since the last tick. Many small writes therefore cost
// one durability sync per interval. Beginning a transaction while one is
// open, or committing when none is, is a benign race and is ignored.
//
// # Retention
//
// The housekeeper ticker checks the on-disk size (database plus WAL) after
// any mutation. While the size is at or above the configured maximum it
// evicts the oldest 5% of queued items, vacuums and checks again.
//
// # Lifecycle
//
//	uninitialized → initializing → ready
//	failed → (Recover) → initializing → ready
//
// Calls made before the store is ready block on a readiness signal that is
// closed exactly once per initialization attempt.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single connection; all operations are serialized
package store
