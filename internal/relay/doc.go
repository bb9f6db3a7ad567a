// Package relay drains the durable store to the monitoring endpoint.
//
// A Scheduler runs one transmission cycle at a time. Each cycle first
// sends every pending configuration category, then pages through the
// telemetry queue, adapting the package size to the server's
// max_allowed_items and deleting only what the server reports as
// processed. Cycles run every cycle time, compensating for the time the
// previous cycle took, and on demand via Flush.
//
// Failures never stop the scheduler. They are classified into a status
// and an error for the outputs, and errors that indicate a damaged store
// file trigger an asynchronous, destructive recovery of the store.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - Handle(), Flush(), Status(): safe from any goroutine
package relay
