// Package harness runs scripted relay scenarios.
//
// A scenario seeds a fresh store, scripts the cloud's answers and drives
// the scheduler through a number of timer cycles on a fake clock. The
// requests, responses and outputs of the run are collected into a trace
// that assertions and golden files check.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: oversize_shrinks_package
//	description: "A 413 with a smaller limit resends the package in halves"
//	relay:
//	  max_items_per_package: 4
//	  max_items_ceiling: 10
//	setup:
//	  items: 4
//	  events: [2]
//	  configs: { alarm_classes: 1 }
//	flow:
//	  - replies:
//	      - { status: 413, max_allowed_items: 2 }
//	  - items: 3
//	assertions:
//	  - type: request_sizes
//	    sizes: [4, 2, 2]
//	  - type: pending_items
//	    count: 0
//
// Every flow step is one cycle of the scheduler. Before the cycle the step
// may queue more items, let the authentication fail with auth_status and
// append scripted replies; once the script is exhausted the cloud accepts everything.
//
// # Assertion Types
//
//   - request_count: number of Send calls
//   - request_sizes: item count of every Send call, in order
//   - pending_items: items left in the queue after the run
//   - pending_configs: configuration rows left after the run
//   - package_size: package size after the run
//   - final_status: status after the run
//   - status_sequence: every status change, in order
//   - error_contains: some reported error contains text
//
// # Determinism
//
// Items carry a "seq" field and timestamps one second apart before a fixed
// epoch. The scheduler and the store use separate fake clocks, so traces
// are identical across runs and can be compared with golden files.
package harness
