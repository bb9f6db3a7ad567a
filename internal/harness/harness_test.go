package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edgerelay/internal/model"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestGoldenTraces(t *testing.T) {
	for _, name := range []string{"basic_paging", "oversize_shrinks"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_EventsFirstOrdering(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: events_first
description: "Events overtake older telemetry"
relay:
  priority: events_first
setup:
  items: 4
  events: [2, 3]
flow:
  - {}
assertions:
  - type: request_count
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	sends := result.Events(EventSend)
	require.Len(t, sends, 1)
	assert.Equal(t, []int{2, 3, 0, 1}, sends[0].Seqs)
}

func TestRun_ItemsAddedBetweenCycles(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: later_items
description: "Items queued between cycles go out with the next cycle"
setup:
  items: 1
flow:
  - {}
  - items: 2
  - {}
assertions:
  - type: request_sizes
    sizes: [1, 2]
  - type: final_status
    status: No Data
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	sends := result.Events(EventSend)
	require.Len(t, sends, 2)
	assert.Equal(t, 1, sends[0].Cycle)
	assert.Equal(t, []int{1, 2}, sends[1].Seqs)
	assert.Equal(t, 2, sends[1].Cycle)
}

func TestRun_OversizeWithoutSmallerLimitStops(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: oversize_stuck
description: "A 413 that does not shrink the package ends the cycle"
relay:
  max_items_per_package: 3
setup:
  items: 3
flow:
  - replies:
      - status: 413
assertions:
  - type: request_count
    count: 1
  - type: pending_items
    count: 3
  - type: package_size
    count: 3
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	assert.Equal(t, model.StatusConnected, result.State.Status)
}

func TestRun_DeleteOnOversize(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: oversize_delete
description: "With delete_on_oversize the processed head of a 413 package is dropped"
relay:
  max_items_per_package: 4
  delete_on_oversize: true
setup:
  items: 4
flow:
  - replies:
      - status: 413
        max_allowed_items: 2
        current_item_index: 0
assertions:
  - type: request_sizes
    sizes: [4, 2, 1]
  - type: pending_items
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	sends := result.Events(EventSend)
	assert.Equal(t, []int{1, 2}, sends[1].Seqs)
	assert.Equal(t, []int{3}, sends[2].Seqs)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: "Assertions that do not hold fail the result"
setup:
  items: 2
flow:
  - {}
assertions:
  - type: pending_items
    count: 2
  - type: final_status
    status: Error
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: pending_items")
	assert.Contains(t, result.Errors[0], "Actual: 0 pending items")
	assert.Contains(t, result.Errors[1], "Assertion failed: final_status")
}
