package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/edgerelay/internal/clock"
	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/store"
	"github.com/roach88/edgerelay/internal/testutil"
	"github.com/roach88/edgerelay/internal/transport"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	sched  *Scheduler
	store  *store.Store
	client *testutil.FakeClient
	output *testutil.OutputRecorder
	clock  *clock.FakeClock
	ends   transport.Endpoints
}

func testConfig() Config {
	return Config{
		Endpoints:          transport.ResolveEndpoints("C1", "EQ1"),
		CycleTime:          time.Hour,
		MaxItemsPerPackage: 10,
		MaxItemsCeiling:    100,
	}
}

// newFixture builds a scheduler over a fresh store. The store and the
// scheduler have separate fake clocks so that the scheduler's pending
// timers can be counted on their own.
func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.New(filepath.Join(t.TempDir(), "relay.db"),
		store.WithClock(clock.Fake(testEpoch)),
		store.WithLogger(logger),
	)
	require.NoError(t, st.Initialize(context.Background()))
	t.Cleanup(func() { st.Close(context.Background()) })

	f := &fixture{
		store:  st,
		client: testutil.NewFakeClient(),
		output: &testutil.OutputRecorder{},
		clock:  clock.Fake(testEpoch),
		ends:   cfg.Endpoints,
	}
	f.sched = New(st, f.client, cfg,
		WithOutput(f.output),
		WithClock(f.clock),
		WithLogger(logger),
	)
	return f
}

// storeItems queues n items with ascending timestamps and returns their ids.
func (f *fixture) storeItems(t *testing.T, n int) []int64 {
	t.Helper()
	items := make([]model.Item, n)
	for i := range items {
		items[i] = model.Item{
			Timestamp: testEpoch.Add(time.Duration(i-n) * time.Second),
			Payload:   json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
		}
	}
	ids, err := f.store.Queue().Store(context.Background(), items)
	require.NoError(t, err)
	return ids
}

func (f *fixture) queueCount(t *testing.T) int {
	t.Helper()
	n, err := f.store.Queue().Count(context.Background())
	require.NoError(t, err)
	return n
}

// seqs returns the seq field of each sent item.
func seqs(t *testing.T, items []json.RawMessage) []int {
	t.Helper()
	out := make([]int, len(items))
	for i, raw := range items {
		var v struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(raw, &v))
		out[i] = v.Seq
	}
	return out
}

func seqRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
