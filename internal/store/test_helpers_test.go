package store

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
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates and initializes a store in a temp directory,
// driven by a fake clock.
func createTestStore(t *testing.T, opts ...Option) (*Store, *clock.FakeClock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	return openTestStore(t, path, opts...)
}

// openTestStore initializes a store at path.
func openTestStore(t *testing.T, path string, opts ...Option) (*Store, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(testEpoch)
	base := []Option{
		WithClock(clk),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	s := New(path, append(base, opts...)...)
	require.NoError(t, s.Initialize(context.Background()), "Initialize() failed")
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, clk
}

// testItem builds an item whose payload records its label.
func testItem(ts time.Time, isEvent bool, label string) model.Item {
	return model.Item{
		Timestamp: ts,
		IsEvent:   isEvent,
		Payload:   json.RawMessage(fmt.Sprintf(`{"label":%q}`, label)),
	}
}

// labels extracts the label field of each item in a batch.
func labels(t *testing.T, b Batch) []string {
	t.Helper()
	out := make([]string, 0, b.Len())
	for _, item := range b.Items {
		var p struct {
			Label string `json:"label"`
		}
		require.NoError(t, json.Unmarshal(item.Payload, &p))
		out = append(out, p.Label)
	}
	return out
}

// execRaw runs a statement on the store connection, bypassing the API.
func execRaw(t *testing.T, s *Store, query string, args ...any) {
	t.Helper()
	conn, err := s.acquire(context.Background())
	require.NoError(t, err)
	defer s.mu.Unlock()
	_, err = conn.ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}
