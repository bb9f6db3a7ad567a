package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edgerelay/internal/model"
)

func raw(values ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		out[i] = json.RawMessage(v)
	}
	return out
}

func TestConfigs_ReadAllPendingGroupsByCategory(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	c := s.Configs()

	_, err := c.StoreConfig(ctx, model.CategoryAlarmClasses, raw(`{"a":1}`, `{"a":2}`))
	require.NoError(t, err)
	_, err = c.StoreConfig(ctx, model.CategoryStateModels, raw(`{"s":1}`))
	require.NoError(t, err)
	_, err = c.StoreConfig(ctx, model.CategoryAlarmClasses, raw(`{"a":3}`))
	require.NoError(t, err)

	pending, err := c.ReadAllPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending.Groups, 2)

	assert.Equal(t, model.CategoryAlarmClasses, pending.Groups[0].Category)
	assert.Equal(t, raw(`{"a":1}`, `{"a":2}`, `{"a":3}`), pending.Groups[0].Items)
	assert.Equal(t, model.CategoryStateModels, pending.Groups[1].Category)
	assert.Equal(t, raw(`{"s":1}`), pending.Groups[1].Items)

	assert.Equal(t, int64(1), pending.MinID)
	assert.Equal(t, int64(4), pending.MaxID)
}

func TestConfigs_EmptyPending(t *testing.T) {
	s, _ := createTestStore(t)

	pending, err := s.Configs().ReadAllPending(context.Background())
	require.NoError(t, err)
	assert.True(t, pending.Empty())
}

func TestConfigs_RejectsUnknownCategory(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.Configs().StoreConfig(context.Background(), model.Category("widgets"), raw(`{}`))
	assert.ErrorContains(t, err, "unknown category")
}

func TestConfigs_DeleteRangeKeepsLaterRows(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	c := s.Configs()

	_, err := c.StoreConfig(ctx, model.CategoryMessageClasses, raw(`{"m":1}`, `{"m":2}`))
	require.NoError(t, err)

	pending, err := c.ReadAllPending(ctx)
	require.NoError(t, err)

	_, err = c.StoreConfig(ctx, model.CategoryMessageClasses, raw(`{"m":3}`))
	require.NoError(t, err)

	require.NoError(t, c.DeleteRange(ctx, pending.MinID, pending.MaxID))

	rest, err := c.ReadAllPending(ctx)
	require.NoError(t, err)
	require.Len(t, rest.Groups, 1)
	assert.Equal(t, raw(`{"m":3}`), rest.Groups[0].Items)
}

// A row that lands inside an already-read range is deleted with it even
// though it was never sent.
func TestConfigs_DeleteRangeRemovesUnreadRowsInsideRange(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	c := s.Configs()

	_, err := c.StoreConfig(ctx, model.CategoryStateModels, raw(`{"n":1}`, `{"n":2}`, `{"n":3}`))
	require.NoError(t, err)
	execRaw(t, s, "DELETE FROM configurations WHERE id = 2")

	pending, err := c.ReadAllPending(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), pending.MinID)
	require.Equal(t, int64(3), pending.MaxID)

	execRaw(t, s, `INSERT INTO configurations (id, category, data) VALUES (2, 'alarm_classes', '{"late":true}')`)

	require.NoError(t, c.DeleteRange(ctx, pending.MinID, pending.MaxID))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConfigs_DeleteRangeInvertedIsNoop(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	_, err := s.Configs().StoreConfig(ctx, model.CategoryStateModels, raw(`{}`))
	require.NoError(t, err)
	require.NoError(t, s.Configs().DeleteRange(ctx, 5, 1))

	n, err := s.Configs().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
