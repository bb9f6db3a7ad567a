package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeRemovesStore(t *testing.T) {
	path := writeConfig(t, "")
	seedStore(t, path, 2)
	storePath := storePathFor(t, path)
	require.FileExists(t, storePath)

	stdout, _, err := execute(t, nil, "purge", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Removed store")
	assert.NoFileExists(t, storePath)
	assert.NoFileExists(t, storePath+"-wal")
	assert.NoFileExists(t, storePath+"-shm")
}

func TestPurgeWithoutStore(t *testing.T) {
	path := writeConfig(t, "")

	stdout, _, err := execute(t, nil, "--format", "json", "purge", "--config", path)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   PurgeResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Data.Existed)
	assert.Equal(t, storePathFor(t, path), resp.Data.Path)
}

func TestPurgeThenStatsStartsEmpty(t *testing.T) {
	path := writeConfig(t, "")
	seedStore(t, path, 5)

	_, _, err := execute(t, nil, "purge", "--config", path)
	require.NoError(t, err)

	stdout, _, err := execute(t, nil, "stats", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Pending items:   0")
	assert.Contains(t, stdout, "Pending configs: 0")
}
