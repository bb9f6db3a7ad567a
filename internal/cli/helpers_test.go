package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/edgerelay/internal/config"
	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/store"
)

// writeConfig writes a valid configuration whose data_dir is a fresh
// temporary directory. extra is appended verbatim.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`instance_id: press-7
data_dir: %s
customer_id: C4711
eq_id: EQ-0815
client_id: relay-client
client_secret: not-so-secret
housekeeper_interval: 3600
checkpoint_interval: 3600
%s`, filepath.Join(dir, "data"), extra)
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// storePathFor returns the store file configured in path.
func storePathFor(t *testing.T, path string) string {
	t.Helper()
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg.StorePath()
}

// seedStore writes n items and one configuration row into the store
// configured in path.
func seedStore(t *testing.T, path string, n int) {
	t.Helper()
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))

	ctx := context.Background()
	st := store.New(cfg.StorePath())
	require.NoError(t, st.Initialize(ctx))

	items := make([]model.Item, n)
	for i := range items {
		items[i] = model.Item{
			Timestamp: time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC),
			Payload:   json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
		}
	}
	_, err = st.Queue().Store(ctx, items)
	require.NoError(t, err)
	_, err = st.Configs().StoreConfig(ctx, model.CategoryAlarmClasses, []json.RawMessage{json.RawMessage(`{"id":"A1"}`)})
	require.NoError(t, err)
	require.NoError(t, st.Close(ctx))
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
