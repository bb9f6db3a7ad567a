package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "edgerelay", cmd.Use)
	assert.Contains(t, cmd.Long, "store-and-forward")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "stats", "purge", "validate"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestConfigFlagOnEverySubcommand(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "stats", "purge", "validate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			flag := sub.Flags().Lookup("config")
			require.NotNil(t, flag)
			assert.Equal(t, "c", flag.Shorthand)
		})
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	decommission := runCmd.Flags().Lookup("decommission")
	require.NotNil(t, decommission)
	assert.Equal(t, "false", decommission.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	path := writeConfig(t, "")
	_, _, err := execute(t, nil, "--format", "xml", "validate", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		opts      RootOptions
		wantDebug bool
		wantJSON  bool
	}{
		{"text_info", RootOptions{Format: "text"}, false, false},
		{"text_debug", RootOptions{Format: "text", Verbose: true}, true, false},
		{"json_info", RootOptions{Format: "json"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := newLogger(&tt.opts, buf)
			logger.Debug("debug line")
			logger.Info("info line")

			out := buf.String()
			assert.Contains(t, out, "info line")
			if tt.wantDebug {
				assert.Contains(t, out, "debug line")
			} else {
				assert.NotContains(t, out, "debug line")
			}
			if tt.wantJSON {
				assert.Contains(t, out, `"msg":"info line"`)
			} else {
				assert.Contains(t, out, "msg=\"info line\"")
			}
		})
	}
}
