package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/edgerelay/internal/config"
)

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	ConfigPath string
}

// PurgeResult reports which store was removed.
type PurgeResult struct {
	InstanceID string `json:"instance_id"`
	Path       string `json:"path"`
	Existed    bool   `json:"existed"`
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove the instance's store",
		Long: `Decommission an instance by removing its store file together with the
WAL and shared-memory files. Everything not yet uploaded is lost.

Example:
  edgerelay purge --config relay.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the relay configuration (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runPurge(opts *PurgeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return formatter.Fail(GetExitCode(configError(err)), ErrCodeConfig, "failed to load config", err)
	}

	result := PurgeResult{InstanceID: cfg.InstanceID, Path: cfg.StorePath()}
	if _, err := os.Stat(result.Path); err == nil {
		result.Existed = true
	} else if !errors.Is(err, os.ErrNotExist) {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to stat store", err)
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	if err := st.Destroy(context.Background()); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "failed to remove store", err)
	}
	formatter.VerboseLog("Removed %s", result.Path)

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if !result.Existed {
		fmt.Fprintf(formatter.Writer, "No store at %s\n", result.Path)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "✓ Removed store %s\n", result.Path)
	return nil
}
