package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/edgerelay/internal/config"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	ConfigPath string
}

// StatsResult describes the backlog of an instance's store.
type StatsResult struct {
	InstanceID     string `json:"instance_id"`
	Path           string `json:"path"`
	PendingItems   int    `json:"pending_items"`
	PendingConfigs int    `json:"pending_configs"`
	FileSize       int64  `json:"file_size"`
	MaxFileSize    int64  `json:"max_file_size"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the backlog of the instance's store",
		Long: `Open the instance's store and report how many items and configuration
rows are waiting for upload, together with the file size.

Do not run stats against a store that a running relay owns.

Example:
  edgerelay stats --config relay.yaml
  edgerelay stats --config relay.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the relay configuration (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return formatter.Fail(GetExitCode(configError(err)), ErrCodeConfig, "failed to load config", err)
	}
	formatter.VerboseLog("Opening store %s", cfg.StorePath())

	st, err := openStore(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := st.Initialize(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(context.Background()); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	result := StatsResult{
		InstanceID:  cfg.InstanceID,
		Path:        st.Path(),
		MaxFileSize: cfg.MaxBufferBytes(),
	}
	if result.PendingItems, err = st.Queue().Count(ctx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "failed to count items", err)
	}
	if result.PendingConfigs, err = st.Configs().Count(ctx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "failed to count configurations", err)
	}
	if result.FileSize, err = st.FileSize(); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "failed to stat store", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Instance:        %s\n", result.InstanceID)
	fmt.Fprintf(w, "Store:           %s\n", result.Path)
	fmt.Fprintf(w, "Pending items:   %d\n", result.PendingItems)
	fmt.Fprintf(w, "Pending configs: %d\n", result.PendingConfigs)
	fmt.Fprintf(w, "File size:       %d / %d bytes\n", result.FileSize, result.MaxFileSize)
	return nil
}
