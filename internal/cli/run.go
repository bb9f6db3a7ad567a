package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/edgerelay/internal/bus"
	"github.com/roach88/edgerelay/internal/config"
	"github.com/roach88/edgerelay/internal/relay"
	"github.com/roach88/edgerelay/internal/store"
	"github.com/roach88/edgerelay/internal/transport"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath   string
	Decommission bool

	// Client overrides the cloud client (for testing).
	// If nil, an OAuth client for the configured endpoints is used.
	Client transport.Client
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Relay stdin messages to the cloud",
		Long: `Start the relay for one configured instance.

Messages are read from stdin as JSON Lines and buffered in the instance's
store. The scheduler uploads them every cycle_time seconds. Responses,
errors and status changes are written to stdout as JSON Lines, logs go to
stderr. The relay stops at end of input or on SIGINT/SIGTERM.

Example:
  edgerelay run --config relay.yaml < producer.jsonl
  producer | edgerelay run --config relay.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the relay configuration (required)")
	cmd.Flags().BoolVar(&opts.Decommission, "decommission", false, "remove the store file on shutdown")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runRelay(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return configError(err)
	}
	logger = logger.With("instance", cfg.InstanceID)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := bus.NewWriter(cmd.OutOrStdout(), logger)

	client := opts.Client
	if client == nil {
		endpoints := cfg.Endpoints()
		client = transport.NewOAuthClient(cfg.ClientID, cfg.ClientSecret, endpoints.TokenURL,
			transport.WithTimeout(cfg.RequestTimeoutDuration()),
			transport.WithLogger(logger),
		)
	}

	sched := relay.New(st, client, relay.Config{
		Endpoints:          cfg.Endpoints(),
		CycleTime:          cfg.CycleDuration(),
		MaxItemsPerPackage: cfg.MaxItemsPerPackage,
		MaxItemsCeiling:    cfg.MaxItemsCeiling,
		DeleteOnOversize:   cfg.DeleteOnOversize,
	}, relay.WithOutput(out), relay.WithLogger(logger))

	// Producers may start writing before the store is ready; their calls
	// wait for it. A damaged file is recreated by the scheduler.
	initDone := make(chan struct{})
	go func() {
		defer close(initDone)
		if err := st.Initialize(ctx); err != nil && ctx.Err() == nil {
			logger.Error("failed to initialize store", "path", st.Path(), "error", err)
			sched.ReportError(err)
		}
	}()

	runCtx, stopScheduler := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() {
		runDone <- sched.Run(runCtx)
	}()

	pumpDone := make(chan error, 1)
	go func() {
		pumpDone <- bus.Pump(ctx, cmd.InOrStdin(), sched, out)
	}()

	var pumpErr error
	select {
	case pumpErr = <-pumpDone:
		logger.Info("input closed, shutting down")
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	}

	// Shutdown order: let initialization settle, stop the timer, wait for
	// the cycle and any store recovery, then commit and close the store.
	<-initDone
	stopScheduler()
	if err := <-runDone; err != nil {
		logger.Error("scheduler error", "error", err)
	}

	if err := shutdownStore(st, opts.Decommission, logger); err != nil {
		return WrapExitError(ExitFailure, "failed to close store", err)
	}
	if pumpErr != nil {
		return WrapExitError(ExitFailure, "input error", pumpErr)
	}

	logger.Info("relay stopped gracefully")
	return nil
}

// openStore creates the data directory and an uninitialized store for cfg.
func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	priority, err := cfg.PriorityMode()
	if err != nil {
		return nil, configError(err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
	}

	return store.New(cfg.StorePath(),
		store.WithMaxFileSize(cfg.MaxBufferBytes()),
		store.WithHousekeeperInterval(cfg.HousekeeperDuration()),
		store.WithCheckpointInterval(cfg.CheckpointDuration()),
		store.WithPriorityMode(priority),
		store.WithDelayWindow(cfg.DelayDuration()),
		store.WithLogger(logger),
	), nil
}

// shutdownStore commits and closes st, removing the file when the instance
// is decommissioned.
func shutdownStore(st *store.Store, decommission bool, logger *slog.Logger) error {
	ctx := context.Background()
	if decommission {
		logger.Info("decommissioning instance, removing store", "path", st.Path())
		return st.Destroy(ctx)
	}
	return st.Close(ctx)
}

func configError(err error) error {
	if config.IsValidationError(err) {
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}
	return WrapExitError(ExitCommandError, "failed to load config", err)
}
