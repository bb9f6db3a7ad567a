package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/edgerelay/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	InstanceID string   `json:"instance_id,omitempty"`
	StorePath  string   `json:"store_path,omitempty"`
	ThingURL   string   `json:"thing_url,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a relay configuration",
		Long: `Load a relay configuration, apply defaults and check it against the
configuration schema without opening the store or contacting the cloud.

Example:
  edgerelay validate --config relay.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, configPath, cmd)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the relay configuration (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	formatter.VerboseLog("Validating %s", path)

	cfg, err := config.Load(path)
	if err != nil {
		var ve *config.ValidationError
		if errors.As(err, &ve) {
			return outputValidationErrors(formatter, ve.Problems)
		}
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:      true,
			InstanceID: cfg.InstanceID,
			StorePath:  cfg.StorePath(),
			ThingURL:   cfg.Endpoints().ThingURL,
		})
	}

	fmt.Fprintln(formatter.Writer, "✓ Configuration valid")
	formatter.VerboseLog("instance %s, store %s, endpoint %s", cfg.InstanceID, cfg.StorePath(), cfg.Endpoints().ThingURL)
	return nil
}

// outputValidationErrors outputs every schema violation.
func outputValidationErrors(formatter *OutputFormatter, problems []string) error {
	if formatter.Format == "json" {
		_ = formatter.Error(ErrCodeConfig, problems[0], ValidationResult{Valid: false, Errors: problems})
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		fmt.Fprintln(formatter.Writer)
		for _, p := range problems {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", ErrCodeConfig, p)
		}
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))
}
