// Package config loads and validates the relay configuration.
//
// The configuration is a YAML file. Unset or zero numeric fields take their
// defaults, the client secret may come from EDGERELAY_CLIENT_SECRET, and
// the result is checked against an embedded CUE schema. Durations are
// given in seconds and sizes in megabytes.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/transport"
)

// EnvClientSecret overrides client_secret when set.
const EnvClientSecret = "EDGERELAY_CLIENT_SECRET"

//go:embed schema.cue
var schemaCUE string

// Config is the relay configuration.
type Config struct {
	InstanceID   string `yaml:"instance_id" json:"instance_id"`
	DataDir      string `yaml:"data_dir" json:"data_dir"`
	CustomerID   string `yaml:"customer_id" json:"customer_id"`
	EqID         string `yaml:"eq_id" json:"eq_id"`
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`

	CycleTime          int    `yaml:"cycle_time" json:"cycle_time"`
	MaxBufferSize      int    `yaml:"max_buffer_size" json:"max_buffer_size"`
	MaxItemsPerPackage int    `yaml:"max_items_per_package" json:"max_items_per_package"`
	MaxItemsCeiling    int    `yaml:"max_items_ceiling" json:"max_items_ceiling"`
	Priority           string `yaml:"priority" json:"priority"`
	DelayWindow        int    `yaml:"delay_window" json:"delay_window"`

	HousekeeperInterval int  `yaml:"housekeeper_interval" json:"housekeeper_interval"`
	CheckpointInterval  int  `yaml:"checkpoint_interval" json:"checkpoint_interval"`
	RequestTimeout      int  `yaml:"request_timeout" json:"request_timeout"`
	DeleteOnOversize    bool `yaml:"delete_on_oversize" json:"delete_on_oversize"`
}

// Defaults.
const (
	DefaultDataDir             = "."
	DefaultCycleTime           = 3600
	DefaultMaxBufferSize       = 100
	DefaultMaxItemsPerPackage  = 10000
	DefaultMaxItemsCeiling     = 10000
	DefaultHousekeeperInterval = 10
	DefaultCheckpointInterval  = 10
	DefaultRequestTimeout      = 30
)

// ValidationError lists every schema violation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid configuration: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid configuration: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Load reads, completes and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if secret := os.Getenv(EnvClientSecret); secret != "" {
		cfg.ClientSecret = secret
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields. A missing instance id is derived from
// the customer and equipment ids so that restarts reuse the same store.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.CycleTime == 0 {
		c.CycleTime = DefaultCycleTime
	}
	if c.MaxBufferSize == 0 {
		c.MaxBufferSize = DefaultMaxBufferSize
	}
	if c.MaxItemsCeiling == 0 {
		c.MaxItemsCeiling = DefaultMaxItemsCeiling
	}
	if c.MaxItemsPerPackage == 0 {
		c.MaxItemsPerPackage = min(DefaultMaxItemsPerPackage, c.MaxItemsCeiling)
	}
	if c.Priority == "" {
		c.Priority = model.PriorityFIFO.String()
	}
	if c.HousekeeperInterval == 0 {
		c.HousekeeperInterval = DefaultHousekeeperInterval
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.InstanceID == "" && c.CustomerID != "" && c.EqID != "" {
		c.InstanceID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.CustomerID+"/"+c.EqID)).String()
	}
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range cueerrors.Errors(err) {
			problem := e.Error()
			if path := strings.Join(e.Path(), "."); path != "" && !strings.Contains(problem, path) {
				problem = path + ": " + problem
			}
			problems = append(problems, problem)
		}
		if len(problems) == 0 {
			problems = append(problems, err.Error())
		}
		return &ValidationError{Problems: problems}
	}
	return nil
}

// StorePath returns the path of the store file of this instance.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, c.InstanceID+".db")
}

// Endpoints returns the endpoint URLs.
func (c *Config) Endpoints() transport.Endpoints {
	return transport.ResolveEndpoints(c.CustomerID, c.EqID)
}

// PriorityMode returns the parsed priority mode.
func (c *Config) PriorityMode() (model.PriorityMode, error) {
	return model.ParsePriorityMode(c.Priority)
}

// MaxBufferBytes returns max_buffer_size in bytes.
func (c *Config) MaxBufferBytes() int64 {
	return int64(c.MaxBufferSize) * 1024 * 1024
}

// CycleDuration returns cycle_time as a duration.
func (c *Config) CycleDuration() time.Duration {
	return seconds(c.CycleTime)
}

// DelayDuration returns delay_window as a duration.
func (c *Config) DelayDuration() time.Duration {
	return seconds(c.DelayWindow)
}

// HousekeeperDuration returns housekeeper_interval as a duration.
func (c *Config) HousekeeperDuration() time.Duration {
	return seconds(c.HousekeeperInterval)
}

// CheckpointDuration returns checkpoint_interval as a duration.
func (c *Config) CheckpointDuration() time.Duration {
	return seconds(c.CheckpointInterval)
}

// RequestTimeoutDuration returns request_timeout as a duration.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return seconds(c.RequestTimeout)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// IsValidationError reports whether err is a *ValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
