package heat

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/unixpickle/heatsim/collcomm/allreduce"
	"github.com/unixpickle/heatsim/halo"
	"github.com/unixpickle/heatsim/partition"
	"github.com/unixpickle/heatsim/simulator"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"gopkg.in/yaml.v3"
)

// ErrConfig is wrapped by every configuration error.
var ErrConfig = errors.New("invalid configuration")

// Config holds every launch parameter of a run.
type Config struct {
	Rows    int `yaml:"rows" mapstructure:"rows"`
	Columns int `yaml:"columns" mapstructure:"columns"`
	Workers int `yaml:"workers" mapstructure:"workers"`

	// SnapshotInterval is the number of iterations between
	// progress reports.
	SnapshotInterval int `yaml:"snapshot_interval" mapstructure:"snapshot_interval"`

	// TimeBudget is the run time in seconds, measured by
	// Clock on the coordinator. Zero means no budget.
	TimeBudget float64 `yaml:"time_budget" mapstructure:"time_budget"`

	// MaxIterations stops the run after a fixed number of
	// iterations. Zero means no limit.
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`

	// Tolerance stops the run once an iteration's global
	// change falls below it. Zero disables the check.
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`

	Accelerator bool `yaml:"accelerator" mapstructure:"accelerator"`

	// Threads limits concurrent kernels per accelerator.
	Threads int `yaml:"threads" mapstructure:"threads"`

	// Exchange is "sync" or "async".
	Exchange string `yaml:"exchange" mapstructure:"exchange"`

	// Reducer is "tree", "naive", or "stream".
	Reducer string `yaml:"reducer" mapstructure:"reducer"`

	// Network is "ordered", "switched", or "random".
	Network string `yaml:"network" mapstructure:"network"`

	// Switcher is "greedy" or "fair" on a switched network.
	Switcher string `yaml:"switcher" mapstructure:"switcher"`

	Latency float64 `yaml:"latency" mapstructure:"latency"`
	Rate    float64 `yaml:"rate" mapstructure:"rate"`

	// Clock is "wall" or "virtual".
	Clock string `yaml:"clock" mapstructure:"clock"`

	// Seed drives the simulated network. Zero picks a seed
	// from the current time.
	Seed int64 `yaml:"seed" mapstructure:"seed"`

	// Dataset is an afs URL of the initial condition. If it
	// is empty, Generator creates one.
	Dataset   string `yaml:"dataset" mapstructure:"dataset"`
	Generator string `yaml:"generator" mapstructure:"generator"`

	// Output is an afs URL for PPM snapshots. If it is
	// empty, no images are written.
	Output string `yaml:"output" mapstructure:"output"`

	// Trace is a file for exported spans. If it is empty,
	// tracing is disabled.
	Trace string `yaml:"trace" mapstructure:"trace"`

	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DefaultConfig matches the small dataset: a 512x512 grid
// on four workers for one second.
func DefaultConfig() *Config {
	return &Config{
		Rows:             512,
		Columns:          512,
		Workers:          4,
		SnapshotInterval: 50,
		TimeBudget:       1.0,
		Exchange:         "sync",
		Reducer:          "tree",
		Network:          "ordered",
		Switcher:         "greedy",
		Latency:          1e-6,
		Rate:             1e10,
		Clock:            "wall",
		Generator:        "columns",
		LogLevel:         "info",
	}
}

// LoadConfig reads a YAML file from any afs URL on top of
// DefaultConfig.
func LoadConfig(ctx context.Context, url string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, url)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML to any afs URL.
func (c *Config) Save(ctx context.Context, url string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	return afs.New().Upload(ctx, url, file.DefaultFileOsMode, bytes.NewReader(data))
}

// YAML encodes the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks every field. The error wraps ErrConfig,
// and a partition error when the grid cannot be split.
func (c *Config) Validate() error {
	if _, err := partition.New(c.Rows, c.Columns, c.Workers); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	var problems []string
	if c.SnapshotInterval <= 0 {
		problems = append(problems, "snapshot_interval must be positive")
	}
	if c.TimeBudget < 0 || c.MaxIterations < 0 || c.Tolerance < 0 {
		problems = append(problems, "time_budget, max_iterations and tolerance cannot be negative")
	}
	if c.TimeBudget == 0 && c.MaxIterations == 0 {
		problems = append(problems, "time_budget or max_iterations must be set")
	}
	if c.Threads < 0 {
		problems = append(problems, "threads cannot be negative")
	}
	if _, err := halo.ParseMode(c.Exchange); err != nil {
		problems = append(problems, err.Error())
	}
	if _, ok := allreduce.ByName(c.Reducer); !ok {
		problems = append(problems, "unknown reducer: "+c.Reducer)
	}
	switch c.Network {
	case "ordered", "switched":
		if _, err := simulator.NewSwitcher(c.Switcher, c.Workers, c.Rate); err != nil {
			problems = append(problems, err.Error())
		}
		if c.Rate <= 0 {
			problems = append(problems, "rate must be positive")
		}
	case "random":
	default:
		problems = append(problems, "unknown network: "+c.Network)
	}
	if c.Latency < 0 {
		problems = append(problems, "latency cannot be negative")
	}
	if c.Clock != "wall" && c.Clock != "virtual" {
		problems = append(problems, "unknown clock: "+c.Clock)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrConfig, problems)
	}
	return nil
}
