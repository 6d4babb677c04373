// Command run_heat runs the distributed heat relaxation
// on a simulated cluster.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/heatsim/dataset"
	"github.com/unixpickle/heatsim/grid"
	"github.com/unixpickle/heatsim/heat"
	"github.com/unixpickle/heatsim/snapshot"
	"github.com/unixpickle/heatsim/tracing"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

const version = "0.1.0"

var configURL string

var rootCmd = &cobra.Command{
	Use:           "run_heat",
	Short:         "Distributed Jacobi heat relaxation on a simulated cluster",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Relax a dataset until the time budget runs out",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		if cfg.Trace != "" {
			if err := tracing.Init("heatsim", version, cfg.Trace); err != nil {
				return essentials.AddCtx("init tracing", err)
			}
			defer tracing.Shutdown(ctx)
		}

		initial, err := loadInitial(ctx, cfg)
		if err != nil {
			return err
		}
		reporters := heat.MultiReporter{&heat.ConsoleReporter{W: os.Stdout}}
		if cfg.Output != "" {
			writer := snapshot.NewPPMWriter(cfg.Output, initial.Max())
			reporters = append(reporters, &heat.PPMReporter{Writer: writer})
		}
		runner := &heat.Runner{Config: cfg, Logger: logger, Reporter: reporters}
		_, err = runner.Run(ctx, initial)
		return err
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <url>",
	Short: "Write a generated initial condition as a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		g, err := dataset.Generate(cfg.Generator, cfg.Rows, cfg.Columns)
		if err != nil {
			return err
		}
		return dataset.Write(ctx, afs.New(), args[0], g)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(context.Background())
		if err != nil {
			return err
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	defaults := heat.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configURL, "config", "", "YAML configuration (any afs URL)")
	flags.Int("rows", defaults.Rows, "global grid rows")
	flags.Int("columns", defaults.Columns, "global grid columns")
	flags.Int("workers", defaults.Workers, "number of workers")
	flags.Int("snapshot-interval", defaults.SnapshotInterval, "iterations between progress reports")
	flags.Float64("time-budget", defaults.TimeBudget, "run time in seconds (0 for none)")
	flags.Int("max-iterations", defaults.MaxIterations, "iteration limit (0 for none)")
	flags.Float64("tolerance", defaults.Tolerance, "stop once the global change is below this")
	flags.Bool("accelerator", defaults.Accelerator, "offload updates to an emulated accelerator")
	flags.Int("threads", defaults.Threads, "concurrent kernels per accelerator (0 for no limit)")
	flags.String("exchange", defaults.Exchange, "halo exchange mode: sync or async")
	flags.String("reducer", defaults.Reducer, "allreduce algorithm: tree, naive or stream")
	flags.String("network", defaults.Network, "simulated network: ordered, switched or random")
	flags.String("switcher", defaults.Switcher, "switching on a switched network: greedy or fair")
	flags.Float64("latency", defaults.Latency, "maximum network latency in seconds")
	flags.Float64("rate", defaults.Rate, "network data rate in bytes per second")
	flags.String("clock", defaults.Clock, "time budget clock: wall or virtual")
	flags.Int64("seed", defaults.Seed, "network seed (0 for random)")
	flags.String("dataset", defaults.Dataset, "initial condition dataset (any afs URL)")
	flags.String("generator", defaults.Generator, "generator when no dataset is set: columns, square or point")
	flags.String("output", defaults.Output, "directory URL for PPM snapshots")
	flags.String("trace", defaults.Trace, "file for exported trace spans")
	flags.String("log-level", defaults.LogLevel, "debug, info, warn or error")

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name != "config" {
			essentials.Must(viper.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f))
		}
	})
	viper.SetEnvPrefix("HEAT")
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd, generateCmd, configCmd)
}

// loadConfig layers flags over environment variables over
// the configuration file over the defaults.
func loadConfig(ctx context.Context) (*heat.Config, error) {
	cfg := heat.DefaultConfig()
	if configURL != "" {
		var err error
		cfg, err = heat.LoadConfig(ctx, configURL)
		if err != nil {
			return nil, essentials.AddCtx("load config", err)
		}
	}
	data, err := cfg.YAML()
	if err != nil {
		return nil, err
	}
	var values map[string]interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	for key, value := range values {
		viper.SetDefault(key, value)
	}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	return cfg, nil
}

func setupLogger(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)
	return logger, nil
}

func loadInitial(ctx context.Context, cfg *heat.Config) (*grid.Global, error) {
	if cfg.Dataset != "" {
		g, err := dataset.Read(ctx, afs.New(), cfg.Dataset)
		if err != nil {
			return nil, essentials.AddCtx("read dataset", err)
		}

		// The dataset's shape overrides the configured one.
		cfg.Rows, cfg.Columns = g.Rows(), g.Cols()
		return g, nil
	}
	g, err := dataset.Generate(cfg.Generator, cfg.Rows, cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("generate initial condition: %w", err)
	}
	return g, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		essentials.Die(err)
	}
}
