// Package heat runs a distributed Jacobi relaxation of a
// 2D temperature grid on a simulated cluster.
//
// Every worker owns a band of rows. Rank 0 also acts as
// the coordinator: it distributes the initial condition,
// reports progress and decides when to stop.
package heat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/heatsim/collcomm"
	"github.com/unixpickle/heatsim/collcomm/allreduce"
	"github.com/unixpickle/heatsim/grid"
	"github.com/unixpickle/heatsim/halo"
	"github.com/unixpickle/heatsim/partition"
	"github.com/unixpickle/heatsim/simulator"
	"github.com/unixpickle/heatsim/snapshot"
	"github.com/unixpickle/heatsim/tracing"
)

// Runner runs the relaxation for a Config.
type Runner struct {
	Config *Config

	// Logger defaults to the standard logrus logger.
	Logger logrus.FieldLogger

	// Reporter receives the coordinator's output. If it is
	// nil, output is dropped.
	Reporter Reporter

	// Network connects the workers. If it is nil, it is
	// built from the Config.
	Network simulator.Network
}

// Run is a shortcut for running a Runner.
func Run(ctx context.Context, cfg *Config, initial *grid.Global, reporter Reporter) (*Result, error) {
	r := &Runner{Config: cfg, Reporter: reporter}
	return r.Run(ctx, initial)
}

// Run relaxes the initial grid until the run stops.
//
// On failure, the error is a *Failure naming the first
// worker that failed.
func (r *Runner) Run(ctx context.Context, initial *grid.Global) (res *Result, err error) {
	cfg := r.Config
	runID := uuid.NewString()
	log := r.logger().WithField("run", runID)

	ctx, span := tracing.StartSpan(ctx, "heat.run")
	defer func() {
		tracing.EndSpan(span, err)
	}()

	if err := cfg.Validate(); err != nil {
		return nil, &Failure{Rank: snapshot.Root, Phase: Init, Kind: ConfigError, Err: err}
	}
	if initial == nil || initial.Rows() != cfg.Rows || initial.Cols() != cfg.Columns {
		return nil, &Failure{
			Rank:  snapshot.Root,
			Phase: Init,
			Kind:  ConfigError,
			Err:   fmt.Errorf("%w: initial grid does not match %dx%d", ErrConfig, cfg.Rows, cfg.Columns),
		}
	}
	layout, _ := partition.New(cfg.Rows, cfg.Columns, cfg.Workers)
	mode, _ := halo.ParseMode(cfg.Exchange)
	allreducer, _ := allreduce.ByName(cfg.Reducer)

	span.WithAttributes(map[string]string{
		"run":      runID,
		"exchange": mode.String(),
		"reducer":  cfg.Reducer,
		"network":  cfg.Network,
	}).WithInt("workers", cfg.Workers).WithInt("rows", cfg.Rows).WithInt("columns", cfg.Columns)

	log.WithFields(logrus.Fields{
		"rows":     cfg.Rows,
		"columns":  cfg.Columns,
		"workers":  cfg.Workers,
		"exchange": mode,
		"reducer":  cfg.Reducer,
		"network":  cfg.Network,
	}).Info("starting run")

	var loop *simulator.EventLoop
	if cfg.Seed != 0 {
		loop = simulator.NewEventLoopSeed(cfg.Seed)
	} else {
		loop = simulator.NewEventLoop()
	}
	nodes := make([]*simulator.Node, cfg.Workers)
	for i := range nodes {
		nodes[i] = simulator.NewNode()
	}

	shared := &run{
		ctx:        ctx,
		config:     cfg,
		runID:      runID,
		log:        log,
		reporter:   r.reporter(),
		layout:     layout,
		mode:       mode,
		allreducer: allreducer,
		initial:    initial,
		monitor:    newMonitor(cfg.Workers),
	}
	network := r.Network
	if network == nil {
		network = newNetwork(cfg, nodes)
	}
	collcomm.SpawnGroups(loop, network, nodes, func(h *simulator.Handle, g *collcomm.Group) {
		w := newWorker(shared, g)
		w.Run(h)
	})
	loopErr := loop.Run()

	if fail := shared.monitor.First(); fail != nil {
		log.WithError(fail).Error("run failed")
		return nil, fail
	}
	if loopErr != nil || shared.result == nil {
		fail := shared.monitor.Stalled(loopErr)
		if fail == nil {
			if loopErr == nil {
				loopErr = ErrAborted
			}
			fail = &Failure{Rank: snapshot.Root, Phase: Done, Kind: CommError, Err: loopErr}
		}
		log.WithError(fail).Error("run failed")
		return nil, fail
	}

	res = shared.result
	res.VirtualTime = loop.Time()
	span.Event("virtual_time", res.VirtualTime)
	if err := shared.reporter.Summary(ctx, res); err != nil {
		return nil, &Failure{Rank: snapshot.Root, Phase: Done, Kind: OutputError, Err: err}
	}
	log.WithFields(logrus.Fields{
		"iterations":   res.Iterations,
		"elapsed":      res.Elapsed,
		"metric":       res.Metric,
		"virtual_time": res.VirtualTime,
	}).Info("run finished")
	return res, nil
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

func (r *Runner) reporter() Reporter {
	if r.Reporter == nil {
		return discardReporter{}
	}
	return r.Reporter
}

func newNetwork(cfg *Config, nodes []*simulator.Node) simulator.Network {
	switch cfg.Network {
	case "random":
		return simulator.RandomNetwork{MaxLatency: cfg.Latency}
	case "switched":
		switcher, _ := simulator.NewSwitcher(cfg.Switcher, len(nodes), cfg.Rate)
		return simulator.NewSwitcherNetwork(switcher, nodes, cfg.Latency)
	}
	return simulator.NewOrderedNetwork(cfg.Rate, cfg.Latency)
}

// run is the state shared by the workers of one run.
type run struct {
	ctx        context.Context
	config     *Config
	runID      string
	log        logrus.FieldLogger
	reporter   Reporter
	layout     *partition.Layout
	mode       halo.Mode
	allreducer allreduce.Allreducer

	// initial is only read by the coordinator.
	initial *grid.Global

	monitor *monitor

	// result is written by the coordinator.
	result *Result
}
