package heat

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/heatsim/collcomm"
	"github.com/unixpickle/heatsim/convergence"
	"github.com/unixpickle/heatsim/device"
	"github.com/unixpickle/heatsim/grid"
	"github.com/unixpickle/heatsim/halo"
	"github.com/unixpickle/heatsim/partition"
	"github.com/unixpickle/heatsim/simulator"
	"github.com/unixpickle/heatsim/snapshot"
	"github.com/unixpickle/heatsim/stencil"
	"github.com/unixpickle/heatsim/tracing"
)

// overheatSlack allows for rounding in the stencil's
// division when checking snapshots.
const overheatSlack = 1e-9

type worker struct {
	*run

	rank  int
	group *collcomm.Group
	slab  partition.Slab
	state State
	log   logrus.FieldLogger

	ctx  context.Context
	span *tracing.Span

	// Coordinator state.
	clock       Clock
	elapsed     float64
	acquisition float64
	printing    float64
	lastSnap    *snapshot.Snapshot
}

// report is a snapshot whose gather and reduction may
// still be in flight.
type report struct {
	gather *snapshot.Pending
	reduce *convergence.Pending
}

func newWorker(r *run, g *collcomm.Group) *worker {
	return &worker{
		run:   r,
		rank:  g.Rank,
		group: g,
		slab:  r.layout.Slab(g.Rank),
		log:   r.log.WithField("rank", g.Rank),
	}
}

func (w *worker) Run(h *simulator.Handle) {
	w.ctx, w.span = tracing.StartSpan(w.run.ctx, "heat.worker")
	w.span.WithRank(w.rank).WithInt("first_row", w.slab.FirstRow).WithInt("rows", w.slab.Rows())
	err := w.execute(h)
	tracing.EndSpan(w.span, err)
}

func (w *worker) coordinator() bool {
	return w.rank == snapshot.Root
}

func (w *worker) enter(s State) {
	w.state = s
	w.monitor.Progress(w.rank, s, 0)
	entry := w.log.WithField("phase", s)
	if w.coordinator() {
		entry.Info("entering phase")
	} else {
		entry.Debug("entering phase")
	}
}

func (w *worker) fail(kind Kind, err error) error {
	fail := w.monitor.Add(w.rank, w.state, kind, err)
	w.log.WithField("phase", w.state).WithError(err).Errorf("%s failure", kind)
	return fail
}

func (w *worker) execute(h *simulator.Handle) error {
	cfg := w.config

	w.enter(Init)
	pair, err := grid.NewPair(w.slab.Rows(), w.layout.Cols)
	if err != nil {
		return w.fail(ResourceError, err)
	}
	dev := device.New(cfg.Accelerator, cfg.Threads)
	if err := dev.Attach(pair); err != nil {
		return w.fail(ResourceError, err)
	}

	w.enter(Distributing)
	if w.coordinator() {
		w.clock, err = StartClock(cfg.Clock, h)
		if err != nil {
			return w.fail(ConfigError, err)
		}
	}
	if err := w.distribute(h, pair, dev); err != nil {
		return w.fail(CommError, err)
	}
	if w.coordinator() {
		w.acquisition = w.clock.Elapsed(h)
	}

	reducer := convergence.NewReducer(w.group, w.allreducer)
	defer reducer.Close(h)
	collector := snapshot.NewCollector(w.group, w.layout, dev)
	defer collector.Close(h)

	w.enter(Iterating)
	exchanger := &halo.Exchanger{Group: w.group, Slab: w.slab, Mode: w.mode, Device: dev}
	engine := stencil.NewEngine(dev, stencil.Bounds{Top: w.slab.Top(), Bottom: w.slab.Bottom()}, pair.Cols())
	cost := collcomm.FlopTime * float64(stencil.Cost(pair.OwnedRows(), pair.Cols()))

	var pending *report
	var lastReduce *convergence.Pending
	var iterations int
	for k := 0; ; k++ {
		var gather *snapshot.Pending
		if k%cfg.SnapshotInterval == 0 {
			gather, err = collector.Start(h, k, pair)
			if err != nil {
				return w.fail(ResourceError, err)
			}
		}
		if err := exchanger.Exchange(h, k, pair); err != nil {
			return w.fail(CommError, err)
		}
		localMax, err := engine.Update()
		if err != nil {
			return w.fail(ResourceError, err)
		}
		h.Sleep(cost)
		reduce := reducer.Start(h, k, localMax)
		pair.Swap()
		iterations = k + 1

		if pending != nil {
			if err := w.complete(h, pending); err != nil {
				return err
			}
			pending = nil
		}
		if gather != nil {
			pending = &report{gather: gather, reduce: reduce}
		}

		stop, err := w.decide(h, k, lastReduce)
		if err != nil {
			return w.fail(CommError, err)
		}
		lastReduce = reduce
		w.monitor.Progress(w.rank, Iterating, iterations)
		if stop {
			break
		}
	}

	w.enter(Finalizing)
	if pending != nil {
		if err := w.complete(h, pending); err != nil {
			return err
		}
	}
	w.monitor.Progress(w.rank, Finalizing, 1)
	metric, err := lastReduce.Wait(h)
	if err != nil {
		return w.fail(CommError, err)
	}
	w.monitor.Progress(w.rank, Finalizing, 2)
	final, err := collector.Start(h, iterations, pair)
	if err != nil {
		return w.fail(ResourceError, err)
	}
	finalGrid, err := final.Wait(h)
	if err != nil {
		return w.fail(CommError, err)
	}
	if w.coordinator() {
		w.elapsed = w.clock.Elapsed(h)
		w.result = &Result{
			RunID:       w.runID,
			Iterations:  iterations,
			Elapsed:     w.elapsed,
			Acquisition: w.acquisition,
			Processing:  w.elapsed - w.acquisition,
			Printing:    w.printing,
			Metric:      metric,
			Snapshot:    w.lastSnap,
			Final:       finalGrid,
		}
		w.span.WithInt("iterations", iterations)
		w.span.Event("metric", metric)
	}
	w.enter(Done)
	return nil
}

// distribute scatters the initial condition from the
// coordinator and waits until every worker has its rows.
func (w *worker) distribute(h *simulator.Handle, pair *grid.Pair, dev device.Device) error {
	c := w.group.Comms(h, collcomm.ChannelControl)

	// Each chunk holds a slab's values followed by its
	// fixed-source mask as 0s and 1s.
	var chunks [][]float64
	if w.coordinator() {
		for _, s := range w.layout.Slabs() {
			chunk := w.initial.Block(s.FirstRow, s.EndRow)
			for _, fixed := range w.initial.FixedBlock(s.FirstRow, s.EndRow) {
				if fixed {
					chunk = append(chunk, 1)
				} else {
					chunk = append(chunk, 0)
				}
			}
			chunks = append(chunks, chunk)
		}
	}
	chunk, err := c.Scatter(snapshot.Root, 0, chunks)
	if err != nil {
		return essentials.AddCtx("scatter", err)
	}
	w.monitor.Progress(w.rank, Distributing, 1)
	cells := pair.OwnedRows() * pair.Cols()
	if len(chunk) != 2*cells {
		return fmt.Errorf("scatter: got %d values, want %d", len(chunk), 2*cells)
	}
	mask := make([]bool, cells)
	for i, x := range chunk[cells:] {
		mask[i] = x != 0
	}
	if err := pair.Load(chunk[:cells], mask); err != nil {
		return essentials.AddCtx("load slab", err)
	}
	err = dev.Upload(device.AllRows(pair, device.Previous), device.AllRows(pair, device.Current))
	if err != nil {
		return essentials.AddCtx("upload slab", err)
	}
	if err := c.Barrier(0); err != nil {
		return essentials.AddCtx("barrier", err)
	}
	w.monitor.Progress(w.rank, Distributing, 2)
	return nil
}

// complete finishes a progress report on the coordinator.
// Other workers drop their reports, since their parts of
// the gather and reduction need no answer.
func (w *worker) complete(h *simulator.Handle, r *report) error {
	if !w.coordinator() {
		return nil
	}
	g, err := r.gather.Wait(h)
	if err != nil {
		return w.fail(CommError, err)
	}
	metric, err := r.reduce.Wait(h)
	if err != nil {
		return w.fail(CommError, err)
	}
	snap := &snapshot.Snapshot{Iteration: r.gather.Iteration, Metric: metric, Grid: g}
	maxTemperature := w.initial.Max()
	limit := maxTemperature + overheatSlack*math.Max(1, math.Abs(maxTemperature))
	if err := snap.Check(limit); err != nil {
		return w.fail(InvariantError, err)
	}
	w.lastSnap = snap
	w.span.Event("metric", metric)
	w.log.WithFields(logrus.Fields{
		"iteration": snap.Iteration,
		"metric":    metric,
	}).Debug("progress")
	start := w.clock.Elapsed(h)
	if err := w.reporter.Progress(w.ctx, snap); err != nil {
		return w.fail(OutputError, err)
	}
	w.printing += w.clock.Elapsed(h) - start
	return nil
}

// decide agrees on whether to stop after iteration k.
//
// The coordinator reads its clock and the previous
// iteration's metric and broadcasts the verdict, so every
// worker stops after the same iteration.
func (w *worker) decide(h *simulator.Handle, k int, lastReduce *convergence.Pending) (bool, error) {
	cfg := w.config
	c := w.group.Comms(h, collcomm.ChannelControl)

	var vec []float64
	if w.coordinator() {
		converged := false
		if cfg.Tolerance > 0 && lastReduce != nil {
			metric, err := lastReduce.Wait(h)
			if err != nil {
				return false, err
			}
			converged = metric < cfg.Tolerance
		}
		w.elapsed = w.clock.Elapsed(h)
		stop := converged ||
			(cfg.TimeBudget > 0 && w.elapsed >= cfg.TimeBudget) ||
			(cfg.MaxIterations > 0 && k+1 >= cfg.MaxIterations)
		vec = []float64{w.elapsed, 0}
		if stop {
			vec[1] = 1
		}
	}
	res, err := c.Bcast(snapshot.Root, k, vec)
	if err != nil {
		return false, essentials.AddCtx("broadcast stop flag", err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("broadcast stop flag: got %d values", len(res))
	}
	return res[1] != 0, nil
}
