package heat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/heatsim/collcomm"
	"github.com/unixpickle/heatsim/dataset"
	"github.com/unixpickle/heatsim/grid"
	"github.com/unixpickle/heatsim/halo"
	"github.com/unixpickle/heatsim/partition"
	"github.com/unixpickle/heatsim/simulator"
	"github.com/unixpickle/heatsim/snapshot"
	"github.com/unixpickle/heatsim/stencil"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

type recordingReporter struct {
	snapshots []*snapshot.Snapshot
	results   []*Result
	err       error
}

func (r *recordingReporter) Progress(ctx context.Context, s *snapshot.Snapshot) error {
	r.snapshots = append(r.snapshots, s)
	return r.err
}

func (r *recordingReporter) Summary(ctx context.Context, res *Result) error {
	r.results = append(r.results, res)
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig(rows, cols, workers, iterations int) *Config {
	cfg := DefaultConfig()
	cfg.Rows = rows
	cfg.Columns = cols
	cfg.Workers = workers
	cfg.TimeBudget = 0
	cfg.MaxIterations = iterations
	cfg.SnapshotInterval = 1
	cfg.Seed = 1337
	return cfg
}

func runTest(t *testing.T, cfg *Config, initial *grid.Global) (*Result, *recordingReporter) {
	reporter := &recordingReporter{}
	r := &Runner{Config: cfg, Logger: quietLogger(), Reporter: reporter}
	res, err := r.Run(context.Background(), initial)
	require.NoError(t, err)
	require.Len(t, reporter.results, 1)
	require.Same(t, res, reporter.results[0])
	return res, reporter
}

func TestRunOneIteration(t *testing.T) {
	initial, err := dataset.Point(4, 4, 2, 2)
	require.NoError(t, err)
	res, reporter := runTest(t, testConfig(4, 4, 2, 1), initial)

	assert.Equal(t, 1, res.Iterations)
	assert.NotEmpty(t, res.RunID)

	expected := [][]float64{
		{0, 0, 0, 0},
		{0, 0, 12.5, 0},
		{0, 12.5, 50, 50.0 / 3},
		{0, 0, 50.0 / 3, 0},
	}
	for i, row := range expected {
		assert.Equal(t, row, res.Final.Row(i), "row %d", i)
	}
	assert.Equal(t, 50.0/3, res.Metric)

	require.Len(t, reporter.snapshots, 1)
	assert.Equal(t, 0, reporter.snapshots[0].Iteration)
	assert.Equal(t, 50.0/3, reporter.snapshots[0].Metric)
	assert.Equal(t, initial.Data(), reporter.snapshots[0].Grid.Data())
	assert.Same(t, reporter.snapshots[0], res.Snapshot)
}

func TestRunConverges(t *testing.T) {
	initial, err := dataset.Point(4, 4, 2, 2)
	require.NoError(t, err)
	cfg := testConfig(4, 4, 2, 1000)
	cfg.SnapshotInterval = 100
	res, reporter := runTest(t, cfg, initial)

	assert.Equal(t, 1000, res.Iterations)
	assert.Less(t, res.Metric, 1e-6)
	assert.Len(t, reporter.snapshots, 10)
	for i, s := range reporter.snapshots {
		assert.Equal(t, i*100, s.Iteration)
	}
	assert.Equal(t, 50.0, res.Final.At(2, 2))
	for _, x := range res.Final.Data() {
		assert.InDelta(t, 50.0, x, 1e-4)
	}
}

func TestRunMatchesReference(t *testing.T) {
	const iterations = 12
	initial, err := dataset.Columns(16, 12, 5)
	require.NoError(t, err)
	initial.SetSource(9, 7, 35)
	expected, metrics, err := stencil.Reference(initial, iterations)
	require.NoError(t, err)

	for _, workers := range []int{1, 2, 4, 8} {
		for _, exchange := range []string{"sync", "async"} {
			for _, reducer := range []string{"tree", "naive", "stream"} {
				for _, network := range []string{"ordered", "switched", "fair", "random"} {
					for _, accel := range []bool{false, true} {
						name := fmt.Sprintf("Workers=%d,Exchange=%s,Reducer=%s,Network=%s,Accel=%v",
							workers, exchange, reducer, network, accel)
						t.Run(name, func(t *testing.T) {
							cfg := testConfig(16, 12, workers, iterations)
							cfg.SnapshotInterval = 5
							cfg.Exchange = exchange
							cfg.Reducer = reducer
							cfg.Network = network
							if network == "fair" {
								cfg.Network = "switched"
								cfg.Switcher = "fair"
							}
							cfg.Accelerator = accel
							cfg.Threads = 2
							res, reporter := runTest(t, cfg, initial)

							assert.Equal(t, iterations, res.Iterations)
							assert.Equal(t, expected.Data(), res.Final.Data())
							assert.Equal(t, metrics[iterations-1], res.Metric)
							require.Len(t, reporter.snapshots, 3)
							for _, s := range reporter.snapshots {
								assert.Equal(t, metrics[s.Iteration], s.Metric)
							}
							assert.Equal(t, initial.Data(), reporter.snapshots[0].Grid.Data())
						})
					}
				}
			}
		}
	}
}

func TestRunTolerance(t *testing.T) {
	initial, err := grid.NewGlobal(8, 8)
	require.NoError(t, err)
	initial.SetSource(2, 2, 50)
	initial.SetSource(5, 5, 50)

	cfg := testConfig(8, 8, 4, 100000)
	cfg.SnapshotInterval = 1000
	cfg.Tolerance = 1e-3
	res, _ := runTest(t, cfg, initial)
	require.Less(t, res.Iterations, 100000)
	require.GreaterOrEqual(t, res.Iterations, 2)

	_, metrics, err := stencil.Reference(initial, res.Iterations)
	require.NoError(t, err)

	// The decision after iteration k uses the metric of
	// iteration k-1.
	assert.Less(t, metrics[res.Iterations-2], cfg.Tolerance)
	for _, m := range metrics[:res.Iterations-2] {
		assert.GreaterOrEqual(t, m, cfg.Tolerance)
	}
}

func TestRunVirtualBudget(t *testing.T) {
	initial, err := dataset.Square(8, 8)
	require.NoError(t, err)
	cfg := testConfig(8, 8, 2, 100000)
	cfg.Clock = "virtual"
	cfg.TimeBudget = 0.01
	cfg.Latency = 1e-3
	cfg.SnapshotInterval = 10
	res, _ := runTest(t, cfg, initial)

	assert.GreaterOrEqual(t, res.Elapsed, cfg.TimeBudget)
	assert.GreaterOrEqual(t, res.Iterations, 1)
	assert.Less(t, res.Iterations, 100000)
	assert.GreaterOrEqual(t, res.VirtualTime, res.Elapsed)

	assert.Greater(t, res.Acquisition, cfg.Latency)
	assert.InDelta(t, res.Elapsed, res.Acquisition+res.Processing, 1e-12)
	assert.Equal(t, 0.0, res.Printing)
}

func TestRunConsoleReporter(t *testing.T) {
	initial, err := dataset.Point(4, 4, 1, 1)
	require.NoError(t, err)
	var buf bytes.Buffer
	r := &Runner{
		Config:   testConfig(4, 4, 2, 2),
		Logger:   quietLogger(),
		Reporter: &ConsoleReporter{W: &buf},
	}
	_, err = r.Run(context.Background(), initial)
	require.NoError(t, err)
	assert.Regexp(t, `^Iteration 0: 16\.6{10}[0-9]{8}\n`+
		`Iteration 1: [0-9]+\.[0-9]{18}\n`+
		`The program took [0-9]+\.[0-9]{2} seconds in total and executed 2 iterations\.\n`+
		`\t- [0-9]+\.[0-9]{2} seconds on acquisition\.\n`+
		`\t- [0-9]+\.[0-9]{2} seconds on processing\.\n`+
		`\t\t- [0-9]+\.[0-9]{2} seconds were spent on printing\.\n$`,
		buf.String())
}

func TestRunNegativeTemperatures(t *testing.T) {
	initial, err := grid.NewGlobal(4, 4)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			initial.Set(i, j, -20)
		}
	}
	initial.SetSource(1, 1, -10)

	res, reporter := runTest(t, testConfig(4, 4, 2, 3), initial)
	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, reporter.snapshots, 3)
	assert.Equal(t, -10.0, res.Final.At(1, 1))
	for _, x := range res.Final.Data() {
		assert.GreaterOrEqual(t, x, -20.0)
		assert.LessOrEqual(t, x, -10.0)
	}
}

// droppingNetwork loses the first packet that matches.
type droppingNetwork struct {
	simulator.Network

	lock    sync.Mutex
	drop    func(p *collcomm.Packet) bool
	dropped int
}

func (d *droppingNetwork) Send(h *simulator.Handle, msgs ...*simulator.Message) {
	d.lock.Lock()
	var kept []*simulator.Message
	for _, msg := range msgs {
		if p, ok := msg.Message.(*collcomm.Packet); ok && d.dropped == 0 && d.drop(p) {
			d.dropped++
			continue
		}
		kept = append(kept, msg)
	}
	d.lock.Unlock()
	if len(kept) > 0 {
		d.Network.Send(h, kept...)
	}
}

func runDropping(t *testing.T, cfg *Config, drop func(p *collcomm.Packet) bool) *Failure {
	initial, err := dataset.Point(cfg.Rows, cfg.Columns, 1, 1)
	require.NoError(t, err)
	network := &droppingNetwork{
		Network: simulator.NewOrderedNetwork(cfg.Rate, cfg.Latency),
		drop:    drop,
	}
	r := &Runner{Config: cfg, Logger: quietLogger(), Network: network}
	_, err = r.Run(context.Background(), initial)
	require.Equal(t, 1, network.dropped)
	require.Error(t, err)
	var fail *Failure
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, CommError, fail.Kind)
	assert.True(t, errors.Is(err, ErrStalled))
	return fail
}

func TestRunLostScatter(t *testing.T) {
	fail := runDropping(t, testConfig(4, 4, 2, 3), func(p *collcomm.Packet) bool {
		return p.Tag == collcomm.TagScatter
	})
	assert.Equal(t, 1, fail.Rank)
	assert.Equal(t, Distributing, fail.Phase)
}

func TestRunLostHaloRow(t *testing.T) {
	cfg := testConfig(4, 4, 2, 10)
	cfg.SnapshotInterval = 100
	fail := runDropping(t, cfg, func(p *collcomm.Packet) bool {
		return p.Source == 0 && p.Tag == halo.TagDown && p.Seq == 2
	})
	assert.Equal(t, 1, fail.Rank)
	assert.Equal(t, Iterating, fail.Phase)
	assert.Contains(t, fail.Error(), "step 2")
}

func TestMonitorStalled(t *testing.T) {
	m := newMonitor(3)
	m.Progress(0, Iterating, 4)
	m.Progress(1, Iterating, 3)
	m.Progress(2, Iterating, 3)
	fail := m.Stalled(errors.New("deadlock"))
	require.NotNil(t, fail)
	assert.Equal(t, 1, fail.Rank)
	assert.Equal(t, Iterating, fail.Phase)
	assert.Equal(t, CommError, fail.Kind)
	assert.True(t, errors.Is(fail, ErrStalled))
	assert.Contains(t, fail.Error(), "deadlock")

	m.Progress(1, Done, 0)
	m.Progress(2, Done, 0)
	fail = m.Stalled(nil)
	require.NotNil(t, fail)
	assert.Equal(t, 0, fail.Rank)

	m.Progress(0, Done, 0)
	assert.Nil(t, m.Stalled(nil))
}

func TestRunConfigFailure(t *testing.T) {
	initial, err := grid.NewGlobal(6, 4)
	require.NoError(t, err)

	cfg := testConfig(6, 4, 4, 1)
	_, err = Run(context.Background(), cfg, initial, nil)
	var fail *Failure
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, ConfigError, fail.Kind)
	assert.Equal(t, Init, fail.Phase)
	assert.True(t, errors.Is(err, partition.ErrUneven))
	assert.True(t, errors.Is(err, ErrConfig))

	cfg = testConfig(8, 4, 4, 1)
	_, err = Run(context.Background(), cfg, initial, nil)
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, ConfigError, fail.Kind)
}

func TestRunReporterFailure(t *testing.T) {
	initial, err := dataset.Point(4, 4, 2, 2)
	require.NoError(t, err)
	reporter := &recordingReporter{err: errors.New("disk full")}
	r := &Runner{Config: testConfig(4, 4, 2, 5), Logger: quietLogger(), Reporter: reporter}
	_, err = r.Run(context.Background(), initial)

	var fail *Failure
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, OutputError, fail.Kind)
	assert.Equal(t, 0, fail.Rank)
	assert.Equal(t, Iterating, fail.Phase)
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, reporter.results)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	mutations := map[string]func(c *Config){
		"interval":  func(c *Config) { c.SnapshotInterval = 0 },
		"no-stop":   func(c *Config) { c.TimeBudget = 0 },
		"negative":  func(c *Config) { c.Tolerance = -1 },
		"exchange":  func(c *Config) { c.Exchange = "carrier-pigeon" },
		"reducer":   func(c *Config) { c.Reducer = "ring" },
		"network":   func(c *Config) { c.Network = "token-ring" },
		"rate":      func(c *Config) { c.Rate = 0 },
		"clock":     func(c *Config) { c.Clock = "sundial" },
		"switcher":  func(c *Config) { c.Switcher = "crossbar" },
		"workers":   func(c *Config) { c.Workers = 0 },
		"threads":   func(c *Config) { c.Threads = -2 },
		"shape":     func(c *Config) { c.Columns = 0 },
		"divisible": func(c *Config) { c.Workers = 3 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfig)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 8
	cfg.Exchange = "async"
	cfg.Tolerance = 1e-4
	ctx := context.Background()
	url := "mem://localhost/heat/config.yaml"
	require.NoError(t, cfg.Save(ctx, url))
	loaded, err := LoadConfig(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	partialURL := "mem://localhost/heat/partial.yaml"
	err = afs.New().Upload(ctx, partialURL, file.DefaultFileOsMode, strings.NewReader("workers: 2\n"))
	require.NoError(t, err)
	partial, err := LoadConfig(ctx, partialURL)
	require.NoError(t, err)
	expected := DefaultConfig()
	expected.Workers = 2
	assert.Equal(t, expected, partial)
}

func TestStateString(t *testing.T) {
	names := []string{"init", "distributing", "iterating", "finalizing", "done"}
	for i, name := range names {
		assert.Equal(t, name, State(i).String())
	}
}

func TestFailureError(t *testing.T) {
	cause := errors.New("link down")
	err := error(&Failure{Rank: 3, Phase: Distributing, Kind: CommError, Err: cause})
	assert.Equal(t, "worker 3 (distributing): communication error: link down", err.Error())
	assert.ErrorIs(t, err, cause)
}
