// Package snapshot assembles the whole grid on the
// coordinator every few iterations for progress reports.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/heatsim/collcomm"
	"github.com/unixpickle/heatsim/device"
	"github.com/unixpickle/heatsim/grid"
	"github.com/unixpickle/heatsim/partition"
	"github.com/unixpickle/heatsim/simulator"
)

// Root is the rank that receives snapshots.
const Root = 0

// ErrOverheat is returned when a snapshot contains a cell
// hotter than the hottest source could make it.
var ErrOverheat = errors.New("temperature exceeds maximum")

// A Snapshot is the global grid at the start of an
// iteration, together with the convergence metric of that
// iteration.
type Snapshot struct {
	Iteration int
	Metric    float64
	Grid      *grid.Global
}

// Check makes sure no cell exceeds maxTemperature.
func (s *Snapshot) Check(maxTemperature float64) error {
	for i := 0; i < s.Grid.Rows(); i++ {
		for j, x := range s.Grid.Row(i) {
			if x > maxTemperature {
				return fmt.Errorf("iteration %d: cell (%d, %d) is %f: %w",
					s.Iteration, i, j, x, ErrOverheat)
			}
		}
	}
	return nil
}

// A Collector gathers owned rows onto the Root in the
// background on the gather channel.
type Collector struct {
	Layout *partition.Layout
	Slab   partition.Slab
	Device device.Device

	engine *collcomm.Engine
}

// NewCollector starts a Collector for a node.
//
// The Collector must be closed before the node's Goroutine
// exits.
func NewCollector(g *collcomm.Group, layout *partition.Layout, d device.Device) *Collector {
	return &Collector{
		Layout: layout,
		Slab:   layout.Slab(g.Rank),
		Device: d,
		engine: collcomm.NewEngine(g, collcomm.ChannelGather),
	}
}

// Start begins gathering the owned rows of p.Previous(),
// which is the state entering the iteration.
//
// The rows are copied before Start returns, so the caller
// may keep updating p.
func (c *Collector) Start(h *simulator.Handle, iteration int, p *grid.Pair) (*Pending, error) {
	rows := device.Rows{Buffer: device.Previous, First: 1, Count: p.OwnedRows()}
	if err := c.Device.Download(rows); err != nil {
		return nil, essentials.AddCtx("download owned rows", err)
	}
	block := p.Previous().OwnedBlock()
	f := c.engine.Submit(h, func(comms *collcomm.Comms) ([]float64, error) {
		blocks, err := comms.Gather(Root, iteration, block)
		if err != nil || blocks == nil {
			return nil, err
		}
		res := make([]float64, 0, c.Layout.Rows*c.Layout.Cols)
		for _, b := range blocks {
			res = append(res, b...)
		}
		return res, nil
	})
	return &Pending{Iteration: iteration, layout: c.Layout, future: f}, nil
}

// Close waits for outstanding gathers and stops the
// background Goroutine.
func (c *Collector) Close(h *simulator.Handle) {
	c.engine.Close(h)
}

// Pending is a gather that may still be in flight.
type Pending struct {
	Iteration int

	layout *partition.Layout
	future *collcomm.Future
}

// Wait blocks until the gather is done.
// It returns the assembled grid on the Root and nil on
// every other worker.
func (p *Pending) Wait(h *simulator.Handle) (*grid.Global, error) {
	data, err := p.future.Await(h)
	if err != nil {
		return nil, essentials.AddCtx(fmt.Sprintf("gather iteration %d", p.Iteration), err)
	}
	if data == nil {
		return nil, nil
	}
	g, err := grid.NewGlobal(p.layout.Rows, p.layout.Cols)
	if err != nil {
		return nil, err
	}

	// Blocks arrive ordered by rank, so rank i's rows land
	// at its slab's first row.
	if err := g.SetBlock(0, data); err != nil {
		return nil, essentials.AddCtx(fmt.Sprintf("gather iteration %d", p.Iteration), err)
	}
	return g, nil
}
