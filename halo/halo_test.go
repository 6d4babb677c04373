package halo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/heatsim/collcomm"
	"github.com/unixpickle/heatsim/device"
	"github.com/unixpickle/heatsim/grid"
	"github.com/unixpickle/heatsim/partition"
	"github.com/unixpickle/heatsim/simulator"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("async")
	require.NoError(t, err)
	assert.Equal(t, Async, m)
	assert.Equal(t, "async", m.String())
	m, err = ParseMode("sync")
	require.NoError(t, err)
	assert.Equal(t, Sync, m)
	_, err = ParseMode("blocking")
	assert.Error(t, err)
}

func TestExchange(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 16} {
		for _, mode := range []Mode{Sync, Async} {
			for _, accel := range []bool{false, true} {
				name := fmt.Sprintf("Workers=%d,Mode=%s,Accelerator=%v", workers, mode, accel)
				t.Run(name, func(t *testing.T) {
					testExchange(t, workers, mode, accel)
				})
			}
		}
	}
}

func testExchange(t *testing.T, workers int, mode Mode, accel bool) {
	const cols = 3
	const iterations = 4
	layout, err := partition.New(workers*2, cols, workers)
	require.NoError(t, err)

	// value identifies a cell of a worker at an iteration.
	value := func(rank, row, col, iteration int) float64 {
		return float64(rank*1000 + row*100 + col*10 + iteration)
	}

	loop := simulator.NewEventLoopSeed(int64(workers))
	nodes := make([]*simulator.Node, workers)
	for i := range nodes {
		nodes[i] = simulator.NewNode()
	}
	collcomm.SpawnGroups(loop, simulator.RandomNetwork{MaxLatency: 0.1}, nodes,
		func(h *simulator.Handle, g *collcomm.Group) {
			slab := layout.Slab(g.Rank)
			p, err := grid.NewPair(slab.Rows(), cols)
			if !assert.NoError(t, err) {
				return
			}
			dev := device.New(accel, 0)
			if !assert.NoError(t, dev.Attach(p)) {
				return
			}
			x := &Exchanger{Group: g, Slab: slab, Mode: mode, Device: dev}
			for k := 0; k < iterations; k++ {
				// Boundary rows are written on the device, like
				// the results of a stencil update.
				target := p
				if e, ok := dev.(*device.Emulated); ok {
					target = emulatedPair(t, e, p)
				}
				for i := 1; i <= slab.Rows(); i++ {
					for j := range target.Previous().Owned(i) {
						target.Previous().Owned(i)[j] = value(g.Rank, i, j, k)
					}
				}
				if !assert.NoError(t, x.Exchange(h, k, p)) {
					return
				}
				if accel {
					assert.NoError(t, dev.Download(device.AllRows(p, device.Previous)))
				}
				for j := 0; j < cols; j++ {
					above, below := p.Previous().GhostAbove()[j], p.Previous().GhostBelow()[j]
					if slab.Top() {
						assert.Equal(t, 0.0, above)
					} else {
						assert.Equal(t, value(g.Rank-1, slab.Rows(), j, k), above)
					}
					if slab.Bottom() {
						assert.Equal(t, 0.0, below)
					} else {
						assert.Equal(t, value(g.Rank+1, 1, j, k), below)
					}
				}
			}
		})
	require.NoError(t, loop.Run())
}

// emulatedPair exposes the device copy of a pair by
// running a kernel that captures it.
func emulatedPair(t *testing.T, e *device.Emulated, host *grid.Pair) *grid.Pair {
	var res *grid.Pair
	e.Launch(0, func(p *grid.Pair) (float64, error) {
		res = p
		return 0, nil
	})
	_, err := e.Join()
	assert.NoError(t, err)
	assert.NotSame(t, host, res)
	return res
}
