// Package convergence computes the global maximum change
// of an iteration without stalling the iteration loop.
package convergence

import (
	"fmt"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/heatsim/collcomm"
	"github.com/unixpickle/heatsim/collcomm/allreduce"
	"github.com/unixpickle/heatsim/simulator"
)

// A Reducer runs max-reductions of per-worker changes in
// the background on the reduce channel.
type Reducer struct {
	engine     *collcomm.Engine
	allreducer allreduce.Allreducer
}

// NewReducer starts a Reducer for a node.
//
// The Reducer must be closed before the node's Goroutine
// exits.
func NewReducer(g *collcomm.Group, a allreduce.Allreducer) *Reducer {
	return &Reducer{
		engine:     collcomm.NewEngine(g, collcomm.ChannelReduce),
		allreducer: a,
	}
}

// Start begins reducing the local change of an iteration.
// Every worker must start the same iterations in the same
// order.
func (r *Reducer) Start(h *simulator.Handle, iteration int, localMax float64) *Pending {
	f := r.engine.Submit(h, func(c *collcomm.Comms) ([]float64, error) {
		return r.allreducer.Allreduce(c, iteration, []float64{localMax}, collcomm.Max)
	})
	return &Pending{Iteration: iteration, future: f}
}

// Close waits for outstanding reductions and stops the
// background Goroutine.
func (r *Reducer) Close(h *simulator.Handle) {
	r.engine.Close(h)
}

// Pending is a reduction that may still be in flight.
type Pending struct {
	Iteration int

	future *collcomm.Future
}

// Wait blocks until the global maximum is known.
// The result is the same on every worker.
func (p *Pending) Wait(h *simulator.Handle) (float64, error) {
	res, err := p.future.Await(h)
	if err != nil {
		return 0, essentials.AddCtx(fmt.Sprintf("reduce iteration %d", p.Iteration), err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("reduce iteration %d: got %d values", p.Iteration, len(res))
	}
	return res[0], nil
}

// Ready checks if Wait would return immediately.
func (p *Pending) Ready(h *simulator.Handle) bool {
	return p.future.Ready(h)
}
