package simulator

import (
	"fmt"
	"math"
)

// A Switcher decides how fast data flows between the
// nodes of a switched network, including what happens
// when a node is oversubscribed.
type Switcher interface {
	// SwitchedRates receives a matrix with a 1 for every
	// pair of nodes with data in flight and 0 elsewhere,
	// and replaces every entry with the pair's data rate.
	SwitchedRates(mat *ConnMat)
}

// NewSwitcher creates a Switcher by name with the same
// upload and download rate on every node.
//
// The names are "greedy" and "fair".
func NewSwitcher(name string, numNodes int, rate float64) (Switcher, error) {
	switch name {
	case "greedy", "":
		return NewGreedyDropSwitcher(numNodes, rate), nil
	case "fair":
		return NewFairShareSwitcher(numNodes, rate), nil
	}
	return nil, fmt.Errorf("unknown switcher: %s", name)
}

// A GreedyDropSwitcher spreads each node's upload rate
// evenly over its connections, and then drops incoming
// data uniformly when a node receives more than its
// download rate.
//
// In matrix terms, it normalizes rows and then columns.
type GreedyDropSwitcher struct {
	SendRates []float64
	RecvRates []float64
}

// NewGreedyDropSwitcher creates a GreedyDropSwitcher
// where every node has the same rates.
func NewGreedyDropSwitcher(numNodes int, rate float64) *GreedyDropSwitcher {
	rates := uniformRates(numNodes, rate)
	return &GreedyDropSwitcher{SendRates: rates, RecvRates: rates}
}

// NumNodes gets the number of nodes the switch expects.
func (g *GreedyDropSwitcher) NumNodes() int {
	return len(g.SendRates)
}

// SwitchedRates performs the switching algorithm.
func (g *GreedyDropSwitcher) SwitchedRates(mat *ConnMat) {
	checkSwitchSize(mat, g.NumNodes())
	for src := 0; src < g.NumNodes(); src++ {
		if fanOut := mat.SumSource(src); fanOut > 0 {
			mat.ScaleSource(src, g.SendRates[src]/fanOut)
		}
	}
	for dst := 0; dst < g.NumNodes(); dst++ {
		if incoming := mat.SumDest(dst); incoming > g.RecvRates[dst] {
			mat.ScaleDest(dst, g.RecvRates[dst]/incoming)
		}
	}
}

// A FairShareSwitcher gives each connection an equal
// share of both endpoints, and limits it by whichever
// share is smaller.
//
// Unlike GreedyDropSwitcher, a connection into a busy
// node does not use up upload rate that the sender could
// spend on its other connections, but the spare rate is
// not handed out either.
type FairShareSwitcher struct {
	SendRates []float64
	RecvRates []float64
}

// NewFairShareSwitcher creates a FairShareSwitcher where
// every node has the same rates.
func NewFairShareSwitcher(numNodes int, rate float64) *FairShareSwitcher {
	rates := uniformRates(numNodes, rate)
	return &FairShareSwitcher{SendRates: rates, RecvRates: rates}
}

// NumNodes gets the number of nodes the switch expects.
func (f *FairShareSwitcher) NumNodes() int {
	return len(f.SendRates)
}

// SwitchedRates performs the switching algorithm.
func (f *FairShareSwitcher) SwitchedRates(mat *ConnMat) {
	checkSwitchSize(mat, f.NumNodes())
	n := f.NumNodes()
	fanOut := make([]int, n)
	fanIn := make([]int, n)
	for i := 0; i < n; i++ {
		fanOut[i] = mat.CountSource(i)
		fanIn[i] = mat.CountDest(i)
	}
	for src := 0; src < n; src++ {
		for dst := 0; dst < n; dst++ {
			if mat.Get(src, dst) == 0 {
				continue
			}
			sendShare := f.SendRates[src] / float64(fanOut[src])
			recvShare := f.RecvRates[dst] / float64(fanIn[dst])
			mat.Set(src, dst, math.Min(sendShare, recvShare))
		}
	}
}

func uniformRates(numNodes int, rate float64) []float64 {
	rates := make([]float64, numNodes)
	for i := range rates {
		rates[i] = rate
	}
	return rates
}

func checkSwitchSize(mat *ConnMat, numNodes int) {
	if mat.NumNodes() != numNodes {
		panic(fmt.Sprintf("switch has %d nodes but matrix has %d", numNodes, mat.NumNodes()))
	}
}
