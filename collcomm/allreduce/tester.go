package allreduce

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/heatsim/collcomm"
	"github.com/unixpickle/heatsim/simulator"
)

// RunAllreducerTests runs a battery of tests on an
// Allreducer.
func RunAllreducerTests(t *testing.T, reducer Allreducer) {
	for _, numNodes := range []int{1, 2, 5, 15, 16, 17} {
		for _, size := range []int{0, 1, 1337} {
			for _, randomized := range []bool{false, true} {
				testName := fmt.Sprintf("Nodes=%d,Size=%d,Random=%v", numNodes, size, randomized)
				t.Run(testName, func(t *testing.T) {
					loop := simulator.NewEventLoop()
					vectors := make([][]float64, numNodes)
					nodes := make([]*simulator.Node, numNodes)
					sum := make([]float64, size)
					max := make([]float64, size)
					for j := range max {
						max[j] = math.Inf(-1)
					}
					for i := range nodes {
						vectors[i] = make([]float64, size)
						for j := range vectors[i] {
							vectors[i][j] = rand.NormFloat64()
							sum[j] += vectors[i][j]
							max[j] = math.Max(max[j], vectors[i][j])
						}
						nodes[i] = simulator.NewNode()
					}

					var network simulator.Network
					if randomized {
						network = simulator.RandomNetwork{}
					} else {
						switcher := simulator.NewGreedyDropSwitcher(numNodes, 1.0)
						network = simulator.NewSwitcherNetwork(switcher, nodes, 0.1)
					}

					sums := make([][]float64, numNodes)
					maxes := make([][]float64, numNodes)
					collcomm.SpawnGroups(loop, network, nodes, func(h *simulator.Handle, g *collcomm.Group) {
						c := g.Comms(h, collcomm.ChannelReduce)
						var err error
						// Two reductions back to back on one channel.
						sums[c.Index()], err = reducer.Allreduce(c, 0, vectors[c.Index()], collcomm.Sum)
						if err != nil {
							t.Error(err)
							return
						}
						maxes[c.Index()], err = reducer.Allreduce(c, 1, vectors[c.Index()], collcomm.Max)
						if err != nil {
							t.Error(err)
						}
					})

					if err := loop.Run(); err != nil {
						t.Fatal(err)
					}

					verifyReductionResults(t, sums, sum)
					verifyReductionResults(t, maxes, max)
				})
			}
		}
	}
}

func verifyReductionResults(t *testing.T, results [][]float64, expected []float64) {
	for i, res := range results[1:] {
		if len(res) != len(expected) {
			t.Errorf("result %d has length %d but expected %d", i, len(res), len(expected))
			continue
		}
		for j, actual := range res {
			if actual != results[0][j] {
				t.Errorf("result %d is not identical to result 0", i)
				break
			}
		}
	}

	for i, x := range expected {
		if math.Abs(x-results[0][i]) > 1e-5 {
			t.Errorf("reduction is incorrect (expected %f but got %f at component %d)",
				x, results[0][i], i)
			break
		}
	}
}
