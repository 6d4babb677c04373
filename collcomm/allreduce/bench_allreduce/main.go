// Command bench_allreduce compares the allreduce
// algorithms on the reductions a heat run performs: one
// scalar max per iteration, issued back to back, and the
// occasional row-sized vector.
package main

import (
	"fmt"
	"strconv"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/heatsim/collcomm"
	"github.com/unixpickle/heatsim/collcomm/allreduce"
	"github.com/unixpickle/heatsim/simulator"
)

// A Setup is a simulated cluster.
type Setup struct {
	Workers  int
	Switcher string
	Latency  float64
	Rate     float64
}

// Workload is a number of reductions of one size that are
// all in flight at once.
type Workload struct {
	Name     string
	Size     int
	Pipeline int
}

// Time measures how long a workload takes in virtual time.
func (s *Setup) Time(reducer allreduce.Allreducer, w Workload) float64 {
	loop := simulator.NewEventLoopSeed(1)
	nodes := make([]*simulator.Node, s.Workers)
	for i := range nodes {
		nodes[i] = simulator.NewNode()
	}
	switcher, err := simulator.NewSwitcher(s.Switcher, s.Workers, s.Rate)
	essentials.Must(err)
	network := simulator.NewSwitcherNetwork(switcher, nodes, s.Latency)
	collcomm.SpawnGroups(loop, network, nodes, func(h *simulator.Handle, g *collcomm.Group) {
		engine := collcomm.NewEngine(g, collcomm.ChannelReduce)
		defer engine.Close(h)
		var futures []*collcomm.Future
		for seq := 0; seq < w.Pipeline; seq++ {
			seq := seq
			vec := make([]float64, w.Size)
			futures = append(futures, engine.Submit(h, func(c *collcomm.Comms) ([]float64, error) {
				return reducer.Allreduce(c, seq, vec, FakeMax)
			}))
		}
		for _, f := range futures {
			_, err := f.Await(h)
			essentials.Must(err)
		}
	})
	essentials.Must(loop.Run())
	return loop.Time()
}

func main() {
	reducerNames := []string{"naive", "tree", "stream"}
	setups := []Setup{
		{Workers: 2, Switcher: "greedy", Latency: 1e-5, Rate: 1e9},
		{Workers: 8, Switcher: "greedy", Latency: 1e-5, Rate: 1e9},
		{Workers: 8, Switcher: "fair", Latency: 1e-5, Rate: 1e9},
		{Workers: 32, Switcher: "greedy", Latency: 1e-5, Rate: 1e9},
		{Workers: 32, Switcher: "fair", Latency: 1e-3, Rate: 1e8},
	}
	workloads := []Workload{
		{Name: "metric", Size: 1, Pipeline: 1},
		{Name: "metric x100", Size: 1, Pipeline: 100},
		{Name: "row 512", Size: 512, Pipeline: 1},
		{Name: "row 4096", Size: 4096, Pipeline: 1},
	}

	fmt.Print("| Workers | Switcher | Latency | Rate | Workload ")
	for _, name := range reducerNames {
		fmt.Printf("| %s ", name)
	}
	fmt.Println("|")
	for i := 0; i < 5+len(reducerNames); i++ {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	for _, setup := range setups {
		for _, w := range workloads {
			fmt.Printf(
				"| %d | %s | %s | %s | %s ",
				setup.Workers,
				setup.Switcher,
				strconv.FormatFloat(setup.Latency, 'f', -1, 64),
				strconv.FormatFloat(setup.Rate, 'E', -1, 64),
				w.Name,
			)
			for _, name := range reducerNames {
				reducer, _ := allreduce.ByName(name)
				fmt.Printf("| %f ", setup.Time(reducer, w))
			}
			fmt.Println("|")
		}
	}
}

// FakeMax is a max ReduceFn that only simulates its CPU
// time.
func FakeMax(h *simulator.Handle, vecs ...[]float64) []float64 {
	h.Sleep(collcomm.FlopTime * float64(len(vecs)*len(vecs[0])))
	return make([]float64, len(vecs[0]))
}
