package allreduce

import "github.com/unixpickle/heatsim/collcomm"

// A NaiveAllreducer sends every gradient from every node
// to every other node.
type NaiveAllreducer struct{}

// Allreduce runs fn() on all of the nodes' vectors on
// every node.
func (n NaiveAllreducer) Allreduce(c *collcomm.Comms, seq int, data []float64,
	fn collcomm.ReduceFn) ([]float64, error) {
	gatheredVecs := make([][]float64, c.Size())

	for i := 0; i < c.Size(); i++ {
		if i != c.Index() {
			if err := c.Send(i, collcomm.TagAllreduce, seq, data); err != nil {
				return nil, err
			}
		}
	}

	for i := 0; i < len(gatheredVecs)-1; i++ {
		p, err := c.Recv(collcomm.AnySource, collcomm.TagAllreduce, seq)
		if err != nil {
			return nil, err
		}
		gatheredVecs[p.Source] = p.Payload
	}

	gatheredVecs[c.Index()] = data

	return fn(c.Handle, gatheredVecs...), nil
}
