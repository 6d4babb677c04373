// Package allreduce implements algorithms for summing or
// maxing vectors across many different connected Nodes.
package allreduce

import "github.com/unixpickle/heatsim/collcomm"

// Allreducer is an algorithm that can apply a ReduceFn to
// vectors that are distributed across nodes.
//
// Every node must call Allreduce with the same seq.
// Reductions with different sequence numbers may share a
// Comms object, since their packets are matched on seq.
type Allreducer interface {
	Allreduce(c *collcomm.Comms, seq int, data []float64, fn collcomm.ReduceFn) ([]float64, error)
}

// ByName looks up an Allreducer by its configuration
// name: "naive", "tree", or "stream".
func ByName(name string) (Allreducer, bool) {
	switch name {
	case "naive":
		return NaiveAllreducer{}, true
	case "tree", "":
		return TreeAllreducer{}, true
	case "stream":
		return StreamAllreducer{}, true
	}
	return nil, false
}
