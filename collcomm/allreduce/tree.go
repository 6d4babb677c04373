package allreduce

import "github.com/unixpickle/heatsim/collcomm"

// A TreeAllreducer arranges the nodes in a binary tree
// and performs a reduction by going up the three to a
// root node, and then back down the tree to a leaf.
type TreeAllreducer struct{}

// Allreduce calls fn on vectors along a tree and returns
// the resulting reduced vector.
func (t TreeAllreducer) Allreduce(c *collcomm.Comms, seq int, data []float64,
	fn collcomm.ReduceFn) ([]float64, error) {
	parent, children := positionInTree(c.Index(), c.Size())

	// Children are reduced in a fixed order so that every
	// run produces the same rounding.
	messages := [][]float64{data}
	for _, child := range children {
		p, err := c.Recv(child, collcomm.TagAllreduce, seq)
		if err != nil {
			return nil, err
		}
		messages = append(messages, p.Payload)
	}

	finalVector := fn(c.Handle, messages...)
	if parent != collcomm.NoRank {
		if err := c.Send(parent, collcomm.TagAllreduce, seq, finalVector); err != nil {
			return nil, err
		}
		p, err := c.Recv(parent, collcomm.TagAllreduce, seq)
		if err != nil {
			return nil, err
		}
		finalVector = p.Payload
	}

	for _, child := range children {
		if err := c.Send(child, collcomm.TagAllreduce, seq, finalVector); err != nil {
			return nil, err
		}
	}

	return finalVector, nil
}

// positionInTree returns the child ranks and parent rank
// for a host in the reduction tree.
//
// There may be no children.
// The parent of the root node is NoRank.
func positionInTree(idx, size int) (parent int, children []int) {
	parent = collcomm.NoRank
	for depth := uint(0); true; depth++ {
		rowSize := 1 << depth
		rowStart := rowSize - 1
		if idx >= rowStart+rowSize {
			continue
		}
		rowIdx := idx - rowStart
		if depth > 0 {
			parent = rowIdx/2 + (rowSize/2 - 1)
		}
		firstChild := rowIdx*2 + (rowSize*2 - 1)
		for i := 0; i < 2; i++ {
			if firstChild+i < size {
				children = append(children, firstChild+i)
			}
		}
		return
	}
	panic("unreachable")
}
