package stencil

import (
	"math"

	"github.com/unixpickle/heatsim/grid"
)

// Reference relaxes a whole grid in a single process.
//
// It returns the grid after the given number of
// iterations along with the maximum change of every
// iteration. The input is not modified.
func Reference(g *grid.Global, iterations int) (*grid.Global, []float64, error) {
	p, err := grid.NewPair(g.Rows(), g.Cols())
	if err != nil {
		return nil, nil, err
	}
	if err := p.Load(g.Block(0, g.Rows()), g.FixedBlock(0, g.Rows())); err != nil {
		return nil, nil, err
	}
	bounds := Bounds{Top: true, Bottom: true}
	regions := Regions(g.Cols())
	changes := make([]float64, iterations)
	for k := range changes {
		for _, r := range regions {
			changes[k] = math.Max(changes[k], UpdateRegion(p, r, bounds))
		}
		p.Swap()
	}
	res := g.Clone()
	if err := res.SetBlock(0, p.Previous().OwnedBlock()); err != nil {
		return nil, nil, err
	}
	return res, changes, nil
}
