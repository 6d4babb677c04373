// Package stencil implements the Jacobi relaxation step.
//
// A cell becomes the average of its in-domain neighbors.
// Cells on the edge of the global domain have fewer
// neighbors, which gives zero-flux boundaries.
package stencil

import (
	"math"

	"github.com/unixpickle/heatsim/device"
	"github.com/unixpickle/heatsim/grid"
)

// A Region is a range of columns [FirstCol, EndCol) that
// can be updated independently of other regions.
type Region struct {
	Name     string
	FirstCol int
	EndCol   int
}

// Regions splits cols columns into a left edge, an
// interior, and a right edge, omitting empty regions.
func Regions(cols int) []Region {
	if cols == 1 {
		return []Region{{Name: "LeftEdge", FirstCol: 0, EndCol: 1}}
	}
	res := []Region{{Name: "LeftEdge", FirstCol: 0, EndCol: 1}}
	if cols > 2 {
		res = append(res, Region{Name: "Interior", FirstCol: 1, EndCol: cols - 1})
	}
	return append(res, Region{Name: "RightEdge", FirstCol: cols - 1, EndCol: cols})
}

// Bounds says which sides of a slab are on the edge of the
// global domain rather than next to another worker.
type Bounds struct {
	Top    bool
	Bottom bool
}

// UpdateRegion computes the region's columns of every
// owned row of p.Current() from p.Previous(), skipping
// fixed sources.
//
// It returns the largest absolute change.
func UpdateRegion(p *grid.Pair, r Region, b Bounds) float64 {
	prev, cur := p.Previous(), p.Current()
	owned := p.OwnedRows()
	var maxChange float64
	for i := 1; i <= owned; i++ {
		above, row, below := prev.Row(i-1), prev.Row(i), prev.Row(i+1)
		out := cur.Row(i)
		hasUp := i > 1 || !b.Top
		hasDown := i < owned || !b.Bottom
		for j := r.FirstCol; j < r.EndCol; j++ {
			if p.Fixed(i, j) {
				continue
			}
			out[j] = relax(above, row, below, j, hasUp, hasDown)
			maxChange = math.Max(maxChange, math.Abs(out[j]-row[j]))
		}
	}
	return maxChange
}

func relax(above, row, below []float64, j int, hasUp, hasDown bool) float64 {
	hasLeft := j > 0
	hasRight := j < len(row)-1
	if hasUp && hasDown && hasLeft && hasRight {
		return 0.25 * (above[j] + below[j] + row[j-1] + row[j+1])
	}

	var sum float64
	var n int
	if hasUp {
		sum += above[j]
		n++
	}
	if hasDown {
		sum += below[j]
		n++
	}
	if hasLeft {
		sum += row[j-1]
		n++
	}
	if hasRight {
		sum += row[j+1]
		n++
	}
	if n == 0 {
		return row[j]
	}
	return sum / float64(n)
}

// An Engine updates a worker's slab pair by launching one
// kernel per region on a Device.
type Engine struct {
	Device  device.Device
	Bounds  Bounds
	Regions []Region
}

// NewEngine creates an Engine for a slab with cols
// columns.
func NewEngine(d device.Device, b Bounds, cols int) *Engine {
	return &Engine{Device: d, Bounds: b, Regions: Regions(cols)}
}

// Update writes the next generation into the device copy
// of p.Current() and returns the local maximum change.
//
// The regions run on separate streams and are joined
// before the result is combined.
func (e *Engine) Update() (float64, error) {
	for i, r := range e.Regions {
		region := r
		e.Device.Launch(i, func(p *grid.Pair) (float64, error) {
			return UpdateRegion(p, region, e.Bounds), nil
		})
	}
	changes, err := e.Device.Join()
	if err != nil {
		return 0, err
	}
	var maxChange float64
	for _, c := range changes {
		maxChange = math.Max(maxChange, c)
	}
	return maxChange, nil
}

// Cost estimates the floating-point operations in one
// update of a slab.
func Cost(rows, cols int) int {
	return 6 * rows * cols
}
