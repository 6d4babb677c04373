// Package grid stores temperatures for the whole domain
// and for the slabs owned by individual workers.
package grid

import (
	"errors"
	"fmt"
)

// MaxCells is the largest number of cells a single buffer
// may hold.
const MaxCells = 1 << 30

// ErrAlloc is returned when a buffer cannot be allocated.
var ErrAlloc = errors.New("cannot allocate grid")

func checkShape(rows, cols int) error {
	if rows <= 0 || cols <= 0 || rows > MaxCells/cols {
		return fmt.Errorf("%dx%d cells: %w", rows, cols, ErrAlloc)
	}
	return nil
}

// A Global is a full R x C grid of temperatures stored in
// row-major order, plus the set of fixed-source cells.
type Global struct {
	rows  int
	cols  int
	data  []float64
	fixed []bool
}

// NewGlobal creates a zero grid with no fixed sources.
func NewGlobal(rows, cols int) (*Global, error) {
	if err := checkShape(rows, cols); err != nil {
		return nil, err
	}
	return &Global{
		rows:  rows,
		cols:  cols,
		data:  make([]float64, rows*cols),
		fixed: make([]bool, rows*cols),
	}, nil
}

// Rows gets the number of rows.
func (g *Global) Rows() int {
	return g.rows
}

// Cols gets the number of columns.
func (g *Global) Cols() int {
	return g.cols
}

// At gets the temperature of a cell.
func (g *Global) At(i, j int) float64 {
	return g.data[g.index(i, j)]
}

// Set sets the temperature of a cell.
func (g *Global) Set(i, j int, v float64) {
	g.data[g.index(i, j)] = v
}

// SetSource sets the temperature of a cell and pins it so
// that it never changes during relaxation.
func (g *Global) SetSource(i, j int, v float64) {
	idx := g.index(i, j)
	g.data[idx] = v
	g.fixed[idx] = true
}

// IsSource checks if a cell is a fixed source.
func (g *Global) IsSource(i, j int) bool {
	return g.fixed[g.index(i, j)]
}

// Row gets a row of the grid. The result aliases the grid.
func (g *Global) Row(i int) []float64 {
	return g.data[i*g.cols : (i+1)*g.cols]
}

// Data gets the row-major backing array.
func (g *Global) Data() []float64 {
	return g.data
}

// Block copies the rows [first, end).
func (g *Global) Block(first, end int) []float64 {
	return append([]float64{}, g.data[first*g.cols:end*g.cols]...)
}

// FixedBlock copies the fixed-source mask for the rows
// [first, end).
func (g *Global) FixedBlock(first, end int) []bool {
	return append([]bool{}, g.fixed[first*g.cols:end*g.cols]...)
}

// SetBlock overwrites whole rows starting at row first.
func (g *Global) SetBlock(first int, block []float64) error {
	if len(block)%g.cols != 0 || first < 0 || first*g.cols+len(block) > len(g.data) {
		return fmt.Errorf("block of %d values at row %d does not fit %dx%d grid",
			len(block), first, g.rows, g.cols)
	}
	copy(g.data[first*g.cols:], block)
	return nil
}

// Clone creates a deep copy of the grid.
func (g *Global) Clone() *Global {
	return &Global{
		rows:  g.rows,
		cols:  g.cols,
		data:  append([]float64{}, g.data...),
		fixed: append([]bool{}, g.fixed...),
	}
}

// Max gets the largest temperature in the grid.
func (g *Global) Max() float64 {
	res := g.data[0]
	for _, x := range g.data[1:] {
		if x > res {
			res = x
		}
	}
	return res
}

func (g *Global) index(i, j int) int {
	if i < 0 || i >= g.rows || j < 0 || j >= g.cols {
		panic(fmt.Sprintf("cell (%d, %d) out of bounds for %dx%d grid", i, j, g.rows, g.cols))
	}
	return i*g.cols + j
}
