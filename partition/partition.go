// Package partition splits a grid into horizontal slabs,
// one per worker.
package partition

import (
	"errors"
	"fmt"

	"github.com/unixpickle/heatsim/collcomm"
)

// NoNeighbor is the neighbor of a slab on the edge of the
// global domain. Exchanges with it are no-ops.
const NoNeighbor = collcomm.NoRank

var (
	ErrWorkers = errors.New("worker count must be positive")
	ErrShape   = errors.New("grid dimensions must be positive")
	ErrUneven  = errors.New("rows do not divide evenly among workers")
)

// A Slab is the part of the grid owned by one worker.
type Slab struct {
	Rank int

	// FirstRow and EndRow delimit the owned global rows
	// [FirstRow, EndRow).
	FirstRow int
	EndRow   int

	// Up and Down are the ranks owning the rows directly
	// above and below the slab, or NoNeighbor.
	Up   int
	Down int
}

// Rows gets the number of owned rows.
func (s Slab) Rows() int {
	return s.EndRow - s.FirstRow
}

// Top reports whether the slab contains the first row of
// the global grid.
func (s Slab) Top() bool {
	return s.Up == NoNeighbor
}

// Bottom reports whether the slab contains the last row
// of the global grid.
func (s Slab) Bottom() bool {
	return s.Down == NoNeighbor
}

// A Layout describes how a grid is divided among workers.
type Layout struct {
	Rows    int
	Cols    int
	Workers int
}

// New creates a Layout, checking that every worker can
// own the same number of rows.
func New(rows, cols, workers int) (*Layout, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("partition %d workers: %w", workers, ErrWorkers)
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("partition %dx%d grid: %w", rows, cols, ErrShape)
	}
	if rows%workers != 0 {
		return nil, fmt.Errorf("partition %d rows among %d workers: %w", rows, workers, ErrUneven)
	}
	return &Layout{Rows: rows, Cols: cols, Workers: workers}, nil
}

// RowsPerWorker gets the number of rows in every slab.
func (l *Layout) RowsPerWorker() int {
	return l.Rows / l.Workers
}

// Slab gets the slab for the i-th worker.
func (l *Layout) Slab(i int) Slab {
	if i < 0 || i >= l.Workers {
		panic(fmt.Sprintf("worker %d out of range [0, %d)", i, l.Workers))
	}
	s := Slab{
		Rank:     i,
		FirstRow: i * l.Rows / l.Workers,
		EndRow:   (i + 1) * l.Rows / l.Workers,
		Up:       i - 1,
		Down:     i + 1,
	}
	if i == 0 {
		s.Up = NoNeighbor
	}
	if i == l.Workers-1 {
		s.Down = NoNeighbor
	}
	return s
}

// Slabs gets every worker's slab, ordered by rank.
func (l *Layout) Slabs() []Slab {
	res := make([]Slab, l.Workers)
	for i := range res {
		res[i] = l.Slab(i)
	}
	return res
}
