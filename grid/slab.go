package grid

import "fmt"

// A Slab is a worker's block of owned rows surrounded by
// one ghost row above and one below.
//
// Ghost rows mirror a neighbor's boundary rows and are
// never authoritative, so they can only be reached through
// GhostAbove, GhostBelow, and Row.
type Slab struct {
	owned int
	cols  int

	// data holds (owned+2)*cols values, ghost rows
	// included.
	data []float64
}

// NewSlab allocates a zero slab.
func NewSlab(owned, cols int) (*Slab, error) {
	if err := checkShape(owned+2, cols); err != nil {
		return nil, err
	}
	return &Slab{
		owned: owned,
		cols:  cols,
		data:  make([]float64, (owned+2)*cols),
	}, nil
}

// OwnedRows gets the number of owned rows.
func (s *Slab) OwnedRows() int {
	return s.owned
}

// Cols gets the number of columns.
func (s *Slab) Cols() int {
	return s.cols
}

// Owned gets the owned row i, where i is in [1, OwnedRows()].
// The result aliases the slab.
func (s *Slab) Owned(i int) []float64 {
	if i < 1 || i > s.owned {
		panic(fmt.Sprintf("owned row %d out of range [1, %d]", i, s.owned))
	}
	return s.Row(i)
}

// GhostAbove gets the mirror of the upper neighbor's last
// row.
func (s *Slab) GhostAbove() []float64 {
	return s.Row(0)
}

// GhostBelow gets the mirror of the lower neighbor's first
// row.
func (s *Slab) GhostBelow() []float64 {
	return s.Row(s.owned + 1)
}

// Row gets any row of the slab, where 0 and OwnedRows()+1
// are the ghost rows.
func (s *Slab) Row(i int) []float64 {
	return s.data[i*s.cols : (i+1)*s.cols]
}

// Rows gets the rows [first, end) as one contiguous slice
// that aliases the slab.
func (s *Slab) Rows(first, end int) []float64 {
	return s.data[first*s.cols : end*s.cols]
}

// OwnedBlock copies the owned rows, leaving out both ghost
// rows.
func (s *Slab) OwnedBlock() []float64 {
	return append([]float64{}, s.Rows(1, s.owned+1)...)
}

// SetOwnedBlock overwrites every owned row.
func (s *Slab) SetOwnedBlock(block []float64) error {
	if len(block) != s.owned*s.cols {
		return fmt.Errorf("block has %d values but slab owns %d", len(block), s.owned*s.cols)
	}
	copy(s.Rows(1, s.owned+1), block)
	return nil
}
