package grid

import "fmt"

// A Pair double-buffers a worker's slab.
//
// During an iteration, Previous is read and Current is
// written. Swap exchanges the roles, so no iteration can
// observe values written earlier in the same iteration.
type Pair struct {
	slabs [2]*Slab
	fixed []bool
	gen   *int
}

// NewPair allocates two zero slabs.
func NewPair(owned, cols int) (*Pair, error) {
	var p Pair
	for i := range p.slabs {
		s, err := NewSlab(owned, cols)
		if err != nil {
			return nil, err
		}
		p.slabs[i] = s
	}
	p.fixed = make([]bool, owned*cols)
	p.gen = new(int)
	return &p, nil
}

// Mirror allocates a second pair of the same shape which
// shares this pair's fixed-source mask and generation, so
// the two swap together.
//
// Values are not copied.
func (p *Pair) Mirror() (*Pair, error) {
	m, err := NewPair(p.OwnedRows(), p.Cols())
	if err != nil {
		return nil, err
	}
	m.fixed = p.fixed
	m.gen = p.gen
	return m, nil
}

// OwnedRows gets the number of owned rows per slab.
func (p *Pair) OwnedRows() int {
	return p.slabs[0].owned
}

// Cols gets the number of columns.
func (p *Pair) Cols() int {
	return p.slabs[0].cols
}

// Generation gets the number of swaps so far.
func (p *Pair) Generation() int {
	return *p.gen
}

// Previous gets the slab to read from.
func (p *Pair) Previous() *Slab {
	return p.slabs[*p.gen%2]
}

// Current gets the slab to write to.
func (p *Pair) Current() *Slab {
	return p.slabs[(*p.gen+1)%2]
}

// Swap exchanges Previous and Current.
func (p *Pair) Swap() {
	*p.gen++
}

// Fixed checks if the cell in owned row i (1-based) and
// column j is a fixed source.
func (p *Pair) Fixed(i, j int) bool {
	return p.fixed[(i-1)*p.Cols()+j]
}

// Load fills the owned rows of both slabs with a block of
// initial values and installs its fixed-source mask.
// A nil mask means there are no fixed sources.
func (p *Pair) Load(block []float64, fixed []bool) error {
	if fixed != nil && len(fixed) != len(p.fixed) {
		return fmt.Errorf("mask has %d cells but slab owns %d", len(fixed), len(p.fixed))
	}
	if err := p.Previous().SetOwnedBlock(block); err != nil {
		return err
	}
	p.Current().SetOwnedBlock(block)
	for i := range p.fixed {
		p.fixed[i] = fixed != nil && fixed[i]
	}
	return nil
}
