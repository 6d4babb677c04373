package simulator

import "fmt"

// A ConnMat holds one value per ordered pair of nodes,
// such as the data rate from a source (row) to a
// destination (column).
type ConnMat struct {
	numNodes int
	rates    []float64
}

// NewConnMat creates a zero matrix for numNodes nodes.
func NewConnMat(numNodes int) *ConnMat {
	return &ConnMat{
		numNodes: numNodes,
		rates:    make([]float64, numNodes*numNodes),
	}
}

// NumNodes returns the number of nodes.
func (c *ConnMat) NumNodes() int {
	return c.numNodes
}

// Get an entry.
func (c *ConnMat) Get(src, dst int) float64 {
	return c.rates[c.index(src, dst)]
}

// Set an entry.
func (c *ConnMat) Set(src, dst int, value float64) {
	c.rates[c.index(src, dst)] = value
}

// Add increments an entry.
func (c *ConnMat) Add(src, dst int, delta float64) {
	c.rates[c.index(src, dst)] += delta
}

// SumDest sums the column for dst, which is the total
// rate into a node.
func (c *ConnMat) SumDest(dst int) float64 {
	var sum float64
	c.column(dst, func(idx int) {
		sum += c.rates[idx]
	})
	return sum
}

// SumSource sums the row for src, which is the total rate
// out of a node.
func (c *ConnMat) SumSource(src int) float64 {
	var sum float64
	c.row(src, func(idx int) {
		sum += c.rates[idx]
	})
	return sum
}

// CountDest counts the nonzero entries in a column.
func (c *ConnMat) CountDest(dst int) int {
	var count int
	c.column(dst, func(idx int) {
		if c.rates[idx] != 0 {
			count++
		}
	})
	return count
}

// CountSource counts the nonzero entries in a row.
func (c *ConnMat) CountSource(src int) int {
	var count int
	c.row(src, func(idx int) {
		if c.rates[idx] != 0 {
			count++
		}
	})
	return count
}

// ScaleDest multiplies a column by a scale.
func (c *ConnMat) ScaleDest(dst int, scale float64) {
	c.column(dst, func(idx int) {
		c.rates[idx] *= scale
	})
}

// ScaleSource multiplies a row by a scale.
func (c *ConnMat) ScaleSource(src int, scale float64) {
	c.row(src, func(idx int) {
		c.rates[idx] *= scale
	})
}

func (c *ConnMat) row(src int, f func(idx int)) {
	start := c.index(src, 0)
	for i := start; i < start+c.numNodes; i++ {
		f(i)
	}
}

func (c *ConnMat) column(dst int, f func(idx int)) {
	for i := c.index(0, dst); i < len(c.rates); i += c.numNodes {
		f(i)
	}
}

func (c *ConnMat) index(src, dst int) int {
	if src < 0 || dst < 0 || src >= c.numNodes || dst >= c.numNodes {
		panic(fmt.Sprintf("entry (%d, %d) out of bounds for %d nodes", src, dst, c.numNodes))
	}
	return src*c.numNodes + dst
}
