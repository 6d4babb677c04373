package dataset

import (
	"fmt"

	"github.com/unixpickle/heatsim/grid"
)

// Columns creates a grid where every column whose index
// is a multiple of every is a hot source.
func Columns(rows, cols, every int) (*grid.Global, error) {
	if every <= 0 {
		return nil, fmt.Errorf("column spacing must be positive, got %d", every)
	}
	g, err := grid.NewGlobal(rows, cols)
	if err != nil {
		return nil, err
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j += every {
			g.SetSource(i, j, MaxTemperature)
		}
	}
	return g, nil
}

// Square creates a grid with a hot square in the middle
// whose side is half the number of rows.
func Square(rows, cols int) (*grid.Global, error) {
	g, err := grid.NewGlobal(rows, cols)
	if err != nil {
		return nil, err
	}
	midRow, midCol := rows/2, cols/2
	half := rows / 4
	for i := midRow - half; i <= midRow+half && i < rows; i++ {
		for j := midCol - half; j <= midCol+half && j < cols; j++ {
			if i >= 0 && j >= 0 {
				g.SetSource(i, j, MaxTemperature)
			}
		}
	}
	return g, nil
}

// Point creates a cold grid with a single hot source.
func Point(rows, cols, i, j int) (*grid.Global, error) {
	g, err := grid.NewGlobal(rows, cols)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= rows || j < 0 || j >= cols {
		return nil, fmt.Errorf("source (%d, %d) outside %dx%d grid", i, j, rows, cols)
	}
	g.SetSource(i, j, MaxTemperature)
	return g, nil
}

// Generate creates a grid by generator name: "columns"
// (every 100th column), "square", or "point" (the center).
func Generate(name string, rows, cols int) (*grid.Global, error) {
	switch name {
	case "columns":
		return Columns(rows, cols, 100)
	case "square":
		return Square(rows, cols)
	case "point":
		return Point(rows, cols, rows/2, cols/2)
	}
	return nil, fmt.Errorf("unknown generator: %s", name)
}
