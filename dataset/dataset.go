// Package dataset reads, writes, and generates initial
// temperature grids.
//
// A dataset file holds the row count and column count as
// little-endian 32-bit integers, followed by every cell as
// a little-endian float64 in row-major order.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/heatsim/grid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// MaxTemperature is the temperature of every hot source.
// Cells at this temperature are loaded as fixed sources.
const MaxTemperature = 50.0

// Encode writes a grid in the dataset format.
func Encode(w io.Writer, g *grid.Global) error {
	bw := bufio.NewWriter(w)
	header := []uint32{uint32(g.Rows()), uint32(g.Cols())}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, g.Data()); err != nil {
		return err
	}
	return bw.Flush()
}

// Decode reads a grid in the dataset format.
//
// Cells at MaxTemperature become fixed sources.
func Decode(r io.Reader) (*grid.Global, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, essentials.AddCtx("read header", err)
	}
	g, err := grid.NewGlobal(int(header[0]), int(header[1]))
	if err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, g.Data()); err != nil {
		return nil, essentials.AddCtx("read cells", err)
	}
	for i := 0; i < g.Rows(); i++ {
		for j, x := range g.Row(i) {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("cell (%d, %d) is %f", i, j, x)
			}
			if x == MaxTemperature {
				g.SetSource(i, j, x)
			}
		}
	}
	return g, nil
}

// Read loads a dataset from any afs URL.
func Read(ctx context.Context, fs afs.Service, url string) (*grid.Global, error) {
	data, err := fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, err
	}
	g, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, essentials.AddCtx(url, err)
	}
	return g, nil
}

// Write saves a dataset to any afs URL.
func Write(ctx context.Context, fs afs.Service, url string, g *grid.Global) error {
	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		return err
	}
	return fs.Upload(ctx, url, file.DefaultFileOsMode, &buf)
}
