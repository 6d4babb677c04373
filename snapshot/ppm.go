package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// A PPMWriter renders snapshots as binary PPM images,
// shading cells from blue (cold) to red (hot).
type PPMWriter struct {
	FS afs.Service

	// BaseURL is the directory for the images. Each image
	// is named after its iteration.
	BaseURL string

	MaxTemperature float64
}

// NewPPMWriter creates a PPMWriter that writes to baseURL.
func NewPPMWriter(baseURL string, maxTemperature float64) *PPMWriter {
	return &PPMWriter{FS: afs.New(), BaseURL: baseURL, MaxTemperature: maxTemperature}
}

// URL gets the location of an iteration's image.
func (p *PPMWriter) URL(iteration int) string {
	return url.Join(p.BaseURL, fmt.Sprintf("%d.ppm", iteration))
}

// Write saves a snapshot.
func (p *PPMWriter) Write(ctx context.Context, s *Snapshot) error {
	if ok, _ := p.FS.Exists(ctx, p.BaseURL); !ok {
		if err := p.FS.Create(ctx, p.BaseURL, file.DefaultDirOsMode, true); err != nil {
			return err
		}
	}
	data := EncodePPM(s, p.MaxTemperature)
	return p.FS.Upload(ctx, p.URL(s.Iteration), file.DefaultFileOsMode, bytes.NewReader(data))
}

// EncodePPM renders a snapshot as a binary PPM image.
func EncodePPM(s *Snapshot, maxTemperature float64) []byte {
	g := s.Grid
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "P6\n# iteration %d\n%d %d\n255\n", s.Iteration, g.Cols(), g.Rows())
	for i := 0; i < g.Rows(); i++ {
		for _, x := range g.Row(i) {
			heat := math.Max(0, math.Min(1, x/maxTemperature))
			buf.WriteByte(byte(heat * 255))
			buf.WriteByte(0)
			buf.WriteByte(byte((1 - heat) * 255))
		}
	}
	return buf.Bytes()
}
