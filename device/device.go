// Package device offloads stencil kernels to an
// accelerator with its own memory.
//
// Host and device copies of a slab pair are only made
// coherent by explicit Upload and Download calls.
package device

import (
	"errors"
	"fmt"

	"github.com/unixpickle/heatsim/grid"
)

// ErrNotAttached is returned when a Device is used before
// Attach.
var ErrNotAttached = errors.New("no slab pair attached")

// Buffer selects one slab of a pair by its role.
type Buffer int

const (
	Previous Buffer = iota
	Current
)

// Rows selects the rows [First, First+Count) of one slab,
// where row 0 is the upper ghost row.
type Rows struct {
	Buffer Buffer
	First  int
	Count  int
}

// AllRows selects every row of a slab, ghosts included.
func AllRows(p *grid.Pair, b Buffer) Rows {
	return Rows{Buffer: b, First: 0, Count: p.OwnedRows() + 2}
}

func (r Rows) slab(p *grid.Pair) *grid.Slab {
	if r.Buffer == Current {
		return p.Current()
	}
	return p.Previous()
}

func (r Rows) data(p *grid.Pair) ([]float64, error) {
	if r.First < 0 || r.Count < 0 || r.First+r.Count > p.OwnedRows()+2 {
		return nil, fmt.Errorf("rows [%d, %d) out of range", r.First, r.First+r.Count)
	}
	return r.slab(p).Rows(r.First, r.First+r.Count), nil
}

// A Kernel runs on the device's copy of a slab pair and
// returns the largest change it made.
type Kernel func(p *grid.Pair) (float64, error)

// A Device runs kernels on its own copy of a slab pair.
//
// Kernels launched on one stream run in order. Kernels on
// different streams may run concurrently.
type Device interface {
	// Attach allocates device memory for a host pair.
	Attach(p *grid.Pair) error

	// Upload copies rows from the host to the device.
	Upload(rows ...Rows) error

	// Download copies rows from the device to the host.
	Download(rows ...Rows) error

	// Launch queues a kernel on a stream.
	Launch(stream int, k Kernel)

	// Join waits for every launched kernel and returns
	// their results in launch order.
	Join() ([]float64, error)
}

// New creates a Device by configuration name.
// Threads limits how many kernels an accelerator runs at
// once; 0 means no limit.
func New(accelerator bool, threads int) Device {
	if accelerator {
		return &Emulated{Threads: threads}
	}
	return &Host{}
}
