package heat

import (
	"fmt"
	"time"

	"github.com/unixpickle/heatsim/simulator"
)

// A Clock measures the time since a run started on the
// coordinator.
type Clock interface {
	Elapsed(h *simulator.Handle) float64
}

// WallClock measures real time.
type WallClock struct {
	Start time.Time
}

func (w *WallClock) Elapsed(h *simulator.Handle) float64 {
	return time.Since(w.Start).Seconds()
}

// VirtualClock measures simulated time, which makes runs
// with a time budget reproducible.
type VirtualClock struct {
	Start float64
}

func (v *VirtualClock) Elapsed(h *simulator.Handle) float64 {
	return h.Time() - v.Start
}

// StartClock starts a clock by configuration name.
func StartClock(name string, h *simulator.Handle) (Clock, error) {
	switch name {
	case "wall", "":
		return &WallClock{Start: time.Now()}, nil
	case "virtual":
		return &VirtualClock{Start: h.Time()}, nil
	}
	return nil, fmt.Errorf("unknown clock: %s", name)
}
