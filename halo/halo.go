// Package halo refreshes the ghost rows of a worker's
// slab from its neighbors' boundary rows.
package halo

import (
	"fmt"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/heatsim/collcomm"
	"github.com/unixpickle/heatsim/device"
	"github.com/unixpickle/heatsim/grid"
	"github.com/unixpickle/heatsim/partition"
	"github.com/unixpickle/heatsim/simulator"
)

// Tags for rows travelling up (a slab's first row, sent
// to the neighbor above) and down (its last row).
const (
	TagUp collcomm.Tag = collcomm.TagUser + iota
	TagDown
)

// Mode selects how the two directions are scheduled.
type Mode int

const (
	// Sync performs two combined send-receive steps, one
	// per direction.
	Sync Mode = iota

	// Async posts both sends before waiting on either
	// receive.
	Async
)

// ParseMode parses "sync" or "async".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "sync", "":
		return Sync, nil
	case "async":
		return Async, nil
	}
	return 0, fmt.Errorf("unknown exchange mode: %s", s)
}

func (m Mode) String() string {
	if m == Async {
		return "async"
	}
	return "sync"
}

// An Exchanger runs the halo exchange for one worker.
type Exchanger struct {
	Group  *collcomm.Group
	Slab   partition.Slab
	Mode   Mode
	Device device.Device
}

// Exchange sends the owned boundary rows of p.Previous(),
// which hold the last iteration's results, to the
// neighbors and fills the ghost rows of p.Previous() with
// theirs.
//
// It returns once both ghost rows have landed. Sides
// without a neighbor are skipped.
func (x *Exchanger) Exchange(h *simulator.Handle, iteration int, p *grid.Pair) error {
	c := x.Group.Comms(h, collcomm.ChannelHalo)
	slab := p.Previous()
	owned := p.OwnedRows()

	var boundary []device.Rows
	if x.Slab.Up != partition.NoNeighbor {
		boundary = append(boundary, device.Rows{Buffer: device.Previous, First: 1, Count: 1})
	}
	if x.Slab.Down != partition.NoNeighbor {
		boundary = append(boundary, device.Rows{Buffer: device.Previous, First: owned, Count: 1})
	}
	if len(boundary) == 0 {
		return nil
	}
	if err := x.Device.Download(boundary...); err != nil {
		return essentials.AddCtx("download boundary rows", err)
	}

	var err error
	if x.Mode == Async {
		err = x.exchangeAsync(c, iteration, slab)
	} else {
		err = x.exchangeSync(c, iteration, slab)
	}
	if err != nil {
		return essentials.AddCtx(fmt.Sprintf("halo exchange %d", iteration), err)
	}

	var ghosts []device.Rows
	if x.Slab.Up != partition.NoNeighbor {
		ghosts = append(ghosts, device.Rows{Buffer: device.Previous, First: 0, Count: 1})
	}
	if x.Slab.Down != partition.NoNeighbor {
		ghosts = append(ghosts, device.Rows{Buffer: device.Previous, First: owned + 1, Count: 1})
	}
	if err := x.Device.Upload(ghosts...); err != nil {
		return essentials.AddCtx("upload ghost rows", err)
	}
	return nil
}

func (x *Exchanger) exchangeSync(c *collcomm.Comms, iteration int, slab *grid.Slab) error {
	owned := slab.OwnedRows()
	err := c.SendRecv(x.Slab.Up, slab.Owned(1), x.Slab.Down, slab.GhostBelow(), TagUp, iteration)
	if err != nil {
		return err
	}
	return c.SendRecv(x.Slab.Down, slab.Owned(owned), x.Slab.Up, slab.GhostAbove(), TagDown, iteration)
}

func (x *Exchanger) exchangeAsync(c *collcomm.Comms, iteration int, slab *grid.Slab) error {
	if err := c.Send(x.Slab.Up, TagUp, iteration, slab.Owned(1)); err != nil {
		return err
	}
	if err := c.Send(x.Slab.Down, TagDown, iteration, slab.Owned(slab.OwnedRows())); err != nil {
		return err
	}

	// Early packets are stashed by the Comms, so the
	// receive order does not depend on arrival order.
	if err := c.RecvInto(x.Slab.Up, TagDown, iteration, slab.GhostAbove()); err != nil {
		return err
	}
	return c.RecvInto(x.Slab.Down, TagUp, iteration, slab.GhostBelow())
}
