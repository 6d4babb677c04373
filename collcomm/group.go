package collcomm

import "github.com/unixpickle/heatsim/simulator"

// A Channel is an independent set of ports, one per node.
//
// Traffic on one channel never has to be matched against
// traffic on another, so each channel can be serviced by
// a different Goroutine.
type Channel int

const (
	ChannelHalo Channel = iota
	ChannelControl
	ChannelReduce
	ChannelGather

	NumChannels
)

// Group is a node's handle on every channel.
type Group struct {
	Loop    *simulator.EventLoop
	Network simulator.Network

	// Rank is the current node's index.
	Rank int

	// Ports is indexed first by Channel and then by rank.
	Ports [][]*simulator.Port

	comms []*Comms
}

// SpawnGroups creates Group objects for every node in a
// network and calls f for each node in its own Goroutine.
func SpawnGroups(loop *simulator.EventLoop, network simulator.Network, nodes []*simulator.Node,
	f func(h *simulator.Handle, g *Group)) {
	ports := make([][]*simulator.Port, NumChannels)
	for ch := range ports {
		ports[ch] = make([]*simulator.Port, len(nodes))
		for i, node := range nodes {
			ports[ch][i] = node.Port(loop)
		}
	}
	for i := range nodes {
		g := &Group{
			Loop:    loop,
			Network: network,
			Rank:    i,
			Ports:   ports,
			comms:   make([]*Comms, NumChannels),
		}
		loop.Go(func(h *simulator.Handle) {
			f(h, g)
		})
	}
}

// Size gets the number of nodes.
func (g *Group) Size() int {
	return len(g.Ports[0])
}

// Comms returns the node's Comms for a channel, bound to
// the Goroutine owning h.
//
// The same Comms object (and its stash of early packets)
// is returned every time for a given channel.
func (g *Group) Comms(h *simulator.Handle, ch Channel) *Comms {
	if g.comms[ch] == nil {
		g.comms[ch] = &Comms{
			Rank:    g.Rank,
			Port:    g.Ports[ch][g.Rank],
			Ports:   g.Ports[ch],
			Network: g.Network,
		}
	}
	g.comms[ch].Handle = h
	return g.comms[ch]
}
