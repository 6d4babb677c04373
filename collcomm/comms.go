package collcomm

import (
	"errors"
	"fmt"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/heatsim/simulator"
)

// AnySource matches packets from every sender in Recv.
const AnySource = -1

// NoRank is a peer that does not exist, such as the
// neighbor above the first worker.
// Sends to and receives from NoRank complete immediately.
const NoRank = -2

var (
	ErrPayloadSize = errors.New("payload size mismatch")
	ErrRank        = errors.New("rank out of range")
)

// A Tag separates unrelated message flows that share a
// channel.
type Tag int

// Tags used by the collective operations in this package.
// Callers should use tags starting at TagUser.
const (
	TagBcast Tag = iota + 1
	TagScatter
	TagGather
	TagBarrier
	TagAllreduce

	TagUser Tag = 64
)

// A Packet is the unit of data exchanged between nodes.
type Packet struct {
	// Source is the rank of the sender.
	Source int

	Tag Tag

	// Seq identifies the operation (usually an iteration
	// number) that the packet belongs to.
	Seq int

	// Kind is free for protocols that need to label
	// packets beyond Tag and Seq. It is not matched on.
	Kind int

	Payload []float64
}

// Size is the approximate number of bytes on the wire.
func (p *Packet) Size() float64 {
	return float64(len(p.Payload)*8) + 16
}

func (p *Packet) matches(src int, tag Tag, seq int) bool {
	return (src == AnySource || p.Source == src) && p.Tag == tag && p.Seq == seq
}

// Comms is one node's view of a single communication
// channel shared by a bunch of nodes.
//
// A Comms object may be used by one Goroutine at a time.
// Packets that arrive before anybody asks for them are
// stashed, so operations with different tags or sequence
// numbers can safely be interleaved on one channel.
type Comms struct {
	// Handle is the event loop handle of the Goroutine
	// currently using the channel.
	Handle *simulator.Handle

	// Rank is the current node's index in Ports.
	Rank int

	// Port is the current node's port.
	Port *simulator.Port

	// Ports contains ports to all the nodes in the
	// network, including the current node.
	Ports []*simulator.Port

	// Network is the network connecting the nodes.
	Network simulator.Network

	stash []*Packet
}

// Size gets the number of nodes.
func (c *Comms) Size() int {
	return len(c.Ports)
}

// Index returns the current node's index in the list of
// nodes.
func (c *Comms) Index() int {
	return c.Rank
}

// Send schedules a vector to be sent to the destination.
// The vector is copied, so the caller may reuse it right
// away.
func (c *Comms) Send(dst int, tag Tag, seq int, vec []float64) error {
	return c.SendPacket(dst, &Packet{Tag: tag, Seq: seq, Payload: vec})
}

// SendPacket is like Send, but it allows the caller to
// set every packet field except Source.
func (c *Comms) SendPacket(dst int, p *Packet) error {
	if dst == NoRank {
		return nil
	}
	if dst < 0 || dst >= len(c.Ports) {
		return essentials.AddCtx(fmt.Sprintf("send to %d", dst), ErrRank)
	}
	c.Network.Send(c.Handle, c.message(dst, p))
	return nil
}

func (c *Comms) message(dst int, p *Packet) *simulator.Message {
	pkt := *p
	pkt.Source = c.Rank
	pkt.Payload = append([]float64{}, p.Payload...)
	return &simulator.Message{
		Source:  c.Port,
		Dest:    c.Ports[dst],
		Message: &pkt,
		Size:    pkt.Size(),
	}
}

// Recv blocks until a packet with the given source, tag
// and sequence number arrives.
//
// Receiving from NoRank returns nil immediately.
func (c *Comms) Recv(src int, tag Tag, seq int) (*Packet, error) {
	if src == NoRank {
		return nil, nil
	}
	if src != AnySource && (src < 0 || src >= len(c.Ports)) {
		return nil, essentials.AddCtx(fmt.Sprintf("receive from %d", src), ErrRank)
	}
	for i, p := range c.stash {
		if p.matches(src, tag, seq) {
			essentials.OrderedDelete(&c.stash, i)
			return p, nil
		}
	}
	for {
		msg := c.Port.Recv(c.Handle)
		p, ok := msg.Message.(*Packet)
		if !ok {
			return nil, fmt.Errorf("unexpected message type %T", msg.Message)
		}
		if p.matches(src, tag, seq) {
			return p, nil
		}
		c.stash = append(c.stash, p)
	}
}

// RecvInto receives a packet like Recv and copies its
// payload into buf, which must have the same length.
func (c *Comms) RecvInto(src int, tag Tag, seq int, buf []float64) error {
	p, err := c.Recv(src, tag, seq)
	if err != nil || p == nil {
		return err
	}
	if len(p.Payload) != len(buf) {
		return essentials.AddCtx(
			fmt.Sprintf("receive from %d: got %d values, want %d", p.Source, len(p.Payload), len(buf)),
			ErrPayloadSize,
		)
	}
	copy(buf, p.Payload)
	return nil
}

// SendRecv sends a vector to dst and receives one from
// src into recvBuf.
//
// Either side may be NoRank, in which case that half is
// skipped. Since sends never block, a ring or chain of
// SendRecv calls cannot deadlock.
func (c *Comms) SendRecv(dst int, sendBuf []float64, src int, recvBuf []float64,
	tag Tag, seq int) error {
	if err := c.Send(dst, tag, seq, sendBuf); err != nil {
		return err
	}
	return c.RecvInto(src, tag, seq, recvBuf)
}

// Bcast sends a vector from the root to every other node
// and returns it on every node.
func (c *Comms) Bcast(root int, seq int, vec []float64) ([]float64, error) {
	if c.Rank != root {
		p, err := c.Recv(root, TagBcast, seq)
		if err != nil {
			return nil, err
		}
		return p.Payload, nil
	}
	messages := make([]*simulator.Message, 0, len(c.Ports)-1)
	for i := range c.Ports {
		if i == c.Rank {
			continue
		}
		messages = append(messages, c.message(i, &Packet{Tag: TagBcast, Seq: seq, Payload: vec}))
	}
	if len(messages) > 0 {
		c.Network.Send(c.Handle, messages...)
	}
	return vec, nil
}

// Scatter sends chunks[i] from the root to node i and
// returns each node's chunk.
//
// The chunks argument is ignored on every node but the
// root.
func (c *Comms) Scatter(root int, seq int, chunks [][]float64) ([]float64, error) {
	if c.Rank != root {
		p, err := c.Recv(root, TagScatter, seq)
		if err != nil {
			return nil, err
		}
		return p.Payload, nil
	}
	if len(chunks) != len(c.Ports) {
		return nil, essentials.AddCtx("scatter",
			fmt.Errorf("%d chunks for %d nodes", len(chunks), len(c.Ports)))
	}
	messages := make([]*simulator.Message, 0, len(c.Ports)-1)
	for i, chunk := range chunks {
		if i != c.Rank {
			messages = append(messages, c.message(i, &Packet{Tag: TagScatter, Seq: seq, Payload: chunk}))
		}
	}
	if len(messages) > 0 {
		c.Network.Send(c.Handle, messages...)
	}
	return append([]float64{}, chunks[c.Rank]...), nil
}

// Gather collects a vector from every node on the root.
//
// On the root, the result is indexed by rank.
// On the other nodes, the result is nil.
func (c *Comms) Gather(root int, seq int, vec []float64) ([][]float64, error) {
	if c.Rank != root {
		return nil, c.Send(root, TagGather, seq, vec)
	}
	res := make([][]float64, len(c.Ports))
	res[c.Rank] = append([]float64{}, vec...)
	for i := 0; i < len(c.Ports)-1; i++ {
		p, err := c.Recv(AnySource, TagGather, seq)
		if err != nil {
			return nil, err
		}
		if res[p.Source] != nil {
			return nil, essentials.AddCtx("gather",
				fmt.Errorf("duplicate contribution from %d", p.Source))
		}
		res[p.Source] = p.Payload
	}
	return res, nil
}

// Barrier blocks until every node has entered the barrier
// with the same sequence number.
func (c *Comms) Barrier(seq int) error {
	if c.Rank != 0 {
		if err := c.Send(0, TagBarrier, seq, nil); err != nil {
			return err
		}
		_, err := c.Recv(0, TagBarrier, seq)
		return err
	}
	for i := 1; i < len(c.Ports); i++ {
		if _, err := c.Recv(AnySource, TagBarrier, seq); err != nil {
			return err
		}
	}
	for i := 1; i < len(c.Ports); i++ {
		if err := c.Send(i, TagBarrier, seq, nil); err != nil {
			return err
		}
	}
	return nil
}
