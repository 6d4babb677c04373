package allreduce

import (
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/heatsim/collcomm"
)

// A StreamAllreducer splits a vector up into smaller
// messages and streams the messages through all the nodes
// at once.
//
// The reduction has two phases: Reduce and Broadcast.
// During Reduce, the fully reduced vector arrives at the
// first node.
// During Broadcast, the reduced vector is streamed from
// the first node to all the other nodes.
type StreamAllreducer struct {
	// Granularity determines how many chunks the data is
	// split up into.
	// The actual number of chunks is multiplied by the
	// number of nodes.
	//
	// If Granularity is 0, it is treated as 1.
	Granularity int
}

// Allreduce calls fn on chunks of data at a time and
// returns a vector resulting from the final reduction.
func (s StreamAllreducer) Allreduce(c *collcomm.Comms, seq int, data []float64,
	fn collcomm.ReduceFn) ([]float64, error) {
	if len(data) == 0 || c.Size() == 1 {
		return append([]float64{}, data...), nil
	}
	ring := &streamRing{comms: c, seq: seq}
	if c.Index() == 0 {
		return s.allreduceRoot(ring, data)
	}
	return s.allreduceOther(ring, data, fn)
}

func (s StreamAllreducer) allreduceRoot(r *streamRing, data []float64) ([]float64, error) {
	chunksOut := s.chunkify(r.comms.Size(), data)
	reduced := make([]float64, 0, len(data))

	// Kick off the reduction cycle.
	if err := r.Send(streamPacketReduce, chunksOut[0]); err != nil {
		return nil, err
	}
	chunksOut = chunksOut[1:]

	// Push the reduction through the ring.
	waitingReduceAck := true
	for len(reduced) < len(data) {
		packet, err := r.Recv()
		if err != nil {
			return nil, err
		}
		switch streamPacketType(packet.Kind) {
		case streamPacketReduce:
			reduced = append(reduced, packet.Payload...)
			if err := r.Send(streamPacketReduceAck, nil); err != nil {
				return nil, err
			}
		case streamPacketReduceAck:
			if !waitingReduceAck {
				panic("unexpected ACK")
			}
			if len(chunksOut) > 0 {
				if err := r.Send(streamPacketReduce, chunksOut[0]); err != nil {
					return nil, err
				}
				chunksOut = chunksOut[1:]
			} else {
				waitingReduceAck = false
			}
		default:
			panic("unexpected packet type")
		}
	}

	if len(chunksOut) > 0 {
		panic("unexpected reduction completion")
	} else if len(reduced) != len(data) {
		panic("excess data")
	}

	// Push the data through the bcast cycle.
	for _, chunk := range s.chunkify(r.comms.Size(), reduced) {
		if err := r.Send(streamPacketBcast, chunk); err != nil {
			return nil, err
		}
		for {
			packet, err := r.Recv()
			if err != nil {
				return nil, err
			}
			kind := streamPacketType(packet.Kind)
			if kind == streamPacketReduceAck {
				if !waitingReduceAck {
					panic("unexpected ACK")
				}
				waitingReduceAck = false
			} else if kind == streamPacketBcastAck {
				break
			} else {
				panic("unexpected packet type")
			}
		}
	}

	if waitingReduceAck {
		packet, err := r.Recv()
		if err != nil {
			return nil, err
		}
		if streamPacketType(packet.Kind) != streamPacketReduceAck {
			panic("unexpected packet type")
		}
	}

	return reduced, nil
}

func (s StreamAllreducer) allreduceOther(r *streamRing, data []float64,
	fn collcomm.ReduceFn) ([]float64, error) {
	var reduced []float64

	isLastNode := r.comms.Index()+1 == r.comms.Size()

	// Reduce our data into the stream.
	var reduceBlocked bool
	var reduceBuf []*collcomm.Packet
	remainingData := data
	for len(reduced) == 0 {
		packet, err := r.Recv()
		if err != nil {
			return nil, err
		}
		switch streamPacketType(packet.Kind) {
		case streamPacketReduce:
			if err := r.Send(streamPacketReduceAck, nil); err != nil {
				return nil, err
			}
			chunk := fn(r.comms.Handle, packet.Payload, remainingData[:len(packet.Payload)])
			remainingData = remainingData[len(packet.Payload):]
			reduceBuf = append(reduceBuf, r.packet(streamPacketReduce, chunk))
		case streamPacketReduceAck:
			if !reduceBlocked {
				panic("unexpected ACK")
			}
			reduceBlocked = false
		case streamPacketBcast:
			if len(reduceBuf) > 0 {
				panic("got bcast before reduce finished")
			}
			reduced = append(reduced, packet.Payload...)
			if err := r.Send(streamPacketBcastAck, nil); err != nil {
				return nil, err
			}
			if !isLastNode {
				// Otherwise, the packet will never reach
				// the next node in the ring.
				if err := r.Send(streamPacketBcast, packet.Payload); err != nil {
					return nil, err
				}
			}
		default:
			panic("unexpected packet type")
		}
		if !reduceBlocked && len(reduceBuf) > 0 {
			if err := r.SendPacket(reduceBuf[0]); err != nil {
				return nil, err
			}
			essentials.OrderedDelete(&reduceBuf, 0)
			reduceBlocked = true
		}
	}

	// Read the broadcasted reduction.
	bcastBlocked := !isLastNode
	var bcastBuf []*collcomm.Packet
	for len(reduced) < len(data) || len(bcastBuf) > 0 {
		packet, err := r.Recv()
		if err != nil {
			return nil, err
		}
		switch streamPacketType(packet.Kind) {
		case streamPacketReduceAck:
			if !reduceBlocked {
				panic("unexpected ACK")
			}
			reduceBlocked = false
		case streamPacketBcast:
			reduced = append(reduced, packet.Payload...)
			if err := r.Send(streamPacketBcastAck, nil); err != nil {
				return nil, err
			}
			if !isLastNode {
				bcastBuf = append(bcastBuf, r.packet(streamPacketBcast, packet.Payload))
			}
		case streamPacketBcastAck:
			if !bcastBlocked {
				panic("unexpected ACK")
			}
			bcastBlocked = false
		default:
			panic("unexpected packet type")
		}
		if !bcastBlocked && len(bcastBuf) > 0 {
			if err := r.SendPacket(bcastBuf[0]); err != nil {
				return nil, err
			}
			essentials.OrderedDelete(&bcastBuf, 0)
			bcastBlocked = true
		}
	}

	// Leave no ACKs behind for the next reduction.
	for reduceBlocked || bcastBlocked {
		packet, err := r.Recv()
		if err != nil {
			return nil, err
		}
		switch streamPacketType(packet.Kind) {
		case streamPacketReduceAck:
			if !reduceBlocked {
				panic("unexpected ACK")
			}
			reduceBlocked = false
		case streamPacketBcastAck:
			if !bcastBlocked {
				panic("unexpected ACK")
			}
			bcastBlocked = false
		default:
			panic("unexpected packet type")
		}
	}

	return reduced, nil
}

func (s StreamAllreducer) chunkify(numNodes int, data []float64) [][]float64 {
	granularity := s.Granularity
	if granularity == 0 {
		granularity = 1
	}
	chunkSize := len(data) / (numNodes * granularity)
	if chunkSize < 1 {
		chunkSize = 1
	}
	var res [][]float64
	for i := 0; i < len(data); i += chunkSize {
		if i+chunkSize > len(data) {
			res = append(res, data[i:])
		} else {
			res = append(res, data[i:i+chunkSize])
		}
	}
	return res
}

type streamPacketType int

const (
	streamPacketReduce streamPacketType = iota
	streamPacketReduceAck
	streamPacketBcast
	streamPacketBcastAck
)

// streamRing sends packets around the ring of nodes for
// one reduction.
type streamRing struct {
	comms *collcomm.Comms
	seq   int
}

func (r *streamRing) packet(t streamPacketType, payload []float64) *collcomm.Packet {
	return &collcomm.Packet{
		Tag:     collcomm.TagAllreduce,
		Seq:     r.seq,
		Kind:    int(t),
		Payload: payload,
	}
}

func (r *streamRing) Send(t streamPacketType, payload []float64) error {
	return r.SendPacket(r.packet(t, payload))
}

// SendPacket sends the packet to the appropriate host.
// For ACKs, this is the previous host.
// For other messages, this is the next host.
func (r *streamRing) SendPacket(p *collcomm.Packet) error {
	idx := r.comms.Index()
	var dstIdx int
	t := streamPacketType(p.Kind)
	if t == streamPacketReduceAck || t == streamPacketBcastAck {
		dstIdx = idx - 1
		if dstIdx < 0 {
			dstIdx = r.comms.Size() - 1
		}
	} else {
		dstIdx = (idx + 1) % r.comms.Size()
	}
	return r.comms.SendPacket(dstIdx, p)
}

func (r *streamRing) Recv() (*collcomm.Packet, error) {
	return r.comms.Recv(collcomm.AnySource, collcomm.TagAllreduce, r.seq)
}
