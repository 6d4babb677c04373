package collcomm

import (
	"errors"
	"sync"

	"github.com/unixpickle/heatsim/simulator"
)

// ErrEngineClosed is returned for operations submitted to
// an Engine after Close.
var ErrEngineClosed = errors.New("engine closed")

// An Op is a communication step run by an Engine.
type Op func(c *Comms) ([]float64, error)

// An Engine runs Ops on one channel in the background,
// in the order they were submitted, so that the caller
// can keep computing while communication is in flight.
type Engine struct {
	loop   *simulator.EventLoop
	wakeup *simulator.EventStream

	lock   sync.Mutex
	queue  []*request
	closed bool
}

type request struct {
	op     Op
	future *Future
}

type result struct {
	value []float64
	err   error
}

// NewEngine starts an Engine for one of the group's
// channels.
//
// The Engine runs in its own event loop Goroutine, which
// only exits after Close.
func NewEngine(g *Group, ch Channel) *Engine {
	e := &Engine{loop: g.Loop, wakeup: g.Loop.Stream()}
	g.Loop.Go(func(h *simulator.Handle) {
		c := g.Comms(h, ch)
		for {
			h.Poll(e.wakeup)
			req := e.pop()
			if req.op == nil {
				h.Schedule(req.future.done, &result{}, 0)
				return
			}
			c.Handle = h
			value, err := req.op(c)
			h.Schedule(req.future.done, &result{value: value, err: err}, 0)
		}
	})
	return e
}

// Submit queues an Op and returns immediately.
func (e *Engine) Submit(h *simulator.Handle, op Op) *Future {
	if op == nil {
		panic("nil op")
	}
	return e.push(h, op)
}

// Close waits for every queued Op to finish and stops
// the Engine's Goroutine.
func (e *Engine) Close(h *simulator.Handle) {
	f := e.push(h, nil)
	f.Await(h)
}

func (e *Engine) push(h *simulator.Handle, op Op) *Future {
	f := &Future{done: e.loop.Stream()}
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		f.finished = true
		f.res = &result{err: ErrEngineClosed}
		return f
	}
	if op == nil {
		e.closed = true
	}
	e.queue = append(e.queue, &request{op: op, future: f})
	e.lock.Unlock()

	// Wakeups scheduled at the same instant may be delivered
	// in any order, so they carry no data; the queue holds
	// the order.
	h.Schedule(e.wakeup, nil, 0)
	return f
}

func (e *Engine) pop() *request {
	e.lock.Lock()
	defer e.lock.Unlock()
	req := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return req
}

// A Future is the pending result of an Op.
type Future struct {
	done     *simulator.EventStream
	finished bool
	res      *result
}

// Await blocks until the Op has finished and returns its
// result. It may be called more than once.
func (f *Future) Await(h *simulator.Handle) ([]float64, error) {
	if !f.finished {
		f.res = h.Poll(f.done).Message.(*result)
		f.finished = true
	}
	return f.res.value, f.res.err
}

// Ready reports whether Await would return without
// blocking.
func (f *Future) Ready(h *simulator.Handle) bool {
	return f.finished || h.Pending(f.done)
}
