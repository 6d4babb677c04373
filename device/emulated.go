package device

import (
	"sync"

	"github.com/unixpickle/heatsim/grid"
	"golang.org/x/sync/errgroup"
)

// Emulated is a Device with separate memory whose streams
// run on Goroutines.
type Emulated struct {
	// Threads limits the number of kernels running at
	// once. If it is 0, there is no limit.
	Threads int

	host *grid.Pair
	dev  *grid.Pair

	lock    sync.Mutex
	group   *errgroup.Group
	tails   map[int]chan struct{}
	results []*float64
}

// Attach allocates a zeroed device pair that swaps along
// with the host pair.
func (e *Emulated) Attach(p *grid.Pair) error {
	dev, err := p.Mirror()
	if err != nil {
		return err
	}
	e.host = p
	e.dev = dev
	return nil
}

func (e *Emulated) Upload(rows ...Rows) error {
	return e.transfer(e.dev, e.host, rows)
}

func (e *Emulated) Download(rows ...Rows) error {
	return e.transfer(e.host, e.dev, rows)
}

func (e *Emulated) transfer(dst, src *grid.Pair, rows []Rows) error {
	if e.dev == nil {
		return ErrNotAttached
	}
	for _, r := range rows {
		d, err := r.data(dst)
		if err != nil {
			return err
		}
		s, _ := r.data(src)
		copy(d, s)
	}
	return nil
}

// Launch starts a kernel once every kernel launched
// earlier on the same stream has finished.
//
// If Threads kernels are already running, Launch blocks
// until one of them finishes.
func (e *Emulated) Launch(stream int, k Kernel) {
	e.lock.Lock()
	if e.group == nil {
		e.group = new(errgroup.Group)
		if e.Threads > 0 {
			e.group.SetLimit(e.Threads)
		}
		e.tails = map[int]chan struct{}{}
	}
	group := e.group
	wait := e.tails[stream]
	done := make(chan struct{})
	e.tails[stream] = done
	res := new(float64)
	e.results = append(e.results, res)
	dev := e.dev
	e.lock.Unlock()

	group.Go(func() error {
		defer close(done)
		if wait != nil {
			<-wait
		}
		if dev == nil {
			return ErrNotAttached
		}
		var err error
		*res, err = k(dev)
		return err
	})
}

func (e *Emulated) Join() ([]float64, error) {
	e.lock.Lock()
	group, results := e.group, e.results
	e.group, e.tails, e.results = nil, nil, nil
	e.lock.Unlock()

	if group == nil {
		return nil, nil
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	values := make([]float64, len(results))
	for i, r := range results {
		values[i] = *r
	}
	return values, nil
}
