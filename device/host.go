package device

import "github.com/unixpickle/heatsim/grid"

// Host is a Device that shares memory with the host and
// runs every kernel inline, one after another.
type Host struct {
	pair    *grid.Pair
	results []float64
	err     error
}

func (h *Host) Attach(p *grid.Pair) error {
	h.pair = p
	return nil
}

func (h *Host) Upload(rows ...Rows) error {
	return h.check()
}

func (h *Host) Download(rows ...Rows) error {
	return h.check()
}

func (h *Host) Launch(stream int, k Kernel) {
	if h.err != nil {
		return
	}
	if h.err = h.check(); h.err != nil {
		return
	}
	var res float64
	res, h.err = k(h.pair)
	h.results = append(h.results, res)
}

func (h *Host) Join() ([]float64, error) {
	res, err := h.results, h.err
	h.results, h.err = nil, nil
	return res, err
}

func (h *Host) check() error {
	if h.pair == nil {
		return ErrNotAttached
	}
	return nil
}
