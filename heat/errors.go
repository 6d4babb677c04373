package heat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrAborted is the cause of a run that ended without
	// a result even though every worker finished.
	ErrAborted = errors.New("run aborted")

	// ErrStalled is the cause of a run that ended while a
	// worker was still waiting for messages, such as after
	// a message was lost.
	ErrStalled = errors.New("worker stalled waiting for messages")
)

// Kind classifies a Failure.
type Kind int

const (
	ConfigError Kind = iota
	CommError
	ResourceError
	InvariantError
	OutputError
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "config"
	case CommError:
		return "communication"
	case ResourceError:
		return "resource"
	case InvariantError:
		return "invariant"
	case OutputError:
		return "output"
	}
	return "unknown"
}

// A Failure is a fatal error on one worker. Any Failure
// aborts the whole run.
type Failure struct {
	Rank  int
	Phase State
	Kind  Kind
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("worker %d (%s): %s error: %s", f.Rank, f.Phase, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// monitor keeps the first Failure of a run and how far
// every worker has come.
type monitor struct {
	lock     sync.Mutex
	first    *Failure
	progress []progress
}

// progress is a worker's phase and the number of blocking
// steps it has finished in that phase.
type progress struct {
	State State
	Step  int
}

func newMonitor(workers int) *monitor {
	return &monitor{progress: make([]progress, workers)}
}

func (m *monitor) Add(rank int, phase State, kind Kind, err error) *Failure {
	fail := &Failure{Rank: rank, Phase: phase, Kind: kind, Err: err}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.first == nil {
		m.first = fail
	}
	return fail
}

func (m *monitor) First() *Failure {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.first
}

// Progress records that a worker finished step blocking
// steps of a phase.
func (m *monitor) Progress(rank int, s State, step int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.progress[rank] = progress{State: s, Step: step}
}

// Stalled blames the worker that made the least progress
// among those that never finished, or returns nil if
// every worker finished.
//
// Lower ranks win ties.
func (m *monitor) Stalled(cause error) *Failure {
	m.lock.Lock()
	defer m.lock.Unlock()

	culprit := -1
	var stalled []string
	for rank, p := range m.progress {
		if p.State == Done {
			continue
		}
		stalled = append(stalled, fmt.Sprintf("%d (%s step %d)", rank, p.State, p.Step))
		if culprit == -1 || p.before(m.progress[culprit]) {
			culprit = rank
		}
	}
	if culprit == -1 {
		return nil
	}
	p := m.progress[culprit]
	return &Failure{
		Rank:  culprit,
		Phase: p.State,
		Kind:  CommError,
		Err: fmt.Errorf("%w at step %d; stalled workers: %s: %v", ErrStalled, p.Step,
			strings.Join(stalled, ", "), cause),
	}
}

func (p progress) before(other progress) bool {
	if p.State != other.State {
		return p.State < other.State
	}
	return p.Step < other.Step
}
