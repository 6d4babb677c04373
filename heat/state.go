package heat

// State is a phase of a worker's run.
type State int

const (
	Init State = iota
	Distributing
	Iterating
	Finalizing
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Distributing:
		return "distributing"
	case Iterating:
		return "iterating"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	}
	return "unknown"
}
