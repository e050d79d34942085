package pipeline

// State is the stage an analyze request has reached.
type State int

const (
	StateFetching State = iota
	StateAwaitingAnalyzers
	StateMerging
	StatePersisting
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateAwaitingAnalyzers:
		return "awaiting_analyzers"
	case StateMerging:
		return "merging"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
