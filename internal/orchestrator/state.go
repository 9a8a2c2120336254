package orchestrator

// State tracks a run through its lifecycle. Aborted is reachable from any
// state but Done.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateFinalizing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
