package orchestrator

// State is a revision run state.
type State string

const (
	StateSeeding         State = "seeding"
	StateEvaluating      State = "evaluating"
	StateRevising        State = "revising"
	StateConverged       State = "converged"
	StateBudgetExhausted State = "budget_exhausted"
	StateAborted         State = "aborted"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	switch s {
	case StateConverged, StateBudgetExhausted, StateAborted:
		return true
	default:
		return false
	}
}

// Abort reasons recorded in the manifest.
const (
	ReasonStopped   = "stopped"
	ReasonCancelled = "cancelled"
)

// KeepPolicy selects which document a run reports as its result.
type KeepPolicy string

const (
	KeepBest   KeepPolicy = "best"
	KeepLatest KeepPolicy = "latest"
)
