package convergence

import "bringup/internal/check"

// Phase is the orchestrator's position in one convergence run.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseEnsuringDB
	PhaseWaitingDB
	PhaseStartingServices
	PhaseConverged
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEnsuringDB:
		return "ensuring-database"
	case PhaseWaitingDB:
		return "waiting-for-database"
	case PhaseStartingServices:
		return "starting-services"
	case PhaseConverged:
		return "converged"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run is over.
func (p Phase) Terminal() bool {
	return p == PhaseConverged || p == PhaseFailed
}

// Transition moves to the next phase, asserting the edge is legal.
// In release builds an illegal transition keeps the current phase so a
// stray edge degrades to a stalled run rather than a corrupt one.
func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case PhaseIdle:
		// Idle goes straight to Converged when the initial snapshot
		// shows nothing to do.
		ok = to == PhaseEnsuringDB || to == PhaseConverged
	case PhaseEnsuringDB:
		ok = to == PhaseStartingServices || to == PhaseWaitingDB || to == PhaseFailed
	case PhaseWaitingDB:
		ok = to == PhaseStartingServices || to == PhaseFailed
	case PhaseStartingServices:
		ok = to == PhaseConverged || to == PhaseFailed
	}
	check.Assertf(ok, "phase transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}
