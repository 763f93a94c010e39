package lifecycle

import "cinethos/model"

// Transition describes how an incoming lifecycle relates to the current one.
type Transition int

const (
	// Rejected leaves the current lifecycle untouched.
	Rejected Transition = iota
	// Updated keeps the stage and refreshes progress and messages.
	Updated
	// Entered moves to a new stage.
	Entered
)

func (t Transition) String() string {
	switch t {
	case Updated:
		return "updated"
	case Entered:
		return "entered"
	default:
		return "rejected"
	}
}

// Advance applies next on top of current. Stages only move forward, error is
// reachable from every non-terminal stage, and terminal stages accept nothing.
func Advance(current, next model.DownloadLifecycle) (model.DownloadLifecycle, Transition) {
	if current.Stage.Terminal() {
		return current, Rejected
	}
	if next.Stage == model.StageError {
		return next, Entered
	}

	switch {
	case next.Stage.Rank() < current.Stage.Rank():
		return current, Rejected
	case next.Stage == current.Stage:
		return next, Updated
	default:
		return next, Entered
	}
}
