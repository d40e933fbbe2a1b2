package maintenance

import (
	"fmt"
)

// State is where one entity ended up after an operation looked at it.
type State int

const (
	NoActionNeeded State = iota
	ActionApplied
	ActionSimulated
	ActionFailed
	// Missing means a recorded entity no longer exists on the controller.
	Missing
)

func (s State) String() string {
	switch s {
	case NoActionNeeded:
		return "no_action_needed"
	case ActionApplied:
		return "applied"
	case ActionSimulated:
		return "simulated"
	case ActionFailed:
		return "failed"
	case Missing:
		return "missing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EntityKind names what an outcome is about. The value doubles as the log
// field carrying the entity identifier.
type EntityKind string

const (
	EntityNode      EntityKind = "node"
	EntityWorkflow  EntityKind = "workflow"
	EntityQueueItem EntityKind = "queue_item"
	EntityBuild     EntityKind = "build"
	EntityServer    EntityKind = "server"
)

// Outcome is the result for a single entity.
type Outcome struct {
	Kind   EntityKind
	ID     string
	State  State
	Detail string
}

// Report collects the per-entity outcomes of one operation in the order they
// happened.
type Report struct {
	Operation string
	Outcomes  []Outcome
}

func newReport(operation string) *Report {
	return &Report{Operation: operation}
}

func (r *Report) add(kind EntityKind, id string, state State, detail string) {
	r.Outcomes = append(r.Outcomes, Outcome{Kind: kind, ID: id, State: state, Detail: detail})
}

// Count returns how many outcomes ended in state.
func (r *Report) Count(state State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// Failed returns how many actions failed.
func (r *Report) Failed() int {
	return r.Count(ActionFailed)
}

// err turns failed outcomes into ErrIncomplete.
func (r *Report) err() error {
	if n := r.Failed(); n > 0 {
		return fmt.Errorf("%w: %s: %d of %d entities failed", ErrIncomplete, r.Operation, n, len(r.Outcomes))
	}
	return nil
}
