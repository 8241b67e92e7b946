package query

import (
	"fmt"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
)

// State is the lifecycle position of a single query.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateRetrieving
	StateReasoning
	StateAssembled
	StateFailed
)

var stateNames = [...]string{
	StateReceived:   "received",
	StateValidated:  "validated",
	StateRetrieving: "retrieving",
	StateReasoning:  "reasoning",
	StateAssembled:  "assembled",
	StateFailed:     "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateAssembled || s == StateFailed
}

// next lists the forward transition of each non-terminal state. Failed is
// reachable from every non-terminal state.
var next = map[State]State{
	StateReceived:   StateValidated,
	StateValidated:  StateRetrieving,
	StateRetrieving: StateReasoning,
	StateReasoning:  StateAssembled,
}

// tracker follows one request through its states.
type tracker struct {
	id    string
	state State
	kind  Kind
}

func newTracker(id string) *tracker {
	return &tracker{id: id, state: StateReceived}
}

func (t *tracker) advance(to State) {
	if t.state.Terminal() || next[t.state] != to {
		panic(fmt.Sprintf("query: invalid transition %s -> %s", t.state, to))
	}
	logger.Debug("[Query] State transition", "query", t.id, "from", t.state, "to", to)
	t.state = to
}

// fail moves to Failed and returns err unchanged.
func (t *tracker) fail(err *Error) *Error {
	if !t.state.Terminal() {
		logger.Debug("[Query] State transition", "query", t.id, "from", t.state, "to", StateFailed, "kind", err.Kind)
		t.state = StateFailed
		t.kind = err.Kind
	}
	return err
}
