package scheduler

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned for a state change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the lifecycle state of one calculation configuration in a cycle.
type State int

const (
	StateBuilding State = iota
	StateScheduled
	StateDispatched
	StateCompleted
	StateFailed
	StateTimedOut
	StateCancelled
)

var stateNames = map[State]string{
	StateBuilding:   "building",
	StateScheduled:  "scheduled",
	StateDispatched: "dispatched",
	StateCompleted:  "completed",
	StateFailed:     "failed",
	StateTimedOut:   "timed_out",
	StateCancelled:  "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

var transitions = map[State][]State{
	StateBuilding:   {StateScheduled, StateFailed, StateCancelled},
	StateScheduled:  {StateDispatched, StateCompleted, StateFailed, StateCancelled},
	StateDispatched: {StateCompleted, StateFailed, StateTimedOut, StateCancelled},
}

// StateMachine tracks a State and enforces the lifecycle. It is safe for
// concurrent use.
type StateMachine struct {
	mu      sync.Mutex
	state   State
	history []State
}

// NewStateMachine starts in StateBuilding.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateBuilding, history: []State{StateBuilding}}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every state entered, in order.
func (m *StateMachine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}

// Transition moves to next if the lifecycle allows it.
func (m *StateMachine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
}
