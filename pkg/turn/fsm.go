package turn

import (
	"sync"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateListening
	StateAwaitingConfirm
	StateDispatching
	StateAwaitingResponse
	StateSpeaking
	StateInterrupted
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateAwaitingConfirm:
		return "AWAITING_CONFIRM"
	case StateDispatching:
		return "DISPATCHING"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateSpeaking:
		return "SPEAKING"
	case StateInterrupted:
		return "INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// Busy reports whether a collaborator is working on the turn's behalf.
// The interrupt monitor is active only in these states.
func (s State) Busy() bool {
	return s == StateDispatching || s == StateAwaitingResponse || s == StateSpeaking
}

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes turn state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// stateMachine validates and records turn state transitions.
type stateMachine struct {
	mu           sync.RWMutex
	currentState State

	listeningStartTime time.Time
	speakingStartTime  time.Time

	stateChangeListeners []StateListener
}

func newStateMachine() *stateMachine {
	return &stateMachine{currentState: StateIdle}
}

// State returns the current state.
func (sm *stateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// transitionValid checks if a state transition is valid (must be called with lock held).
func (sm *stateMachine) transitionValid(from, to State) bool {
	validTransitions := map[State][]State{
		StateIdle:             {StateListening},
		StateListening:        {StateAwaitingConfirm, StateIdle},
		StateAwaitingConfirm:  {StateListening, StateDispatching, StateIdle},
		StateDispatching:      {StateAwaitingResponse, StateSpeaking, StateInterrupted, StateIdle},
		StateAwaitingResponse: {StateSpeaking, StateInterrupted, StateIdle},
		StateSpeaking:         {StateInterrupted, StateIdle},
		StateInterrupted:      {StateListening, StateIdle},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, allowed := range allowedStates {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation.
func (sm *stateMachine) Transition(state State, reason string) error {
	sm.mu.Lock()

	if !sm.transitionValid(sm.currentState, state) {
		err := &InvalidTransitionError{From: sm.currentState, To: state}
		sm.mu.Unlock()
		return err
	}

	oldState := sm.currentState
	sm.currentState = state

	switch state {
	case StateListening:
		sm.listeningStartTime = time.Now()
	case StateSpeaking:
		sm.speakingStartTime = time.Now()
	}

	event := StateChange{
		FromState: oldState,
		ToState:   state,
		Timestamp: time.Now(),
		Reason:    reason,
	}

	// Notify listeners without holding the lock to avoid deadlocks.
	listeners := make([]StateListener, len(sm.stateChangeListeners))
	copy(listeners, sm.stateChangeListeners)
	sm.mu.Unlock()

	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// AddListener registers a listener for state change events.
func (sm *stateMachine) AddListener(listener StateListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stateChangeListeners = append(sm.stateChangeListeners, listener)
}

// ListeningSince returns when the machine last entered LISTENING.
func (sm *stateMachine) ListeningSince() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.listeningStartTime
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
