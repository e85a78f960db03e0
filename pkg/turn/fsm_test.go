package turn

import (
	"errors"
	"sync"
	"testing"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

type captureListener struct {
	mu      sync.Mutex
	changes []StateChange
}

func (l *captureListener) OnStateChange(ch StateChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, ch)
}

func TestStateMachineHappyPath(t *testing.T) {
	sm := newStateMachine()
	steps := []State{
		StateListening,
		StateAwaitingConfirm,
		StateDispatching,
		StateAwaitingResponse,
		StateSpeaking,
		StateIdle,
	}
	for _, s := range steps {
		if err := sm.Transition(s, "test"); err != nil {
			t.Fatalf("transition to %v: %v", s, err)
		}
	}
	if got := sm.State(); got != StateIdle {
		t.Fatalf("final state = %v, want IDLE", got)
	}
}

func TestStateMachineRejectsInvalidTransition(t *testing.T) {
	sm := newStateMachine()
	err := sm.Transition(StateSpeaking, "skip ahead")
	if err == nil {
		t.Fatal("expected invalid transition error")
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("error type = %T", err)
	}
	if got := sm.State(); got != StateIdle {
		t.Fatalf("state after rejected transition = %v, want IDLE", got)
	}
}

func TestStateMachineInterruptPath(t *testing.T) {
	sm := newStateMachine()
	for _, s := range []State{StateListening, StateAwaitingConfirm, StateDispatching, StateAwaitingResponse, StateSpeaking} {
		if err := sm.Transition(s, "test"); err != nil {
			t.Fatalf("transition to %v: %v", s, err)
		}
	}
	if err := sm.Transition(StateInterrupted, "barge-in"); err != nil {
		t.Fatalf("interrupt from SPEAKING: %v", err)
	}
	if err := sm.Transition(StateListening, "fast re-entry"); err != nil {
		t.Fatalf("re-entry after interrupt: %v", err)
	}
}

func TestStateMachineNotifiesListeners(t *testing.T) {
	sm := newStateMachine()
	l := &captureListener{}
	sm.AddListener(l)

	if err := sm.Transition(StateListening, "first event"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(l.changes))
	}
	ch := l.changes[0]
	if ch.FromState != StateIdle || ch.ToState != StateListening || ch.Reason != "first event" {
		t.Fatalf("change = %+v", ch)
	}
}

func TestBusyStates(t *testing.T) {
	busy := map[State]bool{
		StateIdle:             false,
		StateListening:        false,
		StateAwaitingConfirm:  false,
		StateDispatching:      true,
		StateAwaitingResponse: true,
		StateSpeaking:         true,
		StateInterrupted:      false,
	}
	for s, want := range busy {
		if got := s.Busy(); got != want {
			t.Fatalf("%v.Busy() = %v, want %v", s, got, want)
		}
	}
}

func TestTurnAccumulation(t *testing.T) {
	mk := func(text string, final bool) frames.TranscriptFrame {
		return frames.NewTranscriptFrame("s", 0, frames.Transcript{Text: text, IsFinal: final, Epoch: 1}, nil)
	}

	tr := newTurn(mk("hello", false))
	tr.absorb(mk("hello there", false))
	tr.absorb(mk("hello there friend", true))
	tr.absorb(mk("how are", false))

	if got := tr.AccumulatedText(); got != "hello there friend how are" {
		t.Fatalf("accumulated = %q", got)
	}
	if got := tr.WordCount(); got != 5 {
		t.Fatalf("word count = %d, want 5", got)
	}
	if tr.Empty() {
		t.Fatal("turn should not be empty")
	}
}

func TestInterruptMonitorThreshold(t *testing.T) {
	m := NewInterruptMonitor(0)
	mk := func(text string) frames.TranscriptFrame {
		return frames.NewTranscriptFrame("s", 0, frames.Transcript{Text: text, IsFinal: true, Epoch: 1}, nil)
	}

	if m.ShouldInterrupt(StateSpeaking, mk("uh")) {
		t.Fatal("single word should not interrupt")
	}
	if !m.ShouldInterrupt(StateSpeaking, mk("wait stop")) {
		t.Fatal("two words during SPEAKING should interrupt")
	}
	if !m.ShouldInterrupt(StateAwaitingResponse, mk("no cancel that")) {
		t.Fatal("interrupt should apply while awaiting the response")
	}
	if m.ShouldInterrupt(StateListening, mk("this is just more speech")) {
		t.Fatal("LISTENING input is accumulation, not interruption")
	}
}
