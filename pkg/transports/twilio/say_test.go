package twilio

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type stubCallUpdater struct {
	lastSID   string
	lastTwiml string
	calls     int
	err       error
}

func (s *stubCallUpdater) UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error) {
	s.calls++
	s.lastSID = sid
	if params != nil && params.Twiml != nil {
		s.lastTwiml = *params.Twiml
	}
	if s.err != nil {
		return nil, s.err
	}
	return &api.ApiV2010Call{}, nil
}

func newTestSayPlayer(stub *stubCallUpdater) *SayPlayer {
	p := NewSayPlayer(SayPlayerConfig{
		StreamID:       "stream-1",
		CallSID:        "CA123",
		WordsPerMinute: 6000,
	}, Config{PublicURL: "https://example.com", AccountSID: "AC1", AuthToken: "token"})
	p.updater = stub
	return p
}

func TestSayPlayerSpeakRedirectsCall(t *testing.T) {
	stub := &stubCallUpdater{}
	p := newTestSayPlayer(stub)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Close()

	if err := p.Speak("hello there"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if stub.lastSID != "CA123" {
		t.Fatalf("call sid = %q", stub.lastSID)
	}
	if !strings.Contains(stub.lastTwiml, "<Say>hello there</Say>") {
		t.Fatalf("twiml = %q", stub.lastTwiml)
	}
	if !strings.Contains(stub.lastTwiml, `wss://example.com/ws`) {
		t.Fatalf("expected stream reconnect, got %q", stub.lastTwiml)
	}

	// playback_started then, after the estimate, playback_completed
	want := []frames.ControlCode{frames.ControlPlaybackStarted, frames.ControlPlaybackCompleted}
	for _, code := range want {
		select {
		case f := <-p.Events():
			cf, ok := f.(frames.ControlFrame)
			if !ok || cf.Code() != code {
				t.Fatalf("expected %s, got %v", code, f)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", code)
		}
	}
}

func TestSayPlayerCloseDuringPlaybackIsSafe(t *testing.T) {
	stub := &stubCallUpdater{}
	p := newTestSayPlayer(stub)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if err := p.Speak("quick answer"); err != nil {
				return
			}
		}
	}()

	time.Sleep(time.Millisecond)
	_ = p.Close()
	<-done

	if err := p.Speak("after close"); err == nil {
		t.Fatal("expected speak error after close")
	}
	deadline := time.After(700 * time.Millisecond)
	for {
		select {
		case f := <-p.Events():
			cf, ok := f.(frames.ControlFrame)
			if ok && cf.Code() == frames.ControlPlaybackCompleted {
				t.Fatalf("completion delivered after close: %v", f)
			}
		case <-deadline:
			return
		}
	}
}

func TestSayPlayerCancelSuppressesCompletion(t *testing.T) {
	stub := &stubCallUpdater{}
	p := newTestSayPlayer(stub)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Close()

	if err := p.Speak("a long answer that gets cut off"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	// consume playback_started
	<-p.Events()

	if err := p.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if strings.Contains(stub.lastTwiml, "<Say>") {
		t.Fatalf("cancel twiml should not speak, got %q", stub.lastTwiml)
	}

	select {
	case f := <-p.Events():
		t.Fatalf("unexpected event after cancel: %v", f)
	case <-time.After(700 * time.Millisecond):
	}
}
