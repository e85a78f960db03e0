package mock

import (
	"context"
	"testing"
	"time"
)

func TestPlayerCloseDuringSpeakIsSafe(t *testing.T) {
	p := NewPlayer(PlayerConfig{StreamID: "s1"})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-p.Events():
			case <-stop:
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if err := p.Speak("hello"); err != nil {
				return
			}
		}
	}()

	time.Sleep(time.Millisecond)
	_ = p.Close()
	<-done
	close(stop)

	if err := p.Speak("after close"); err == nil {
		t.Fatal("expected speak error after close")
	}
}

func TestPlayerCloseSuppressesPendingCompletion(t *testing.T) {
	p := NewPlayer(PlayerConfig{StreamID: "s1", PlayDuration: 50 * time.Millisecond})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := p.Speak("short"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	// consume playback_started
	<-p.Events()

	_ = p.Close()

	select {
	case f := <-p.Events():
		t.Fatalf("unexpected event after close: %v", f)
	case <-time.After(150 * time.Millisecond):
	}
}
