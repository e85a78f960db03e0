package processors

import (
	"testing"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

func speakingTranscript(text string, speaking bool) frames.TranscriptFrame {
	return frames.NewTranscriptFrame("s1", time.Now().UnixNano(), frames.Transcript{
		Text:       text,
		IsSpeaking: speaking,
		Epoch:      1,
	}, nil)
}

func processOne(t *testing.T, e *EchoFilter, f frames.Frame) frames.Frame {
	t.Helper()
	out, err := e.Process(f)
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one output frame, got %d", len(out))
	}
	return out[0]
}

func TestIsSpeakingFlagSuppresses(t *testing.T) {
	e := NewEchoFilter(200 * time.Millisecond)

	out := processOne(t, e, speakingTranscript("hello world", true)).(frames.TranscriptFrame)
	if out.Meta()[frames.MetaEchoSuppressed] != "true" {
		t.Fatalf("expected suppression tag while speaking")
	}

	clean := processOne(t, e, speakingTranscript("hello world", false)).(frames.TranscriptFrame)
	if clean.Meta()[frames.MetaEchoSuppressed] == "true" {
		t.Fatalf("expected no suppression outside playback")
	}
}

func TestPlaybackStateSuppresses(t *testing.T) {
	e := NewEchoFilter(200 * time.Millisecond)

	processOne(t, e, frames.NewControlFrame("s1", 1, frames.ControlPlaybackStarted, nil))
	out := processOne(t, e, speakingTranscript("echoed words", false)).(frames.TranscriptFrame)
	if out.Meta()[frames.MetaEchoSuppressed] != "true" {
		t.Fatalf("expected suppression during playback even without the flag")
	}
}

func TestTrailingWindowSuppresses(t *testing.T) {
	base := time.Now()
	now := base
	e := NewEchoFilter(200 * time.Millisecond)
	e.SetClock(func() time.Time { return now })

	processOne(t, e, frames.NewControlFrame("s1", 1, frames.ControlPlaybackStarted, nil))
	processOne(t, e, frames.NewControlFrame("s1", 2, frames.ControlPlaybackCompleted, nil))

	now = base.Add(100 * time.Millisecond)
	tail := processOne(t, e, speakingTranscript("late echo", false)).(frames.TranscriptFrame)
	if tail.Meta()[frames.MetaEchoSuppressed] != "true" {
		t.Fatalf("expected suppression inside the trailing window")
	}

	now = base.Add(300 * time.Millisecond)
	clear := processOne(t, e, speakingTranscript("real speech", false)).(frames.TranscriptFrame)
	if clear.Meta()[frames.MetaEchoSuppressed] == "true" {
		t.Fatalf("expected no suppression past the trailing window")
	}
}
