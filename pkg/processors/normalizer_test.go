package processors

import (
	"sync"
	"testing"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

type frameCapture struct {
	mu     sync.Mutex
	frames []frames.Frame
}

func (c *frameCapture) emit(f frames.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

func (c *frameCapture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *frameCapture) last() frames.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[len(c.frames)-1]
}

func transcript(text string, final bool) frames.TranscriptFrame {
	return frames.NewTranscriptFrame("s1", time.Now().UnixNano(), frames.Transcript{
		Text:    text,
		IsFinal: final,
		Epoch:   1,
	}, nil)
}

func TestBurstForwardsOnlyLastEvent(t *testing.T) {
	cap := &frameCapture{}
	n := NewNormalizer(30*time.Millisecond, cap.emit)

	for _, text := range []string{"I", "I want", "I want to", "I want to go"} {
		if _, err := n.Process(transcript(text, false)); err != nil {
			t.Fatalf("process error: %v", err)
		}
	}

	time.Sleep(80 * time.Millisecond)
	if got := cap.count(); got != 1 {
		t.Fatalf("expected exactly one forwarded event per burst, got %d", got)
	}
	tf := cap.last().(frames.TranscriptFrame)
	if tf.Text() != "I want to go" {
		t.Fatalf("expected last event of burst, got %q", tf.Text())
	}
}

func TestSeparateBurstsForwardSeparately(t *testing.T) {
	cap := &frameCapture{}
	n := NewNormalizer(20*time.Millisecond, cap.emit)

	_, _ = n.Process(transcript("yes", false))
	time.Sleep(60 * time.Millisecond)
	_, _ = n.Process(transcript("yes please", false))
	time.Sleep(60 * time.Millisecond)

	if got := cap.count(); got != 2 {
		t.Fatalf("expected two forwarded events, got %d", got)
	}
}

func TestEveryEventEmitsActivitySignal(t *testing.T) {
	cap := &frameCapture{}
	n := NewNormalizer(30*time.Millisecond, cap.emit)

	activity := 0
	for _, text := range []string{"go", "go to", "go to the"} {
		out, err := n.Process(transcript(text, false))
		if err != nil {
			t.Fatalf("process error: %v", err)
		}
		for _, f := range out {
			if sf, ok := f.(frames.SystemFrame); ok && sf.Name() == SystemTurnActivity {
				activity++
			}
		}
	}
	if activity != 3 {
		t.Fatalf("expected an activity signal per raw event, got %d", activity)
	}
}

func TestSuppressedEventNoActivity(t *testing.T) {
	cap := &frameCapture{}
	n := NewNormalizer(30*time.Millisecond, cap.emit)

	f := transcript("hello there", false)
	meta := f.Meta()
	meta[frames.MetaEchoSuppressed] = "true"
	tagged := frames.NewTranscriptFrame("s1", f.PTS(), f.Transcript(), meta)

	out, err := n.Process(tagged)
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("suppressed event must not produce activity, got %d frames", len(out))
	}

	time.Sleep(80 * time.Millisecond)
	if cap.count() != 1 {
		t.Fatalf("suppressed event must still be forwarded for interrupt monitoring")
	}
	fw := cap.last().(frames.TranscriptFrame)
	if fw.Meta()[frames.MetaEchoSuppressed] != "true" {
		t.Fatalf("suppression tag must survive coalescing")
	}
}

func TestPureDuplicateNotForwardedTwice(t *testing.T) {
	cap := &frameCapture{}
	n := NewNormalizer(20*time.Millisecond, cap.emit)

	_, _ = n.Process(transcript("stop", true))
	_, _ = n.Process(transcript("stop", true))
	time.Sleep(60 * time.Millisecond)

	if got := cap.count(); got != 1 {
		t.Fatalf("expected duplicate to be dropped, got %d forwards", got)
	}
}

func TestNonTranscriptPassThrough(t *testing.T) {
	cap := &frameCapture{}
	n := NewNormalizer(20*time.Millisecond, cap.emit)

	cf := frames.NewControlFrame("s1", 1, frames.ControlPlaybackCompleted, nil)
	out, err := n.Process(cf)
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if len(out) != 1 || out[0].Kind() != frames.KindControl {
		t.Fatalf("control frames must pass through untouched")
	}
}
