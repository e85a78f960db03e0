package processors

import (
	"testing"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

type fixedEpoch uint64

func (e fixedEpoch) Epoch() uint64 { return uint64(e) }

func epochTranscript(text string, epoch uint64) frames.TranscriptFrame {
	return frames.NewTranscriptFrame("s1", time.Now().UnixNano(), frames.Transcript{
		Text:  text,
		Epoch: epoch,
	}, nil)
}

func TestStaleEpochDropped(t *testing.T) {
	g := NewEpochGate(fixedEpoch(3))

	out, err := g.Process(epochTranscript("old turn text", 2))
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if out != nil {
		t.Fatalf("stale-epoch event must be dropped, got %d frames", len(out))
	}
}

func TestLiveEpochPasses(t *testing.T) {
	g := NewEpochGate(fixedEpoch(3))

	out, err := g.Process(epochTranscript("current text", 3))
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("live-epoch event must pass, got %d frames", len(out))
	}
}

func TestControlFramesBypassGate(t *testing.T) {
	g := NewEpochGate(fixedEpoch(3))

	cf := frames.NewControlFrame("s1", 1, frames.ControlPlaybackCompleted, nil)
	out, err := g.Process(cf)
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("control frames must bypass the gate")
	}
}
