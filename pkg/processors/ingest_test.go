package processors

import (
	"context"
	"errors"
	"testing"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

type captureRecognizer struct {
	audio []frames.AudioFrame
	err   error
}

func (c *captureRecognizer) Name() string                 { return "capture" }
func (c *captureRecognizer) Start(context.Context) error  { return nil }
func (c *captureRecognizer) Close() error                 { return nil }
func (c *captureRecognizer) Reset(context.Context) error  { return nil }
func (c *captureRecognizer) Results() <-chan frames.Frame { return nil }

func (c *captureRecognizer) SendAudio(f frames.AudioFrame) error {
	c.audio = append(c.audio, f)
	return c.err
}

func TestRecognizerIngestForwardsAudio(t *testing.T) {
	rec := &captureRecognizer{}
	ingest := NewRecognizerIngest(rec)

	af := frames.NewAudioFrame("s1", 1, []byte{1, 2, 3}, 8000, 1, nil)
	out, err := ingest.Process(af)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out != nil {
		t.Fatalf("audio should be swallowed, got %d frames", len(out))
	}
	if len(rec.audio) != 1 {
		t.Fatalf("recognizer got %d frames, want 1", len(rec.audio))
	}
}

func TestRecognizerIngestPassesNonAudioThrough(t *testing.T) {
	rec := &captureRecognizer{}
	ingest := NewRecognizerIngest(rec)

	cf := frames.NewControlFrame("s1", 1, frames.ControlPlaybackStarted, nil)
	out, err := ingest.Process(cf)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("control frame should pass through, got %d frames", len(out))
	}
	if len(rec.audio) != 0 {
		t.Fatal("control frame must not reach the recognizer")
	}
}

func TestRecognizerIngestSwallowsSendErrors(t *testing.T) {
	rec := &captureRecognizer{err: errors.New("stream closed")}
	ingest := NewRecognizerIngest(rec)

	af := frames.NewAudioFrame("s1", 1, []byte{1}, 8000, 1, nil)
	if _, err := ingest.Process(af); err != nil {
		t.Fatalf("send failures must not fail the pipeline stage: %v", err)
	}
}
