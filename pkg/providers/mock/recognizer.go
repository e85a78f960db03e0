package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/adapters/recognizer"
	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

type RecognizerConfig struct {
	StreamID          string
	SessionID         string
	TraceID           string
	Transcript        string
	InterimTranscript string
	EmitInterim       bool
}

// StreamingRecognizer is a scripted recognizer for tests and the demo. On
// the first audio frame it emits the configured interim and final
// transcripts, tagged with the epoch source's live value, same as the real
// vendors do.
type StreamingRecognizer struct {
	cfg      RecognizerConfig
	epochs   recognizer.EpochSource
	speaking recognizer.SpeakingProbe
	out      chan frames.Frame
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	started  bool
	emitted  bool
	resets   int
}

func NewRecognizer(cfg RecognizerConfig, epochs recognizer.EpochSource) *StreamingRecognizer {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	return &StreamingRecognizer{
		cfg:    cfg,
		epochs: epochs,
		out:    make(chan frames.Frame, 16),
	}
}

// SetSpeakingProbe wires the playback-state probe used to tag transcripts
// produced while synthesized speech is audible.
func (s *StreamingRecognizer) SetSpeakingProbe(p recognizer.SpeakingProbe) { s.speaking = p }

func (s *StreamingRecognizer) Name() string { return "mock_recognizer" }

func (s *StreamingRecognizer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// Close stops the recognizer. The results channel stays open so an
// in-flight emit can never send on a closed channel; receivers stop via
// their own context.
func (s *StreamingRecognizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	return nil
}

func (s *StreamingRecognizer) Reset(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("not started")
	}
	s.resets++
	s.emitted = false
	out := s.out
	s.mu.Unlock()

	out <- frames.NewControlFrame(s.cfg.StreamID, time.Now().UnixNano(), frames.ControlSessionStarted, map[string]string{
		frames.MetaSessionID: s.cfg.SessionID,
		frames.MetaSource:    "recognizer",
	})
	return nil
}

// Resets reports how many stream resets were requested.
func (s *StreamingRecognizer) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *StreamingRecognizer) SendAudio(frame frames.AudioFrame) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("not started")
	}
	if s.emitted {
		s.mu.Unlock()
		return nil
	}
	s.emitted = true
	s.mu.Unlock()

	if s.cfg.EmitInterim {
		interim := s.cfg.InterimTranscript
		if interim == "" {
			interim = s.cfg.Transcript
		}
		s.out <- s.transcriptFrame(interim, false)
	}
	s.out <- s.transcriptFrame(s.cfg.Transcript, true)
	return nil
}

func (s *StreamingRecognizer) transcriptFrame(text string, final bool) frames.TranscriptFrame {
	tr := frames.Transcript{
		Text:    text,
		IsFinal: final,
	}
	if s.epochs != nil {
		tr.Epoch = s.epochs.Epoch()
	}
	if s.speaking != nil {
		tr.IsSpeaking = s.speaking.Speaking()
	}
	meta := map[string]string{
		frames.MetaSessionID: s.cfg.SessionID,
		frames.MetaSource:    "recognizer",
	}
	if s.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = s.cfg.TraceID
	}
	return frames.NewTranscriptFrame(s.cfg.StreamID, time.Now().UnixNano(), tr, meta)
}

func (s *StreamingRecognizer) Results() <-chan frames.Frame { return s.out }

var _ recognizer.StreamingRecognizer = (*StreamingRecognizer)(nil)
