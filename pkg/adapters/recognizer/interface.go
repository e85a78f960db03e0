package recognizer

import (
	"context"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

// StreamingRecognizer defines the contract for any speech-recognition
// vendor implementation. The engine never signals "the user is done
// talking"; it only streams partial and final transcripts. Turn boundaries
// are inferred entirely downstream.
type StreamingRecognizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the recognition connection.
	Start(ctx context.Context) error
	// Close shuts down the recognition connection.
	Close() error
	// SendAudio sends captured audio to the recognition service.
	SendAudio(frame frames.AudioFrame) error
	// Reset tears down the current stream and starts a fresh one. The
	// implementation acknowledges by emitting a session_started control
	// frame on Results once the new stream is live.
	Reset(ctx context.Context) error
	// Results returns a channel of transcript/control frames. Every
	// transcript is tagged with the epoch that was live when it was
	// produced.
	Results() <-chan frames.Frame
}

// EpochSource supplies the live session epoch for tagging transcripts.
type EpochSource interface {
	Epoch() uint64
}

// SpeakingProbe reports whether synthesized speech is currently playing,
// sampled at the moment a transcript is produced.
type SpeakingProbe interface {
	Speaking() bool
}

// Config contains vendor-agnostic recognizer configuration.
type Config struct {
	StreamID   string
	SessionID  string
	TraceID    string
	SampleRate int
	Language   string
	Interim    bool
}
