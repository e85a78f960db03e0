package playback

import (
	"context"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

// Player defines the contract for any synthesized-speech playback
// implementation. Speak is asynchronous; progress is reported as
// playback_started / playback_completed / playback_error control frames on
// Events, which the orchestrator funnels into its decision path.
type Player interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the playback backend.
	Start(ctx context.Context) error
	// Close shuts down the playback backend.
	Close() error
	// Speak begins synthesizing and playing text.
	Speak(text string) error
	// Cancel stops in-progress playback immediately. Cancelling when
	// nothing is playing is a no-op.
	Cancel() error
	// Events returns a channel of playback control frames.
	Events() <-chan frames.Frame
}

// Config contains vendor-agnostic playback configuration.
type Config struct {
	StreamID   string
	SessionID  string
	SampleRate int
	Voice      string
}
