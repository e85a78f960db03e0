package processors

import (
	"sync"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

// EchoFilter tags transcripts that are likely the system's own synthesized
// speech. Two signals feed the decision: the per-event IsSpeaking flag, and
// a trailing window after the last playback stop. The trailing window
// exists because IsSpeaking reflects state at production time, and
// production lags the audio, so events describing the tail of playback can
// arrive with the flag already false.
//
// Suppressed transcripts are marked, not dropped: the interrupt monitor
// still needs to see them so a real interruption during playback is not
// swallowed.
type EchoFilter struct {
	mu       sync.Mutex
	trailing time.Duration
	playing  bool
	lastStop time.Time
	now      func() time.Time
}

func NewEchoFilter(trailing time.Duration) *EchoFilter {
	if trailing <= 0 {
		trailing = 500 * time.Millisecond
	}
	return &EchoFilter{trailing: trailing, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (e *EchoFilter) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now != nil {
		e.now = now
	}
}

func (e *EchoFilter) Name() string { return "echo_filter" }

func (e *EchoFilter) Process(f frames.Frame) ([]frames.Frame, error) {
	switch fr := f.(type) {
	case frames.ControlFrame:
		e.observeControl(fr.Code())
		return []frames.Frame{f}, nil
	case frames.TranscriptFrame:
		if e.suppress(fr) {
			meta := fr.Meta()
			meta[frames.MetaEchoSuppressed] = "true"
			tagged := frames.NewTranscriptFrame(meta[frames.MetaStreamID], fr.PTS(), fr.Transcript(), meta)
			return []frames.Frame{tagged}, nil
		}
		return []frames.Frame{f}, nil
	default:
		return []frames.Frame{f}, nil
	}
}

func (e *EchoFilter) observeControl(code frames.ControlCode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch code {
	case frames.ControlPlaybackStarted:
		e.playing = true
	case frames.ControlPlaybackCompleted, frames.ControlPlaybackError, frames.ControlCancel:
		if e.playing {
			e.playing = false
			e.lastStop = e.now()
		}
	}
}

func (e *EchoFilter) suppress(f frames.TranscriptFrame) bool {
	if f.IsSpeaking() {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		return true
	}
	if !e.lastStop.IsZero() && e.now().Sub(e.lastStop) < e.trailing {
		return true
	}
	return false
}
