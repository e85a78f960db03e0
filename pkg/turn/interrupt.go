package turn

import (
	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

// InterruptMonitor decides whether an incoming transcript during a busy
// state means the user wants to take the floor back. Single-word events
// are treated as possible noise or backchannel ("uh", "hm") and never
// abort a response that is already being produced or delivered.
type InterruptMonitor struct {
	minWords int
}

func NewInterruptMonitor(minWords int) *InterruptMonitor {
	if minWords <= 0 {
		minWords = 2
	}
	return &InterruptMonitor{minWords: minWords}
}

// MinWords returns the configured interrupt threshold.
func (m *InterruptMonitor) MinWords() int { return m.minWords }

// ShouldInterrupt reports whether f is an intentional interruption given
// the current state. Echo-suppressed events still reach this check so a
// real interruption during playback is not swallowed; the word-count
// threshold is what separates the two.
func (m *InterruptMonitor) ShouldInterrupt(state State, f frames.TranscriptFrame) bool {
	if !state.Busy() {
		return false
	}
	return f.WordCount() >= m.minWords
}
