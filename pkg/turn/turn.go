package turn

import (
	"strings"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
	"github.com/google/uuid"
)

// Turn is one user conversational contribution as judged by the
// orchestrator. Exactly one Turn is live at a time and it is owned
// exclusively by the decision loop; nothing mutates it from a callback.
type Turn struct {
	ID           string
	Epoch        uint64
	StartedAt    time.Time
	LastUpdateAt time.Time

	// FinalSegments are recognizer-committed fragments, in order. A final
	// marks a sentence-internal boundary, never the end of the turn.
	FinalSegments []string

	// partial is the in-flight text for the current segment; each partial
	// supersedes the previous one.
	partial string
}

func newTurn(f frames.TranscriptFrame) *Turn {
	t := &Turn{
		ID:        uuid.NewString(),
		Epoch:     f.Epoch(),
		StartedAt: time.Now(),
	}
	t.absorb(f)
	return t
}

// absorb folds one normalized transcript into the turn. Finals commit the
// current segment; partials replace the running tail.
func (t *Turn) absorb(f frames.TranscriptFrame) {
	text := strings.TrimSpace(f.Text())
	if text == "" {
		return
	}
	if f.IsFinal() {
		t.FinalSegments = append(t.FinalSegments, text)
		t.partial = ""
	} else {
		t.partial = text
	}
	t.LastUpdateAt = time.Now()
}

// AccumulatedText is the turn's full text: committed segments followed by
// the in-flight partial.
func (t *Turn) AccumulatedText() string {
	parts := make([]string, 0, len(t.FinalSegments)+1)
	parts = append(parts, t.FinalSegments...)
	if t.partial != "" {
		parts = append(parts, t.partial)
	}
	return strings.Join(parts, " ")
}

// WordCount returns the whitespace-separated word count of the
// accumulated text.
func (t *Turn) WordCount() int {
	return len(strings.Fields(t.AccumulatedText()))
}

// Empty reports whether the turn has accumulated any text at all.
func (t *Turn) Empty() bool {
	return len(t.FinalSegments) == 0 && strings.TrimSpace(t.partial) == ""
}
