package processors

import (
	"log/slog"

	"github.com/buildngrowsv/bubblevoice/pkg/adapters/recognizer"
	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

// RecognizerIngest feeds captured audio into the recognition engine and
// swallows the frame; everything else passes through untouched. Send
// failures are logged and dropped, audio for a dead stream has nowhere
// useful to go.
type RecognizerIngest struct {
	rec recognizer.StreamingRecognizer
	log *slog.Logger
}

func NewRecognizerIngest(rec recognizer.StreamingRecognizer) *RecognizerIngest {
	return &RecognizerIngest{rec: rec, log: slog.Default()}
}

func (i *RecognizerIngest) Name() string { return "recognizer_ingest" }

func (i *RecognizerIngest) Process(f frames.Frame) ([]frames.Frame, error) {
	af, ok := f.(frames.AudioFrame)
	if !ok {
		return []frames.Frame{f}, nil
	}
	if err := i.rec.SendAudio(af); err != nil {
		i.log.Warn("recognizer_send_failed",
			"stream_id", af.Meta()[frames.MetaStreamID],
			"error", err.Error())
	}
	return nil, nil
}
