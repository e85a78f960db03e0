package frames

import (
	"strings"
	"sync"
	"time"
)

type Kind string

const (
	KindAudio      Kind = "audio"
	KindTranscript Kind = "transcript"
	KindControl    Kind = "control"
	KindSystem     Kind = "system"
)

type ControlCode string

const (
	ControlCancel            ControlCode = "cancel"
	ControlFlush             ControlCode = "flush"
	ControlStartInterruption ControlCode = "start_interruption"
	ControlPlaybackStarted   ControlCode = "playback_started"
	ControlPlaybackCompleted ControlCode = "playback_completed"
	ControlPlaybackError     ControlCode = "playback_error"
	ControlSessionStarted    ControlCode = "session_started"
	ControlSessionEnded      ControlCode = "session_ended"
)

// Meta keys shared across the pipeline.
const (
	MetaStreamID      = "stream_id"
	MetaSessionID     = "session_id"
	MetaCallSID       = "call_sid"
	MetaTraceID       = "trace_id"
	MetaSource        = "source"
	MetaReason        = "reason"
	MetaIsFinal       = "is_final"
	MetaFromNumber    = "from_number"
	MetaCallEndReason = "call_end_reason"
	MetaEncoding      = "encoding"

	// MetaEchoSuppressed marks a transcript that is likely the system's own
	// synthesized speech picked up by the microphone. Suppressed events do
	// not reset turn timers but still reach the interrupt monitor.
	MetaEchoSuppressed = "echo_suppressed"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// Transcript carries the recognizer's view of one transcription update.
// AudioStart/AudioEnd are seconds, monotonic within a session epoch.
// IsSpeaking is true when synthesized speech was playing at the moment
// the recognizer produced this result.
type Transcript struct {
	Text       string
	IsFinal    bool
	AudioStart float64
	AudioEnd   float64
	WallClock  time.Time
	IsSpeaking bool
	Epoch      uint64
}

type TranscriptFrame struct {
	pts  int64
	tr   Transcript
	meta map[string]string
}

func NewTranscriptFrame(streamID string, pts int64, tr Transcript, meta map[string]string) TranscriptFrame {
	if tr.WallClock.IsZero() {
		tr.WallClock = time.Now()
	}
	return TranscriptFrame{
		pts:  pts,
		tr:   tr,
		meta: mergeMeta(streamID, meta),
	}
}

func (t TranscriptFrame) Kind() Kind              { return KindTranscript }
func (t TranscriptFrame) PTS() int64              { return t.pts }
func (t TranscriptFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TranscriptFrame) Text() string            { return t.tr.Text }
func (t TranscriptFrame) IsFinal() bool           { return t.tr.IsFinal }
func (t TranscriptFrame) AudioStart() float64     { return t.tr.AudioStart }
func (t TranscriptFrame) AudioEnd() float64       { return t.tr.AudioEnd }
func (t TranscriptFrame) WallClock() time.Time    { return t.tr.WallClock }
func (t TranscriptFrame) IsSpeaking() bool        { return t.tr.IsSpeaking }
func (t TranscriptFrame) Epoch() uint64           { return t.tr.Epoch }

// Transcript returns the underlying payload.
func (t TranscriptFrame) Transcript() Transcript { return t.tr }

// WordCount returns the whitespace-separated word count of the text.
func (t TranscriptFrame) WordCount() int { return len(strings.Fields(t.tr.Text)) }

type AudioFrame struct {
	pts    int64
	data   []byte
	rate   int
	ch     int
	meta   map[string]string
	pooled bool
}

func NewAudioFrame(streamID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:  pts,
		data: data,
		rate: rate,
		ch:   ch,
		meta: mergeMeta(streamID, meta),
	}
}

func NewAudioFrameFromPool(streamID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	buf := AcquireAudioBuf(len(data))
	copy(buf, data)
	return AudioFrame{
		pts:    pts,
		data:   buf,
		rate:   rate,
		ch:     ch,
		meta:   mergeMeta(streamID, meta),
		pooled: true,
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte      { return a.data }
func (a AudioFrame) Rate() int               { return a.rate }
func (a AudioFrame) Channels() int           { return a.ch }

func ReleaseAudioFrame(f Frame) bool {
	af, ok := f.(AudioFrame)
	if !ok {
		if ap, ok := f.(*AudioFrame); ok {
			af = *ap
		} else {
			return false
		}
	}
	if af.pooled {
		ReleaseAudioBuf(af.data)
		return true
	}
	return false
}

type ControlFrame struct {
	pts  int64
	code ControlCode
	meta map[string]string
}

func NewControlFrame(streamID string, pts int64, code ControlCode, meta map[string]string) ControlFrame {
	return ControlFrame{
		pts:  pts,
		code: code,
		meta: mergeMeta(streamID, meta),
	}
}

func (c ControlFrame) Kind() Kind              { return KindControl }
func (c ControlFrame) PTS() int64              { return c.pts }
func (c ControlFrame) Meta() map[string]string { return cloneMeta(c.meta) }
func (c ControlFrame) Code() ControlCode       { return c.code }

type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(streamID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{
		pts:  pts,
		name: name,
		meta: mergeMeta(streamID, meta),
	}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

type PTSGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewPTSGen() *PTSGen {
	return &PTSGen{value: make(map[string]int64)}
}

func (g *PTSGen) Next(streamID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[streamID] + time.Millisecond.Nanoseconds()
	g.value[streamID] = v
	return v
}

var audioBufPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func AcquireAudioBuf(size int) []byte {
	b := audioBufPool.Get().([]byte)
	if cap(b) < size {
		return make([]byte, size)
	}
	return b[:size]
}

func ReleaseAudioBuf(b []byte) {
	audioBufPool.Put(b[:0])
}

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if streamID != "" {
		out[MetaStreamID] = streamID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
