package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/adapters/recognizer"
	"github.com/buildngrowsv/bubblevoice/pkg/errorsx"
	"github.com/buildngrowsv/bubblevoice/pkg/frames"
	"github.com/buildngrowsv/bubblevoice/pkg/logging"
	"github.com/buildngrowsv/bubblevoice/pkg/resilience"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Encoding   string
	Interim    bool
	StreamID   string
	SessionID  string
	TraceID    string
}

// Recognizer streams audio to Deepgram and emits transcript frames tagged
// with the session epoch that was live when Deepgram produced them.
// Deepgram treats the audio as one continuous stream, so Reset tears the
// websocket down and reconnects; the epoch source is what lets the rest
// of the system discard anything the old connection emits during
// teardown.
type Recognizer struct {
	cfg      Config
	epochs   recognizer.EpochSource
	speaking recognizer.SpeakingProbe
	out      chan frames.Frame
	logger   *slog.Logger
	retry    resilience.RetryPolicy

	mu         sync.Mutex
	dgClient   *client.WSCallback
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	connGen    uint64
	metaLogged bool
}

func New(cfg Config, epochs recognizer.EpochSource) *Recognizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	logger := logging.NewComponentLogger(slog.Default(), "deepgram_recognizer")
	return &Recognizer{
		cfg:    cfg,
		epochs: epochs,
		out:    make(chan frames.Frame, 256),
		logger: logger,
		retry:  resilience.NewRetryPolicy(3, 200*time.Millisecond),
	}
}

// SetSpeakingProbe wires the playback-state probe. Transcripts produced
// while synthesized speech is audible carry IsSpeaking=true so the echo
// filter can mark them.
func (r *Recognizer) SetSpeakingProbe(p recognizer.SpeakingProbe) { r.speaking = p }

func (r *Recognizer) Name() string { return "deepgram_streaming" }

func (r *Recognizer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	return r.connectLocked()
}

// connectLocked builds a fresh websocket connection under r.mu.
func (r *Recognizer) connectLocked() error {
	r.connGen++
	gen := r.connGen
	r.pipeReader, r.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          r.cfg.Model,
		Language:       r.cfg.Language,
		Encoding:       r.cfg.Encoding,
		SampleRate:     r.cfg.SampleRate,
		InterimResults: r.cfg.Interim,
		SmartFormat:    true,
	}

	r.logger.Info("initializing deepgram connection",
		slog.String("stream_id", r.cfg.StreamID),
		slog.String("session_id", r.cfg.SessionID),
		slog.String("model", r.cfg.Model),
		slog.Uint64("conn_gen", gen),
		slog.Int("sample_rate", r.cfg.SampleRate))

	cb := &callback{parent: r, gen: gen}
	dgClient, err := client.NewWSUsingCallback(r.ctx, r.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		r.logger.Error("deepgram_client_create_error",
			slog.String("error", err.Error()),
			slog.String("stream_id", r.cfg.StreamID))
		return errorsx.Wrap(err, errorsx.ReasonRecognizerConnect)
	}
	r.dgClient = dgClient

	if connected := r.dgClient.Connect(); !connected {
		r.logger.Error("deepgram_connect_failed",
			slog.String("stream_id", r.cfg.StreamID))
		return errorsx.Wrap(fmt.Errorf("deepgram connection failed"), errorsx.ReasonRecognizerConnect)
	}

	r.logger.Info("deepgram_connected",
		slog.String("stream_id", r.cfg.StreamID),
		slog.Uint64("conn_gen", gen))

	pipeReader := r.pipeReader
	dg := r.dgClient
	go func() {
		if err := dg.Stream(pipeReader); err != nil && r.ctx.Err() == nil {
			r.logger.Error("deepgram_stream_error",
				slog.String("error", err.Error()),
				slog.String("stream_id", r.cfg.StreamID))
		}
	}()
	return nil
}

func (r *Recognizer) Close() error {
	r.logger.Info("closing deepgram connection",
		slog.String("stream_id", r.cfg.StreamID))
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.teardownLocked()
	return nil
}

func (r *Recognizer) teardownLocked() {
	if r.pipeWriter != nil {
		_ = r.pipeWriter.Close()
		r.pipeWriter = nil
	}
	if r.dgClient != nil {
		r.dgClient.Stop()
		r.dgClient = nil
	}
}

// Reset tears down the live connection and reconnects. The coordinator
// bumps the epoch before calling this, so anything the dying connection
// still emits is already stale. A session_started control frame on the
// results channel acknowledges the fresh stream.
func (r *Recognizer) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return fmt.Errorf("not started")
	}
	r.teardownLocked()

	err := r.retry.Do(func() error {
		return r.connectLocked()
	})
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonRecognizerReset)
	}

	ack := frames.NewControlFrame(r.cfg.StreamID, time.Now().UnixNano(), frames.ControlSessionStarted, map[string]string{
		frames.MetaSessionID: r.cfg.SessionID,
		frames.MetaSource:    "recognizer",
	})
	select {
	case r.out <- ack:
	default:
	}
	return nil
}

func (r *Recognizer) SendAudio(frame frames.AudioFrame) error {
	r.mu.Lock()
	w := r.pipeWriter
	r.mu.Unlock()
	if w == nil {
		return errorsx.Wrap(fmt.Errorf("not started"), errorsx.ReasonRecognizerSend)
	}

	_, err := w.Write(frame.RawPayload())
	if err != nil {
		r.logger.Error("failed to send audio to deepgram",
			slog.String("error", err.Error()),
			slog.String("stream_id", r.cfg.StreamID))
		return errorsx.Wrap(err, errorsx.ReasonRecognizerSend)
	}
	return nil
}

func (r *Recognizer) Results() <-chan frames.Frame { return r.out }

// --- Callback Implementation ---

type callback struct {
	parent *Recognizer
	gen    uint64
}

// live reports whether this callback still belongs to the current
// connection. A superseded connection's late messages are dropped here;
// the epoch gate downstream would catch them anyway, but there is no
// point shipping them.
func (c *callback) live() bool {
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	return c.parent.connGen == c.gen
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.Uint64("conn_gen", c.gen))
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if !c.live() {
		return nil
	}
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	text := alt.Transcript
	if text == "" {
		return nil
	}

	isFinal := mr.IsFinal || mr.SpeechFinal

	tr := frames.Transcript{
		Text:       text,
		IsFinal:    isFinal,
		AudioStart: mr.Start,
		AudioEnd:   mr.Start + mr.Duration,
	}
	if c.parent.epochs != nil {
		tr.Epoch = c.parent.epochs.Epoch()
	}
	if c.parent.speaking != nil {
		tr.IsSpeaking = c.parent.speaking.Speaking()
	}

	meta := map[string]string{
		frames.MetaSessionID: c.parent.cfg.SessionID,
		frames.MetaSource:    "recognizer",
	}
	if c.parent.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = c.parent.cfg.TraceID
	}

	c.parent.logger.Debug("transcript_received",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.String("transcript", text),
		slog.Bool("is_final", isFinal),
		slog.Uint64("epoch", tr.Epoch))

	f := frames.NewTranscriptFrame(c.parent.cfg.StreamID, time.Now().UnixNano(), tr, meta)

	select {
	case c.parent.out <- f:
	default:
		c.parent.logger.Warn("deepgram_out_channel_full",
			slog.String("stream_id", c.parent.cfg.StreamID))
	}
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received",
			slog.String("stream_id", c.parent.cfg.StreamID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.logger.Debug("speech_started_event",
		slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	// Utterance boundaries are inferred downstream by the timer cascade;
	// the native event is log-only.
	c.parent.logger.Debug("utterance_end_event",
		slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.Uint64("conn_gen", c.gen))
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.String("data", string(byData)))
	return nil
}

var _ recognizer.StreamingRecognizer = (*Recognizer)(nil)
