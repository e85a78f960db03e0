package bubblevoice

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/adapters/recognizer"
	"github.com/buildngrowsv/bubblevoice/pkg/frames"
	"github.com/buildngrowsv/bubblevoice/pkg/metrics"
	"github.com/buildngrowsv/bubblevoice/pkg/observers"
	"github.com/buildngrowsv/bubblevoice/pkg/pipeline"
	"github.com/buildngrowsv/bubblevoice/pkg/processors"
	"github.com/buildngrowsv/bubblevoice/pkg/redact"
	"github.com/buildngrowsv/bubblevoice/pkg/runner"
	"github.com/buildngrowsv/bubblevoice/pkg/session"
	"github.com/buildngrowsv/bubblevoice/pkg/transports"
	"github.com/buildngrowsv/bubblevoice/pkg/turn"
)

// Engine ties one transport to per-call turn machinery. Each call gets
// its own session coordinator, recognizer, player, pipeline and turn
// orchestrator; the engine routes transport frames to the right call and
// tears the call down when it ends.
type Engine struct {
	cfg       Config
	registry  *pipeline.SessionRegistry
	transport transports.Transport
	providers *ProviderRegistry
	runner    *pipeline.Runner
	asyncObs  *metrics.AsyncObserver
	metricsFh *os.File
	ctx       context.Context
	cancel    context.CancelFunc
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Transport transports.Transport
}

func NewEngine(opts EngineOptions) *Engine {
	cfg := opts.Config
	SetDefaultLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	slog.Info("engine_init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"recognizer_provider", cfg.Vendors.Recognizer.Provider,
		"playback_provider", cfg.Vendors.Playback.Provider,
		"transport", cfg.Transports.Provider,
	)
	pipeline.LogConfiguration(cfg.Engine)

	latencyObs := observers.NewLatencyObserver(slog.Default())
	logObs := observers.NewLoggerObserver(slog.Default())
	obsList := []metrics.Observer{latencyObs, logObs}
	var metricsFh *os.File
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			fh, err := os.OpenFile(filepath.Join(dir, "metrics.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err == nil {
				metricsFh = fh
				var sink metrics.Observer = metrics.NewJSONLObserver(fh)
				if cfg.Observability.SampleRate > 0 && cfg.Observability.SampleRate < 1 {
					sink = metrics.NewSamplingObserver(sink, cfg.Observability.SampleRate)
				}
				obsList = append(obsList, sink)
			} else {
				slog.Warn("metrics_file_open_failed", "dir", dir, "error", err.Error())
			}
		}
	}
	multiObs := observers.NewMultiObserver(obsList...)
	asyncObs := metrics.NewAsyncObserver(multiObs, 2048)

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
	}

	registry := pipeline.NewSessionRegistry(func(ctx context.Context, callSID, streamID, traceID string) (pipeline.Engine, error) {
		return buildCallSession(ctx, cfg, providers, asyncObs, callSID, streamID, traceID)
	})

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "Bubblevoice Engine Ready"}
			if rr, ok := opts.Transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			slog.Info("engine_ready", fields...)
		},
		OnStop: func() {
			if asyncObs != nil {
				asyncObs.Close()
			}
			if metricsFh != nil {
				_ = metricsFh.Close()
			}
			slog.Info("shutdown", "goroutines", runtime.NumGoroutine(), "active_calls", registry.Count())
		},
	}

	drainer := pipeline.DrainerFunc(func() error {
		if opts.Transport != nil {
			_ = opts.Transport.Stop()
		}
		registry.SetDraining(true)
		registry.CloseAll()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		_ = registry.WaitForEmpty(ctx, 200*time.Millisecond)
		return nil
	})

	lr := pipeline.NewDrainRunner(drainer, hooks, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:       cfg,
		registry:  registry,
		transport: opts.Transport,
		providers: providers,
		runner:    lr,
		asyncObs:  asyncObs,
		metricsFh: metricsFh,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// buildCallSession assembles everything one call needs. The coordinator
// is created first because the recognizer tags transcripts with its
// epoch, then the recognizer is bound back as the coordinator's resetter.
func buildCallSession(ctx context.Context, cfg Config, providers *ProviderRegistry, obs metrics.Observer, callSID, streamID, traceID string) (pipeline.Engine, error) {
	hook := &resetterHook{}
	coord := session.NewCoordinator(hook, slog.Default())

	recFactory, err := providers.BuildRecognizerFactory(cfg.Vendors.Recognizer.Provider, cfg, traceID)
	if err != nil {
		return nil, err
	}
	rec := recFactory(callSID, streamID, coord)
	hook.bind(rec)

	probe := &speakingState{}
	if sp, ok := rec.(interface {
		SetSpeakingProbe(recognizer.SpeakingProbe)
	}); ok {
		sp.SetSpeakingProbe(probe)
	}

	playerFactory, err := providers.BuildPlayerFactory(cfg.Vendors.Playback.Provider, cfg)
	if err != nil {
		return nil, err
	}
	player := playerFactory(callSID, streamID)

	llmAdapter, err := providers.BuildLLM(cfg.Vendors.LLM.Provider, cfg)
	if err != nil {
		return nil, err
	}

	orch := turn.NewOrchestrator(turn.Config{
		StreamID:          streamID,
		Timers:            cfg.Turn.Timers(),
		InterruptMinWords: cfg.Turn.InterruptMinWords,
		CacheGrace:        ms(cfg.Turn.CacheGraceMS),
		InboxBuffer:       cfg.Turn.InboxBuffer,
	}, turn.Collaborators{
		LLM:      llmAdapter,
		Player:   player,
		Sessions: coord,
	})
	orch.SetObserver(obs)

	gate := processors.NewEpochGate(coord)
	gate.SetObserver(obs)
	echo := processors.NewEchoFilter(ms(cfg.Turn.EchoTrailingMS))
	norm := processors.NewNormalizer(ms(cfg.Turn.CoalesceWindowMS), orch.Submit)

	eng := pipeline.NewTurnPipelineBuilder().
		WithIngest(processors.NewRecognizerIngest(rec)).
		WithEpochGate(gate).
		WithEchoFilter(echo).
		WithNormalizer(norm).
		Build(cfg.Pipeline)
	eng.SetContext(ctx)
	eng.SetObserver(obs)
	eng.SetSink(orch.Submit)

	if err := rec.Start(ctx); err != nil {
		return nil, fmt.Errorf("recognizer start: %w", err)
	}
	if err := player.Start(ctx); err != nil {
		_ = rec.Close()
		return nil, fmt.Errorf("player start: %w", err)
	}
	if err := orch.Start(ctx); err != nil {
		_ = rec.Close()
		_ = player.Close()
		return nil, err
	}

	go pumpFrames(ctx, rec.Results(), eng.In())
	go pumpPlayer(ctx, player.Events(), probe, eng.In())
	go func() {
		<-ctx.Done()
		norm.Close()
		_ = orch.Stop()
		_ = player.Close()
		_ = rec.Close()
	}()

	return eng, nil
}

// pumpFrames moves recognizer output into the call's pipeline.
func pumpFrames(ctx context.Context, in <-chan frames.Frame, out chan frames.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

// pumpPlayer moves playback events into the pipeline while keeping the
// speaking probe current. The probe must flip before the frame is
// forwarded so transcripts produced during playback see the right state.
func pumpPlayer(ctx context.Context, in <-chan frames.Frame, probe *speakingState, out chan frames.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-in:
			if !ok {
				return
			}
			if cf, isControl := f.(frames.ControlFrame); isControl {
				switch cf.Code() {
				case frames.ControlPlaybackStarted:
					probe.set(true)
				case frames.ControlPlaybackCompleted, frames.ControlPlaybackError, frames.ControlCancel:
					probe.set(false)
				}
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

type speakingState struct {
	playing atomic.Bool
}

func (s *speakingState) set(v bool) { s.playing.Store(v) }

func (s *speakingState) Speaking() bool { return s.playing.Load() }

// resetterHook breaks the construction cycle between the coordinator and
// the recognizer: the coordinator needs a resetter before the recognizer
// exists, because the recognizer needs the coordinator as epoch source.
type resetterHook struct {
	mu sync.Mutex
	r  session.Resetter
}

func (h *resetterHook) bind(r session.Resetter) {
	h.mu.Lock()
	h.r = r
	h.mu.Unlock()
}

func (h *resetterHook) Reset(ctx context.Context) error {
	h.mu.Lock()
	r := h.r
	h.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Reset(ctx)
}

func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.transport != nil {
		if err := e.transport.Start(ctx); err != nil {
			return err
		}
		go e.routeTransport(ctx)
	}
	go func() {
		_ = e.runner.Run(ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.runner.Stop()
}

func (e *Engine) routeTransport(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-e.transport.Recv():
			if !ok {
				return
			}
			meta := f.Meta()
			callSID := meta[frames.MetaCallSID]
			streamID := meta[frames.MetaStreamID]
			traceID := meta[frames.MetaTraceID]
			if callSID == "" || streamID == "" {
				continue
			}
			if e.asyncObs != nil && f.Kind() == frames.KindAudio {
				af := f.(frames.AudioFrame)
				fields := map[string]any{
					"sample_rate": af.Rate(),
					"channels":    af.Channels(),
				}
				if e.cfg.Observability.RecordAudio {
					fields["payload_b64"] = base64.StdEncoding.EncodeToString(af.RawPayload())
				}
				e.asyncObs.RecordEvent(metrics.MetricsEvent{
					Name: "audio_in",
					Time: time.Now(),
					Tags: map[string]string{
						frames.MetaStreamID: streamID,
						frames.MetaTraceID:  traceID,
						frames.MetaCallSID:  callSID,
						"component":         "transport",
					},
					Fields: fields,
				})
			}
			if f.Kind() == frames.KindSystem {
				sf := f.(frames.SystemFrame)
				if sf.Name() == "call_end" {
					e.registry.Remove(callSID)
					continue
				}
			}
			sess, _, err := e.registry.GetOrCreate(callSID, streamID, traceID)
			if err != nil {
				slog.Warn("call_session_failed", "call_sid", callSID, "error", err.Error())
				continue
			}
			nonBlockingSend(sess.Engine.In(), f)
		}
	}
}

func nonBlockingSend(ch chan frames.Frame, f frames.Frame) {
	select {
	case ch <- f:
	default:
	}
}

func SetDefaultLogger(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func (e *Engine) ProviderRegistry() *ProviderRegistry { return e.providers }

func (e *Engine) Transport() transports.Transport { return e.transport }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Registry() *pipeline.SessionRegistry { return e.registry }

func (e *Engine) Health() error {
	if e.transport == nil {
		return fmt.Errorf("missing transport")
	}
	return nil
}
