package pipeline

import (
	"context"
	"log/slog"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
	"github.com/buildngrowsv/bubblevoice/pkg/metrics"
)

// FrameProcessor is one stage of the pre-decision pipeline. Returning
// (nil, nil) swallows the frame; returning multiple frames fans out.
type FrameProcessor interface {
	Process(frames.Frame) ([]frames.Frame, error)
	Name() string
}

type BackpressureMode int

const (
	BackpressureDrop BackpressureMode = iota
	BackpressureWait
)

type Config struct {
	Async         bool
	StageBuffer   int
	HighCapacity  int
	LowCapacity   int
	FairnessRatio int
	Backpressure  BackpressureMode
}

type PipelineConfig struct {
	Config     Config
	Processors []FrameProcessor
}

type EngineConfig struct {
	SampleRate        int `mapstructure:"samplerate"`
	AudioReplayChunks int `mapstructure:"audio_replay_chunks"`
}

func LogConfiguration(cfg EngineConfig) {
	slog.Info("engine_config",
		"sample_rate", cfg.SampleRate,
		"audio_replay_chunks", cfg.AudioReplayChunks,
	)
}

// Engine moves frames from transports and providers through the processor
// chain and into the sink, which is the turn orchestrator's Submit.
// Control frames ride the high-priority lane so a cancel is never stuck
// behind buffered audio.
type Engine interface {
	Start() error
	Stop() error
	In() chan frames.Frame
	Out() chan frames.Frame
	AddProcessor(p FrameProcessor) error
	SetContext(ctx context.Context)
	SetSink(sink func(frames.Frame))
	SetObserver(obs metrics.Observer)
}
