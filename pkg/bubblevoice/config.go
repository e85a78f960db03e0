package bubblevoice

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/pipeline"
	"github.com/buildngrowsv/bubblevoice/pkg/timers"
	"github.com/spf13/viper"
)

type Config struct {
	Pipeline      pipeline.Config       `mapstructure:"pipeline"`
	Engine        pipeline.EngineConfig `mapstructure:"engine"`
	Vendors       VendorsConfig         `mapstructure:"vendors"`
	Transports    TransportsConfig      `mapstructure:"transports"`
	Turn          TurnConfig            `mapstructure:"turn"`
	Environment   string                `mapstructure:"environment"`
	LogLevel      string                `mapstructure:"log_level"`
	LogFormat     string                `mapstructure:"log_format"`
	BasePrompt    string                `mapstructure:"base_prompt"`
	Observability ObservabilityConfig   `mapstructure:"observability"`
	Privacy       PrivacyConfig         `mapstructure:"privacy"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	Recognizer VendorConfig `mapstructure:"recognizer"`
	LLM        VendorConfig `mapstructure:"llm"`
	Playback   VendorConfig `mapstructure:"playback"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

// TurnConfig carries every tunable of the turn decision path. All
// durations are milliseconds.
type TurnConfig struct {
	CoalesceWindowMS    int `mapstructure:"coalesce_window_ms"`
	SilenceConfirmMS    int `mapstructure:"silence_confirm_ms"`
	DispatchBaseMS      int `mapstructure:"dispatch_base_ms"`
	SpeechStartBaseMS   int `mapstructure:"speech_start_base_ms"`
	PlaybackStartBaseMS int `mapstructure:"playback_start_base_ms"`
	ShortWordsMax       int `mapstructure:"short_words_max"`
	MediumWordsMax      int `mapstructure:"medium_words_max"`
	ShortDeltaMS        int `mapstructure:"short_delta_ms"`
	MediumDeltaMS       int `mapstructure:"medium_delta_ms"`
	InterruptMinWords   int `mapstructure:"interrupt_min_words"`
	EchoTrailingMS      int `mapstructure:"echo_trailing_ms"`
	CacheGraceMS        int `mapstructure:"cache_grace_ms"`
	InboxBuffer         int `mapstructure:"inbox_buffer"`
}

func (c TurnConfig) Timers() timers.Config {
	return timers.Config{
		SilenceConfirm:    ms(c.SilenceConfirmMS),
		DispatchBase:      ms(c.DispatchBaseMS),
		SpeechStartBase:   ms(c.SpeechStartBaseMS),
		PlaybackStartBase: ms(c.PlaybackStartBaseMS),
		ShortWordsMax:     c.ShortWordsMax,
		MediumWordsMax:    c.MediumWordsMax,
		ShortDelta:        ms(c.ShortDeltaMS),
		MediumDelta:       ms(c.MediumDeltaMS),
	}
}

type ObservabilityConfig struct {
	ArtifactsDir string  `mapstructure:"artifacts_dir"`
	RecordAudio  bool    `mapstructure:"record_audio"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("pipeline.async", true)
	v.SetDefault("pipeline.stagebuffer", 128)
	v.SetDefault("pipeline.highcapacity", 256)
	v.SetDefault("pipeline.lowcapacity", 512)
	v.SetDefault("pipeline.fairnessratio", 3)
	v.SetDefault("pipeline.backpressure", "drop")
	v.SetDefault("engine.samplerate", 8000)
	v.SetDefault("engine.audio_replay_chunks", 50)
	v.SetDefault("turn.coalesce_window_ms", 50)
	v.SetDefault("turn.silence_confirm_ms", 800)
	v.SetDefault("turn.dispatch_base_ms", 1200)
	v.SetDefault("turn.speech_start_base_ms", 2200)
	v.SetDefault("turn.playback_start_base_ms", 3200)
	v.SetDefault("turn.short_words_max", 3)
	v.SetDefault("turn.medium_words_max", 6)
	v.SetDefault("turn.short_delta_ms", 600)
	v.SetDefault("turn.medium_delta_ms", 300)
	v.SetDefault("turn.interrupt_min_words", 2)
	v.SetDefault("turn.echo_trailing_ms", 500)
	v.SetDefault("turn.cache_grace_ms", 5000)
	v.SetDefault("turn.inbox_buffer", 256)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.record_audio", false)
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Pipeline struct {
			Async         bool   `mapstructure:"async"`
			StageBuffer   int    `mapstructure:"stagebuffer"`
			HighCapacity  int    `mapstructure:"highcapacity"`
			LowCapacity   int    `mapstructure:"lowcapacity"`
			FairnessRatio int    `mapstructure:"fairnessratio"`
			Backpressure  string `mapstructure:"backpressure"`
		} `mapstructure:"pipeline"`
		Engine        pipeline.EngineConfig `mapstructure:"engine"`
		Vendors       VendorsConfig         `mapstructure:"vendors"`
		Transports    TransportsConfig      `mapstructure:"transports"`
		Turn          TurnConfig            `mapstructure:"turn"`
		Environment   string                `mapstructure:"environment"`
		LogLevel      string                `mapstructure:"log_level"`
		LogFormat     string                `mapstructure:"log_format"`
		BasePrompt    string                `mapstructure:"base_prompt"`
		Observability ObservabilityConfig   `mapstructure:"observability"`
		Privacy       PrivacyConfig         `mapstructure:"privacy"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := Config{
		Pipeline: pipeline.Config{
			Async:         raw.Pipeline.Async,
			StageBuffer:   raw.Pipeline.StageBuffer,
			HighCapacity:  raw.Pipeline.HighCapacity,
			LowCapacity:   raw.Pipeline.LowCapacity,
			FairnessRatio: raw.Pipeline.FairnessRatio,
			Backpressure:  parseBackpressure(raw.Pipeline.Backpressure),
		},
		Engine:        raw.Engine,
		Vendors:       raw.Vendors,
		Transports:    raw.Transports,
		Turn:          raw.Turn,
		Environment:   raw.Environment,
		LogLevel:      raw.LogLevel,
		LogFormat:     raw.LogFormat,
		BasePrompt:    raw.BasePrompt,
		Observability: raw.Observability,
		Privacy:       raw.Privacy,
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	if strings.TrimSpace(c.Vendors.Recognizer.Provider) == "" {
		return fmt.Errorf("vendors.recognizer.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	if strings.TrimSpace(c.Vendors.Playback.Provider) == "" {
		return fmt.Errorf("vendors.playback.provider is required")
	}
	if c.Turn.SilenceConfirmMS < 0 || c.Turn.DispatchBaseMS < 0 {
		return fmt.Errorf("turn timer values must not be negative")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.Recognizer.Settings = expandSettings(cfg.Vendors.Recognizer.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Vendors.Playback.Settings = expandSettings(cfg.Vendors.Playback.Settings)
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}

func parseBackpressure(v string) pipeline.BackpressureMode {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "wait":
		return pipeline.BackpressureWait
	case "drop", "":
		return pipeline.BackpressureDrop
	default:
		if n, err := strconv.Atoi(v); err == nil {
			return pipeline.BackpressureMode(n)
		}
	}
	return pipeline.BackpressureDrop
}
