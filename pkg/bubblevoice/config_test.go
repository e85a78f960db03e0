package bubblevoice

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/pipeline"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
transports:
  provider: mock
vendors:
  recognizer:
    provider: mock
  llm:
    provider: mock
  playback:
    provider: mock
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Turn.CoalesceWindowMS != 50 {
		t.Fatalf("coalesce_window_ms = %d, want 50", cfg.Turn.CoalesceWindowMS)
	}
	if cfg.Turn.SilenceConfirmMS != 800 {
		t.Fatalf("silence_confirm_ms = %d, want 800", cfg.Turn.SilenceConfirmMS)
	}
	if cfg.Turn.CacheGraceMS != 5000 {
		t.Fatalf("cache_grace_ms = %d, want 5000", cfg.Turn.CacheGraceMS)
	}
	if cfg.Turn.InterruptMinWords != 2 {
		t.Fatalf("interrupt_min_words = %d, want 2", cfg.Turn.InterruptMinWords)
	}
	if cfg.Pipeline.Backpressure != pipeline.BackpressureDrop {
		t.Fatal("default backpressure should be drop")
	}
	if !cfg.Privacy.RedactPII {
		t.Fatal("redact_pii should default to true")
	}
	tc := cfg.Turn.Timers()
	if tc.DispatchBase != 1200*time.Millisecond {
		t.Fatalf("dispatch base = %v, want 1.2s", tc.DispatchBase)
	}
}

func TestLoadConfigOverridesAndEnvExpansion(t *testing.T) {
	t.Setenv("BV_TEST_API_KEY", "sk-expanded")
	path := writeConfig(t, `
transports:
  provider: twilio
  settings:
    account_sid: AC1
    auth_token: ${BV_TEST_API_KEY}
vendors:
  recognizer:
    provider: deepgram
    settings:
      api_key: ${BV_TEST_API_KEY}
  llm:
    provider: openai
    settings:
      api_key: sk-plain
  playback:
    provider: twilio_say
turn:
  dispatch_base_ms: 900
  interrupt_min_words: 3
pipeline:
  backpressure: wait
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Vendors.Recognizer.Settings["api_key"]; got != "sk-expanded" {
		t.Fatalf("recognizer api_key = %v, want expanded env value", got)
	}
	if got := cfg.Transports.Settings["auth_token"]; got != "sk-expanded" {
		t.Fatalf("auth_token = %v, want expanded env value", got)
	}
	if cfg.Turn.DispatchBaseMS != 900 {
		t.Fatalf("dispatch_base_ms = %d, want 900", cfg.Turn.DispatchBaseMS)
	}
	if cfg.Turn.InterruptMinWords != 3 {
		t.Fatalf("interrupt_min_words = %d, want 3", cfg.Turn.InterruptMinWords)
	}
	if cfg.Pipeline.Backpressure != pipeline.BackpressureWait {
		t.Fatal("backpressure should parse as wait")
	}
}

func TestLoadConfigRejectsMissingProviders(t *testing.T) {
	path := writeConfig(t, `
transports:
  provider: mock
vendors:
  recognizer:
    provider: mock
  llm:
    provider: mock
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing playback provider")
	}
}
