package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
updateIntervalMs: 2000
retention:
  realtime: 30m
  hourly: 12h
alertThresholds:
  info: 0.04
  warning: 0.08
  critical: 0.12
alertRetention: 48h
trendWindowSize: 20
trendEmitEpsilon: 0.02
lowerIsBetter:
  - response_time
normalizationCaps:
  response_time: 2000
entities:
  - id: marketing
    kind: team
    weights:
      efficiency: 0.5
      quality: 0.5
  - id: contract-review
    kind: workflow
    weights:
      response_time: 1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndConvert(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if engineCfg.UpdateInterval != 2*time.Second {
		t.Fatalf("expected 2s interval got %v", engineCfg.UpdateInterval)
	}
	if engineCfg.Retention.Realtime != 30*time.Minute {
		t.Fatalf("expected 30m realtime retention got %v", engineCfg.Retention.Realtime)
	}
	if engineCfg.Retention.Daily != 7*24*time.Hour {
		t.Fatalf("expected default daily retention got %v", engineCfg.Retention.Daily)
	}
	if engineCfg.Thresholds.Critical != 0.12 {
		t.Fatalf("expected critical 0.12 got %v", engineCfg.Thresholds.Critical)
	}
	if engineCfg.TrendWindowSize != 20 {
		t.Fatalf("expected window 20 got %v", engineCfg.TrendWindowSize)
	}
	entities, err := cfg.MonitoredEntities()
	if err != nil {
		t.Fatalf("entities failed: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities got %d", len(entities))
	}
	if entities[1].Kind != "workflow" {
		t.Fatalf("expected workflow kind got %s", entities[1].Kind)
	}
}

func TestDefaultsWhenEmpty(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if engineCfg.UpdateInterval != 5*time.Second {
		t.Fatalf("expected default interval got %v", engineCfg.UpdateInterval)
	}
	if engineCfg.Thresholds.Info != 0.05 {
		t.Fatalf("expected default info threshold got %v", engineCfg.Thresholds.Info)
	}
}

func TestPartialThresholdsKeepDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "alertThresholds:\n  critical: 0.30\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if engineCfg.Thresholds.Critical != 0.30 {
		t.Fatalf("expected critical 0.30 got %v", engineCfg.Thresholds.Critical)
	}
	if engineCfg.Thresholds.Info != 0.05 || engineCfg.Thresholds.Warning != 0.10 {
		t.Fatalf("expected default info/warning kept got %+v", engineCfg.Thresholds)
	}
}

func TestRejectsBadDuration(t *testing.T) {
	cfg := Config{Retention: RetentionConfig{Realtime: "soon"}}
	if _, err := cfg.EngineConfig(); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestRejectsUnknownEntityKind(t *testing.T) {
	cfg := Config{Entities: []EntityConfig{{ID: "x", Kind: "department"}}}
	if _, err := cfg.MonitoredEntities(); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
