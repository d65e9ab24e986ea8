package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"enterprisehub-backend/services/metrics-service/internal/metrics"
)

type RetentionConfig struct {
	Realtime string `yaml:"realtime"`
	Hourly   string `yaml:"hourly"`
	Daily    string `yaml:"daily"`
	Weekly   string `yaml:"weekly"`
}

type ThresholdConfig struct {
	Info     float64 `yaml:"info"`
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

type EntityConfig struct {
	ID      string             `yaml:"id"`
	Kind    string             `yaml:"kind"`
	Weights map[string]float64 `yaml:"weights"`
	Targets map[string]float64 `yaml:"targets"`
}

// Config is the optional yaml configuration file. Everything has a
// default; the file only needs the entities the deployment monitors.
type Config struct {
	UpdateIntervalMs  int                `yaml:"updateIntervalMs"`
	Retention         RetentionConfig    `yaml:"retention"`
	AlertThresholds   ThresholdConfig    `yaml:"alertThresholds"`
	AlertRetention    string             `yaml:"alertRetention"`
	TrendWindowSize   int                `yaml:"trendWindowSize"`
	TrendEmitEpsilon  float64            `yaml:"trendEmitEpsilon"`
	LowerIsBetter     []string           `yaml:"lowerIsBetter"`
	NormalizationCaps map[string]float64 `yaml:"normalizationCaps"`
	Entities          []EntityConfig     `yaml:"entities"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}

// EngineConfig converts the file values into the engine's config,
// filling defaults for anything unset.
func (c Config) EngineConfig() (metrics.Config, error) {
	def := metrics.DefaultConfig()
	cfg := def
	if c.UpdateIntervalMs > 0 {
		cfg.UpdateInterval = time.Duration(c.UpdateIntervalMs) * time.Millisecond
	}
	var err error
	if cfg.Retention.Realtime, err = parseDuration(c.Retention.Realtime, def.Retention.Realtime); err != nil {
		return metrics.Config{}, err
	}
	if cfg.Retention.Hourly, err = parseDuration(c.Retention.Hourly, def.Retention.Hourly); err != nil {
		return metrics.Config{}, err
	}
	if cfg.Retention.Daily, err = parseDuration(c.Retention.Daily, def.Retention.Daily); err != nil {
		return metrics.Config{}, err
	}
	if cfg.Retention.Weekly, err = parseDuration(c.Retention.Weekly, def.Retention.Weekly); err != nil {
		return metrics.Config{}, err
	}
	if cfg.AlertRetention, err = parseDuration(c.AlertRetention, def.AlertRetention); err != nil {
		return metrics.Config{}, err
	}
	// thresholds merge per field so a file overriding only one tier
	// keeps the defaults for the rest
	if c.AlertThresholds.Info > 0 {
		cfg.Thresholds.Info = c.AlertThresholds.Info
	}
	if c.AlertThresholds.Warning > 0 {
		cfg.Thresholds.Warning = c.AlertThresholds.Warning
	}
	if c.AlertThresholds.Critical > 0 {
		cfg.Thresholds.Critical = c.AlertThresholds.Critical
	}
	if c.TrendWindowSize > 0 {
		cfg.TrendWindowSize = c.TrendWindowSize
	}
	if c.TrendEmitEpsilon > 0 {
		cfg.TrendEmitEpsilon = c.TrendEmitEpsilon
	}
	if c.LowerIsBetter != nil {
		cfg.LowerIsBetter = c.LowerIsBetter
	}
	if c.NormalizationCaps != nil {
		cfg.NormalizationCap = c.NormalizationCaps
	}
	return cfg, nil
}

// MonitoredEntities converts the configured entity list.
func (c Config) MonitoredEntities() ([]metrics.MonitoredEntity, error) {
	out := make([]metrics.MonitoredEntity, 0, len(c.Entities))
	for _, entity := range c.Entities {
		kind := metrics.EntityKind(entity.Kind)
		if kind != metrics.KindTeam && kind != metrics.KindWorkflow {
			return nil, fmt.Errorf("entity %s: unsupported kind %q", entity.ID, entity.Kind)
		}
		out = append(out, metrics.MonitoredEntity{
			ID:      entity.ID,
			Kind:    kind,
			Weights: entity.Weights,
			Targets: entity.Targets,
		})
	}
	return out, nil
}
