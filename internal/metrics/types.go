package metrics

import "time"

type EntityKind string

const (
	KindTeam     EntityKind = "team"
	KindWorkflow EntityKind = "workflow"
)

// MonitoredEntity is a registered team or workflow whose metrics the
// engine tracks. Weights must cover every metric the entity reports and
// are expected to sum to 1; the engine does not rescale them.
type MonitoredEntity struct {
	ID      string             `json:"id"`
	Kind    EntityKind         `json:"kind"`
	Weights map[string]float64 `json:"weights"`
	Targets map[string]float64 `json:"targets"`
}

type MetricSample struct {
	EntityID string    `json:"entityId"`
	Metric   string    `json:"metric"`
	Value    float64   `json:"value"`
	TS       time.Time `json:"ts"`
}

type Tier string

const (
	TierRealtime Tier = "realtime"
	TierHourly   Tier = "hourly"
	TierDaily    Tier = "daily"
	TierWeekly   Tier = "weekly"
)

type AggregatedBucket struct {
	EntityID    string    `json:"entityId"`
	Metric      string    `json:"metric"`
	Tier        Tier      `json:"tier"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Mean        float64   `json:"mean"`
	SampleCount int       `json:"sampleCount"`
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Alert struct {
	ID           string    `json:"id"`
	EntityID     string    `json:"entityId"`
	Metric       string    `json:"metric"`
	Severity     Severity  `json:"severity"`
	DeviationPct float64   `json:"deviationPct"`
	Baseline     float64   `json:"baseline"`
	Observed     float64   `json:"observed"`
	TS           time.Time `json:"ts"`
	Acknowledged bool      `json:"acknowledged"`
}

type ScoreSnapshot struct {
	EntityID string    `json:"entityId"`
	TS       time.Time `json:"ts"`
	Score    float64   `json:"score"`
}

type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionDeclining Direction = "declining"
	DirectionStable    Direction = "stable"
)

type TrendResult struct {
	EntityID   string    `json:"entityId"`
	Slope      float64   `json:"slope"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
}

// TrendEvent is pushed to trend subscribers when an entity's direction
// flips or its confidence crosses the emit threshold.
type TrendEvent struct {
	Entity string      `json:"entity"`
	Trend  TrendResult `json:"trend"`
	TS     time.Time   `json:"ts"`
}

type AlertHandler func(Alert)

type TrendHandler func(TrendEvent)
