package metrics

import (
	"errors"
	"math"
	"testing"
)

func TestScoreWeightedSumInRange(t *testing.T) {
	engine := NewScoringEngine([]string{"response_time"}, map[string]float64{"response_time": 2000})
	entity := MonitoredEntity{
		ID:   "team-1",
		Kind: KindTeam,
		Weights: map[string]float64{
			"efficiency":    0.5,
			"quality":       0.3,
			"response_time": 0.2,
		},
	}
	score, err := engine.Score(entity, map[string]float64{
		"efficiency":    0.8,
		"quality":       0.9,
		"response_time": 500,
	})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score < 0 || score > 1 {
		t.Fatalf("score out of range: %v", score)
	}
	// 0.5*0.8 + 0.3*0.9 + 0.2*(2000-500)/2000
	want := 0.4 + 0.27 + 0.15
	if math.Abs(score-want) > 1e-9 {
		t.Fatalf("expected %v got %v", want, score)
	}
}

func TestScoreMissingWeight(t *testing.T) {
	engine := NewScoringEngine(nil, nil)
	entity := MonitoredEntity{ID: "team-1", Kind: KindTeam, Weights: map[string]float64{"efficiency": 1}}
	_, err := engine.Score(entity, map[string]float64{"efficiency": 0.8, "quality": 0.9})
	if !errors.Is(err, ErrMissingWeight) {
		t.Fatalf("expected ErrMissingWeight got %v", err)
	}
}

func TestScoreZeroWeightIsExplicitCoverage(t *testing.T) {
	engine := NewScoringEngine(nil, nil)
	entity := MonitoredEntity{ID: "team-1", Kind: KindTeam, Weights: map[string]float64{"efficiency": 1, "quality": 0}}
	score, err := engine.Score(entity, map[string]float64{"efficiency": 0.8, "quality": 0.2})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if math.Abs(score-0.8) > 1e-9 {
		t.Fatalf("expected 0.8 got %v", score)
	}
}

func TestNormalizeClampsRatioMetrics(t *testing.T) {
	engine := NewScoringEngine(nil, nil)
	if v := engine.Normalize("efficiency", 1.5); v != 1 {
		t.Fatalf("expected clamp to 1 got %v", v)
	}
	if v := engine.Normalize("efficiency", -0.1); v != 0 {
		t.Fatalf("expected clamp to 0 got %v", v)
	}
}

func TestNormalizeLowerIsBetterCap(t *testing.T) {
	engine := NewScoringEngine([]string{"response_time"}, map[string]float64{"response_time": 1000})
	if v := engine.Normalize("response_time", 0); v != 1 {
		t.Fatalf("expected best value 1 got %v", v)
	}
	if v := engine.Normalize("response_time", 5000); v != 0 {
		t.Fatalf("expected values above cap to score 0 got %v", v)
	}
	if v := engine.Normalize("response_time", 250); math.Abs(v-0.75) > 1e-9 {
		t.Fatalf("expected 0.75 got %v", v)
	}
}
