package metrics

import "fmt"

const defaultNormalizationCap = 1000

// ScoringEngine folds an entity's current metric values into one
// composite score in [0,1] using the entity's weight vector. Weights
// are taken as supplied; the registrar is responsible for making them
// sum to 1.
type ScoringEngine struct {
	lowerBetter map[string]bool
	caps        map[string]float64
}

func NewScoringEngine(lowerBetter []string, caps map[string]float64) *ScoringEngine {
	set := map[string]bool{}
	for _, metric := range lowerBetter {
		set[metric] = true
	}
	if caps == nil {
		caps = map[string]float64{}
	}
	return &ScoringEngine{lowerBetter: set, caps: caps}
}

// Normalize maps a metric value into [0,1]. Ratio metrics pass through
// clamped; lower-is-better metrics are inverted against their
// configured ceiling.
func (e *ScoringEngine) Normalize(metric string, value float64) float64 {
	if e.lowerBetter[metric] {
		ceiling := e.caps[metric]
		if ceiling <= 0 {
			ceiling = defaultNormalizationCap
		}
		if value > ceiling {
			value = ceiling
		}
		if value < 0 {
			value = 0
		}
		return (ceiling - value) / ceiling
	}
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// Score computes the weighted composite. Every reported metric must
// have a weight entry (zero weights are fine); a gap returns
// ErrMissingWeight so the caller can skip this entity for the cycle.
func (e *ScoringEngine) Score(entity MonitoredEntity, values map[string]float64) (float64, error) {
	score := 0.0
	for metric, value := range values {
		weight, ok := entity.Weights[metric]
		if !ok {
			return 0, fmt.Errorf("entity %s metric %s: %w", entity.ID, metric, ErrMissingWeight)
		}
		score += weight * e.Normalize(metric, value)
	}
	if score < 0 {
		return 0, nil
	}
	if score > 1 {
		return 1, nil
	}
	return score, nil
}
