package metrics

import "testing"

func TestEstablishFirstWriteWins(t *testing.T) {
	manager := NewBaselineManager()
	manager.Establish("team-1", "efficiency", 0.80, false)
	manager.Establish("team-1", "efficiency", 0.99, false)
	value, ok := manager.Get("team-1", "efficiency")
	if !ok || value != 0.80 {
		t.Fatalf("expected original baseline 0.80 got %v ok=%v", value, ok)
	}
}

func TestEstablishForceOverrides(t *testing.T) {
	manager := NewBaselineManager()
	manager.Establish("team-1", "efficiency", 0.80, false)
	manager.Establish("team-1", "efficiency", 0.99, true)
	if value, _ := manager.Get("team-1", "efficiency"); value != 0.99 {
		t.Fatalf("expected forced baseline 0.99 got %v", value)
	}
}

func TestBaselinesIndependentPerMetric(t *testing.T) {
	manager := NewBaselineManager()
	manager.Establish("team-1", "efficiency", 0.80, false)
	if _, ok := manager.Get("team-1", "quality"); ok {
		t.Fatalf("expected no baseline for untouched metric")
	}
}

func TestResetDropsEntityBaselines(t *testing.T) {
	manager := NewBaselineManager()
	manager.Establish("team-1", "efficiency", 0.80, false)
	manager.Establish("team-2", "efficiency", 0.70, false)
	manager.Reset("team-1")
	if _, ok := manager.Get("team-1", "efficiency"); ok {
		t.Fatalf("expected team-1 baselines cleared")
	}
	if _, ok := manager.Get("team-2", "efficiency"); !ok {
		t.Fatalf("expected team-2 baseline untouched")
	}
}
