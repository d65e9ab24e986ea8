package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Thresholds are deviation cutoffs checked most severe first.
type Thresholds struct {
	Info     float64
	Warning  float64
	Critical float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Info: 0.05, Warning: 0.10, Critical: 0.15}
}

const alertQueueSize = 64

type alertSubscriber struct {
	queue chan Alert
	done  chan struct{}
}

// AlertEngine compares current values against established baselines and
// raises tiered alerts. A fresh alert is emitted every cycle a
// threshold is met; deduplication is a consumer concern. Subscribers
// get their own buffered queue so a slow consumer cannot stall the
// evaluation cycle.
type AlertEngine struct {
	mu          sync.Mutex
	baselines   *BaselineManager
	thresholds  Thresholds
	lowerBetter map[string]bool
	retention   time.Duration
	alerts      []Alert
	subscribers []*alertSubscriber
}

func NewAlertEngine(baselines *BaselineManager, thresholds Thresholds, lowerBetter []string, retention time.Duration) *AlertEngine {
	set := map[string]bool{}
	for _, metric := range lowerBetter {
		set[metric] = true
	}
	return &AlertEngine{
		baselines:   baselines,
		thresholds:  thresholds,
		lowerBetter: set,
		retention:   retention,
	}
}

// Deviation computes the directional percentage deviation of current
// from the baseline. For lower-is-better metrics (response time, error
// rate) growth is the bad direction.
func (e *AlertEngine) Deviation(metric string, baseline, current float64) float64 {
	if baseline == 0 {
		return 0
	}
	if e.lowerBetter[metric] {
		return (current - baseline) / baseline
	}
	return (baseline - current) / baseline
}

func (e *AlertEngine) classify(deviation float64) (Severity, bool) {
	switch {
	case deviation >= e.thresholds.Critical:
		return SeverityCritical, true
	case deviation >= e.thresholds.Warning:
		return SeverityWarning, true
	case deviation >= e.thresholds.Info:
		return SeverityInfo, true
	default:
		return "", false
	}
}

// Evaluate runs one alert check for a metric's current value. A missing
// baseline returns ErrMissingBaseline so the caller can skip the metric
// without halting the cycle; no alert is raised below the info tier.
func (e *AlertEngine) Evaluate(entityID, metric string, current float64, now time.Time) (*Alert, error) {
	baseline, ok := e.baselines.Get(entityID, metric)
	if !ok {
		return nil, ErrMissingBaseline
	}
	deviation := e.Deviation(metric, baseline, current)
	severity, hit := e.classify(deviation)
	if !hit {
		return nil, nil
	}
	alert := Alert{
		ID:           uuid.NewString(),
		EntityID:     entityID,
		Metric:       metric,
		Severity:     severity,
		DeviationPct: deviation,
		Baseline:     baseline,
		Observed:     current,
		TS:           now,
	}
	e.mu.Lock()
	e.alerts = append(e.alerts, alert)
	subs := make([]*alertSubscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub.queue <- alert:
		default:
			// subscriber backlog full, drop rather than block the cycle
		}
	}
	return &alert, nil
}

func (e *AlertEngine) Subscribe(handler AlertHandler) {
	sub := &alertSubscriber{queue: make(chan Alert, alertQueueSize), done: make(chan struct{})}
	e.mu.Lock()
	e.subscribers = append(e.subscribers, sub)
	e.mu.Unlock()
	go func() {
		for {
			select {
			case alert := <-sub.queue:
				deliver(handler, alert)
			case <-sub.done:
				return
			}
		}
	}()
}

// deliver isolates handler panics from the dispatch loop.
func deliver(handler AlertHandler, alert Alert) {
	defer func() { _ = recover() }()
	handler(alert)
}

func (e *AlertEngine) Acknowledge(alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.alerts {
		if e.alerts[i].ID == alertID {
			e.alerts[i].Acknowledged = true
			return true
		}
	}
	return false
}

// Alerts returns the retained alerts for an entity, newest first. An
// empty entityID returns all entities.
func (e *AlertEngine) Alerts(entityID string) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, 0, len(e.alerts))
	for _, alert := range e.alerts {
		if entityID != "" && alert.EntityID != entityID {
			continue
		}
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.After(out[j].TS) })
	return out
}

// Purge drops alerts older than the alert retention horizon.
func (e *AlertEngine) Purge(now time.Time) {
	cutoff := now.Add(-e.retention)
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.alerts[:0]
	for _, alert := range e.alerts {
		if alert.TS.Before(cutoff) {
			continue
		}
		kept = append(kept, alert)
	}
	e.alerts = kept
}

func (e *AlertEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sub := range e.subscribers {
		close(sub.done)
	}
	e.subscribers = nil
}
