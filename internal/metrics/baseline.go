package metrics

import (
	"sync"
	"time"
)

type Baseline struct {
	EntityID      string    `json:"entityId"`
	Metric        string    `json:"metric"`
	Value         float64   `json:"value"`
	EstablishedAt time.Time `json:"establishedAt"`
}

// BaselineManager snapshots the first observed value per (entity,
// metric) as the deviation reference. Exactly one baseline is active
// per pair; re-establishing is a no-op unless forced.
type BaselineManager struct {
	mu        sync.RWMutex
	baselines map[MetricKey]Baseline
}

func NewBaselineManager() *BaselineManager {
	return &BaselineManager{baselines: map[MetricKey]Baseline{}}
}

func (m *BaselineManager) Establish(entityID, metric string, value float64, force bool) Baseline {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := MetricKey{EntityID: entityID, Metric: metric}
	if existing, ok := m.baselines[key]; ok && !force {
		return existing
	}
	baseline := Baseline{
		EntityID:      entityID,
		Metric:        metric,
		Value:         value,
		EstablishedAt: time.Now().UTC(),
	}
	m.baselines[key] = baseline
	return baseline
}

func (m *BaselineManager) Get(entityID, metric string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	baseline, ok := m.baselines[MetricKey{EntityID: entityID, Metric: metric}]
	if !ok {
		return 0, false
	}
	return baseline.Value, true
}

func (m *BaselineManager) Reset(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.baselines {
		if key.EntityID == entityID {
			delete(m.baselines, key)
		}
	}
}
