package metrics

import (
	"sort"
	"sync"
	"time"
)

// Retention holds the per-tier horizons. Entries older than the horizon
// are dropped on the next purge pass.
type Retention struct {
	Realtime time.Duration
	Hourly   time.Duration
	Daily    time.Duration
	Weekly   time.Duration
}

func DefaultRetention() Retention {
	return Retention{
		Realtime: time.Hour,
		Hourly:   24 * time.Hour,
		Daily:    7 * 24 * time.Hour,
		Weekly:   30 * 24 * time.Hour,
	}
}

func (r Retention) Horizon(tier Tier) time.Duration {
	switch tier {
	case TierRealtime:
		return r.Realtime
	case TierHourly:
		return r.Hourly
	case TierDaily:
		return r.Daily
	default:
		return r.Weekly
	}
}

type MetricKey struct {
	EntityID string
	Metric   string
}

// MetricStore is the in-memory multi-tier time-series store. Raw
// samples live in the realtime tier; the aggregation scheduler rolls
// them into hourly/daily/weekly buckets. Writes are idempotent on
// (entity, metric, timestamp): a duplicate timestamp overwrites.
type MetricStore struct {
	mu        sync.RWMutex
	retention Retention
	entities  map[string]struct{}
	samples   map[MetricKey][]MetricSample
	buckets   map[Tier]map[MetricKey][]AggregatedBucket
	// aggregatedThrough[t] is the end of the last window of tier t that
	// was rolled into the next tier. Purge never crosses it, so a
	// closed-but-unrolled window stays readable for the scheduler.
	aggregatedThrough map[Tier]time.Time
}

func NewMetricStore(retention Retention) *MetricStore {
	return &MetricStore{
		retention: retention,
		entities:  map[string]struct{}{},
		samples:   map[MetricKey][]MetricSample{},
		buckets: map[Tier]map[MetricKey][]AggregatedBucket{
			TierHourly: {},
			TierDaily:  {},
			TierWeekly: {},
		},
		aggregatedThrough: map[Tier]time.Time{},
	}
}

// MarkAggregated advances a tier's rollup watermark. The watermark only
// moves forward.
func (s *MetricStore) MarkAggregated(tier Tier, through time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if through.After(s.aggregatedThrough[tier]) {
		s.aggregatedThrough[tier] = through
	}
}

func (s *MetricStore) AddEntity(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[id] = struct{}{}
}

func (s *MetricStore) RemoveEntity(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, id)
	for key := range s.samples {
		if key.EntityID == id {
			delete(s.samples, key)
		}
	}
	for _, tier := range s.buckets {
		for key := range tier {
			if key.EntityID == id {
				delete(tier, key)
			}
		}
	}
}

func (s *MetricStore) RecordSample(entityID, metric string, value float64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entityID]; !ok {
		return ErrInvalidEntity
	}
	key := MetricKey{EntityID: entityID, Metric: metric}
	series := s.samples[key]
	idx := sort.Search(len(series), func(i int) bool { return !series[i].TS.Before(ts) })
	sample := MetricSample{EntityID: entityID, Metric: metric, Value: value, TS: ts}
	if idx < len(series) && series[idx].TS.Equal(ts) {
		// retry of an already-recorded measurement, last write wins
		series[idx] = sample
		return nil
	}
	series = append(series, MetricSample{})
	copy(series[idx+1:], series[idx:])
	series[idx] = sample
	s.samples[key] = series
	return nil
}

// Samples returns a time-ascending copy of the raw samples in
// [from, to). Zero bounds are open.
func (s *MetricStore) Samples(entityID, metric string, from, to time.Time) []MetricSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.samples[MetricKey{EntityID: entityID, Metric: metric}]
	out := make([]MetricSample, 0, len(series))
	for _, sample := range series {
		if !from.IsZero() && sample.TS.Before(from) {
			continue
		}
		if !to.IsZero() && !sample.TS.Before(to) {
			continue
		}
		out = append(out, sample)
	}
	return out
}

// LatestValues returns the newest raw value per metric for one entity.
func (s *MetricStore) LatestValues(entityID string) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]float64{}
	for key, series := range s.samples {
		if key.EntityID != entityID || len(series) == 0 {
			continue
		}
		out[key.Metric] = series[len(series)-1].Value
	}
	return out
}

// Keys lists every (entity, metric) series currently holding raw
// samples. The aggregation scheduler iterates this snapshot.
func (s *MetricStore) Keys() []MetricKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]MetricKey, 0, len(s.samples))
	for key := range s.samples {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].EntityID != keys[j].EntityID {
			return keys[i].EntityID < keys[j].EntityID
		}
		return keys[i].Metric < keys[j].Metric
	})
	return keys
}

func (s *MetricStore) PutBucket(bucket AggregatedBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tier, ok := s.buckets[bucket.Tier]
	if !ok {
		return ErrUnknownTier
	}
	key := MetricKey{EntityID: bucket.EntityID, Metric: bucket.Metric}
	series := tier[key]
	idx := sort.Search(len(series), func(i int) bool { return !series[i].WindowStart.Before(bucket.WindowStart) })
	if idx < len(series) && series[idx].WindowStart.Equal(bucket.WindowStart) {
		series[idx] = bucket
		return nil
	}
	series = append(series, AggregatedBucket{})
	copy(series[idx+1:], series[idx:])
	series[idx] = bucket
	tier[key] = series
	return nil
}

// Query returns a time-ascending snapshot of buckets for one tier. The
// realtime tier is reported as single-sample buckets so every tier
// reads the same way.
func (s *MetricStore) Query(entityID, metric string, tier Tier, from, to time.Time) ([]AggregatedBucket, error) {
	if tier == TierRealtime {
		samples := s.Samples(entityID, metric, from, to)
		out := make([]AggregatedBucket, 0, len(samples))
		for _, sample := range samples {
			out = append(out, AggregatedBucket{
				EntityID:    sample.EntityID,
				Metric:      sample.Metric,
				Tier:        TierRealtime,
				WindowStart: sample.TS,
				WindowEnd:   sample.TS,
				Mean:        sample.Value,
				SampleCount: 1,
			})
		}
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	byKey, ok := s.buckets[tier]
	if !ok {
		return nil, ErrUnknownTier
	}
	series := byKey[MetricKey{EntityID: entityID, Metric: metric}]
	out := make([]AggregatedBucket, 0, len(series))
	for _, bucket := range series {
		if !from.IsZero() && bucket.WindowStart.Before(from) {
			continue
		}
		if !to.IsZero() && !bucket.WindowStart.Before(to) {
			continue
		}
		out = append(out, bucket)
	}
	return out, nil
}

// Buckets returns every bucket of a tier whose window starts in
// [from, to), across all entities. Used by tier rollups.
func (s *MetricStore) Buckets(tier Tier, from, to time.Time) map[MetricKey][]AggregatedBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[MetricKey][]AggregatedBucket{}
	for key, series := range s.buckets[tier] {
		for _, bucket := range series {
			if !from.IsZero() && bucket.WindowStart.Before(from) {
				continue
			}
			if !to.IsZero() && !bucket.WindowStart.Before(to) {
				continue
			}
			out[key] = append(out[key], bucket)
		}
	}
	return out
}

// purgeCutoffLocked caps a tier's horizon cutoff at its rollup
// watermark: entries the next tier has not consumed yet are kept even
// past the horizon, so a late or failed rollup still sees the full
// window. The weekly tier has no consumer and purges on horizon alone.
func (s *MetricStore) purgeCutoffLocked(tier Tier, now time.Time) time.Time {
	cutoff := now.Add(-s.retention.Horizon(tier))
	if tier == TierWeekly {
		return cutoff
	}
	if through := s.aggregatedThrough[tier]; through.Before(cutoff) {
		return through
	}
	return cutoff
}

// Purge drops raw samples and buckets older than their tier's horizon,
// except entries still awaiting rollup. It never fails; a failed
// aggregation in one tier does not block purging the others.
func (s *MetricStore) Purge(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rawCutoff := s.purgeCutoffLocked(TierRealtime, now)
	for key, series := range s.samples {
		idx := sort.Search(len(series), func(i int) bool { return !series[i].TS.Before(rawCutoff) })
		if idx == 0 {
			continue
		}
		if idx == len(series) {
			delete(s.samples, key)
			continue
		}
		s.samples[key] = append([]MetricSample{}, series[idx:]...)
	}
	for tier, byKey := range s.buckets {
		cutoff := s.purgeCutoffLocked(tier, now)
		for key, series := range byKey {
			idx := sort.Search(len(series), func(i int) bool { return !series[i].WindowStart.Before(cutoff) })
			if idx == 0 {
				continue
			}
			if idx == len(series) {
				delete(byKey, key)
				continue
			}
			byKey[key] = append([]AggregatedBucket{}, series[idx:]...)
		}
	}
}
