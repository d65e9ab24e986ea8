package metrics

import (
	"fmt"
	"sync"
	"time"
)

type tierState string

const (
	stateIdle        tierState = "idle"
	stateAggregating tierState = "aggregating"
	stateCommitted   tierState = "committed"
)

func tierWindow(tier Tier) time.Duration {
	switch tier {
	case TierHourly:
		return time.Hour
	case TierDaily:
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// AggregationScheduler rolls closed windows into coarser tiers: raw
// samples into hourly buckets, hourly into daily, daily into weekly. A
// failed rollup is retried on the next tick and never blocks purging.
type AggregationScheduler struct {
	mu     sync.Mutex
	store  *MetricStore
	states map[Tier]tierState
}

func NewAggregationScheduler(store *MetricStore) *AggregationScheduler {
	return &AggregationScheduler{
		store: store,
		states: map[Tier]tierState{
			TierHourly: stateIdle,
			TierDaily:  stateIdle,
			TierWeekly: stateIdle,
		},
	}
}

func (s *AggregationScheduler) State(tier Tier) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.states[tier])
}

func (s *AggregationScheduler) begin(tier Tier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.states[tier] {
	case stateAggregating:
		return false
	case stateCommitted:
		// the previous commit rests until the next tick arms
		s.states[tier] = stateIdle
	}
	s.states[tier] = stateAggregating
	return true
}

// finish leaves a successful run in committed until the next tick
// re-arms it; a failed run drops straight back to idle for retry.
func (s *AggregationScheduler) finish(tier Tier, committed bool) {
	s.mu.Lock()
	if committed {
		s.states[tier] = stateCommitted
	} else {
		s.states[tier] = stateIdle
	}
	s.mu.Unlock()
}

// Run aggregates the window that closed at the tier boundary before
// now. Hourly reads raw samples; daily and weekly read the previous
// tier's buckets with a sample-count-weighted mean.
func (s *AggregationScheduler) Run(tier Tier, now time.Time) error {
	if tier == TierRealtime {
		return fmt.Errorf("tier %s: %w", tier, ErrUnknownTier)
	}
	if !s.begin(tier) {
		return nil
	}
	window := tierWindow(tier)
	windowEnd := now.Truncate(window)
	windowStart := windowEnd.Add(-window)
	source := TierRealtime
	var err error
	if tier == TierHourly {
		err = s.rollupSamples(windowStart, windowEnd)
	} else {
		source = TierHourly
		if tier == TierWeekly {
			source = TierDaily
		}
		err = s.rollupBuckets(source, tier, windowStart, windowEnd)
	}
	if err == nil {
		// purge may now reclaim the consumed part of the source tier
		s.store.MarkAggregated(source, windowEnd)
	}
	s.finish(tier, err == nil)
	return err
}

func (s *AggregationScheduler) rollupSamples(windowStart, windowEnd time.Time) error {
	for _, key := range s.store.Keys() {
		samples := s.store.Samples(key.EntityID, key.Metric, windowStart, windowEnd)
		if len(samples) == 0 {
			continue
		}
		values := make([]float64, len(samples))
		for i, sample := range samples {
			values[i] = sample.Value
		}
		bucket := AggregatedBucket{
			EntityID:    key.EntityID,
			Metric:      key.Metric,
			Tier:        TierHourly,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			Mean:        mean(values),
			SampleCount: len(samples),
		}
		if err := s.store.PutBucket(bucket); err != nil {
			return fmt.Errorf("hourly rollup %s/%s: %w", key.EntityID, key.Metric, err)
		}
	}
	return nil
}

func (s *AggregationScheduler) rollupBuckets(source, target Tier, windowStart, windowEnd time.Time) error {
	for key, buckets := range s.store.Buckets(source, windowStart, windowEnd) {
		total := 0
		weighted := 0.0
		for _, bucket := range buckets {
			total += bucket.SampleCount
			weighted += bucket.Mean * float64(bucket.SampleCount)
		}
		if total == 0 {
			continue
		}
		rollup := AggregatedBucket{
			EntityID:    key.EntityID,
			Metric:      key.Metric,
			Tier:        target,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			Mean:        weighted / float64(total),
			SampleCount: total,
		}
		if err := s.store.PutBucket(rollup); err != nil {
			return fmt.Errorf("%s rollup %s/%s: %w", target, key.EntityID, key.Metric, err)
		}
	}
	return nil
}
