package metrics

import (
	"testing"
	"time"
)

func TestRecordSampleUnregisteredEntity(t *testing.T) {
	store := NewMetricStore(DefaultRetention())
	if err := store.RecordSample("ghost", "efficiency", 0.9, time.Now()); err != ErrInvalidEntity {
		t.Fatalf("expected ErrInvalidEntity got %v", err)
	}
}

func TestRecordSampleIdempotent(t *testing.T) {
	store := NewMetricStore(DefaultRetention())
	store.AddEntity("team-1")
	ts := time.Now().UTC()
	if err := store.RecordSample("team-1", "efficiency", 0.8, ts); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := store.RecordSample("team-1", "efficiency", 0.9, ts); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	samples := store.Samples("team-1", "efficiency", time.Time{}, time.Time{})
	if len(samples) != 1 {
		t.Fatalf("expected exactly one sample got %d", len(samples))
	}
	if samples[0].Value != 0.9 {
		t.Fatalf("expected last write to win, got %v", samples[0].Value)
	}
}

func TestSamplesAscendingOrder(t *testing.T) {
	store := NewMetricStore(DefaultRetention())
	store.AddEntity("team-1")
	now := time.Now().UTC()
	for _, offset := range []time.Duration{30 * time.Second, 10 * time.Second, 20 * time.Second} {
		if err := store.RecordSample("team-1", "quality", 0.5, now.Add(-offset)); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	samples := store.Samples("team-1", "quality", time.Time{}, time.Time{})
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples got %d", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].TS.Before(samples[i-1].TS) {
			t.Fatalf("samples not in ascending order")
		}
	}
}

func TestPurgeRespectsHorizons(t *testing.T) {
	store := NewMetricStore(DefaultRetention())
	store.AddEntity("team-1")
	now := time.Now().UTC()
	if err := store.RecordSample("team-1", "efficiency", 0.8, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := store.RecordSample("team-1", "efficiency", 0.9, now.Add(-time.Minute)); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	old := AggregatedBucket{
		EntityID: "team-1", Metric: "efficiency", Tier: TierHourly,
		WindowStart: now.Add(-48 * time.Hour), WindowEnd: now.Add(-47 * time.Hour),
		Mean: 0.8, SampleCount: 10,
	}
	fresh := old
	fresh.WindowStart = now.Add(-2 * time.Hour)
	fresh.WindowEnd = now.Add(-time.Hour)
	if err := store.PutBucket(old); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.PutBucket(fresh); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	// rollups are caught up, so purge runs on horizons alone
	store.MarkAggregated(TierRealtime, now)
	store.MarkAggregated(TierHourly, now)
	store.Purge(now)
	samples := store.Samples("team-1", "efficiency", time.Time{}, time.Time{})
	if len(samples) != 1 {
		t.Fatalf("expected stale raw sample purged, got %d samples", len(samples))
	}
	for _, sample := range samples {
		if now.Sub(sample.TS) > DefaultRetention().Realtime {
			t.Fatalf("sample older than realtime horizon survived purge")
		}
	}
	buckets, err := store.Query("team-1", "efficiency", TierHourly, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("expected stale bucket purged, got %d buckets", len(buckets))
	}
}

func TestQueryRealtimeTierWrapsSamples(t *testing.T) {
	store := NewMetricStore(DefaultRetention())
	store.AddEntity("team-1")
	now := time.Now().UTC()
	if err := store.RecordSample("team-1", "efficiency", 0.75, now); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	buckets, err := store.Query("team-1", "efficiency", TierRealtime, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Mean != 0.75 || buckets[0].SampleCount != 1 {
		t.Fatalf("unexpected realtime bucket %+v", buckets)
	}
}

func TestQueryRange(t *testing.T) {
	store := NewMetricStore(DefaultRetention())
	store.AddEntity("team-1")
	base := time.Now().UTC().Truncate(time.Hour)
	for i := 0; i < 5; i++ {
		b := AggregatedBucket{
			EntityID: "team-1", Metric: "quality", Tier: TierHourly,
			WindowStart: base.Add(time.Duration(i) * time.Hour),
			WindowEnd:   base.Add(time.Duration(i+1) * time.Hour),
			Mean:        float64(i), SampleCount: 1,
		}
		if err := store.PutBucket(b); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}
	buckets, err := store.Query("team-1", "quality", TierHourly, base.Add(time.Hour), base.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets in range got %d", len(buckets))
	}
}

func TestRemoveEntityDropsSeries(t *testing.T) {
	store := NewMetricStore(DefaultRetention())
	store.AddEntity("team-1")
	if err := store.RecordSample("team-1", "efficiency", 0.8, time.Now().UTC()); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	store.RemoveEntity("team-1")
	if err := store.RecordSample("team-1", "efficiency", 0.8, time.Now().UTC()); err != ErrInvalidEntity {
		t.Fatalf("expected ErrInvalidEntity after removal got %v", err)
	}
	if samples := store.Samples("team-1", "efficiency", time.Time{}, time.Time{}); len(samples) != 0 {
		t.Fatalf("expected series dropped got %d samples", len(samples))
	}
}
