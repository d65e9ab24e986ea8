package metrics

import (
	"math"
	"sync"
	"time"
)

const minTrendPoints = 3

type trendWindow struct {
	snapshots []ScoreSnapshot
	start     int
	count     int
	lastEmit  *TrendResult
}

// TrendAnalyzer keeps a bounded ring of score snapshots per entity and
// estimates direction by least-squares regression of score against
// sample index. TrendChanged events fire only on a direction flip or a
// confidence crossing of the emit epsilon, not every cycle.
type TrendAnalyzer struct {
	mu          sync.Mutex
	capacity    int
	epsilon     float64
	windows     map[string]*trendWindow
	subscribers []*trendSubscriber
}

const trendQueueSize = 16

type trendSubscriber struct {
	queue chan TrendEvent
	done  chan struct{}
}

func NewTrendAnalyzer(windowSize int, emitEpsilon float64) *TrendAnalyzer {
	if windowSize < minTrendPoints {
		windowSize = minTrendPoints
	}
	return &TrendAnalyzer{
		capacity: windowSize,
		epsilon:  emitEpsilon,
		windows:  map[string]*trendWindow{},
	}
}

// RecordScore appends a snapshot, evicting the oldest when the window
// is full.
func (a *TrendAnalyzer) RecordScore(entityID string, score float64, ts time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	window, ok := a.windows[entityID]
	if !ok {
		window = &trendWindow{snapshots: make([]ScoreSnapshot, a.capacity)}
		a.windows[entityID] = window
	}
	snapshot := ScoreSnapshot{EntityID: entityID, Score: score, TS: ts}
	if window.count < a.capacity {
		window.snapshots[(window.start+window.count)%a.capacity] = snapshot
		window.count++
		return
	}
	window.snapshots[window.start] = snapshot
	window.start = (window.start + 1) % a.capacity
}

func (a *TrendAnalyzer) Forget(entityID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.windows, entityID)
}

// Analyze recomputes the trend from the current window. Fewer than
// three points yields Stable with zero confidence.
func (a *TrendAnalyzer) Analyze(entityID string) TrendResult {
	a.mu.Lock()
	result, emit := a.analyzeLocked(entityID)
	var subs []*trendSubscriber
	if emit {
		subs = make([]*trendSubscriber, len(a.subscribers))
		copy(subs, a.subscribers)
	}
	a.mu.Unlock()
	if emit {
		event := TrendEvent{Entity: entityID, Trend: result, TS: time.Now().UTC()}
		for _, sub := range subs {
			select {
			case sub.queue <- event:
			default:
			}
		}
	}
	return result
}

// Current recomputes the trend from the window without touching
// emission state. Pull reads use it so polling an entity never
// publishes a TrendChanged event.
func (a *TrendAnalyzer) Current(entityID string) TrendResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.computeLocked(entityID)
}

func (a *TrendAnalyzer) computeLocked(entityID string) TrendResult {
	result := TrendResult{EntityID: entityID, Direction: DirectionStable}
	window, ok := a.windows[entityID]
	if !ok || window.count < minTrendPoints {
		return result
	}
	xs := make([]float64, window.count)
	ys := make([]float64, window.count)
	for i := 0; i < window.count; i++ {
		xs[i] = float64(i)
		ys[i] = window.snapshots[(window.start+i)%a.capacity].Score
	}
	slope, _, ok := linearRegression(xs, ys)
	if !ok {
		return result
	}
	result.Slope = slope
	result.Confidence = math.Abs(slope) * math.Sqrt(float64(window.count))
	switch {
	case slope > a.epsilon:
		result.Direction = DirectionImproving
	case slope < -a.epsilon:
		result.Direction = DirectionDeclining
	}
	return result
}

func (a *TrendAnalyzer) analyzeLocked(entityID string) (TrendResult, bool) {
	result := a.computeLocked(entityID)
	window, ok := a.windows[entityID]
	if !ok || window.count < minTrendPoints {
		return result, false
	}
	emit := false
	if window.lastEmit == nil {
		emit = result.Direction != DirectionStable || result.Confidence >= a.epsilon
	} else {
		directionChanged := window.lastEmit.Direction != result.Direction
		crossed := (window.lastEmit.Confidence < a.epsilon) != (result.Confidence < a.epsilon)
		emit = directionChanged || crossed
	}
	if emit {
		emitted := result
		window.lastEmit = &emitted
	}
	return result, emit
}

func (a *TrendAnalyzer) Subscribe(handler TrendHandler) {
	sub := &trendSubscriber{queue: make(chan TrendEvent, trendQueueSize), done: make(chan struct{})}
	a.mu.Lock()
	a.subscribers = append(a.subscribers, sub)
	a.mu.Unlock()
	go func() {
		for {
			select {
			case event := <-sub.queue:
				deliverTrend(handler, event)
			case <-sub.done:
				return
			}
		}
	}()
}

func deliverTrend(handler TrendHandler, event TrendEvent) {
	defer func() { _ = recover() }()
	handler(event)
}

func (a *TrendAnalyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, sub := range a.subscribers {
		close(sub.done)
	}
	a.subscribers = nil
}
