package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Config carries the recognized engine options. Zero values fall back
// to the defaults from the configuration surface.
type Config struct {
	UpdateInterval   time.Duration
	Retention        Retention
	Thresholds       Thresholds
	AlertRetention   time.Duration
	TrendWindowSize  int
	TrendEmitEpsilon float64
	LowerIsBetter    []string
	NormalizationCap map[string]float64
}

func DefaultConfig() Config {
	return Config{
		UpdateInterval:   5 * time.Second,
		Retention:        DefaultRetention(),
		Thresholds:       DefaultThresholds(),
		AlertRetention:   24 * time.Hour,
		TrendWindowSize:  10,
		TrendEmitEpsilon: 0.01,
		LowerIsBetter:    []string{"response_time", "error_rate"},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = def.UpdateInterval
	}
	if c.Retention == (Retention{}) {
		c.Retention = def.Retention
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = def.Thresholds
	}
	if c.AlertRetention <= 0 {
		c.AlertRetention = def.AlertRetention
	}
	if c.TrendWindowSize <= 0 {
		c.TrendWindowSize = def.TrendWindowSize
	}
	if c.TrendEmitEpsilon <= 0 {
		c.TrendEmitEpsilon = def.TrendEmitEpsilon
	}
	if c.LowerIsBetter == nil {
		c.LowerIsBetter = def.LowerIsBetter
	}
	return c
}

// Engine owns the whole metrics pipeline: store, baselines, alerting,
// scoring, trend analysis and the aggregation timers. Collaborator
// teams register entities, push samples and subscribe to events; all
// state lives here, not in package globals.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	store      *MetricStore
	baselines  *BaselineManager
	alerts     *AlertEngine
	scoring    *ScoringEngine
	trend      *TrendAnalyzer
	aggregator *AggregationScheduler

	mu          sync.RWMutex
	entities    map[string]MonitoredEntity
	entityLocks map[string]*sync.Mutex

	runMu  sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	store := NewMetricStore(cfg.Retention)
	baselines := NewBaselineManager()
	return &Engine{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		baselines:   baselines,
		alerts:      NewAlertEngine(baselines, cfg.Thresholds, cfg.LowerIsBetter, cfg.AlertRetention),
		scoring:     NewScoringEngine(cfg.LowerIsBetter, cfg.NormalizationCap),
		trend:       NewTrendAnalyzer(cfg.TrendWindowSize, cfg.TrendEmitEpsilon),
		aggregator:  NewAggregationScheduler(store),
		entities:    map[string]MonitoredEntity{},
		entityLocks: map[string]*sync.Mutex{},
	}
}

// RegisterEntity adds or updates a monitored entity. Re-registering an
// existing entity replaces its weights and targets (configuration
// reload); recorded samples and baselines are kept.
func (e *Engine) RegisterEntity(entity MonitoredEntity) error {
	if entity.ID == "" {
		return errors.New("entity id is required")
	}
	if entity.Kind != KindTeam && entity.Kind != KindWorkflow {
		return fmt.Errorf("unsupported entity kind %q", entity.Kind)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entities[entity.ID] = entity
	if _, ok := e.entityLocks[entity.ID]; !ok {
		e.entityLocks[entity.ID] = &sync.Mutex{}
	}
	e.store.AddEntity(entity.ID)
	return nil
}

func (e *Engine) DeregisterEntity(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entities[id]; !ok {
		return ErrInvalidEntity
	}
	delete(e.entities, id)
	delete(e.entityLocks, id)
	e.store.RemoveEntity(id)
	e.baselines.Reset(id)
	e.trend.Forget(id)
	return nil
}

func (e *Engine) Entity(id string) (MonitoredEntity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entity, ok := e.entities[id]
	return entity, ok
}

func (e *Engine) entityLock(id string) (*sync.Mutex, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lock, ok := e.entityLocks[id]
	return lock, ok
}

// RecordSample ingests one measurement. The first observation of a
// metric establishes its baseline.
func (e *Engine) RecordSample(entityID, metric string, value float64, ts time.Time) error {
	lock, ok := e.entityLock(entityID)
	if !ok {
		return ErrInvalidEntity
	}
	lock.Lock()
	defer lock.Unlock()
	if err := e.store.RecordSample(entityID, metric, value, ts); err != nil {
		return err
	}
	e.baselines.Establish(entityID, metric, value, false)
	return nil
}

// Rebaseline resets an entity's baselines to its next observed values.
func (e *Engine) Rebaseline(entityID string) error {
	lock, ok := e.entityLock(entityID)
	if !ok {
		return ErrInvalidEntity
	}
	lock.Lock()
	defer lock.Unlock()
	e.baselines.Reset(entityID)
	for metric, value := range e.store.LatestValues(entityID) {
		e.baselines.Establish(entityID, metric, value, true)
	}
	return nil
}

func (e *Engine) Query(entityID, metric string, tier Tier, from, to time.Time) ([]AggregatedBucket, error) {
	if _, ok := e.Entity(entityID); !ok {
		return nil, ErrInvalidEntity
	}
	return e.store.Query(entityID, metric, tier, from, to)
}

// CurrentScore computes the composite score from the entity's latest
// raw values.
func (e *Engine) CurrentScore(entityID string) (float64, error) {
	entity, ok := e.Entity(entityID)
	if !ok {
		return 0, ErrInvalidEntity
	}
	values := e.store.LatestValues(entityID)
	return e.scoring.Score(entity, values)
}

func (e *Engine) Trend(entityID string) (TrendResult, error) {
	if _, ok := e.Entity(entityID); !ok {
		return TrendResult{}, ErrInvalidEntity
	}
	return e.trend.Current(entityID), nil
}

func (e *Engine) Alerts(entityID string) []Alert {
	return e.alerts.Alerts(entityID)
}

func (e *Engine) AcknowledgeAlert(alertID string) bool {
	return e.alerts.Acknowledge(alertID)
}

func (e *Engine) SubscribeAlerts(handler AlertHandler) {
	e.alerts.Subscribe(handler)
}

func (e *Engine) SubscribeTrends(handler TrendHandler) {
	e.trend.Subscribe(handler)
}

type EntityOverview struct {
	ID    string      `json:"id"`
	Kind  EntityKind  `json:"kind"`
	Score *float64    `json:"score,omitempty"`
	Trend TrendResult `json:"trend"`
}

// Overview reads a point-in-time snapshot of every entity's latest
// score and trend. Entities mid-cycle may be briefly stale; there is no
// cross-entity transaction.
func (e *Engine) Overview() []EntityOverview {
	ids := e.entityIDs()
	out := make([]EntityOverview, 0, len(ids))
	for _, id := range ids {
		entity, ok := e.Entity(id)
		if !ok {
			continue
		}
		overview := EntityOverview{ID: entity.ID, Kind: entity.Kind, Trend: e.trend.Current(id)}
		if score, err := e.CurrentScore(id); err == nil {
			overview.Score = &score
		}
		out = append(out, overview)
	}
	return out
}

// Start launches the periodic cycles: scoring/alerting/trend on the
// update interval, one aggregation timer per tier, and retention
// purging. Stop halts all timers and waits for in-flight cycles.
func (e *Engine) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.stop != nil || e.closed {
		return
	}
	e.stop = make(chan struct{})
	e.runLoop(e.cfg.UpdateInterval, e.evaluateCycle)
	e.runAlignedLoop(time.Hour, func(now time.Time) { e.runAggregation(TierHourly, now) })
	e.runAlignedLoop(24*time.Hour, func(now time.Time) { e.runAggregation(TierDaily, now) })
	e.runAlignedLoop(7*24*time.Hour, func(now time.Time) { e.runAggregation(TierWeekly, now) })
	purgeInterval := e.cfg.Retention.Realtime / 2
	if purgeInterval <= 0 {
		purgeInterval = time.Minute
	}
	e.runLoop(purgeInterval, func(now time.Time) {
		e.store.Purge(now)
		e.alerts.Purge(now)
	})
}

func (e *Engine) runLoop(interval time.Duration, fn func(now time.Time)) {
	stop := e.stop
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				fn(now.UTC())
			case <-stop:
				return
			}
		}
	}()
}

// nextTierBoundary returns the first window boundary after now.
// Windows are anchored the same way Run truncates them, so an aligned
// tick always closes a whole window.
func nextTierBoundary(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window).Add(window)
}

// runAlignedLoop fires at wall-clock window boundaries: first at the
// next boundary after start, then every window. An unaligned ticker
// would let purge eat into a window before its rollup reads it.
func (e *Engine) runAlignedLoop(window time.Duration, fn func(now time.Time)) {
	stop := e.stop
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		timer := time.NewTimer(time.Until(nextTierBoundary(time.Now().UTC(), window)))
		defer timer.Stop()
		select {
		case now := <-timer.C:
			fn(now.UTC())
		case <-stop:
			return
		}
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				fn(now.UTC())
			case <-stop:
				return
			}
		}
	}()
}

func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.closed {
		return
	}
	if e.stop != nil {
		close(e.stop)
		e.wg.Wait()
		e.stop = nil
	}
	e.alerts.Close()
	e.trend.Close()
	e.closed = true
}

// evaluateCycle runs one monitoring pass over every entity: alert
// evaluation per metric, composite scoring, trend update. A
// misconfigured metric skips that computation only.
func (e *Engine) evaluateCycle(now time.Time) {
	for _, id := range e.entityIDs() {
		e.evaluateEntity(id, now)
	}
}

func (e *Engine) entityIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.entities))
	for id := range e.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) evaluateEntity(entityID string, now time.Time) {
	entity, ok := e.Entity(entityID)
	if !ok {
		return
	}
	lock, ok := e.entityLock(entityID)
	if !ok {
		return
	}
	lock.Lock()
	defer lock.Unlock()
	values := e.store.LatestValues(entityID)
	for metric, value := range values {
		if _, err := e.alerts.Evaluate(entityID, metric, value, now); err != nil {
			if errors.Is(err, ErrMissingBaseline) {
				e.logger.Debug("alerting skipped", slog.String("entity", entityID), slog.String("metric", metric))
				continue
			}
			e.logger.Error("alert evaluation failed", slog.String("entity", entityID), slog.String("metric", metric), slog.String("error", err.Error()))
		}
	}
	score, err := e.scoring.Score(entity, values)
	if err != nil {
		e.logger.Warn("scoring skipped", slog.String("entity", entityID), slog.String("error", err.Error()))
		return
	}
	e.trend.RecordScore(entityID, score, now)
	e.trend.Analyze(entityID)
}

func (e *Engine) runAggregation(tier Tier, now time.Time) {
	if err := e.aggregator.Run(tier, now); err != nil {
		// retried on the next scheduled tick
		e.logger.Error("aggregation failed", slog.String("tier", string(tier)), slog.String("error", err.Error()))
	}
}
