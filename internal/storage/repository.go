package storage

import (
	"context"
)

// Repository is the durable log behind the in-memory engine: entity
// registrations and every raised alert. The engine never reads it back;
// it exists for dashboards and audits.
type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

func (r *Repository) UpsertEntity(ctx context.Context, rec EntityRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO monitored_entities (id, kind, weights, targets, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now(),now())
		ON CONFLICT (id) DO UPDATE SET kind=$2, weights=$3, targets=$4, updated_at=now()`,
		rec.ID, rec.Kind, rec.Weights, rec.Targets,
	)
	return err
}

func (r *Repository) DeleteEntity(ctx context.Context, id string) error {
	_, err := r.Store.Pool.Exec(ctx, `DELETE FROM monitored_entities WHERE id=$1`, id)
	return err
}

func (r *Repository) CreateAlert(ctx context.Context, alert AlertRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO metric_alerts (id, entity_id, metric, severity, deviation_pct, baseline_value, observed_value, ts_utc, acknowledged)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		alert.ID, alert.EntityID, alert.Metric, alert.Severity, alert.DeviationPct, alert.BaselineVal, alert.ObservedVal, alert.TSUTC, alert.Acknowledged,
	)
	return err
}

func (r *Repository) ListAlerts(ctx context.Context, entityID string) ([]AlertRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, entity_id, metric, severity, deviation_pct, baseline_value, observed_value, ts_utc, acknowledged
		FROM metric_alerts WHERE entity_id=$1 ORDER BY ts_utc DESC`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []AlertRecord{}
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(&rec.ID, &rec.EntityID, &rec.Metric, &rec.Severity, &rec.DeviationPct, &rec.BaselineVal, &rec.ObservedVal, &rec.TSUTC, &rec.Acknowledged); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

func (r *Repository) MarkAlertAcknowledged(ctx context.Context, alertID string) error {
	tag, err := r.Store.Pool.Exec(ctx, `UPDATE metric_alerts SET acknowledged=true WHERE id=$1`, alertID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
