package storage

import "time"

type EntityRecord struct {
	ID        string
	Kind      string
	Weights   []byte
	Targets   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AlertRecord struct {
	ID           string
	EntityID     string
	Metric       string
	Severity     string
	DeviationPct float64
	BaselineVal  float64
	ObservedVal  float64
	TSUTC        time.Time
	Acknowledged bool
}
