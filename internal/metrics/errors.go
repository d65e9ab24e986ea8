package metrics

import "errors"

var (
	ErrInvalidEntity   = errors.New("entity not registered")
	ErrMissingWeight   = errors.New("metric has no configured weight")
	ErrMissingBaseline = errors.New("no baseline established")
	ErrUnknownTier     = errors.New("unknown tier")
)
