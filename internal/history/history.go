// Package history exports computed scores to write-only time-series stores.
// Nothing in the service reads history back.
package history

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Record kinds
const (
	KindRisk      = "risk"
	KindPortfolio = "portfolio"
)

// Record is one computed result flattened to named values.
type Record struct {
	Kind        string             `json:"kind"`
	Subject     string             `json:"subject,omitempty"`
	Values      map[string]float64 `json:"values"`
	DataQuality string             `json:"data_quality"`
	RecordedAt  time.Time          `json:"recorded_at"`
}

// Keys returns the value names in sorted order
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sink accepts records for export
type Sink interface {
	Write(ctx context.Context, records ...Record) error
}

// Multi writes to every sink and joins their errors
type Multi []Sink

// Write forwards records to all sinks
func (m Multi) Write(ctx context.Context, records ...Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, records...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
