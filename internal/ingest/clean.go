// Package ingest turns raw distance rows into per-run sample series.
package ingest

import (
	"math"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// DefaultSentinel is the distance value the monitoring node writes when no
// human is tracked. Rows at or above it are not measurements.
const DefaultSentinel = 1000.0

// CleanStats counts the rows Clean dropped, by reason.
type CleanStats struct {
	Total     int `json:"total"`
	Kept      int `json:"kept"`
	NonFinite int `json:"non_finite"`
	Sentinel  int `json:"sentinel"`
	NoRecipe  int `json:"no_recipe"`
}

// Dropped returns the number of rows removed.
func (s CleanStats) Dropped() int {
	return s.Total - s.Kept
}

// Clean drops rows with a missing recipe, a non-finite distance or
// timestamp, and rows whose distance reaches sentinel. A non-positive
// sentinel disables the sentinel filter. The input is not modified.
func Clean(records []domain.RawRecord, sentinel float64) ([]domain.RawRecord, CleanStats) {
	st := CleanStats{Total: len(records)}
	out := make([]domain.RawRecord, 0, len(records))
	for _, r := range records {
		switch {
		case r.Recipe == "":
			st.NoRecipe++
		case !finite(r.Mean) || !finite(r.Timestamp):
			st.NonFinite++
		case sentinel > 0 && r.Mean >= sentinel:
			st.Sentinel++
		default:
			out = append(out, r)
		}
	}
	st.Kept = len(out)
	return out, st
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
