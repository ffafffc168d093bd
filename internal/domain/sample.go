package domain

// RawRecord is one row as supplied by a record source, before cleaning and
// grouping. Recipe identifies the run and embeds the strategy key.
type RawRecord struct {
	Recipe    string  `json:"recipe" bson:"Recipe"`
	Mean      float64 `json:"mean" bson:"Mean"`
	Timestamp float64 `json:"timestamp" bson:"Timestamp"`
}

// Sample is a single minimum human-robot distance measurement in meters.
type Sample struct {
	Timestamp float64 `json:"timestamp"`
	Distance  float64 `json:"distance"`
}

// Run is one execution of a strategy. Samples are ordered by strictly
// increasing timestamp. A Run is never mutated after it is built.
type Run struct {
	ID       string   `json:"id"`
	Strategy string   `json:"strategy"`
	Samples  []Sample `json:"samples"`
}

// Distances returns the distance column of the run.
func (r Run) Distances() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Distance
	}
	return out
}

// Duration is the elapsed time between the first and last sample. Runs with
// fewer than two samples have no duration.
func (r Run) Duration() float64 {
	if len(r.Samples) < 2 {
		return 0
	}
	return r.Samples[len(r.Samples)-1].Timestamp - r.Samples[0].Timestamp
}

// TaskResult is one executed task of a recipe, used for plan duration
// statistics.
type TaskResult struct {
	Recipe string  `json:"recipe" bson:"recipe"`
	TStart float64 `json:"t_start" bson:"t_start"`
	TEnd   float64 `json:"t_end" bson:"t_end"`
}
