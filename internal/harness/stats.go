package harness

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Samples are recorded in microseconds, from 1µs up to one hour, with three
// significant digits.
const (
	minRecordable = 1
	maxRecordable = int64(time.Hour / time.Microsecond)
	sigFigs       = 3
)

// z95 is the two-sided 95% normal quantile used for the relative error.
const z95 = 1.96

// Stats summarises a set of repetition durations. Durations are in
// milliseconds.
type Stats struct {
	Count    int64   `json:"count"`
	MeanMS   float64 `json:"mean_ms"`
	MedianMS float64 `json:"median_ms"`
	StddevMS float64 `json:"stddev_ms"`
	MinMS    float64 `json:"min_ms"`
	MaxMS    float64 `json:"max_ms"`
	// ErrorPct is the half-width of the 95% confidence interval of the mean,
	// relative to the mean.
	ErrorPct float64 `json:"error_pct"`
}

// Summarize reduces durations to Stats.
func Summarize(durations []time.Duration) Stats {
	h := hdrhistogram.New(minRecordable, maxRecordable, sigFigs)
	for _, d := range durations {
		us := d.Microseconds()
		us = max(us, minRecordable)
		us = min(us, maxRecordable)
		// Clamped above, so the value is always in range.
		_ = h.RecordValue(us)
	}

	st := Stats{Count: h.TotalCount()}
	if st.Count == 0 {
		return st
	}

	st.MeanMS = h.Mean() / 1000
	st.MedianMS = float64(h.ValueAtQuantile(50)) / 1000
	st.StddevMS = h.StdDev() / 1000
	st.MinMS = float64(h.Min()) / 1000
	st.MaxMS = float64(h.Max()) / 1000
	if st.MeanMS > 0 {
		sem := st.StddevMS / math.Sqrt(float64(st.Count))
		st.ErrorPct = 100 * z95 * sem / st.MeanMS
	}
	return st
}
