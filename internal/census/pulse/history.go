// Package pulse maintains the bounded time-series of summary metrics from
// past accepted runs. The history is the read-only statistical baseline the
// validator compares fresh snapshots against; it is never mutated
// retroactively, only appended to with oldest-first eviction.
package pulse

import (
	"math"
	"time"
)

// DefaultCapacity bounds the history when no capacity is configured.
// Roughly 50 days of baseline at four runs per day.
const DefaultCapacity = 200

// Pulse is the summary metrics record for one accepted run.
type Pulse struct {
	RunID       string    `json:"run_id"`
	ObservedAt  time.Time `json:"observed_at"`
	GameCount   int       `json:"game_count"`
	TotalWealth int64     `json:"total_wealth"`
	PayloadSize int64     `json:"payload_size"`
}

// Metric names a pulse dimension for statistics.
type Metric string

const (
	MetricCount   Metric = "game_count"
	MetricWealth  Metric = "total_wealth"
	MetricPayload Metric = "payload_size"
)

func (m Metric) extract(p Pulse) float64 {
	switch m {
	case MetricCount:
		return float64(p.GameCount)
	case MetricWealth:
		return float64(p.TotalWealth)
	case MetricPayload:
		return float64(p.PayloadSize)
	default:
		return 0
	}
}

// Stats holds the baseline statistics for one metric.
type Stats struct {
	Mean   float64
	StdDev float64
	N      int
}

// ZScore returns how many standard deviations value sits from the mean.
// A zero standard deviation (flat history) yields 0 when the value matches
// the mean exactly and +Inf otherwise, so a flat baseline still rejects a
// diverging run.
func (s Stats) ZScore(value float64) float64 {
	if s.StdDev == 0 {
		if value == s.Mean {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(value-s.Mean) / s.StdDev
}

// History is a bounded, oldest-evicted sequence of accepted pulses ordered
// by run time.
type History struct {
	entries  []Pulse
	capacity int
}

// NewHistory creates a history with the given capacity, seeded with any
// previously persisted entries (oldest first). Entries beyond capacity are
// trimmed from the front.
func NewHistory(capacity int, entries ...Pulse) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &History{
		entries:  make([]Pulse, 0, capacity),
		capacity: capacity,
	}
	for _, e := range entries {
		h.Append(e)
	}
	return h
}

// Append adds a pulse, evicting the oldest entry when full. Eviction is the
// only structural operation the history supports.
func (h *History) Append(p Pulse) {
	if len(h.entries) >= h.capacity {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, p)
}

// Len returns the number of retained pulses.
func (h *History) Len() int {
	return len(h.entries)
}

// Capacity returns the configured bound.
func (h *History) Capacity() int {
	return h.capacity
}

// Entries returns a copy of the retained pulses, oldest first.
func (h *History) Entries() []Pulse {
	out := make([]Pulse, len(h.entries))
	copy(out, h.entries)
	return out
}

// Latest returns the most recent pulse, or false when the history is empty.
func (h *History) Latest() (Pulse, bool) {
	if len(h.entries) == 0 {
		return Pulse{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Stats computes mean and population standard deviation for a metric over
// the retained history.
func (h *History) Stats(m Metric) Stats {
	n := len(h.entries)
	if n == 0 {
		return Stats{}
	}

	var sum float64
	for _, e := range h.entries {
		sum += m.extract(e)
	}
	mean := sum / float64(n)

	var sqDiff float64
	for _, e := range h.entries {
		d := m.extract(e) - mean
		sqDiff += d * d
	}

	return Stats{
		Mean:   mean,
		StdDev: math.Sqrt(sqDiff / float64(n)),
		N:      n,
	}
}
