// Package validate gates fresh snapshots before the notary is allowed to
// reconcile them. Two independent layers apply: a hard record-count floor
// that always runs, and statistical anomaly checks against the pulse
// baseline that only engage once enough accepted runs exist.
package validate

import (
	"librarian/internal/census/domain"
	"librarian/internal/census/pulse"
)

// Validator holds the tuning for snapshot admission.
type Validator struct {
	// SafetyThreshold is the minimum record count a snapshot must carry.
	// A count below this floor is treated as a broken capture regardless
	// of history.
	SafetyThreshold int

	// AnomalyZ is the z-score above which a metric is anomalous.
	AnomalyZ float64

	// MinBaseline is the number of accepted pulses required before the
	// statistical layer engages. Below it only the floor applies.
	MinBaseline int
}

// New returns a validator with the given tuning. Non-positive values fall
// back to conservative defaults.
func New(safetyThreshold int, anomalyZ float64, minBaseline int) *Validator {
	v := &Validator{
		SafetyThreshold: safetyThreshold,
		AnomalyZ:        anomalyZ,
		MinBaseline:     minBaseline,
	}
	if v.SafetyThreshold <= 0 {
		v.SafetyThreshold = 40
	}
	if v.AnomalyZ <= 0 {
		v.AnomalyZ = 3.0
	}
	if v.MinBaseline <= 0 {
		v.MinBaseline = 5
	}
	return v
}

// Check admits or rejects a snapshot against the baseline. It is pure: no
// state is mutated and the same inputs always produce the same verdict.
// Rejections are *domain.Rejection errors carrying the offending metric.
func (v *Validator) Check(snap domain.Snapshot, history *pulse.History) error {
	count := snap.Count()
	if count < v.SafetyThreshold {
		return domain.Reject(domain.ReasonBelowSafetyThreshold,
			"snapshot carried %d records, floor is %d", count, v.SafetyThreshold)
	}

	if history == nil || history.Len() < v.MinBaseline {
		return nil
	}

	checks := []struct {
		metric pulse.Metric
		value  float64
	}{
		{pulse.MetricCount, float64(count)},
		{pulse.MetricWealth, float64(snap.TotalWealth())},
		{pulse.MetricPayload, float64(snap.PayloadSize)},
	}
	for _, c := range checks {
		stats := history.Stats(c.metric)
		z := stats.ZScore(c.value)
		if z > v.AnomalyZ {
			rej := domain.Reject(domain.ReasonStatisticalAnomaly,
				"%s=%.0f deviates from baseline mean=%.1f stddev=%.1f over %d runs",
				c.metric, c.value, stats.Mean, stats.StdDev, stats.N)
			rej.Metric = string(c.metric)
			rej.ZScore = z
			return rej
		}
	}
	return nil
}
