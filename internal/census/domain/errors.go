package domain

import (
	"errors"
	"fmt"
)

// RejectReason classifies why a run was refused.
type RejectReason string

const (
	// ReasonAcquisitionFailure: the snapshot source was unreachable or
	// produced malformed output. Transient.
	ReasonAcquisitionFailure RejectReason = "AcquisitionFailure"

	// ReasonBelowSafetyThreshold: the snapshot carried fewer records than
	// the hard floor. Could be a render glitch or a real site change.
	ReasonBelowSafetyThreshold RejectReason = "BelowSafetyThreshold"

	// ReasonStatisticalAnomaly: a run metric deviated too far from the
	// pulse baseline. Retried once to rule out a one-off glitch.
	ReasonStatisticalAnomaly RejectReason = "StatisticalAnomaly"

	// ReasonIntegrityViolation: the proposed registry's checksum dropped
	// beyond tolerance. Never retried blindly.
	ReasonIntegrityViolation RejectReason = "IntegrityViolation"
)

// Rejection is the error returned when a run is refused. It carries the
// offending metric and z-score for anomaly rejections so the failure can be
// diagnosed from the run summary alone.
type Rejection struct {
	Reason RejectReason
	Detail string

	// Metric and ZScore are set for StatisticalAnomaly rejections.
	Metric string
	ZScore float64
}

func (r *Rejection) Error() string {
	if r.Metric != "" {
		return fmt.Sprintf("%s: %s (metric=%s z=%.2f)", r.Reason, r.Detail, r.Metric, r.ZScore)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Reject constructs a Rejection error.
func Reject(reason RejectReason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// ErrVersionConflict is returned by the store when a commit's expected prior
// version does not match the persisted head. It means another reconciliation
// committed concurrently; the run must not be retried against stale state.
var ErrVersionConflict = errors.New("registry version conflict")
