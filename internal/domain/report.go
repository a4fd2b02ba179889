package domain

import (
	"time"
)

// RiskLabel is the caller-facing verdict derived from the overall risk score.
type RiskLabel string

const (
	RiskSafe    RiskLabel = "SAFE"
	RiskAtRisk  RiskLabel = "AT_RISK"
	RiskDrained RiskLabel = "DRAINED"
)

// RiskReport is the terminal output of aggregation.
type RiskReport struct {
	OverallRisk int       `json:"overallRisk"`
	Severity    RiskLabel `json:"severity"`

	// Detections is the aggregator input, unmodified and in input order.
	Detections []Detection `json:"detections"`

	// Recommendations is the ordered, de-duplicated union of every detection's advice.
	Recommendations []string `json:"recommendations"`

	// PrimaryIndex points at the first detection of the highest severity; -1 when empty.
	PrimaryIndex int `json:"primaryIndex"`

	WalletAddress    string    `json:"walletAddress"`
	TransactionCount int       `json:"transactionCount"`
	AnalyzedAt       time.Time `json:"analyzedAt"`
}

// Primary returns the detection that determined the overall score, or nil.
func (r *RiskReport) Primary() *Detection {
	if r.PrimaryIndex < 0 || r.PrimaryIndex >= len(r.Detections) {
		return nil
	}
	return &r.Detections[r.PrimaryIndex]
}

// DetectionTypes returns the distinct detection types in first-seen order.
func (r *RiskReport) DetectionTypes() []string {
	seen := make(map[DetectionType]bool)
	out := make([]string, 0, len(r.Detections))
	for _, d := range r.Detections {
		if seen[d.Type] {
			continue
		}
		seen[d.Type] = true
		out = append(out, string(d.Type))
	}
	return out
}

// Phase is a state of the wallet analysis state machine.
type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseFetching    Phase = "FETCHING"
	PhaseClassifying Phase = "CLASSIFYING"
	PhaseAggregating Phase = "AGGREGATING"
	PhaseDone        Phase = "DONE"
	PhaseFailed      Phase = "FAILED"
)

// Analysis warnings surfaced to callers alongside a degraded report.
const (
	WarningProviderUnavailable = "provider_unavailable"
	WarningRegistryDegraded    = "registry_degraded"
	WarningDeadlineExceeded    = "deadline_exceeded"
)

// Analysis wraps a RiskReport with the orchestration outcome.
type Analysis struct {
	ID     string      `json:"id"`
	Wallet string      `json:"wallet"`
	Report *RiskReport `json:"report"`
	Phase  Phase       `json:"phase"`

	// Error is set when Phase is FAILED.
	Error string `json:"error,omitempty"`

	// Partial is set when the deadline expired before every transaction was classified.
	Partial bool `json:"partial"`

	// LookupFailures counts registry checks that could not be completed.
	LookupFailures int `json:"lookupFailures"`

	Warnings []string `json:"warnings,omitempty"`

	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AddWarning records a warning once.
func (a *Analysis) AddWarning(w string) {
	for _, existing := range a.Warnings {
		if existing == w {
			return
		}
	}
	a.Warnings = append(a.Warnings, w)
}
