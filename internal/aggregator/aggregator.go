// Package aggregator reduces per-transaction detections into a single wallet verdict.
package aggregator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
)

// Severity scores. The overall risk is the score of the worst detection.
var severityScore = map[domain.Severity]int{
	domain.SeverityCritical: 100,
	domain.SeverityHigh:     75,
	domain.SeverityMedium:   40,
	domain.SeverityLow:      10,
}

// Label thresholds.
const (
	DrainedThreshold = 90
	AtRiskThreshold  = 40
)

// Context carries the wallet-level facts copied onto the report.
type Context struct {
	WalletAddress    string
	TransactionCount int

	// Now overrides the analysis timestamp; zero means time.Now().
	Now time.Time
}

// Score returns the numeric score of a severity and whether it is known.
func Score(s domain.Severity) (int, bool) {
	v, ok := severityScore[s]
	return v, ok
}

// Label maps an overall risk score to the caller-facing verdict.
func Label(score int) domain.RiskLabel {
	switch {
	case score >= DrainedThreshold:
		return domain.RiskDrained
	case score >= AtRiskThreshold:
		return domain.RiskAtRisk
	default:
		return domain.RiskSafe
	}
}

// Aggregate builds the RiskReport for a wallet.
//
// The detections are carried through unmodified and in input order. The
// primary detection is the first occurrence of the highest severity.
// A detection with a severity outside the score table is an upstream bug and
// yields a *domain.AggregationError.
func Aggregate(detections []domain.Detection, c Context) (*domain.RiskReport, error) {
	analyzedAt := c.Now
	if analyzedAt.IsZero() {
		analyzedAt = time.Now().UTC()
	}

	report := &domain.RiskReport{
		OverallRisk:      0,
		Severity:         domain.RiskSafe,
		Detections:       make([]domain.Detection, len(detections)),
		Recommendations:  []string{},
		PrimaryIndex:     -1,
		WalletAddress:    c.WalletAddress,
		TransactionCount: c.TransactionCount,
		AnalyzedAt:       analyzedAt,
	}
	copy(report.Detections, detections)

	seen := make(map[string]bool)
	for i, d := range detections {
		score, ok := Score(d.Severity)
		if !ok {
			err := &domain.AggregationError{
				Reason: fmt.Sprintf("detection %d (%s) has unknown severity %q", i, d.Type, d.Severity),
			}
			slog.Error("aggregation failed",
				"wallet", c.WalletAddress,
				"signature", d.Signature,
				"error", err,
			)
			return nil, err
		}

		if report.PrimaryIndex < 0 || score > report.OverallRisk {
			report.OverallRisk = score
			report.PrimaryIndex = i
		}

		for _, rec := range d.Recommendations {
			if rec == "" || seen[rec] {
				continue
			}
			seen[rec] = true
			report.Recommendations = append(report.Recommendations, rec)
		}
	}

	report.Severity = Label(report.OverallRisk)
	return report, nil
}
