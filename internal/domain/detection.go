package domain

import (
	"time"
)

// DetectionType identifies a drain pattern in the detection catalogue.
type DetectionType string

const (
	DetectionSetAuthority      DetectionType = "SET_AUTHORITY"
	DetectionUnlimitedApproval DetectionType = "UNLIMITED_APPROVAL"
	DetectionKnownDrainer      DetectionType = "KNOWN_DRAINER"
)

// Severity of a single detection.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// detectionSeverity is the static type -> severity table.
var detectionSeverity = map[DetectionType]Severity{
	DetectionSetAuthority:      SeverityCritical,
	DetectionUnlimitedApproval: SeverityHigh,
	DetectionKnownDrainer:      SeverityCritical,
}

// SeverityOf returns the severity assigned to a detection type.
// The second value is false for types outside the catalogue.
func SeverityOf(t DetectionType) (Severity, bool) {
	s, ok := detectionSeverity[t]
	return s, ok
}

// Rank orders severities: CRITICAL > HIGH > MEDIUM > LOW. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Detection is one piece of evidence produced by a matcher or the classifier.
type Detection struct {
	Type     DetectionType `json:"type"`
	Severity Severity      `json:"severity"`

	// Confidence is heuristic-specific (0-100) and informational only.
	Confidence int `json:"confidence"`

	AffectedAccounts     []string  `json:"affectedAccounts"`
	SuspiciousRecipients []string  `json:"suspiciousRecipients"`
	Recommendations      []string  `json:"recommendations"`
	Timestamp            time.Time `json:"timestamp"`
	Signature            string    `json:"signature"`
}

// NewDetection builds a detection whose severity comes from the type table.
func NewDetection(t DetectionType, confidence int, tx *TransactionRecord) Detection {
	sev, _ := SeverityOf(t)
	d := Detection{
		Type:                 t,
		Severity:             sev,
		Confidence:           confidence,
		AffectedAccounts:     []string{},
		SuspiciousRecipients: []string{},
		Recommendations:      []string{},
	}
	if tx != nil {
		d.Signature = tx.Signature
		d.Timestamp = tx.Time()
	}
	return d
}

// AddAffected adds an account to the affected set, ignoring empties and duplicates.
func (d *Detection) AddAffected(addr string) {
	d.AffectedAccounts = addToSet(d.AffectedAccounts, addr)
}

// AddRecipient adds an address to the suspicious recipient set.
func (d *Detection) AddRecipient(addr string) {
	d.SuspiciousRecipients = addToSet(d.SuspiciousRecipients, addr)
}

func addToSet(set []string, v string) []string {
	if v == "" {
		return set
	}
	for _, s := range set {
		if s == v {
			return set
		}
	}
	return append(set, v)
}
