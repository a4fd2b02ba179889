package domain

import (
	"context"
	"time"
)

// DrainerOracle answers whether an address is a reported drainer.
// An absent registry entry is (false, nil); a check that could not be
// completed returns a *LookupError.
type DrainerOracle interface {
	IsKnownDrainer(ctx context.Context, address string) (bool, error)
}

// AttackCategory classifies a reported drainer.
type AttackCategory uint8

const (
	AttackPhishing          AttackCategory = 0
	AttackFakeAirdrop       AttackCategory = 1
	AttackSocialEngineering AttackCategory = 2
	AttackMaliciousApproval AttackCategory = 3
	AttackSetAuthority      AttackCategory = 4
	AttackUnknown           AttackCategory = 255
)

func (c AttackCategory) String() string {
	switch c {
	case AttackPhishing:
		return "phishing"
	case AttackFakeAirdrop:
		return "fake_airdrop"
	case AttackSocialEngineering:
		return "social_engineering"
	case AttackMaliciousApproval:
		return "malicious_approval"
	case AttackSetAuthority:
		return "set_authority"
	default:
		return "unknown"
	}
}

// MarshalText renders the category name in JSON.
func (c AttackCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// DrainerRegistryEntry is the decoded on-chain record for one reported drainer.
// Entries are created on first report and only ever accumulate.
type DrainerRegistryEntry struct {
	DrainerAddress  string    `json:"drainerAddress"`
	ReportCount     uint32    `json:"reportCount"`
	FirstSeenAt     time.Time `json:"firstSeenAt"`
	LastSeenAt      time.Time `json:"lastSeenAt"`
	TotalLamports   uint64    `json:"totalAmountReported"`
	RecentReporters []string  `json:"recentReporters"`

	// Enrichment written by the registry authority.
	AttackCategory AttackCategory `json:"attackCategory"`
	AttackMethods  []int          `json:"attackMethods"`
	Summary        string         `json:"summary,omitempty"`
	KeyDomains     []string       `json:"keyDomains"`
	Confidence     uint8          `json:"confidence"`

	// PDA is the registry account address holding this entry.
	PDA string `json:"pda"`
}
