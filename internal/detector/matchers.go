// Package detector classifies wallet transactions against the catalogue of
// known drain patterns and the drainer registry.
package detector

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
)

// Parsed instruction types and fields as emitted by jsonParsed RPC encoding.
const (
	typeSetAuthority   = "setAuthority"
	typeApprove        = "approve"
	typeApproveChecked = "approveChecked"

	authorityAccountOwner = "accountOwner"
)

// Heuristic confidences. Informational only, never used in scoring.
const (
	confidenceSetAuthority      = 95
	confidenceUnlimitedApproval = 90
	confidenceKnownDrainer      = 85
)

var recommendations = map[domain.DetectionType][]string{
	domain.DetectionSetAuthority: {
		"Move remaining assets to a new wallet immediately",
		"Treat token accounts whose ownership was transferred as lost",
		"Never sign transactions that change token account ownership",
	},
	domain.DetectionUnlimitedApproval: {
		"Revoke the unlimited token approval",
		"Only approve the exact amount a dApp needs",
	},
	domain.DetectionKnownDrainer: {
		"Stop interacting with the flagged address",
		"Move remaining assets to a new wallet immediately",
		"Revoke any approvals granted to the flagged address",
	},
}

// Recommendations returns the advice attached to a detection type.
func Recommendations(t domain.DetectionType) []string {
	recs := recommendations[t]
	out := make([]string, len(recs))
	copy(out, recs)
	return out
}

// Matcher is one entry in the pattern catalogue.
type Matcher struct {
	Type  domain.DetectionType
	Match func(tx *domain.TransactionRecord) *domain.Detection
}

// Catalogue returns the local pattern matchers in evaluation order.
func Catalogue() []Matcher {
	return []Matcher{
		{Type: domain.DetectionSetAuthority, Match: MatchSetAuthority},
		{Type: domain.DetectionUnlimitedApproval, Match: MatchUnlimitedApproval},
	}
}

// MatchSetAuthority flags token account ownership transfers.
// Only authorityType "accountOwner" matches; closeAuthority and the other
// authority kinds are legitimate in normal account lifecycles.
func MatchSetAuthority(tx *domain.TransactionRecord) *domain.Detection {
	if tx == nil {
		return nil
	}

	var det *domain.Detection
	for _, ix := range tx.Instructions {
		if ix.Type != typeSetAuthority {
			continue
		}
		if stringField(ix.Info, "authorityType") != authorityAccountOwner {
			continue
		}
		account := stringField(ix.Info, "account")
		newAuthority := stringField(ix.Info, "newAuthority")
		if account == "" || newAuthority == "" {
			continue
		}

		if det == nil {
			d := newDetection(domain.DetectionSetAuthority, confidenceSetAuthority, tx)
			det = &d
		}
		det.AddAffected(account)
		det.AddRecipient(newAuthority)
	}
	return det
}

// MatchUnlimitedApproval flags token approvals for exactly 2^64-1 base units.
// Large but finite approvals are not flagged.
func MatchUnlimitedApproval(tx *domain.TransactionRecord) *domain.Detection {
	if tx == nil {
		return nil
	}

	var det *domain.Detection
	for _, ix := range tx.Instructions {
		var amount any
		switch ix.Type {
		case typeApprove:
			amount = ix.Info["amount"]
		case typeApproveChecked:
			tokenAmount, ok := ix.Info["tokenAmount"].(map[string]any)
			if !ok {
				continue
			}
			amount = tokenAmount["amount"]
		default:
			continue
		}

		if !isMaxUint64(amount) {
			continue
		}
		delegate := stringField(ix.Info, "delegate")
		if delegate == "" {
			continue
		}

		if det == nil {
			d := newDetection(domain.DetectionUnlimitedApproval, confidenceUnlimitedApproval, tx)
			det = &d
		}
		det.AddRecipient(delegate)
		det.AddAffected(stringField(ix.Info, "source"))
	}
	return det
}

func newDetection(t domain.DetectionType, confidence int, tx *domain.TransactionRecord) domain.Detection {
	d := domain.NewDetection(t, confidence, tx)
	d.Recommendations = Recommendations(t)
	return d
}

// isMaxUint64 reports whether a parsed amount is exactly 2^64-1.
// Float values cannot represent the sentinel exactly and never match.
func isMaxUint64(v any) bool {
	switch n := v.(type) {
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		return err == nil && u == math.MaxUint64
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		return err == nil && u == math.MaxUint64
	case uint64:
		return n == math.MaxUint64
	default:
		return false
	}
}

func stringField(info map[string]any, key string) string {
	s, _ := info[key].(string)
	return s
}
