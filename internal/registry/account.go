package registry

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ErrInvalidAccount is returned when account data is not a DrainerReport.
var ErrInvalidAccount = errors.New("account is not a drainer report")

// drainerReportAccount mirrors the on-chain DrainerReport layout after the discriminator.
type drainerReportAccount struct {
	DrainerAddress   solana.PublicKey
	ReportCount      uint32
	FirstSeen        int64
	LastSeen         int64
	TotalSOLReported uint64
	RecentReporters  [2]solana.PublicKey
}

// drainerReportMetadata is the enrichment block appended by later program versions.
type drainerReportMetadata struct {
	AttackCategory uint8
	AttackMethods  []uint8
	Summary        string
	KeyDomains     []string
	Confidence     uint8
}

// DecodeDrainerReport decodes raw DrainerReport account data. Accounts written
// before the enrichment block existed decode with AttackUnknown and empty metadata.
func DecodeDrainerReport(data []byte) (*domain.DrainerRegistryEntry, error) {
	if len(data) < len(drainerReportDiscriminator) {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAccount, len(data))
	}
	if !bytes.Equal(data[:8], drainerReportDiscriminator[:]) {
		return nil, fmt.Errorf("%w: discriminator mismatch", ErrInvalidAccount)
	}

	dec := bin.NewBorshDecoder(data[8:])

	var raw drainerReportAccount
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode drainer report: %w", err)
	}

	entry := &domain.DrainerRegistryEntry{
		DrainerAddress:  raw.DrainerAddress.String(),
		ReportCount:     raw.ReportCount,
		FirstSeenAt:     time.Unix(raw.FirstSeen, 0).UTC(),
		LastSeenAt:      time.Unix(raw.LastSeen, 0).UTC(),
		TotalLamports:   raw.TotalSOLReported,
		RecentReporters: make([]string, 0, len(raw.RecentReporters)),
		AttackCategory:  domain.AttackUnknown,
		AttackMethods:   []int{},
		KeyDomains:      []string{},
	}
	for _, r := range raw.RecentReporters {
		if !r.IsZero() {
			entry.RecentReporters = append(entry.RecentReporters, r.String())
		}
	}

	if dec.Remaining() == 0 {
		return entry, nil
	}

	var meta drainerReportMetadata
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode drainer report metadata: %w", err)
	}
	entry.AttackCategory = domain.AttackCategory(meta.AttackCategory)
	for _, m := range meta.AttackMethods {
		entry.AttackMethods = append(entry.AttackMethods, int(m))
	}
	entry.Summary = meta.Summary
	if meta.KeyDomains != nil {
		entry.KeyDomains = meta.KeyDomains
	}
	entry.Confidence = meta.Confidence

	return entry, nil
}
