// Package registry talks to the on-chain drainer registry program: it derives
// report accounts, builds unsigned report_drainer instructions and decodes
// registry entries for drainer lookups.
package registry

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/gagliardetto/solana-go"
)

// DrainerSeed prefixes every report account address derivation.
const DrainerSeed = "drainer"

// AntiSpamFeeLamports is charged by the program on every report (0.01 SOL).
const AntiSpamFeeLamports uint64 = 10_000_000

// ErrAuthorityNotConfigured is returned when building a report without a fee recipient.
var ErrAuthorityNotConfigured = errors.New("registry program authority not configured")

var (
	reportDrainerDiscriminator = anchorDiscriminator("global:report_drainer")
	drainerReportDiscriminator = anchorDiscriminator("account:DrainerReport")
)

// anchorDiscriminator is the 8-byte sha256 prefix used to tag instructions and accounts.
func anchorDiscriminator(preimage string) [8]byte {
	sum := sha256.Sum256([]byte(preimage))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// Program identifies a deployed registry program.
type Program struct {
	ID solana.PublicKey

	// Authority receives the anti-spam fee. Optional for read-only use.
	Authority solana.PublicKey
}

// NewProgram parses the program id and optional authority.
func NewProgram(programID, authority string) (*Program, error) {
	id, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid registry program id: %w", err)
	}

	p := &Program{ID: id}
	if authority != "" {
		p.Authority, err = solana.PublicKeyFromBase58(authority)
		if err != nil {
			return nil, fmt.Errorf("invalid registry program authority: %w", err)
		}
	}
	return p, nil
}

// DrainerPDA derives the report account for a drainer address.
// Every report for the same drainer resolves to the same account.
func (p *Program) DrainerPDA(drainer solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(DrainerSeed), drainer.Bytes()}, p.ID)
}

// ParseAddress decodes a base58 wallet address into a public key.
func ParseAddress(field, address string) (solana.PublicKey, error) {
	if address == "" {
		return solana.PublicKey{}, domain.NewValidationError(field, "address is required")
	}
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, domain.NewValidationError(field, "not a valid base58 public key")
	}
	return pk, nil
}
