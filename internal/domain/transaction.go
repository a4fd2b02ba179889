package domain

import (
	"context"
	"time"
)

// TransactionRecord is one already-parsed transaction from a wallet's history.
// Records are immutable and scoped to a single analysis call.
type TransactionRecord struct {
	Signature string `json:"signature"`

	// BlockTime is unix seconds; nil when the provider did not report it.
	BlockTime *int64 `json:"blockTime,omitempty"`

	// Instructions in execution order (outer first, then inner instructions).
	Instructions []Instruction `json:"instructions"`

	// Accounts referenced by the transaction message, in message order.
	Accounts []AccountRole `json:"accounts"`
}

// Instruction is a parsed program instruction.
type Instruction struct {
	ProgramID string `json:"programId"`

	// Program is the parser's program name, e.g. "spl-token" or "system".
	Program string `json:"program,omitempty"`

	// Type is the parsed operation type, e.g. "setAuthority" or "approve".
	Type string `json:"type"`

	// Info holds the parsed operation fields as delivered by the provider.
	Info map[string]any `json:"info,omitempty"`
}

// AccountRole describes how an account participates in a transaction.
type AccountRole struct {
	Address    string `json:"address"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// Time returns the block time as a time.Time, or the zero value when unknown.
func (t *TransactionRecord) Time() time.Time {
	if t.BlockTime == nil {
		return time.Time{}
	}
	return time.Unix(*t.BlockTime, 0).UTC()
}

// NonSignerAccounts returns the distinct non-signer account addresses in message order.
func (t *TransactionRecord) NonSignerAccounts() []string {
	seen := make(map[string]bool, len(t.Accounts))
	out := make([]string, 0, len(t.Accounts))
	for _, acc := range t.Accounts {
		if acc.IsSigner || acc.Address == "" || seen[acc.Address] {
			continue
		}
		seen[acc.Address] = true
		out = append(out, acc.Address)
	}
	return out
}

// TransactionProvider supplies a wallet's recent transaction history.
// Records are returned newest first. Transport failures are reported as
// *ProviderError; a provider that cannot operate at all returns an error
// wrapping ErrProviderMisconfigured.
type TransactionProvider interface {
	Fetch(ctx context.Context, address string, limit int) ([]TransactionRecord, error)
}
