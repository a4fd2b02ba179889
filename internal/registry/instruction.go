package registry

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"math/big"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const lamportsPerSOLExp = 9

var maxLamports = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// reportDrainerArgs is the borsh payload following the instruction discriminator.
type reportDrainerArgs struct {
	DrainerAddress solana.PublicKey
	AmountStolen   *uint64 `bin:"optional"`
}

// ReportInstruction is an unsigned report_drainer instruction ready for an
// external signer. Nothing here is signed or submitted.
type ReportInstruction struct {
	Instruction *solana.GenericInstruction
	Drainer     solana.PublicKey
	Reporter    solana.PublicKey
	PDA         solana.PublicKey
	Bump        uint8

	// Lamports is the floored stolen amount, nil when not reported.
	Lamports *uint64
}

// SOLToLamports floors a SOL amount into lamports. Rounding down never
// over-credits the registry total.
func SOLToLamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, domain.NewValidationError("amountStolen", "must not be negative")
	}
	lamports := sol.Shift(lamportsPerSOLExp).Floor()
	if lamports.GreaterThan(maxLamports) {
		return 0, domain.NewValidationError("amountStolen", "exceeds the maximum lamport amount")
	}
	return lamports.BigInt().Uint64(), nil
}

// BuildReportInstruction builds the report_drainer instruction for drainer,
// paid and signed by reporter. amountSOL is optional.
//
// Self-reports, reports against the system program and reporters that are
// the fee authority are rejected with a *domain.ValidationError before any
// instruction is built.
func (p *Program) BuildReportInstruction(drainer, reporter string, amountSOL *decimal.Decimal) (*ReportInstruction, error) {
	drainerKey, err := ParseAddress("drainerAddress", drainer)
	if err != nil {
		return nil, err
	}
	reporterKey, err := ParseAddress("reporterAddress", reporter)
	if err != nil {
		return nil, err
	}

	if drainerKey.Equals(reporterKey) {
		return nil, domain.NewValidationError("drainerAddress", "cannot report yourself as a drainer")
	}
	if drainerKey.Equals(solana.SystemProgramID) {
		return nil, domain.NewValidationError("drainerAddress", "cannot report the system program")
	}
	if p.Authority.IsZero() {
		return nil, ErrAuthorityNotConfigured
	}
	if reporterKey.Equals(p.Authority) {
		return nil, domain.NewValidationError("reporterAddress", "program authority cannot report")
	}

	var lamports *uint64
	if amountSOL != nil {
		v, err := SOLToLamports(*amountSOL)
		if err != nil {
			return nil, err
		}
		lamports = &v
	}

	pda, bump, err := p.DrainerPDA(drainerKey)
	if err != nil {
		return nil, fmt.Errorf("derive drainer account: %w", err)
	}

	data, err := encodeReportDrainer(drainerKey, lamports)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(pda, true, false),
		solana.NewAccountMeta(reporterKey, true, true),
		solana.NewAccountMeta(p.Authority, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
	}

	return &ReportInstruction{
		Instruction: solana.NewInstruction(p.ID, accounts, data),
		Drainer:     drainerKey,
		Reporter:    reporterKey,
		PDA:         pda,
		Bump:        bump,
		Lamports:    lamports,
	}, nil
}

func encodeReportDrainer(drainer solana.PublicKey, lamports *uint64) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(reportDrainerDiscriminator[:])

	args := reportDrainerArgs{DrainerAddress: drainer, AmountStolen: lamports}
	if err := bin.NewBorshEncoder(buf).Encode(&args); err != nil {
		return nil, fmt.Errorf("encode report_drainer args: %w", err)
	}
	return buf.Bytes(), nil
}

// AccountView is one instruction account in wire-friendly form.
type AccountView struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// InstructionView is the JSON shape handed to wallets for signing.
type InstructionView struct {
	ProgramID           string        `json:"programId"`
	Accounts            []AccountView `json:"accounts"`
	Data                string        `json:"data"` // base64
	PDA                 string        `json:"pda"`
	Bump                uint8         `json:"bump"`
	Lamports            *uint64       `json:"lamports,omitempty"`
	AntiSpamFeeLamports uint64        `json:"antiSpamFeeLamports"`
}

// View renders the instruction for API and CLI output.
func (ri *ReportInstruction) View() InstructionView {
	accounts := make([]AccountView, 0, len(ri.Instruction.AccountValues))
	for _, a := range ri.Instruction.AccountValues {
		accounts = append(accounts, AccountView{
			Pubkey:     a.PublicKey.String(),
			IsSigner:   a.IsSigner,
			IsWritable: a.IsWritable,
		})
	}
	return InstructionView{
		ProgramID:           ri.Instruction.ProgID.String(),
		Accounts:            accounts,
		Data:                base64.StdEncoding.EncodeToString(ri.Instruction.DataBytes),
		PDA:                 ri.PDA.String(),
		Bump:                ri.Bump,
		Lamports:            ri.Lamports,
		AntiSpamFeeLamports: AntiSpamFeeLamports,
	}
}
