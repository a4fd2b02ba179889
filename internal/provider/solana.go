// Package provider fetches parsed wallet transaction history.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("haveibeendrained/provider")

const (
	// MaxSignatures is the getSignaturesForAddress page limit.
	MaxSignatures = 1000

	defaultConcurrency = 8
)

// RPC is the subset of the Solana RPC client used by SolanaProvider.
type RPC interface {
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	RPCCallForInto(ctx context.Context, out interface{}, method string, params []interface{}) error
}

// SolanaProvider reads transaction history from a Solana JSON-RPC endpoint
// using jsonParsed encoding.
type SolanaProvider struct {
	client      RPC
	commitment  rpc.CommitmentType
	concurrency int

	// IncludeFailed keeps transactions whose execution failed on chain.
	IncludeFailed bool
}

// NewSolanaProvider dials the configured RPC endpoint. An empty endpoint is
// a configuration error, not a transient failure.
func NewSolanaProvider(cfg domain.SolanaConfig) (*SolanaProvider, *rpc.Client, error) {
	if cfg.RPCEndpoint == "" {
		return nil, nil, fmt.Errorf("%w: solana rpc endpoint is not set", domain.ErrProviderMisconfigured)
	}

	var client *rpc.Client
	if cfg.APIKey != "" {
		header := cfg.APIKeyHeader
		if header == "" {
			header = "x-api-key"
		}
		client = rpc.NewWithHeaders(cfg.RPCEndpoint, map[string]string{header: cfg.APIKey})
	} else {
		client = rpc.New(cfg.RPCEndpoint)
	}

	return NewWithClient(client, cfg.Commitment, cfg.FetchConcurrency), client, nil
}

// NewWithClient wraps an existing RPC client.
func NewWithClient(client RPC, commitment string, concurrency int) *SolanaProvider {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	c := rpc.CommitmentConfirmed
	if commitment != "" {
		c = rpc.CommitmentType(commitment)
	}
	return &SolanaProvider{client: client, commitment: c, concurrency: concurrency}
}

// Fetch returns up to limit parsed transactions for address, newest first.
// Transactions the node no longer has are skipped. Individual fetch failures
// are skipped too unless every fetch failed.
func (p *SolanaProvider) Fetch(ctx context.Context, address string, limit int) ([]domain.TransactionRecord, error) {
	if p.client == nil {
		return nil, fmt.Errorf("%w: no rpc client", domain.ErrProviderMisconfigured)
	}

	ctx, span := tracer.Start(ctx, "provider.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.address", address), attribute.Int("fetch.limit", limit))

	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, domain.NewValidationError("address", err.Error())
	}

	if limit <= 0 {
		limit = 1
	}
	if limit > MaxSignatures {
		limit = MaxSignatures
	}

	sigs, err := p.client.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: p.commitment,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "signature listing failed")
		metrics.ProviderErrorsTotal.Inc()
		return nil, &domain.ProviderError{Op: "getSignaturesForAddress", Err: err}
	}
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}

	slots := make([]*domain.TransactionRecord, len(sigs))
	var (
		mu       sync.Mutex
		failures int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, sig := range sigs {
		i, sig := i, sig
		if sig == nil {
			continue
		}
		if sig.Err != nil && !p.IncludeFailed {
			continue
		}
		g.Go(func() error {
			rec, err := p.fetchTransaction(gctx, sig.Signature)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				slog.Debug("transaction fetch failed", "signature", sig.Signature.String(), "error", err)
				return nil
			}
			slots[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &domain.ProviderError{Op: "getTransaction", Err: err}
	}

	records := make([]domain.TransactionRecord, 0, len(slots))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}

	if failures > 0 {
		metrics.ProviderErrorsTotal.Add(float64(failures))
		if len(records) == 0 {
			span.SetStatus(codes.Error, "all transaction fetches failed")
			return nil, &domain.ProviderError{Op: "getTransaction", Err: lastErr}
		}
		slog.Warn("some transactions could not be fetched", "wallet", address, "failed", failures, "fetched", len(records))
	}

	span.SetAttributes(attribute.Int("fetch.count", len(records)))
	return records, nil
}

func (p *SolanaProvider) fetchTransaction(ctx context.Context, sig solana.Signature) (*domain.TransactionRecord, error) {
	maxVersion := uint64(0)
	params := []interface{}{
		sig.String(),
		map[string]interface{}{
			"encoding":                       solana.EncodingJSONParsed,
			"commitment":                     p.commitment,
			"maxSupportedTransactionVersion": maxVersion,
		},
	}

	var out *parsedTransactionResult
	if err := p.client.RPCCallForInto(ctx, &out, "getTransaction", params); err != nil {
		return nil, err
	}
	if out == nil || out.Transaction == nil {
		return nil, nil
	}
	return out.toRecord(sig.String())
}

// parsedTransactionResult mirrors the jsonParsed getTransaction response.
type parsedTransactionResult struct {
	BlockTime   *int64             `json:"blockTime"`
	Transaction *parsedTransaction `json:"transaction"`
	Meta        *parsedMeta        `json:"meta"`
}

type parsedTransaction struct {
	Signatures []string      `json:"signatures"`
	Message    parsedMessage `json:"message"`
}

type parsedMessage struct {
	AccountKeys  []parsedAccountKey  `json:"accountKeys"`
	Instructions []parsedInstruction `json:"instructions"`
}

type parsedAccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

type parsedInstruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
}

type parsedMeta struct {
	Err               interface{}              `json:"err"`
	InnerInstructions []parsedInnerInstruction `json:"innerInstructions"`
}

type parsedInnerInstruction struct {
	Index        int                 `json:"index"`
	Instructions []parsedInstruction `json:"instructions"`
}

type instructionBody struct {
	Type string         `json:"type"`
	Info map[string]any `json:"info"`
}

func (r *parsedTransactionResult) toRecord(signature string) (*domain.TransactionRecord, error) {
	rec := &domain.TransactionRecord{
		Signature:    signature,
		BlockTime:    r.BlockTime,
		Accounts:     make([]domain.AccountRole, 0, len(r.Transaction.Message.AccountKeys)),
		Instructions: make([]domain.Instruction, 0, len(r.Transaction.Message.Instructions)),
	}

	for _, k := range r.Transaction.Message.AccountKeys {
		rec.Accounts = append(rec.Accounts, domain.AccountRole{
			Address:    k.Pubkey,
			IsSigner:   k.Signer,
			IsWritable: k.Writable,
		})
	}

	appendAll := func(ixs []parsedInstruction) error {
		for _, ix := range ixs {
			converted, err := ix.toInstruction()
			if err != nil {
				return err
			}
			rec.Instructions = append(rec.Instructions, converted)
		}
		return nil
	}

	if err := appendAll(r.Transaction.Message.Instructions); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", signature, err)
	}
	if r.Meta != nil {
		for _, inner := range r.Meta.InnerInstructions {
			if err := appendAll(inner.Instructions); err != nil {
				return nil, fmt.Errorf("transaction %s inner %d: %w", signature, inner.Index, err)
			}
		}
	}

	return rec, nil
}

// toInstruction converts a parsed instruction. Instructions the node could
// not parse arrive as an encoded string and keep an empty Type.
func (ix parsedInstruction) toInstruction() (domain.Instruction, error) {
	out := domain.Instruction{ProgramID: ix.ProgramID, Program: ix.Program}

	raw := bytes.TrimSpace(ix.Parsed)
	if len(raw) == 0 || raw[0] != '{' {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body instructionBody
	if err := dec.Decode(&body); err != nil {
		return out, errors.Join(errors.New("malformed parsed instruction"), err)
	}
	out.Type = body.Type
	out.Info = body.Info
	return out, nil
}
