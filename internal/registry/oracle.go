package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("haveibeendrained/registry")

// AccountReader is the subset of the Solana RPC client used for registry reads.
type AccountReader interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

// Client reads drainer entries from the registry program.
type Client struct {
	program    *Program
	reader     AccountReader
	commitment rpc.CommitmentType
}

// NewClient creates a registry client. A nil reader is a configuration error.
func NewClient(program *Program, reader AccountReader, commitment string) (*Client, error) {
	if program == nil || reader == nil {
		return nil, fmt.Errorf("%w: registry client requires a program and an RPC reader", domain.ErrProviderMisconfigured)
	}
	c := rpc.CommitmentConfirmed
	if commitment != "" {
		c = rpc.CommitmentType(commitment)
	}
	return &Client{program: program, reader: reader, commitment: c}, nil
}

// Program returns the registry program the client reads from.
func (c *Client) Program() *Program {
	return c.program
}

// IsKnownDrainer reports whether address has at least one registry report.
// A missing account is (false, nil). Transport and decoding failures are
// returned as *domain.LookupError.
func (c *Client) IsKnownDrainer(ctx context.Context, address string) (bool, error) {
	entry, err := c.GetEntry(ctx, address)
	switch {
	case err == nil:
		metrics.RegistryLookupsTotal.WithLabelValues(metrics.LookupHit).Inc()
		return entry.ReportCount > 0, nil
	case errors.Is(err, domain.ErrDrainerNotFound):
		metrics.RegistryLookupsTotal.WithLabelValues(metrics.LookupMiss).Inc()
		return false, nil
	default:
		metrics.RegistryLookupsTotal.WithLabelValues(metrics.LookupError).Inc()
		return false, err
	}
}

// GetEntry fetches and decodes the registry entry for address.
// Returns domain.ErrDrainerNotFound when the address was never reported.
func (c *Client) GetEntry(ctx context.Context, address string) (*domain.DrainerRegistryEntry, error) {
	ctx, span := tracer.Start(ctx, "registry.GetEntry")
	defer span.End()
	span.SetAttributes(attribute.String("drainer.address", address))

	drainer, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, &domain.LookupError{Address: address, Err: err}
	}

	pda, _, err := c.program.DrainerPDA(drainer)
	if err != nil {
		return nil, &domain.LookupError{Address: address, Err: err}
	}

	res, err := c.reader.GetAccountInfoWithOpts(ctx, pda, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (res == nil || res.Value == nil)) {
		return nil, domain.ErrDrainerNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account fetch failed")
		slog.Debug("registry lookup failed", "address", address, "pda", pda.String(), "error", err)
		return nil, &domain.LookupError{Address: address, Err: err}
	}

	if !res.Value.Owner.Equals(c.program.ID) {
		err := fmt.Errorf("%w: owned by %s", ErrInvalidAccount, res.Value.Owner)
		return nil, &domain.LookupError{Address: address, Err: err}
	}

	if res.Value.Data == nil {
		return nil, &domain.LookupError{Address: address, Err: fmt.Errorf("%w: no data", ErrInvalidAccount)}
	}

	entry, err := DecodeDrainerReport(res.Value.Data.GetBinary())
	if err != nil {
		span.RecordError(err)
		return nil, &domain.LookupError{Address: address, Err: err}
	}
	entry.PDA = pda.String()

	span.SetAttributes(attribute.Int("drainer.report_count", int(entry.ReportCount)))
	return entry, nil
}
