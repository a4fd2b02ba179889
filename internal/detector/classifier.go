package detector

import (
	"context"
	"errors"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
)

// OracleFunc adapts a plain function to domain.DrainerOracle.
type OracleFunc func(ctx context.Context, address string) (bool, error)

// IsKnownDrainer calls f.
func (f OracleFunc) IsKnownDrainer(ctx context.Context, address string) (bool, error) {
	return f(ctx, address)
}

// Classify runs every catalogue matcher and the known-drainer check over tx.
// The checks are independent and may all fire on the same transaction.
//
// Registry failures never suppress local matches: the detections found so far
// are returned together with the joined *domain.LookupError values.
func Classify(ctx context.Context, tx *domain.TransactionRecord, oracle domain.DrainerOracle) ([]domain.Detection, error) {
	detections := make([]domain.Detection, 0, 2)
	if tx == nil {
		return detections, nil
	}

	for _, m := range Catalogue() {
		if d := m.Match(tx); d != nil {
			detections = append(detections, *d)
		}
	}

	if oracle == nil {
		return detections, nil
	}

	d, err := DetectKnownDrainer(ctx, tx, oracle)
	if d != nil {
		detections = append(detections, *d)
	}
	return detections, err
}

// DetectKnownDrainer checks the distinct non-signer accounts of tx, in message
// order, against the registry. The first reported drainer yields a single
// CRITICAL detection. Accounts whose lookup failed are skipped and reported
// in the returned error.
func DetectKnownDrainer(ctx context.Context, tx *domain.TransactionRecord, oracle domain.DrainerOracle) (*domain.Detection, error) {
	if tx == nil || oracle == nil {
		return nil, nil
	}

	var errs []error
	for _, addr := range tx.NonSignerAccounts() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		known, err := oracle.IsKnownDrainer(ctx, addr)
		if err != nil {
			errs = append(errs, asLookupError(addr, err))
			continue
		}
		if !known {
			continue
		}

		d := newDetection(domain.DetectionKnownDrainer, confidenceKnownDrainer, tx)
		d.AddRecipient(addr)
		for _, acc := range tx.Accounts {
			if acc.IsSigner {
				d.AddAffected(acc.Address)
			}
		}
		return &d, errors.Join(errs...)
	}
	return nil, errors.Join(errs...)
}

// LookupFailures counts the *domain.LookupError values carried by err,
// including those inside errors.Join trees.
func LookupFailures(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range joined.Unwrap() {
			n += LookupFailures(e)
		}
		return n
	}
	if domain.IsLookup(err) {
		return 1
	}
	return 0
}

func asLookupError(addr string, err error) error {
	var le *domain.LookupError
	if errors.As(err, &le) {
		return err
	}
	return &domain.LookupError{Address: addr, Err: err}
}
