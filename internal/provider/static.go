package provider

import (
	"context"
	"sync"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
)

// StaticProvider serves canned transaction histories from memory.
// Used for local development and tests.
type StaticProvider struct {
	mu      sync.RWMutex
	history map[string][]domain.TransactionRecord
	errs    map[string]error
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		history: make(map[string][]domain.TransactionRecord),
		errs:    make(map[string]error),
	}
}

// Set replaces the history for address. Records are kept newest first.
func (p *StaticProvider) Set(address string, records ...domain.TransactionRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[address] = records
	delete(p.errs, address)
}

// Fail makes every fetch for address return err.
func (p *StaticProvider) Fail(address string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[address] = err
}

// Fetch implements domain.TransactionProvider.
func (p *StaticProvider) Fetch(ctx context.Context, address string, limit int) ([]domain.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Op: "fetch", Err: err}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if err, ok := p.errs[address]; ok {
		return nil, err
	}

	records := p.history[address]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	out := make([]domain.TransactionRecord, len(records))
	copy(out, records)
	return out, nil
}
