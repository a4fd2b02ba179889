package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/metrics"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/retry"
)

var (
	cachedKnown = []byte("1")
	cachedClean = []byte("0")
)

// CachedOracle memoizes registry answers and retries transient lookup failures.
// Failed lookups are never cached.
type CachedOracle struct {
	next        domain.DrainerOracle
	cache       domain.Cache
	positiveTTL time.Duration
	negativeTTL time.Duration
	retry       retry.Policy
}

// NewCachedOracle wraps next. A nil cache disables memoization.
func NewCachedOracle(next domain.DrainerOracle, cache domain.Cache, positiveTTL, negativeTTL time.Duration, policy retry.Policy) *CachedOracle {
	if positiveTTL <= 0 {
		positiveTTL = time.Hour
	}
	if negativeTTL <= 0 {
		negativeTTL = 5 * time.Minute
	}
	return &CachedOracle{
		next:        next,
		cache:       cache,
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
		retry:       policy,
	}
}

// IsKnownDrainer implements domain.DrainerOracle.
func (o *CachedOracle) IsKnownDrainer(ctx context.Context, address string) (bool, error) {
	if o.cache != nil {
		val, err := o.cache.Get(ctx, domain.ScopeRegistry, address)
		if err != nil {
			slog.Warn("registry cache read failed", "address", address, "error", err)
		} else if val != nil {
			metrics.RegistryLookupsTotal.WithLabelValues(metrics.LookupCache).Inc()
			return string(val) == string(cachedKnown), nil
		}
	}

	var known bool
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		k, err := o.next.IsKnownDrainer(ctx, address)
		if err != nil {
			if errors.Is(err, ErrInvalidAccount) {
				return retry.Permanent(err)
			}
			return err
		}
		known = k
		return nil
	})
	if err != nil {
		var le *domain.LookupError
		if errors.As(err, &le) {
			return false, err
		}
		return false, &domain.LookupError{Address: address, Err: err}
	}

	if o.cache != nil {
		val, ttl := cachedClean, o.negativeTTL
		if known {
			val, ttl = cachedKnown, o.positiveTTL
		}
		if err := o.cache.Set(ctx, domain.ScopeRegistry, address, val, ttl); err != nil {
			slog.Warn("registry cache write failed", "address", address, "error", err)
		}
	}
	return known, nil
}

// Invalidate drops a cached answer, e.g. after a new report is prepared.
func (o *CachedOracle) Invalidate(ctx context.Context, address string) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.Delete(ctx, domain.ScopeRegistry, address)
}
