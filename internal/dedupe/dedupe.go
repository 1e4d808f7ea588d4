// Package dedupe resolves whether a (tenant, email) pair already has a
// canonical lead. Lookups go through a fast cache tier first, then the
// authoritative store. The cache is best-effort: any cache failure
// degrades to a store lookup, never an error.
package dedupe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/cache"
	"github.com/sells-group/leadpipe/internal/model"
)

// DefaultTTL bounds how long a resolution stays in the cache tier.
const DefaultTTL = time.Hour

// LeadResolver is the slice of the store the index needs.
type LeadResolver interface {
	// GetLeadByEmail returns nil, nil when no lead exists for the pair.
	GetLeadByEmail(ctx context.Context, tenantID, email string) (*model.Lead, error)
}

// Index is the two-tier deduplication lookup.
type Index struct {
	cache cache.Cache
	store LeadResolver
	ttl   time.Duration
}

// New builds an Index. A zero ttl falls back to DefaultTTL.
func New(c cache.Cache, store LeadResolver, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Index{cache: c, store: store, ttl: ttl}
}

func key(tenantID, email string) string {
	return fmt.Sprintf("lead:dedupe:%s:%s", tenantID, strings.ToLower(email))
}

// Resolve returns the existing lead id for (tenant, email), or "" when no
// lead exists yet. A store hit is written back to the cache.
func (i *Index) Resolve(ctx context.Context, tenantID, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", eris.New("dedupe: empty email")
	}
	k := key(tenantID, email)

	if id, err := i.cache.Get(ctx, k); err == nil {
		if id != "" {
			return id, nil
		}
		// Empty entry, drop it and fall through.
		_ = i.cache.Delete(ctx, k)
	} else if err != cache.ErrMiss {
		zap.L().Warn("dedupe cache get failed, falling through to store", zap.Error(err))
	}

	lead, err := i.store.GetLeadByEmail(ctx, tenantID, email)
	if err != nil {
		return "", eris.Wrap(err, "dedupe: store lookup")
	}
	if lead == nil {
		return "", nil
	}

	if err := i.cache.Set(ctx, k, lead.ID, i.ttl); err != nil {
		zap.L().Warn("dedupe cache set failed", zap.Error(err))
	}
	return lead.ID, nil
}

// Record proactively caches a freshly created lead so concurrent callers
// can short-circuit without a store lookup.
func (i *Index) Record(ctx context.Context, tenantID, email, leadID string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || leadID == "" {
		return
	}
	if err := i.cache.Set(ctx, key(tenantID, email), leadID, i.ttl); err != nil {
		zap.L().Warn("dedupe cache record failed", zap.Error(err))
	}
}

// Invalidate removes a cached resolution, e.g. after a lead is deleted
// out-of-band.
func (i *Index) Invalidate(ctx context.Context, tenantID, email string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	if err := i.cache.Delete(ctx, key(tenantID, email)); err != nil {
		zap.L().Warn("dedupe cache invalidate failed", zap.Error(err))
	}
}
