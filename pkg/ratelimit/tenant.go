package ratelimit

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Tier names recognised by the tenant limiter.
const (
	TierDefault = "default"
	TierPremium = "premium"
)

// Quota is the request budget for one tier.
type Quota struct {
	Limit  int
	Period time.Duration
}

// DefaultTiers are the built-in tenant quotas.
func DefaultTiers() map[string]Quota {
	return map[string]Quota{
		TierDefault: {Limit: 200, Period: 60 * time.Second},
		TierPremium: {Limit: 1000, Period: 60 * time.Second},
	}
}

// TierResolver looks up the tier assigned to a tenant. Returning an empty
// string or an error selects the default tier.
type TierResolver func(tenant string) (string, error)

// TenantLimiter applies tier-based quotas per tenant. Tier lookups hit the
// config store, so resolved tiers are held in a short-lived cache.
type TenantLimiter struct {
	limiter   *Limiter
	tiers     map[string]Quota
	resolve   TierResolver
	tierCache *expirable.LRU[string, string]
}

// NewTenantLimiter builds a tenant limiter. resolve may be nil, in which
// case every tenant gets the default tier.
func NewTenantLimiter(tiers map[string]Quota, resolve TierResolver) *TenantLimiter {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	return &TenantLimiter{
		limiter:   NewLimiter(),
		tiers:     tiers,
		resolve:   resolve,
		tierCache: expirable.NewLRU[string, string](1024, nil, 30*time.Second),
	}
}

// Allow counts one request against the tenant's tier quota. The returned
// tier name feeds the denial response.
func (t *TenantLimiter) Allow(tenant string) (Decision, string) {
	tier := t.tierFor(tenant)
	quota, ok := t.tiers[tier]
	if !ok {
		tier = TierDefault
		quota = t.tiers[TierDefault]
	}
	return t.limiter.Allow(tenant, quota.Limit, quota.Period), tier
}

// CleanupInactive evicts tenants not seen for maxInactive.
func (t *TenantLimiter) CleanupInactive(maxInactive time.Duration) int {
	return t.limiter.CleanupInactive(maxInactive)
}

// ActiveTenants reports the number of tenants with live buckets.
func (t *TenantLimiter) ActiveTenants() int {
	return t.limiter.Len()
}

func (t *TenantLimiter) tierFor(tenant string) string {
	if t.resolve == nil {
		return TierDefault
	}
	if tier, ok := t.tierCache.Get(tenant); ok {
		return tier
	}
	tier, err := t.resolve(tenant)
	if err != nil || tier == "" {
		tier = TierDefault
	}
	t.tierCache.Add(tenant, tier)
	return tier
}
