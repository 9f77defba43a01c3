package risk

import (
	"hash/fnv"
	"sync"
	"time"

	"OrderPipeline/internal/config"
	"OrderPipeline/internal/domain/models"

	"github.com/shopspring/decimal"
)

const limitsShardCount = 16

type limitsEntry struct {
	limits    models.RiskLimits
	fetchedAt time.Time
}

type limitsShard struct {
	mu      sync.Mutex
	entries map[string]limitsEntry
	sweptAt time.Time
}

// LimitsCache hands out per-user risk limits, created lazily with the
// configured defaults on first lookup. Entries expire after the configured
// TTL so operator updates are eventually picked up.
type LimitsCache struct {
	defaults config.RiskConfig
	ttl      time.Duration
	shards   [limitsShardCount]*limitsShard
	now      func() time.Time
}

func NewLimitsCache(defaults config.RiskConfig) *LimitsCache {
	ttl := defaults.LimitsTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	c := &LimitsCache{
		defaults: defaults,
		ttl:      ttl,
		now:      time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &limitsShard{entries: make(map[string]limitsEntry)}
	}
	return c
}

func (c *LimitsCache) shardFor(userId string) *limitsShard {
	h := fnv.New32a()
	h.Write([]byte(userId))
	return c.shards[h.Sum32()%limitsShardCount]
}

// Get returns the user's limits, refreshing expired entries with defaults.
func (c *LimitsCache) Get(userId string) models.RiskLimits {
	sh := c.shardFor(userId)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := c.now()

	// Evict expired entries for users that stopped asking, at most one
	// sweep per TTL per shard.
	if now.Sub(sh.sweptAt) > c.ttl {
		for id, e := range sh.entries {
			if now.Sub(e.fetchedAt) >= c.ttl {
				delete(sh.entries, id)
			}
		}
		sh.sweptAt = now
	}

	if e, ok := sh.entries[userId]; ok && now.Sub(e.fetchedAt) < c.ttl {
		return e.limits
	}

	limits := models.RiskLimits{
		UserId:             userId,
		MaxPositionSize:    decimal.NewFromFloat(c.defaults.MaxPositionSize),
		MaxDailyLoss:       decimal.NewFromFloat(c.defaults.MaxDailyLoss),
		MaxLeverage:        decimal.NewFromInt(c.defaults.MaxLeverage),
		MaxConcentration:   decimal.NewFromFloat(c.defaults.MaxConcentration),
		MaxOrdersPerMinute: c.defaults.MaxOrdersPerMinute,
		InitialMargin:      decimal.NewFromFloat(c.defaults.InitialMargin),
		UpdatedAt:          now,
	}
	sh.entries[userId] = limitsEntry{limits: limits, fetchedAt: now}
	return limits
}
