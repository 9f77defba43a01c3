package risk

import (
	"fmt"
	"testing"
	"time"
)

func TestLimitsCacheServesWithinTTL(t *testing.T) {
	cfg := defaultLimits()
	cfg.LimitsTTL = time.Minute

	c := NewLimitsCache(cfg)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	first := c.Get("u1")

	c.now = func() time.Time { return base.Add(30 * time.Second) }
	second := c.Get("u1")

	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Error("entry refreshed inside its ttl")
	}
}

func TestLimitsCacheEvictsExpiredEntries(t *testing.T) {
	cfg := defaultLimits()
	cfg.LimitsTTL = time.Minute

	c := NewLimitsCache(cfg)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	sh := c.shardFor("u1")
	idle := ""
	for i := 0; idle == ""; i++ {
		cand := fmt.Sprintf("user-%d", i)
		if cand != "u1" && c.shardFor(cand) == sh {
			idle = cand
		}
	}
	c.Get(idle)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	c.Get("u1")

	sh.mu.Lock()
	_, ok := sh.entries[idle]
	sh.mu.Unlock()
	if ok {
		t.Errorf("expired entry for %s survived the sweep", idle)
	}
}
