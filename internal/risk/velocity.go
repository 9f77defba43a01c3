package risk

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	velocityShardCount = 16
	velocityWindow     = 60 * time.Second
)

type velocityShard struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	sweptAt  time.Time
}

// VelocityTracker keeps a sliding 60-second window of validation attempts
// per user. Record prunes, appends and counts under one shard lock, so the
// read-modify-write is atomic per user.
type VelocityTracker struct {
	shards [velocityShardCount]*velocityShard
	now    func() time.Time
}

func NewVelocityTracker() *VelocityTracker {
	t := &VelocityTracker{now: time.Now}
	for i := range t.shards {
		t.shards[i] = &velocityShard{attempts: make(map[string][]time.Time)}
	}
	return t
}

func (t *VelocityTracker) shardFor(userId string) *velocityShard {
	h := fnv.New32a()
	h.Write([]byte(userId))
	return t.shards[h.Sum32()%velocityShardCount]
}

// Record registers one validation attempt and returns how many attempts the
// user has made inside the window, including this one.
func (t *VelocityTracker) Record(userId string) int {
	sh := t.shardFor(userId)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-velocityWindow)

	// Evict users idle past the whole window, at most one sweep per window
	// per shard, so departed users do not pin memory.
	if now.Sub(sh.sweptAt) > velocityWindow {
		for id, w := range sh.attempts {
			if len(w) == 0 || !w[len(w)-1].After(cutoff) {
				delete(sh.attempts, id)
			}
		}
		sh.sweptAt = now
	}

	window := sh.attempts[userId]
	kept := window[:0]
	for _, at := range window {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	sh.attempts[userId] = kept

	return len(kept)
}
