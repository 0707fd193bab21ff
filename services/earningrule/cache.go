package earningrule

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"loyalty-engine/pkg/repository"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "earning_rule_cache_hits_total",
		Help: "Active-rule cache hits, by trigger event.",
	}, []string{"event"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "earning_rule_cache_misses_total",
		Help: "Active-rule cache misses, by trigger event.",
	}, []string{"event"})
)

// ruleCache keeps the active rules per trigger event for a short TTL.
// Concurrent misses on the same event collapse into one load.
type ruleCache struct {
	rules repository.Repository[Rule]
	ttl   time.Duration
	now   func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	rules     []*Rule
	expiresAt time.Time
}

func newRuleCache(rules repository.Repository[Rule], ttl time.Duration) *ruleCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ruleCache{
		rules:   rules,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *ruleCache) ActiveByEvent(ctx context.Context, eventName string) ([]*Rule, error) {
	c.mu.RLock()
	entry, ok := c.entries[eventName]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		cacheHits.WithLabelValues(eventName).Inc()
		return entry.rules, nil
	}
	cacheMisses.WithLabelValues(eventName).Inc()

	v, err, _ := c.group.Do(eventName, func() (any, error) {
		rows, err := c.rules.Find(ctx, &Rule{Active: true, EventName: eventName})
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[eventName] = cacheEntry{rules: rows, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Rule), nil
}

// Invalidate drops all entries. Called after rule writes.
func (c *ruleCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
