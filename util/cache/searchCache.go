// Package cache holds the process-wide search result cache that sits in front
// of the book catalog.
//
// Keys are normalised (trimmed, lower-cased) so "Dune" and " DUNE" share an
// entry. Entries expire after a fixed TTL. Reads evict expired entries they
// touch; EvictExpired sweeps the rest and is driven by a Janitor.
//
// The store is a sync.Map of immutable entries. Writers replace the whole
// entry for a key, so a concurrent reader sees either the old or the new value
// and readers on different keys never contend.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const DefaultTTL = 30 * time.Minute

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

type Stats struct {
	Total   int `json:"total_entries"`
	Expired int `json:"expired_entries"`
}

type Cache[V any] struct {
	entries sync.Map // string -> *entry[V]
	ttl     time.Duration
	now     func() time.Time
}

func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{ttl: ttl, now: time.Now}
}

func NormalizeKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func (c *Cache[V]) TTL() time.Duration { return c.ttl }

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return now.Sub(e.fetchedAt) >= c.ttl
}

// Lookup returns the live entry for query. An expired entry is removed and
// reported as a miss.
func (c *Cache[V]) Lookup(query string) (V, bool) {
	key := NormalizeKey(query)
	var zero V

	v, ok := c.entries.Load(key)
	if !ok {
		return zero, false
	}
	e := v.(*entry[V])
	if c.expired(e, c.now()) {
		// only drop the entry we looked at; a fresh Store may have replaced it
		c.entries.CompareAndDelete(key, e)
		return zero, false
	}
	return e.value, true
}

// Store overwrites any previous entry for query.
func (c *Cache[V]) Store(query string, value V) {
	c.entries.Store(NormalizeKey(query), &entry[V]{value: value, fetchedAt: c.now()})
}

// EvictExpired removes every expired entry and returns how many it dropped.
func (c *Cache[V]) EvictExpired() int {
	now := c.now()
	n := 0
	c.entries.Range(func(k, v any) bool {
		if c.expired(v.(*entry[V]), now) && c.entries.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n
}

func (c *Cache[V]) Stats() Stats {
	now := c.now()
	var s Stats
	c.entries.Range(func(_, v any) bool {
		s.Total++
		if c.expired(v.(*entry[V]), now) {
			s.Expired++
		}
		return true
	})
	return s
}

// Sweeper is the part of a cache a Janitor drives.
type Sweeper interface {
	EvictExpired() int
}

// Janitor calls EvictExpired every interval until ctx is done.
type Janitor struct {
	c        Sweeper
	interval time.Duration
	log      *slog.Logger
}

func NewJanitor(c Sweeper, interval time.Duration, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{c: c, interval: interval, log: log}
}

func (j *Janitor) Run(ctx context.Context) {
	t := time.NewTicker(j.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := j.c.EvictExpired(); n > 0 {
				j.log.Info("search cache sweep", "evicted", n)
			}
		}
	}
}
