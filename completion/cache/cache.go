// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the fingerprinted in-memory store of prior
// completion results.
//
// Entries expire on a write-time TTL and are additionally evicted under
// two independent pressure policies: a count bound that evicts the
// least-recently-accessed entry, and a memory bound that evicts the
// oldest-created entry. Either policy may fire first; they are kept
// separate deliberately.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianComplete/clock"
	"github.com/AleutianAI/AleutianComplete/completion"
)

// Default configuration values.
const (
	// DefaultTTL is how long an entry stays valid after its write.
	// Reads do not refresh it.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries is the entry-count bound for LRU eviction.
	DefaultMaxEntries = 100

	// DefaultMaxMemoryBytes is the estimated-memory bound for
	// creation-order eviction.
	DefaultMaxMemoryBytes = 8 << 20 // 8 MiB

	// DefaultSweepInterval is how often expired entries are removed
	// independent of pressure.
	DefaultSweepInterval = time.Minute

	// perEntryOverhead and perItemOverhead pad the memory estimate for
	// struct and slice bookkeeping. The estimate is diagnostic only and
	// never affects correctness, only eviction timing.
	perEntryOverhead = 128
	perItemOverhead  = 64
)

// Config configures the completion cache.
type Config struct {
	// TTL is the entry lifetime from write time (default: 5m).
	TTL time.Duration

	// MaxEntries is the entry-count eviction bound (default: 100).
	MaxEntries int

	// MaxMemoryBytes is the estimated-memory eviction bound
	// (default: 8 MiB).
	MaxMemoryBytes int64

	// SweepInterval is the expired-entry sweep period (default: 1m).
	// Zero disables the sweep.
	SweepInterval time.Duration
}

// DefaultConfig returns sensible defaults for the cache.
func DefaultConfig() Config {
	return Config{
		TTL:            DefaultTTL,
		MaxEntries:     DefaultMaxEntries,
		MaxMemoryBytes: DefaultMaxMemoryBytes,
		SweepInterval:  DefaultSweepInterval,
	}
}

// Metrics is a point-in-time snapshot of cache counters.
type Metrics struct {
	Entries     int   `json:"entries"`
	MemoryBytes int64 `json:"memory_bytes"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

type entry struct {
	key         string
	language    string
	items       []completion.Item
	createdAt   time.Time
	accessedAt  time.Time
	accessCount int64
	size        int64
}

// Cache is the fingerprinted completion store.
//
// Thread Safety: Safe for concurrent use.
type Cache struct {
	config Config
	clock  clock.Clock

	mu      sync.Mutex
	entries map[string]*entry
	memory  int64
	sweep   clock.Timer
	closed  bool

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// New creates a cache and arms the periodic expiry sweep.
//
// Inputs:
//   - cfg: Cache configuration. Zero fields take defaults.
//   - clk: Clock for TTL decisions and the sweep timer. Must not be nil.
//
// Outputs:
//   - *Cache: Ready to use. Call Close to stop the sweep.
func New(cfg Config, clk clock.Clock) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = DefaultMaxMemoryBytes
	}

	c := &Cache{
		config:  cfg,
		clock:   clk,
		entries: make(map[string]*entry),
	}
	if cfg.SweepInterval > 0 {
		c.sweep = clk.AfterFunc(cfg.SweepInterval, c.sweepExpired)
	}
	return c
}

// Get returns the cached completions for the context's fingerprint.
//
// An entry past its TTL is deleted and reported as a miss. A hit
// refreshes the last-access time but never the TTL.
func (c *Cache) Get(code *completion.CodeContext) ([]completion.Item, bool) {
	key := completion.ComputeFingerprint(code)
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		recordMiss()
		return nil, false
	}
	if now.Sub(e.createdAt) >= c.config.TTL {
		c.removeLocked(key)
		c.expirations++
		c.misses++
		recordMiss()
		return nil, false
	}

	e.accessedAt = now
	e.accessCount++
	c.hits++
	recordHit()
	return e.items, true
}

// Set stores completions under the context's fingerprint, replacing any
// previous entry, then applies both eviction policies.
func (c *Cache) Set(code *completion.CodeContext, items []completion.Item) {
	key := completion.ComputeFingerprint(code)
	now := c.clock.Now()

	e := &entry{
		key:        key,
		language:   code.Language,
		items:      items,
		createdAt:  now,
		accessedAt: now,
		size:       estimateSize(items),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(key)
	c.entries[key] = e
	c.memory += e.size

	c.evictForCountLocked()
	c.evictForMemoryLocked()
}

// Invalidate removes entries matching the pattern. A pattern matches an
// entry when it is a substring of the entry's language or fingerprint.
// An empty pattern clears the whole cache.
func (c *Cache) Invalidate(pattern string) int {
	if pattern == "" {
		return c.Clear()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if strings.Contains(e.language, pattern) || strings.Contains(key, pattern) {
			c.removeLocked(key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*entry)
	c.memory = 0
	return n
}

// Metrics returns a snapshot of the cache counters.
func (c *Cache) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Metrics{
		Entries:     len(c.entries),
		MemoryBytes: c.memory,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// Close stops the periodic sweep. The cache remains usable.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.sweep != nil {
		c.sweep.Stop()
		c.sweep = nil
	}
}

// sweepExpired removes all TTL-expired entries and re-arms itself.
func (c *Cache) sweepExpired() {
	now := c.clock.Now()

	c.mu.Lock()
	for key, e := range c.entries {
		if now.Sub(e.createdAt) >= c.config.TTL {
			c.removeLocked(key)
			c.expirations++
		}
	}
	if !c.closed {
		c.sweep = c.clock.AfterFunc(c.config.SweepInterval, c.sweepExpired)
	}
	c.mu.Unlock()
}

// evictForCountLocked evicts least-recently-accessed entries while the
// count bound is exceeded. Must be called with the lock held.
func (c *Cache) evictForCountLocked() {
	for len(c.entries) > c.config.MaxEntries {
		victim := ""
		var oldest time.Time
		for key, e := range c.entries {
			if victim == "" || e.accessedAt.Before(oldest) {
				victim = key
				oldest = e.accessedAt
			}
		}
		c.removeLocked(victim)
		c.evictions++
		recordEviction("count")
	}
}

// evictForMemoryLocked evicts oldest-created entries while the memory
// bound is exceeded, regardless of access recency. Must be called with
// the lock held.
func (c *Cache) evictForMemoryLocked() {
	for c.memory > c.config.MaxMemoryBytes && len(c.entries) > 0 {
		victim := ""
		var oldest time.Time
		for key, e := range c.entries {
			if victim == "" || e.createdAt.Before(oldest) {
				victim = key
				oldest = e.createdAt
			}
		}
		c.removeLocked(victim)
		c.evictions++
		recordEviction("memory")
	}
}

func (c *Cache) removeLocked(key string) {
	if e, ok := c.entries[key]; ok {
		c.memory -= e.size
		delete(c.entries, key)
	}
}

// estimateSize approximates the retained bytes of an item list from its
// string lengths plus fixed overheads.
func estimateSize(items []completion.Item) int64 {
	size := int64(perEntryOverhead)
	for _, item := range items {
		size += int64(len(item.Label) + len(item.InsertText) +
			len(item.Detail) + len(item.Documentation))
		size += perItemOverhead
	}
	return size
}
