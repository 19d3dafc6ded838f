// Package cache memoizes expensive read-style tool results under a TTL.
// Each logical namespace carries its own TTL; entries are evicted lazily
// on the first read past expiry or explicitly when a mutation targets
// the same server.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"toolmesh/internal/domain"
)

// Entry is one cached value. Valid iff now - Timestamp < TTL.
type Entry struct {
	Value     domain.ToolResult
	Timestamp time.Time
	TTL       time.Duration
}

func (e Entry) valid(now time.Time) bool {
	return now.Sub(e.Timestamp) < e.TTL
}

// ResultCache is a namespaced TTL cache. Reads and writes are guarded by
// one mutex; the check-then-write is done under the same critical
// section so concurrent callers never race.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttls    map[string]time.Duration
	logger  *zap.Logger
	metrics domain.Metrics
	now     func() time.Time
}

// Options configures a ResultCache.
type Options struct {
	// TTLs maps namespace to TTL. Unlisted namespaces fall back to the
	// resource default.
	TTLs    map[string]time.Duration
	Logger  *zap.Logger
	Metrics domain.Metrics
}

// Namespaces used by the orchestrator.
const (
	NamespaceResource      = "resource"
	NamespaceDocumentation = "documentation"
)

// New constructs a ResultCache.
func New(opts Options) *ResultCache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	ttls := make(map[string]time.Duration, len(opts.TTLs)+2)
	ttls[NamespaceResource] = domain.DefaultResourceCacheTTLSeconds * time.Second
	ttls[NamespaceDocumentation] = domain.DefaultDocumentationCacheTTLSeconds * time.Second
	for namespace, ttl := range opts.TTLs {
		if ttl > 0 {
			ttls[namespace] = ttl
		}
	}
	return &ResultCache{
		entries: make(map[string]Entry),
		ttls:    ttls,
		logger:  logger.Named("cache"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Get returns the cached result for (namespace, server, operation, args)
// when still valid. Expired entries are evicted on the spot.
func (c *ResultCache) Get(namespace, serverID, operation string, args map[string]any) (domain.ToolResult, bool) {
	key := c.key(namespace, serverID, operation, args)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.metrics.ObserveCache(namespace, false)
		return domain.ToolResult{}, false
	}
	if !entry.valid(c.now()) {
		delete(c.entries, key)
		c.metrics.ObserveCache(namespace, false)
		return domain.ToolResult{}, false
	}
	c.metrics.ObserveCache(namespace, true)
	return entry.Value, true
}

// Put stores a result under the namespace TTL.
func (c *ResultCache) Put(namespace, serverID, operation string, args map[string]any, value domain.ToolResult) {
	ttl, ok := c.ttls[namespace]
	if !ok {
		ttl = domain.DefaultResourceCacheTTLSeconds * time.Second
	}
	key := c.key(namespace, serverID, operation, args)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{
		Value:     value,
		Timestamp: c.now(),
		TTL:       ttl,
	}
}

// Invalidate drops one exact entry.
func (c *ResultCache) Invalidate(namespace, serverID, operation string, args map[string]any) {
	key := c.key(namespace, serverID, operation, args)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateServer drops every cached entry for a server, across all
// namespaces. Called after a mutating tool touches that server.
func (c *ResultCache) InvalidateServer(serverID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		// Key shape is namespace/server/operation/hash; only the server
		// segment may match, not an operation of the same name.
		parts := strings.SplitN(key, "/", 3)
		if len(parts) >= 2 && parts[1] == serverID {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("invalidated server entries",
			zap.String("server", serverID),
			zap.Int("count", removed),
		)
	}
	return removed
}

// Len returns the live entry count, purging expired entries first.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if !entry.valid(now) {
			delete(c.entries, key)
		}
	}
	return len(c.entries)
}

// key builds namespace/server/operation/sha256(canonical args). Argument
// maps are canonicalized by sorted-key JSON so equal arguments always
// hash alike.
func (c *ResultCache) key(namespace, serverID, operation string, args map[string]any) string {
	return namespace + "/" + serverID + "/" + operation + "/" + hashArgs(c.logger, args)
}

func hashArgs(logger *zap.Logger, args map[string]any) string {
	if len(args) == 0 {
		return "empty"
	}
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hasher := sha256.New()
	for _, key := range keys {
		raw, err := json.Marshal(args[key])
		if err != nil {
			// Unmarshalable values degrade to their Go representation.
			raw = []byte(fmt.Sprintf("%v", args[key]))
			logger.Debug("argument not JSON-encodable", zap.String("key", key))
		}
		hasher.Write([]byte(key))
		hasher.Write([]byte{0})
		hasher.Write(raw)
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
