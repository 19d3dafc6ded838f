package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"toolmesh/internal/domain"
)

func successResult(tool string) domain.ToolResult {
	return domain.ToolResult{ToolName: tool, ServerID: "sec", Success: true, Data: "value"}
}

func newTestCache(ttls map[string]time.Duration) (*ResultCache, *time.Time) {
	c := New(Options{TTLs: ttls})
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, &now
}

func TestGet_HitWithinTTL(t *testing.T) {
	c, now := newTestCache(map[string]time.Duration{NamespaceResource: 10 * time.Second})
	args := map[string]any{"target": "vpc-1"}

	c.Put(NamespaceResource, "sec", "describe_config", args, successResult("describe_config"))

	got, ok := c.Get(NamespaceResource, "sec", "describe_config", args)
	require.True(t, ok)
	require.Equal(t, "value", got.Data)

	// One tick short of the TTL still hits.
	*now = now.Add(10*time.Second - time.Nanosecond)
	_, ok = c.Get(NamespaceResource, "sec", "describe_config", args)
	require.True(t, ok)
}

func TestGet_MissOneTickPastTTL(t *testing.T) {
	c, now := newTestCache(map[string]time.Duration{NamespaceResource: 10 * time.Second})
	args := map[string]any{"target": "vpc-1"}

	c.Put(NamespaceResource, "sec", "describe_config", args, successResult("describe_config"))

	*now = now.Add(10 * time.Second)
	_, ok := c.Get(NamespaceResource, "sec", "describe_config", args)
	require.False(t, ok)
	// Lazy eviction removed the expired entry.
	require.Zero(t, c.Len())
}

func TestKey_ArgumentOrderIrrelevant(t *testing.T) {
	c, _ := newTestCache(nil)

	c.Put(NamespaceResource, "sec", "describe", map[string]any{"a": 1, "b": "x"}, successResult("describe"))

	_, ok := c.Get(NamespaceResource, "sec", "describe", map[string]any{"b": "x", "a": 1})
	require.True(t, ok)

	_, ok = c.Get(NamespaceResource, "sec", "describe", map[string]any{"a": 2, "b": "x"})
	require.False(t, ok)
}

func TestNamespacesAreIndependent(t *testing.T) {
	c, _ := newTestCache(nil)
	args := map[string]any{"q": "s3"}

	c.Put(NamespaceDocumentation, "docs", "search", args, successResult("search"))

	_, ok := c.Get(NamespaceResource, "docs", "search", args)
	require.False(t, ok)
	_, ok = c.Get(NamespaceDocumentation, "docs", "search", args)
	require.True(t, ok)
}

func TestInvalidate_ExactEntry(t *testing.T) {
	c, _ := newTestCache(nil)
	args := map[string]any{"target": "vpc-1"}

	c.Put(NamespaceResource, "sec", "describe", args, successResult("describe"))
	c.Invalidate(NamespaceResource, "sec", "describe", args)

	_, ok := c.Get(NamespaceResource, "sec", "describe", args)
	require.False(t, ok)
}

func TestInvalidateServer_DropsAllNamespaces(t *testing.T) {
	c, _ := newTestCache(nil)

	c.Put(NamespaceResource, "sec", "describe", map[string]any{"t": 1}, successResult("describe"))
	c.Put(NamespaceDocumentation, "sec", "search", map[string]any{"q": "x"}, successResult("search"))
	c.Put(NamespaceResource, "docs", "describe", map[string]any{"t": 1}, successResult("describe"))

	removed := c.InvalidateServer("sec")
	require.Equal(t, 2, removed)
	require.Equal(t, 1, c.Len())

	_, ok := c.Get(NamespaceResource, "docs", "describe", map[string]any{"t": 1})
	require.True(t, ok)
}

func TestInvalidateServer_MatchesServerSegmentOnly(t *testing.T) {
	c, _ := newTestCache(nil)
	args := map[string]any{"t": 1}

	// Server id "describe" collides with another server's operation name.
	c.Put(NamespaceResource, "sec", "describe", args, successResult("describe"))
	c.Put(NamespaceResource, "describe", "list", args, successResult("list"))

	removed := c.InvalidateServer("describe")
	require.Equal(t, 1, removed)

	_, ok := c.Get(NamespaceResource, "sec", "describe", args)
	require.True(t, ok)
	_, ok = c.Get(NamespaceResource, "describe", "list", args)
	require.False(t, ok)
}
