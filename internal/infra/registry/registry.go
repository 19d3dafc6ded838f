// Package registry maintains the in-memory index of all known tools and
// their capability mappings.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"toolmesh/internal/domain"
)

// ToolRegistry indexes tools by (server, name) with capability, category
// and server lookup plus free-text search. All methods are safe for
// concurrent use; the maps are guarded by a single RWMutex.
type ToolRegistry struct {
	mu           sync.RWMutex
	tools        map[domain.ToolKey]domain.ToolMetadata
	capabilities map[domain.Capability]*domain.CapabilityMapping
	logger       *zap.Logger
}

// NewToolRegistry constructs an empty registry.
func NewToolRegistry(logger *zap.Logger) *ToolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolRegistry{
		tools:        make(map[domain.ToolKey]domain.ToolMetadata),
		capabilities: make(map[domain.Capability]*domain.CapabilityMapping),
		logger:       logger.Named("registry"),
	}
}

// RegisterTool upserts by (server, name). When the key exists the
// description, capabilities and parameters are replaced but usage
// statistics are preserved. Capability mappings are updated for
// capabilities gained or lost.
func (r *ToolRegistry) RegisterTool(metadata domain.ToolMetadata) {
	key := metadata.Key()
	stored := domain.CloneToolMetadata(metadata)
	stored.LastUpdated = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tools[key]; ok {
		stored.UsageCount = existing.UsageCount
		stored.SuccessRate = existing.SuccessRate
		stored.AverageExecutionTime = existing.AverageExecutionTime
		r.pruneCapabilitiesLocked(key, existing.Capabilities, stored.Capabilities)
	}
	r.tools[key] = stored
	for _, capability := range stored.Capabilities {
		r.addMappingLocked(capability, key)
	}
}

// GetTool returns one tool by key.
func (r *ToolRegistry) GetTool(key domain.ToolKey) (domain.ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	metadata, ok := r.tools[key]
	if !ok {
		return domain.ToolMetadata{}, false
	}
	return domain.CloneToolMetadata(metadata), true
}

// GetToolsByCapability lists every tool carrying the capability.
func (r *ToolRegistry) GetToolsByCapability(capability domain.Capability) []domain.ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mapping, ok := r.capabilities[capability]
	if !ok {
		return nil
	}
	out := make([]domain.ToolMetadata, 0, len(mapping.Tools))
	for key := range mapping.Tools {
		if metadata, ok := r.tools[key]; ok {
			out = append(out, domain.CloneToolMetadata(metadata))
		}
	}
	sortTools(out)
	return out
}

// GetToolsByCategory lists every tool in the category.
func (r *ToolRegistry) GetToolsByCategory(category domain.Category) []domain.ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ToolMetadata
	for _, metadata := range r.tools {
		if metadata.Category == category {
			out = append(out, domain.CloneToolMetadata(metadata))
		}
	}
	sortTools(out)
	return out
}

// GetToolsByServer lists every tool owned by the server.
func (r *ToolRegistry) GetToolsByServer(serverID string) []domain.ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ToolMetadata
	for _, metadata := range r.tools {
		if metadata.ServerID == serverID {
			out = append(out, domain.CloneToolMetadata(metadata))
		}
	}
	sortTools(out)
	return out
}

// AllTools returns a snapshot of every registered tool.
func (r *ToolRegistry) AllTools() []domain.ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ToolMetadata, 0, len(r.tools))
	for _, metadata := range r.tools {
		out = append(out, domain.CloneToolMetadata(metadata))
	}
	sortTools(out)
	return out
}

// SearchTools performs a case-insensitive substring match against tool
// name and description. No ranking beyond the stable key order.
func (r *ToolRegistry) SearchTools(query string) []domain.ToolMetadata {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ToolMetadata
	for _, metadata := range r.tools {
		if strings.Contains(strings.ToLower(metadata.Name), needle) ||
			strings.Contains(strings.ToLower(metadata.Description), needle) {
			out = append(out, domain.CloneToolMetadata(metadata))
		}
	}
	sortTools(out)
	return out
}

// UpdateToolUsage records one invocation outcome: usage count increments,
// success rate and average execution time become running means over the
// call count.
func (r *ToolRegistry) UpdateToolUsage(key domain.ToolKey, executionTime time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metadata, ok := r.tools[key]
	if !ok {
		return
	}
	n := float64(metadata.UsageCount + 1)
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	metadata.SuccessRate = (metadata.SuccessRate*(n-1) + outcome) / n
	metadata.AverageExecutionTime = time.Duration(
		(float64(metadata.AverageExecutionTime)*(n-1) + float64(executionTime)) / n,
	)
	metadata.UsageCount++
	metadata.LastUpdated = time.Now()
	r.tools[key] = metadata
}

// RemoveServerTools deletes all tools for a server, prunes them from
// every capability mapping, and returns the count removed.
func (r *ToolRegistry) RemoveServerTools(serverID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, metadata := range r.tools {
		if metadata.ServerID != serverID {
			continue
		}
		r.pruneCapabilitiesLocked(key, metadata.Capabilities, nil)
		delete(r.tools, key)
		removed++
	}
	if removed > 0 {
		r.logger.Debug("removed server tools",
			zap.String("server", serverID),
			zap.Int("count", removed),
		)
	}
	return removed
}

// RemoveTool deletes one tool and prunes its capability mappings.
func (r *ToolRegistry) RemoveTool(key domain.ToolKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	metadata, ok := r.tools[key]
	if !ok {
		return false
	}
	r.pruneCapabilitiesLocked(key, metadata.Capabilities, nil)
	delete(r.tools, key)
	return true
}

// CapabilityMapping returns a copy of the mapping for one capability.
func (r *ToolRegistry) CapabilityMapping(capability domain.Capability) (domain.CapabilityMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mapping, ok := r.capabilities[capability]
	if !ok {
		return domain.CapabilityMapping{}, false
	}
	out := domain.CapabilityMapping{
		Capability: mapping.Capability,
		Tools:      make(map[domain.ToolKey]struct{}, len(mapping.Tools)),
	}
	for key := range mapping.Tools {
		out.Tools[key] = struct{}{}
	}
	if mapping.PrimaryTool != nil {
		primary := *mapping.PrimaryTool
		out.PrimaryTool = &primary
	}
	out.FallbackTools = append(out.FallbackTools, mapping.FallbackTools...)
	return out, true
}

// Statistics aggregates counts by server, category and capability.
// Observability only.
type Statistics struct {
	TotalTools   int
	ByServer     map[string]int
	ByCategory   map[domain.Category]int
	ByCapability map[domain.Capability]int
}

// GetToolStatistics returns aggregate registry counts.
func (r *ToolRegistry) GetToolStatistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Statistics{
		TotalTools:   len(r.tools),
		ByServer:     make(map[string]int),
		ByCategory:   make(map[domain.Category]int),
		ByCapability: make(map[domain.Capability]int),
	}
	for _, metadata := range r.tools {
		stats.ByServer[metadata.ServerID]++
		stats.ByCategory[metadata.Category]++
	}
	for capability, mapping := range r.capabilities {
		if len(mapping.Tools) > 0 {
			stats.ByCapability[capability] = len(mapping.Tools)
		}
	}
	return stats
}

func (r *ToolRegistry) addMappingLocked(capability domain.Capability, key domain.ToolKey) {
	mapping, ok := r.capabilities[capability]
	if !ok {
		mapping = &domain.CapabilityMapping{
			Capability: capability,
			Tools:      make(map[domain.ToolKey]struct{}),
		}
		r.capabilities[capability] = mapping
	}
	mapping.Tools[key] = struct{}{}
	if mapping.PrimaryTool == nil {
		primary := key
		mapping.PrimaryTool = &primary
	} else if *mapping.PrimaryTool != key {
		for _, fallback := range mapping.FallbackTools {
			if fallback == key {
				return
			}
		}
		mapping.FallbackTools = append(mapping.FallbackTools, key)
	}
}

// pruneCapabilitiesLocked removes key from mappings of capabilities the
// tool no longer carries. kept == nil drops the key from every mapping.
func (r *ToolRegistry) pruneCapabilitiesLocked(key domain.ToolKey, previous, kept []domain.Capability) {
	keptSet := make(map[domain.Capability]struct{}, len(kept))
	for _, capability := range kept {
		keptSet[capability] = struct{}{}
	}
	for _, capability := range previous {
		if _, ok := keptSet[capability]; ok {
			continue
		}
		mapping, ok := r.capabilities[capability]
		if !ok {
			continue
		}
		delete(mapping.Tools, key)
		if mapping.PrimaryTool != nil && *mapping.PrimaryTool == key {
			mapping.PrimaryTool = nil
		}
		fallbacks := mapping.FallbackTools[:0]
		for _, fallback := range mapping.FallbackTools {
			if fallback != key {
				fallbacks = append(fallbacks, fallback)
			}
		}
		mapping.FallbackTools = fallbacks
		if mapping.PrimaryTool == nil && len(mapping.FallbackTools) > 0 {
			primary := mapping.FallbackTools[0]
			mapping.PrimaryTool = &primary
			mapping.FallbackTools = mapping.FallbackTools[1:]
		}
		if len(mapping.Tools) == 0 {
			delete(r.capabilities, capability)
		}
	}
}

func sortTools(tools []domain.ToolMetadata) {
	sort.Slice(tools, func(i, j int) bool {
		if tools[i].ServerID != tools[j].ServerID {
			return tools[i].ServerID < tools[j].ServerID
		}
		return tools[i].Name < tools[j].Name
	})
}
