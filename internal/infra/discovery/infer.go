package discovery

import (
	"strings"
	"time"

	"toolmesh/internal/domain"
)

// Metadata inference for tools that arrive without explicit
// capability/risk/time annotations. Pure, table-driven, no I/O.

// categoryByServer is a fixed lookup from server identity to category.
var categoryByServer = map[string]domain.Category{
	"sec":           domain.CategorySecurity,
	"security":      domain.CategorySecurity,
	"docs":          domain.CategoryDocumentation,
	"documentation": domain.CategoryDocumentation,
	"remediation":   domain.CategoryRemediation,
}

// capabilityKeywords maps name/description tokens onto capabilities.
// Several classes may match; all matching capabilities are added.
var capabilityKeywords = []struct {
	tokens       []string
	capabilities []domain.Capability
}{
	{
		tokens:       []string{"security", "vulnerab"},
		capabilities: []domain.Capability{domain.CapabilitySecurityAssessment, domain.CapabilityVulnerabilityScanning},
	},
	{
		tokens:       []string{"compliance", "audit"},
		capabilities: []domain.Capability{domain.CapabilityComplianceChecking},
	},
	{
		tokens:       []string{"search", "documentation"},
		capabilities: []domain.Capability{domain.CapabilityDocumentationSearch},
	},
	{
		tokens:       []string{"describe", "list"},
		capabilities: []domain.Capability{domain.CapabilityResourceAnalysis, domain.CapabilityConfigurationAnalysis},
	},
	{
		tokens:       []string{"fix", "remediat"},
		capabilities: []domain.Capability{domain.CapabilityAutomatedRemediation},
	},
}

// executionTimeBuckets holds the per-capability estimate. The maximum
// bucket across all inferred capabilities wins.
var executionTimeBuckets = map[domain.Capability]time.Duration{
	domain.CapabilityVulnerabilityScanning: 120 * time.Second,
	domain.CapabilityComplianceChecking:    90 * time.Second,
	domain.CapabilityDocumentationSearch:   15 * time.Second,
	domain.CapabilityAutomatedRemediation:  180 * time.Second,
	domain.CapabilitySecurityAssessment:    60 * time.Second,
}

const defaultExecutionTime = 30 * time.Second

// InferCategory maps server identity onto a category; ANALYSIS when
// unknown.
func InferCategory(serverID string) domain.Category {
	if category, ok := categoryByServer[strings.ToLower(serverID)]; ok {
		return category
	}
	return domain.CategoryAnalysis
}

// InferCapabilities matches name+description against the keyword table.
func InferCapabilities(name, description string) []domain.Capability {
	haystack := strings.ToLower(name + " " + description)
	var out []domain.Capability
	seen := make(map[domain.Capability]struct{})
	for _, class := range capabilityKeywords {
		for _, token := range class.tokens {
			if !strings.Contains(haystack, token) {
				continue
			}
			for _, capability := range class.capabilities {
				if _, ok := seen[capability]; ok {
					continue
				}
				seen[capability] = struct{}{}
				out = append(out, capability)
			}
			break
		}
	}
	return out
}

// InferRiskLevel classifies by keyword, first match wins in the order
// high, medium, low.
func InferRiskLevel(name, description string) domain.RiskLevel {
	haystack := strings.ToLower(name + " " + description)
	switch {
	case strings.Contains(haystack, "delete"), strings.Contains(haystack, "terminate"):
		return domain.RiskHigh
	case strings.Contains(haystack, "modify"), strings.Contains(haystack, "update"):
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// InferExecutionTime returns the maximum bucket across the capabilities,
// 30s when none has a bucket.
func InferExecutionTime(capabilities []domain.Capability) time.Duration {
	estimate := time.Duration(0)
	for _, capability := range capabilities {
		if bucket, ok := executionTimeBuckets[capability]; ok && bucket > estimate {
			estimate = bucket
		}
	}
	if estimate == 0 {
		return defaultExecutionTime
	}
	return estimate
}

// Enrich fills the metadata fields a server omitted. Explicit values are
// kept untouched.
func Enrich(metadata domain.ToolMetadata) domain.ToolMetadata {
	out := metadata
	if out.Category == "" {
		out.Category = InferCategory(out.ServerID)
	}
	if len(out.Capabilities) == 0 {
		out.Capabilities = InferCapabilities(out.Name, out.Description)
	}
	if out.RiskLevel == "" {
		out.RiskLevel = InferRiskLevel(out.Name, out.Description)
	}
	if out.EstimatedExecutionTime == 0 {
		out.EstimatedExecutionTime = InferExecutionTime(out.Capabilities)
	}
	return out
}
