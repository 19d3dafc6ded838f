package domain

// Capability is a semantic tag from a closed taxonomy describing the kind
// of work a tool performs. Extending the taxonomy requires updating the
// discovery inference tables as well.
type Capability string

const (
	CapabilitySecurityAssessment    Capability = "SECURITY_ASSESSMENT"
	CapabilityVulnerabilityScanning Capability = "VULNERABILITY_SCANNING"
	CapabilityComplianceChecking    Capability = "COMPLIANCE_CHECKING"
	CapabilityDocumentationSearch   Capability = "DOCUMENTATION_SEARCH"
	CapabilityResourceAnalysis      Capability = "RESOURCE_ANALYSIS"
	CapabilityConfigurationAnalysis Capability = "CONFIGURATION_ANALYSIS"
	CapabilityAutomatedRemediation  Capability = "AUTOMATED_REMEDIATION"
)

// AllCapabilities lists every member of the taxonomy in a stable order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilitySecurityAssessment,
		CapabilityVulnerabilityScanning,
		CapabilityComplianceChecking,
		CapabilityDocumentationSearch,
		CapabilityResourceAnalysis,
		CapabilityConfigurationAnalysis,
		CapabilityAutomatedRemediation,
	}
}

// ParseCapability maps a string onto the taxonomy.
func ParseCapability(s string) (Capability, bool) {
	for _, c := range AllCapabilities() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Category groups tools by the broad concern a server addresses.
type Category string

const (
	CategorySecurity      Category = "security"
	CategoryDocumentation Category = "documentation"
	CategoryAnalysis      Category = "analysis"
	CategoryRemediation   Category = "remediation"
)

// RiskLevel classifies how dangerous invoking a tool is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Priority orders tool calls when dispatch has to choose.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}
