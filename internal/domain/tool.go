package domain

import (
	"time"
)

// ToolKey uniquely identifies a tool in the registry.
type ToolKey struct {
	ServerID string
	Name     string
}

func (k ToolKey) String() string {
	return k.ServerID + "/" + k.Name
}

// NewToolKey builds a registry key from server and tool name.
func NewToolKey(serverID, name string) ToolKey {
	return ToolKey{ServerID: serverID, Name: name}
}

// ToolMetadata describes one remote tool known to the registry.
// Key = (ServerID, Name); unique.
type ToolMetadata struct {
	Name                   string
	Description            string
	ServerID               string
	Category               Category
	Capabilities           []Capability
	Parameters             any
	RequiredPermissions    []string
	RiskLevel              RiskLevel
	EstimatedExecutionTime time.Duration

	// Usage statistics, maintained by the registry and preserved
	// across re-registration of the same key.
	UsageCount           uint64
	SuccessRate          float64
	AverageExecutionTime time.Duration
	LastUpdated          time.Time
}

// Key returns the registry key for this tool.
func (m ToolMetadata) Key() ToolKey {
	return ToolKey{ServerID: m.ServerID, Name: m.Name}
}

// HasCapability reports whether the tool carries the given capability.
func (m ToolMetadata) HasCapability(capability Capability) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// CloneToolMetadata returns a deep copy safe for callers to mutate.
func CloneToolMetadata(m ToolMetadata) ToolMetadata {
	out := m
	if m.Capabilities != nil {
		out.Capabilities = make([]Capability, len(m.Capabilities))
		copy(out.Capabilities, m.Capabilities)
	}
	if m.RequiredPermissions != nil {
		out.RequiredPermissions = make([]string, len(m.RequiredPermissions))
		copy(out.RequiredPermissions, m.RequiredPermissions)
	}
	return out
}

// ToolCall describes one requested invocation. Immutable once dispatched.
type ToolCall struct {
	ToolName  string
	ServerID  string
	Arguments map[string]any
	Priority  Priority
	Timeout   time.Duration
}

// ToolResult is the outcome of one invocation. Exactly one of Data (on
// success) or ErrorMessage (on failure) is meaningful.
type ToolResult struct {
	ToolName      string
	ServerID      string
	Success       bool
	Data          any
	ErrorMessage  string
	ExecutionTime time.Duration
	Metadata      map[string]any
}

// FailedResult builds a failure ToolResult for the given call identity.
func FailedResult(serverID, toolName string, elapsed time.Duration, err error) ToolResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ToolResult{
		ToolName:      toolName,
		ServerID:      serverID,
		Success:       false,
		ErrorMessage:  msg,
		ExecutionTime: elapsed,
	}
}

// CapabilityMapping indexes the tools providing one capability. Every
// referenced key must exist in the registry; removing a server's tools
// removes its keys from every mapping.
type CapabilityMapping struct {
	Capability    Capability
	Tools         map[ToolKey]struct{}
	PrimaryTool   *ToolKey
	FallbackTools []ToolKey
}

// DiscoveryResult summarizes one server's discovery pass.
type DiscoveryResult struct {
	ServerName      string
	ToolsDiscovered int
	ToolsAdded      int
	ToolsUpdated    int
	ToolsRemoved    int
	DiscoveryTime   time.Duration
	Success         bool
	ErrorMessage    string
}
