package telemetry

import (
	"time"

	"go.uber.org/zap"
)

// Canonical log field names, so dashboards can rely on stable keys.
const (
	FieldServer   = "server"
	FieldTool     = "tool"
	FieldDuration = "duration"
	FieldEvent    = "event"
)

const (
	EventCallFailed      = "call_failed"
	EventSafetyRejected  = "safety_rejected"
	EventDiscoveryFailed = "discovery_failed"
)

func ServerField(serverID string) zap.Field {
	return zap.String(FieldServer, serverID)
}

func ToolField(toolName string) zap.Field {
	return zap.String(FieldTool, toolName)
}

func DurationField(d time.Duration) zap.Field {
	return zap.Duration(FieldDuration, d)
}

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}
