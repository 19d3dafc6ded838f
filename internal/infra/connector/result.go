package connector

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"toolmesh/internal/domain"
)

// toToolResult maps an MCP call result onto the domain result. Tool-side
// errors (IsError) become failed results with the text content as the
// error message; successful results prefer structured content and fall
// back to decoded text.
func toToolResult(serverID, toolName string, res *mcp.CallToolResult, elapsed time.Duration) domain.ToolResult {
	if res == nil {
		return domain.FailedResult(serverID, toolName, elapsed, domain.ErrConnectionClosed)
	}

	text := joinTextContent(res.Content)
	if res.IsError {
		msg := text
		if msg == "" {
			msg = "tool execution failed"
		}
		return domain.ToolResult{
			ToolName:      toolName,
			ServerID:      serverID,
			Success:       false,
			ErrorMessage:  msg,
			ExecutionTime: elapsed,
		}
	}

	var data any
	switch {
	case res.StructuredContent != nil:
		data = res.StructuredContent
	case text != "":
		data = decodeText(text)
	}
	return domain.ToolResult{
		ToolName:      toolName,
		ServerID:      serverID,
		Success:       true,
		Data:          data,
		ExecutionTime: elapsed,
	}
}

func joinTextContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		if tc, ok := item.(*mcp.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// decodeText surfaces JSON payloads as structured values; anything else
// stays a plain string.
func decodeText(text string) any {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return text
}
