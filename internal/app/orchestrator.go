// Package app composes the connectors, registry, cache, retry executor
// and safety validator into the orchestration boundary callers use.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolmesh/internal/domain"
	"toolmesh/internal/infra/cache"
	"toolmesh/internal/infra/registry"
	"toolmesh/internal/infra/retry"
	"toolmesh/internal/infra/safety"
	"toolmesh/internal/infra/telemetry"
)

// Orchestrator is the single entry point for tool invocation. It owns
// resolution, argument validation, safety gating, retries, caching and
// usage accounting. Errors surface as failed ToolResults, never panics.
type Orchestrator struct {
	connectors  *ConnectorSet
	registry    *registry.ToolRegistry
	executor    *retry.Executor
	cache       *cache.ResultCache
	validator   *safety.Validator
	permissions safety.PermissionChecker
	logger      *zap.Logger
	metrics     domain.Metrics
	callTimeout time.Duration
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Cache       *cache.ResultCache
	Validator   *safety.Validator
	Permissions safety.PermissionChecker
	Logger      *zap.Logger
	Metrics     domain.Metrics
	CallTimeout time.Duration
}

// NewOrchestrator wires an Orchestrator. Cache and validator are
// optional; without them calls skip memoization and safety gating is
// structural-only.
func NewOrchestrator(connectors *ConnectorSet, reg *registry.ToolRegistry, executor *retry.Executor, opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	validator := opts.Validator
	if validator == nil {
		validator = safety.NewValidator(logger)
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = domain.DefaultCallTimeoutSeconds * time.Second
	}
	return &Orchestrator{
		connectors:  connectors,
		registry:    reg,
		executor:    executor,
		cache:       opts.Cache,
		validator:   validator,
		permissions: opts.Permissions,
		logger:      logger.Named("orchestrator"),
		metrics:     metrics,
		callTimeout: callTimeout,
	}
}

// Call invokes one tool. The returned result is always well-formed:
// resolution, validation, safety and transport failures become failed
// results carrying the reason.
func (o *Orchestrator) Call(ctx context.Context, serverID, toolName string, args map[string]any) domain.ToolResult {
	start := time.Now()
	result := o.call(ctx, serverID, toolName, args)

	o.metrics.ObserveToolCall(serverID, toolName, result.ExecutionTime, resultErr(result))
	if !result.Success {
		o.logger.Warn("tool call failed",
			telemetry.EventField(telemetry.EventCallFailed),
			telemetry.ServerField(serverID),
			telemetry.ToolField(toolName),
			telemetry.DurationField(time.Since(start)),
			zap.String("error", result.ErrorMessage),
		)
	}
	return result
}

func (o *Orchestrator) call(ctx context.Context, serverID, toolName string, args map[string]any) domain.ToolResult {
	key := domain.NewToolKey(serverID, toolName)
	metadata, ok := o.registry.GetTool(key)
	if !ok {
		return domain.FailedResult(serverID, toolName, 0, fmt.Errorf("%w: %s", domain.ErrToolNotFound, key))
	}

	conn, ok := o.connectors.Get(serverID)
	if !ok {
		return domain.FailedResult(serverID, toolName, 0, fmt.Errorf("%w: %s", domain.ErrUnknownServer, serverID))
	}
	if !conn.State().Accepting() {
		return domain.FailedResult(serverID, toolName, 0,
			fmt.Errorf("%w: %s is %s", domain.ErrConnectorNotReady, serverID, conn.State()))
	}

	if err := validateArguments(metadata.Parameters, args); err != nil {
		return domain.FailedResult(serverID, toolName, 0, err)
	}

	if isRemediation(metadata) {
		if err := o.gateRemediation(ctx, metadata, args); err != nil {
			o.logger.Warn("remediation rejected",
				telemetry.EventField(telemetry.EventSafetyRejected),
				telemetry.ServerField(serverID),
				telemetry.ToolField(toolName),
				zap.String("reason", err.Error()),
			)
			return domain.FailedResult(serverID, toolName, 0, err)
		}
	}

	namespace, cacheable := cacheNamespace(metadata)
	if cacheable && o.cache != nil {
		if cached, hit := o.cache.Get(namespace, serverID, toolName, args); hit {
			cached.Metadata = withMeta(cached.Metadata, "cache", "hit")
			return cached
		}
	}

	start := time.Now()
	op := "call " + key.String()
	var last domain.ToolResult
	err := o.executor.Do(ctx, op, func(ctx context.Context) error {
		last = conn.CallTool(ctx, toolName, args)
		if last.Success {
			return nil
		}
		return domain.Transient(domain.CodeUnavailable, op, errors.New(last.ErrorMessage))
	})
	elapsed := time.Since(start)
	if err != nil && last.ToolName == "" {
		// No attempt ran, typically a canceled context.
		last = domain.FailedResult(serverID, toolName, elapsed, err)
	}
	last.ExecutionTime = elapsed

	o.registry.UpdateToolUsage(key, elapsed, last.Success)

	if last.Success {
		if cacheable && o.cache != nil {
			o.cache.Put(namespace, serverID, toolName, args, last)
		}
		if isRemediation(metadata) && o.cache != nil {
			// The mutation may have changed anything previously read
			// from this server.
			o.cache.InvalidateServer(serverID)
		}
	}
	return last
}

// CallMany dispatches every call concurrently and returns results in
// call order. One failing or unavailable server never affects the other
// results.
func (o *Orchestrator) CallMany(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call domain.ToolCall) {
			defer wg.Done()
			timeout := call.Timeout
			if timeout <= 0 {
				timeout = o.callTimeout
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results[i] = o.Call(callCtx, call.ServerID, call.ToolName, call.Arguments)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Resolve finds tools for a query: an exact capability name first, then
// a substring search over names and descriptions.
func (o *Orchestrator) Resolve(query string) []domain.ToolMetadata {
	if capability, ok := domain.ParseCapability(strings.TrimSpace(query)); ok {
		return o.registry.GetToolsByCapability(capability)
	}
	return o.registry.SearchTools(query)
}

// HealthCheckAll probes every connector concurrently.
func (o *Orchestrator) HealthCheckAll(ctx context.Context) map[string]bool {
	connectors := o.connectors.All()
	out := make(map[string]bool, len(connectors))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, conn := range connectors {
		wg.Add(1)
		go func(conn domain.Connector) {
			defer wg.Done()
			healthy := conn.HealthCheck(ctx)
			o.metrics.SetConnectorHealth(conn.Name(), healthy)
			mu.Lock()
			out[conn.Name()] = healthy
			mu.Unlock()
		}(conn)
	}
	wg.Wait()
	return out
}

// Synthesize combines results mechanically in call order: Data for
// successes, the error message for failures. No interpretation.
func Synthesize(results []domain.ToolResult) []any {
	out := make([]any, 0, len(results))
	for _, result := range results {
		if result.Success {
			out = append(out, result.Data)
		} else {
			out = append(out, map[string]any{
				"server": result.ServerID,
				"tool":   result.ToolName,
				"error":  result.ErrorMessage,
			})
		}
	}
	return out
}

func (o *Orchestrator) gateRemediation(ctx context.Context, metadata domain.ToolMetadata, args map[string]any) error {
	if o.permissions != nil && len(metadata.RequiredPermissions) > 0 {
		decision := safety.AggregatePermissions(metadata.RequiredPermissions, o.permissions)
		if decision.OverallStatus != safety.PermissionGranted {
			return fmt.Errorf("%w: permissions %s, missing %s",
				domain.ErrSafetyRejected, decision.OverallStatus,
				strings.Join(decision.MissingPermissions, ", "))
		}
	}

	action := safety.ActionDescriptor{
		ActionID:   uuid.NewString(),
		ActionType: metadata.Name,
		Target:     actionTarget(metadata, args),
		Parameters: args,
		Checks:     []string{"target_exists", "not_noop", "parameters_well_formed"},
	}
	validation := o.validator.Validate(ctx, action)
	if !validation.Passed {
		return fmt.Errorf("%w: %s", domain.ErrSafetyRejected, strings.Join(validation.Warnings, "; "))
	}
	return nil
}

func actionTarget(metadata domain.ToolMetadata, args map[string]any) string {
	if target, ok := args["target"].(string); ok && target != "" {
		return target
	}
	return metadata.ServerID
}

func isRemediation(metadata domain.ToolMetadata) bool {
	return metadata.HasCapability(domain.CapabilityAutomatedRemediation) ||
		metadata.Category == domain.CategoryRemediation
}

// cacheNamespace maps read-style capabilities onto a cache namespace.
// Tools that also remediate are never memoized.
func cacheNamespace(metadata domain.ToolMetadata) (string, bool) {
	if isRemediation(metadata) {
		return "", false
	}
	if metadata.HasCapability(domain.CapabilityDocumentationSearch) {
		return cache.NamespaceDocumentation, true
	}
	if metadata.HasCapability(domain.CapabilityResourceAnalysis) ||
		metadata.HasCapability(domain.CapabilityConfigurationAnalysis) {
		return cache.NamespaceResource, true
	}
	return "", false
}

// validateArguments checks args against the tool's input schema when one
// is present. Malformed schemas from remote servers are skipped rather
// than blocking the call.
func validateArguments(schema any, args map[string]any) error {
	resolved, ok := resolveSchema(schema)
	if !ok {
		return nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	if err := resolved.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	return nil
}

func resolveSchema(schema any) (*jsonschema.Resolved, bool) {
	if schema == nil {
		return nil, false
	}
	parsed, ok := schema.(*jsonschema.Schema)
	if !ok {
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, false
		}
		parsed = &jsonschema.Schema{}
		if err := json.Unmarshal(raw, parsed); err != nil {
			return nil, false
		}
	}
	resolved, err := parsed.Resolve(nil)
	if err != nil {
		return nil, false
	}
	return resolved, true
}

func resultErr(result domain.ToolResult) error {
	if result.Success {
		return nil
	}
	return errors.New(result.ErrorMessage)
}

func withMeta(meta map[string]any, key string, value any) map[string]any {
	if meta == nil {
		meta = make(map[string]any, 1)
	}
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[key] = value
	return out
}
