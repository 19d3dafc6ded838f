// Package safety gates mutating ("remediation") tool calls behind
// pre-flight checks.
package safety

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ActionDescriptor identifies one proposed mutating action.
type ActionDescriptor struct {
	ActionID   string
	ActionType string
	Target     string
	Parameters map[string]any
	Checks     []string
}

// ValidationResult reports the aggregate outcome. Passed is true iff
// every requested check passed; an empty check list passes vacuously.
// Warnings carry human-readable detail for every failing check.
type ValidationResult struct {
	ActionID string
	Passed   bool
	Warnings []string
	Checks   map[string]bool
}

// CheckFunc evaluates one named check against an action.
type CheckFunc func(ctx context.Context, action ActionDescriptor) (bool, string)

// Validator holds the named check table. Checks are registered at
// construction or later; unknown check names fail closed.
type Validator struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	logger *zap.Logger
}

// NewValidator constructs a Validator with the built-in checks.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{
		checks: make(map[string]CheckFunc),
		logger: logger.Named("safety"),
	}
	v.Register("target_exists", checkTargetExists)
	v.Register("not_noop", checkNotNoop)
	v.Register("parameters_well_formed", checkParametersWellFormed)
	return v
}

// Register installs or replaces a named check.
func (v *Validator) Register(name string, check CheckFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checks[name] = check
}

// Validate runs structural validation first (fatal when fields are
// missing), then every requested named check. Failing checks produce
// warnings, never a silent continue.
func (v *Validator) Validate(ctx context.Context, action ActionDescriptor) ValidationResult {
	result := ValidationResult{
		ActionID: action.ActionID,
		Checks:   make(map[string]bool, len(action.Checks)),
	}

	if missing := structuralErrors(action); len(missing) > 0 {
		result.Passed = false
		for _, field := range missing {
			result.Warnings = append(result.Warnings, fmt.Sprintf("missing required field: %s", field))
		}
		return result
	}

	result.Passed = true
	for _, name := range action.Checks {
		v.mu.RLock()
		check, ok := v.checks[name]
		v.mu.RUnlock()
		if !ok {
			result.Passed = false
			result.Checks[name] = false
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown check: %s", name))
			continue
		}
		passed, detail := check(ctx, action)
		result.Checks[name] = passed
		if !passed {
			result.Passed = false
			if detail == "" {
				detail = "check failed"
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", name, detail))
		}
	}

	if !result.Passed {
		v.logger.Warn("action rejected",
			zap.String("action", action.ActionID),
			zap.String("type", action.ActionType),
			zap.Strings("warnings", result.Warnings),
		)
	}
	return result
}

func structuralErrors(action ActionDescriptor) []string {
	var missing []string
	if strings.TrimSpace(action.ActionID) == "" {
		missing = append(missing, "action_id")
	}
	if strings.TrimSpace(action.ActionType) == "" {
		missing = append(missing, "action_type")
	}
	if strings.TrimSpace(action.Target) == "" {
		missing = append(missing, "target")
	}
	return missing
}

func checkTargetExists(_ context.Context, action ActionDescriptor) (bool, string) {
	if strings.TrimSpace(action.Target) == "" {
		return false, "target is empty"
	}
	return true, ""
}

func checkNotNoop(_ context.Context, action ActionDescriptor) (bool, string) {
	if len(action.Parameters) == 0 {
		return false, "change is a no-op: no parameters supplied"
	}
	return true, ""
}

func checkParametersWellFormed(_ context.Context, action ActionDescriptor) (bool, string) {
	for key, value := range action.Parameters {
		if strings.TrimSpace(key) == "" {
			return false, "parameter with empty name"
		}
		if value == nil {
			return false, fmt.Sprintf("parameter %s is nil", key)
		}
	}
	return true, ""
}
