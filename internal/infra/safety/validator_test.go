package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func validAction(checks ...string) ActionDescriptor {
	return ActionDescriptor{
		ActionID:   "act-1",
		ActionType: "update_security_group",
		Target:     "sg-123",
		Parameters: map[string]any{"rule": "deny-all"},
		Checks:     checks,
	}
}

func TestValidate_AllChecksPass(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(context.Background(), validAction("target_exists", "not_noop", "parameters_well_formed"))
	require.True(t, result.Passed)
	require.Empty(t, result.Warnings)
	require.Len(t, result.Checks, 3)
}

func TestValidate_EmptyCheckListPassesVacuously(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(context.Background(), validAction())
	require.True(t, result.Passed)
	require.Empty(t, result.Warnings)
}

func TestValidate_OneFailingCheckFailsAggregate(t *testing.T) {
	v := NewValidator(nil)

	action := validAction("target_exists", "not_noop")
	action.Parameters = nil

	result := v.Validate(context.Background(), action)
	require.False(t, result.Passed)
	require.True(t, result.Checks["target_exists"])
	require.False(t, result.Checks["not_noop"])
	require.Len(t, result.Warnings, 1)
	require.Contains(t, result.Warnings[0], "no-op")
}

func TestValidate_StructuralValidationIsFatal(t *testing.T) {
	v := NewValidator(nil)

	action := validAction("target_exists")
	action.ActionType = ""
	action.Target = ""

	result := v.Validate(context.Background(), action)
	require.False(t, result.Passed)
	require.Len(t, result.Warnings, 2)
	// Named checks never ran.
	require.Empty(t, result.Checks)
}

func TestValidate_UnknownCheckFailsClosed(t *testing.T) {
	v := NewValidator(nil)

	result := v.Validate(context.Background(), validAction("no_such_check"))
	require.False(t, result.Passed)
	require.Contains(t, result.Warnings[0], "unknown check")
}

func TestValidate_CustomCheck(t *testing.T) {
	v := NewValidator(nil)
	v.Register("in_maintenance_window", func(context.Context, ActionDescriptor) (bool, string) {
		return false, "outside maintenance window"
	})

	result := v.Validate(context.Background(), validAction("in_maintenance_window"))
	require.False(t, result.Passed)
	require.Contains(t, result.Warnings[0], "maintenance window")
}

func TestAggregatePermissions(t *testing.T) {
	required := []string{"ec2:Describe", "s3:List", "iam:Get"}

	allGranted := AggregatePermissions(required, func(string) bool { return true })
	require.Equal(t, PermissionGranted, allGranted.OverallStatus)
	require.Empty(t, allGranted.MissingPermissions)

	oneDenied := AggregatePermissions(required, func(p string) bool { return p != "iam:Get" })
	require.Equal(t, PermissionPartial, oneDenied.OverallStatus)
	require.Len(t, oneDenied.MissingPermissions, 1)
	require.Equal(t, []string{"iam:Get"}, oneDenied.MissingPermissions)

	allDenied := AggregatePermissions(required, func(string) bool { return false })
	require.Equal(t, PermissionDenied, allDenied.OverallStatus)
	require.Len(t, allDenied.MissingPermissions, 3)

	empty := AggregatePermissions(nil, nil)
	require.Equal(t, PermissionGranted, empty.OverallStatus)
}
