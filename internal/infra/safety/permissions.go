package safety

// PermissionStatus is the aggregate outcome of a permission check.
type PermissionStatus string

const (
	PermissionGranted PermissionStatus = "GRANTED"
	PermissionPartial PermissionStatus = "PARTIAL"
	PermissionDenied  PermissionStatus = "DENIED"
)

// PermissionDecision aggregates per-permission grants for one tool call.
type PermissionDecision struct {
	OverallStatus      PermissionStatus
	GrantedPermissions []string
	MissingPermissions []string
}

// PermissionChecker answers whether one named permission is granted.
type PermissionChecker func(permission string) bool

// AggregatePermissions evaluates every required permission: all granted
// is GRANTED, all denied is DENIED, a mix is PARTIAL. An empty
// requirement list is vacuously GRANTED.
func AggregatePermissions(required []string, granted PermissionChecker) PermissionDecision {
	decision := PermissionDecision{OverallStatus: PermissionGranted}
	for _, permission := range required {
		if granted != nil && granted(permission) {
			decision.GrantedPermissions = append(decision.GrantedPermissions, permission)
		} else {
			decision.MissingPermissions = append(decision.MissingPermissions, permission)
		}
	}
	switch {
	case len(decision.MissingPermissions) == 0:
		decision.OverallStatus = PermissionGranted
	case len(decision.GrantedPermissions) == 0:
		decision.OverallStatus = PermissionDenied
	default:
		decision.OverallStatus = PermissionPartial
	}
	return decision
}
