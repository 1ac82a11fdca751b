package rbac

type Role string
type Action string

const (
	RoleViewer  Role = "viewer"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	// ActionAdmin allows acting on another identity's planner.
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleStudent:
		return action == ActionRead || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown or empty roles to RoleViewer, the least privileged
// role. Write access has to be granted by name.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleStudent, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
