package rbac

// Role names carried in access tokens.
const (
	RoleAgent   = "agent"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// CallRoles may place calls, run the dialer and read their own call history.
var CallRoles = []string{RoleAgent, RoleManager}

func IsAdmin(role string) bool { return role == RoleAdmin }

// Valid reports whether role is one this service issues.
func Valid(role string) bool {
	switch role {
	case RoleAgent, RoleManager, RoleAdmin:
		return true
	}
	return false
}
