package domain

import "time"

// Role differentiates end users from moderators and admins.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// CanModerate reports whether the role may claim and service rooms.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

// User is the directory record for anyone connecting to the gateway.
// Account lifecycle (registration, passwords) is owned by the external
// auth service; this core only resolves display data and roles.
type User struct {
	ID        string
	Name      string
	Email     string
	Avatar    string
	Role      Role
	CreatedAt time.Time
}
