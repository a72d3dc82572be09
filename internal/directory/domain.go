// Package directory provides read-only project and user lookups used for
// role checks and notification fan-out.
package directory

import "fmt"

// Role enumerates project membership roles.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleManager  Role = "manager"
	RoleEngineer Role = "engineer"
	RolePurchase Role = "purchase"
)

// Project describes a construction project. State is the GST state of the
// client, used to decide the intra- vs inter-state tax split.
type Project struct {
	ID    string
	Name  string
	State string
}

// Member is a user attached to a project with one role.
type Member struct {
	UserID string
	Name   string
	Role   Role
}

// ErrNotMember indicates the user has no role on the project.
var ErrNotMember = fmt.Errorf("directory: user is not a project member")
