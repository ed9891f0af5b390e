package user

import (
	"strings"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Supervisor (subject teacher entering scores)
	RoleSupervisor = "supervisor:"

	// Parent
	RoleParent = "parent:"

	// System (background compilation)
	RoleSystem         = "system:"
	RoleSystemCompiler = "system:compiler"
)

var (
	AdminRoles      = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	SupervisorRoles = []string{RoleSupervisor}
	ParentRoles     = []string{RoleParent}

	// Compiler is the actor the compilation scheduler acts as.
	Compiler = User{ID: "system:compiler", Name: "Result Compiler", Roles: []string{RoleSystemCompiler}}
)

// Assignment is a class+subject a supervisor is responsible for.
type Assignment struct {
	ClassID   string `json:"class_id"`
	SubjectID string `json:"subject_id"`
}

// User is the authenticated actor performing an operation.
// Sessions and credentials are handled upstream.
type User struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Roles       []string     `json:"roles"`
	Assignments []Assignment `json:"assignments,omitempty"` // supervisors
	Wards       []string     `json:"wards,omitempty"`       // parents: student IDs
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsSupervisor() bool {
	return u.RoleStartsWith(RoleSupervisor)
}

func (u *User) IsParent() bool {
	return u.RoleStartsWith(RoleParent)
}

func (u *User) IsSystem() bool {
	return u.RoleStartsWith(RoleSystem)
}

// IsAssignedTo reports whether the user supervises classID+subjectID.
// An empty subjectID matches any subject of the class.
func (u *User) IsAssignedTo(classID, subjectID string) bool {
	for _, a := range u.Assignments {
		if a.ClassID == classID && (subjectID == "" || a.SubjectID == subjectID) {
			return true
		}
	}
	return false
}

func (u *User) IsGuardianOf(studentID string) bool {
	for _, id := range u.Wards {
		if id == studentID {
			return true
		}
	}
	return false
}
