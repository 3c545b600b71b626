package models

// UserRole represents the staff roles recognised by the RBAC layer.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RolePrincipal UserRole = "PRINCIPAL"
	RoleInspector UserRole = "INSPECTOR"
	RoleCounselor UserRole = "COUNSELOR"
	RoleTeacher   UserRole = "TEACHER"
	RoleSystem    UserRole = "SYSTEM"
)

// StaffRoles lists every role allowed to read case files.
var StaffRoles = []UserRole{RoleAdmin, RolePrincipal, RoleInspector, RoleCounselor, RoleTeacher}

// IsStaff reports whether r is one of StaffRoles.
func (r UserRole) IsStaff() bool {
	for _, role := range StaffRoles {
		if role == r {
			return true
		}
	}
	return false
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
