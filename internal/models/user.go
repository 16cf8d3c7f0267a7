package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleParent     UserRole = "PARENT"
)

// Instructor is the subset of a teacher account the assignment engine reads and writes.
// The Assigned* columns hold the primary binding; AssignedRoom is derived, never user-set.
type Instructor struct {
	ID              string    `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	FullName        string    `db:"full_name" json:"full_name"`
	Role            UserRole  `db:"role" json:"role"`
	Active          bool      `db:"active" json:"active"`
	AssignedGrade   *int      `db:"assigned_grade" json:"assigned_grade,omitempty"`
	AssignedSection *int      `db:"assigned_section" json:"assigned_section,omitempty"`
	AssignedSubject *string   `db:"assigned_subject" json:"assigned_subject,omitempty"`
	AssignedRoom    *string   `db:"assigned_room" json:"assigned_room,omitempty"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// HasPrimaryBinding reports whether a grade is set on the profile.
func (i *Instructor) HasPrimaryBinding() bool {
	return i != nil && i.AssignedGrade != nil
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
