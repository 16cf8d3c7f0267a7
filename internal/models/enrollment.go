package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusApproved EnrollmentStatus = "approved"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusApproved, EnrollmentStatusRejected:
		return true
	}
	return false
}

// Enrollment is a student's request to join a grade; Section is set only while approved.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	StudentName  string           `db:"student_name" json:"student_name"`
	GradeLevel   string           `db:"grade_level" json:"grade_level"`
	Section      *int             `db:"section" json:"section,omitempty"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	ParentName   string           `db:"parent_name" json:"parent_name"`
	ContactEmail string           `db:"contact_email" json:"contact_email"`
	ContactPhone string           `db:"contact_phone" json:"contact_phone"`
	AccountID    *string          `db:"account_id" json:"account_id,omitempty"`
	EnrolledAt   time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// SubjectEnrollment binds an approved enrollment to one (subject, instructor) pair.
type SubjectEnrollment struct {
	ID             string    `db:"id" json:"id"`
	EnrollmentID   string    `db:"enrollment_id" json:"enrollment_id"`
	Subject        string    `db:"subject" json:"subject"`
	InstructorID   string    `db:"instructor_id" json:"instructor_id"`
	InstructorName string    `db:"instructor_name" json:"instructor_name"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentDetail enriches Enrollment with its subject history.
type EnrollmentDetail struct {
	Enrollment
	Subjects []SubjectEnrollment `json:"subjects"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	GradeLevel string
	Section    *int
	Status     EnrollmentStatus
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// SectionOccupancy pairs a section with its approved enrollment count.
type SectionOccupancy struct {
	Section   int  `json:"section"`
	Occupancy int  `json:"occupancy"`
	Capacity  int  `json:"capacity"`
	Available bool `json:"available"`
}
