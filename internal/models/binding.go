package models

import (
	"time"

	"github.com/lib/pq"
)

// SectionAssignment is a secondary instructor binding stored in its own table.
type SectionAssignment struct {
	ID           string         `db:"id" json:"id"`
	InstructorID string         `db:"instructor_id" json:"instructor_id"`
	Grade        int            `db:"grade" json:"grade"`
	Section      int            `db:"section" json:"section"`
	Subject      string         `db:"subject" json:"subject"`
	Room         string         `db:"room" json:"room"`
	Days         pq.StringArray `db:"days" json:"days,omitempty"`
	StartTime    *string        `db:"start_time" json:"start_time,omitempty"`
	EndTime      *string        `db:"end_time" json:"end_time,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Binding is one row of the merged registry view: the primary binding held on
// the instructor profile (IsPrimary) or a secondary SectionAssignment.
type Binding struct {
	ID             string         `db:"id" json:"id"`
	InstructorID   string         `db:"instructor_id" json:"instructor_id"`
	InstructorName string         `db:"instructor_name" json:"instructor_name"`
	Grade          int            `db:"grade" json:"grade"`
	Section        *int           `db:"section" json:"section,omitempty"`
	Subject        *string        `db:"subject" json:"subject,omitempty"`
	Room           string         `db:"room" json:"room"`
	Days           pq.StringArray `db:"days" json:"days,omitempty"`
	StartTime      *string        `db:"start_time" json:"start_time,omitempty"`
	EndTime        *string        `db:"end_time" json:"end_time,omitempty"`
	IsPrimary      bool           `db:"is_primary" json:"is_primary"`
}

// SubjectName returns the bound subject or "".
func (b Binding) SubjectName() string {
	if b.Subject == nil {
		return ""
	}
	return *b.Subject
}

// SectionNumber returns the bound section or 0.
func (b Binding) SectionNumber() int {
	if b.Section == nil {
		return 0
	}
	return *b.Section
}

// HasSchedule reports whether any schedule field is set.
func (b Binding) HasSchedule() bool {
	return len(b.Days) > 0 || b.StartTime != nil || b.EndTime != nil
}

// BindingFromAssignment projects a secondary assignment into the merged view.
func BindingFromAssignment(a SectionAssignment, instructorName string) Binding {
	section := a.Section
	subject := a.Subject
	return Binding{
		ID:             a.ID,
		InstructorID:   a.InstructorID,
		InstructorName: instructorName,
		Grade:          a.Grade,
		Section:        &section,
		Subject:        &subject,
		Room:           a.Room,
		Days:           a.Days,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
	}
}

// PrimaryBinding projects the instructor profile into the merged view, or returns false when unset.
func PrimaryBinding(i *Instructor) (Binding, bool) {
	if !i.HasPrimaryBinding() {
		return Binding{}, false
	}
	b := Binding{
		ID:             i.ID,
		InstructorID:   i.ID,
		InstructorName: i.FullName,
		Grade:          *i.AssignedGrade,
		Section:        i.AssignedSection,
		Subject:        i.AssignedSubject,
		IsPrimary:      true,
	}
	if i.AssignedRoom != nil {
		b.Room = *i.AssignedRoom
	}
	return b, true
}
