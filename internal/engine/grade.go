package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// GradeTier groups grade levels by assignment cardinality rules.
type GradeTier int

const (
	// TierPrimary covers grades 1-3: one adviser per grade, no section or subject dimension.
	TierPrimary GradeTier = iota + 1
	// TierDepartmentalized covers grades 4-6: one instructor per (section, subject).
	TierDepartmentalized
)

func (t GradeTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierDepartmentalized:
		return "departmentalized"
	default:
		return "unknown"
	}
}

// Grade is a validated grade level between 1 and 6.
type Grade int

const (
	MinGrade Grade = 1
	MaxGrade Grade = 6
)

const (
	// MaxSections is the number of sections per grade.
	MaxSections = 8
	// SectionCapacity is the default ceiling of approved enrollments per section.
	SectionCapacity = 40
	// MaxSectionInstructors bounds distinct instructors per departmentalized section.
	MaxSectionInstructors = 6
	// AllSubjects is the single subject recorded for primary-tier enrollments.
	AllSubjects = "All Subjects"
)

var departmentalizedSubjects = []string{"Math", "Science", "English", "Filipino", "Araling Panlipunan", "MAPEH"}

// DepartmentalizedSubjects returns the fixed subject list for grades 4-6 in display order.
func DepartmentalizedSubjects() []string {
	out := make([]string, len(departmentalizedSubjects))
	copy(out, departmentalizedSubjects)
	return out
}

// CanonicalSubject matches raw case-insensitively against the departmentalized subjects.
func CanonicalSubject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range departmentalizedSubjects {
		if strings.EqualFold(s, raw) {
			return s, true
		}
	}
	return "", false
}

// ParseGrade converts the string-encoded grade level used at the boundary.
func ParseGrade(raw string) (Grade, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, validationError("invalid grade level %q", raw)
	}
	return NewGrade(n)
}

// NewGrade validates n.
func NewGrade(n int) (Grade, error) {
	g := Grade(n)
	if g < MinGrade || g > MaxGrade {
		return 0, validationError("grade level must be between %d and %d", MinGrade, MaxGrade)
	}
	return g, nil
}

// Tier derives the grade's tier.
func (g Grade) Tier() GradeTier {
	if g <= 3 {
		return TierPrimary
	}
	return TierDepartmentalized
}

func (g Grade) String() string { return strconv.Itoa(int(g)) }

// Shift returns Morning for even grades and Afternoon for odd ones.
func (g Grade) Shift() Shift {
	if g%2 == 0 {
		return ShiftMorning
	}
	return ShiftAfternoon
}

// Shift is the half-day a grade attends.
type Shift string

const (
	ShiftMorning   Shift = "Morning"
	ShiftAfternoon Shift = "Afternoon"
)

// TimeWindow is the fixed class schedule for the shift.
func (s Shift) TimeWindow() string {
	if s == ShiftMorning {
		return "7:00 AM - 12:00 PM"
	}
	return "12:30 PM - 5:30 PM"
}

// ValidateSection checks 1 <= section <= MaxSections.
func ValidateSection(section int) error {
	if section < 1 || section > MaxSections {
		return validationError("section must be between 1 and %d", MaxSections)
	}
	return nil
}

// RoomFor is the fixed room lookup: grade-level rooms for grades 1-3 and one
// room per section for grades 4-6.
func RoomFor(grade Grade, section *int) string {
	if grade.Tier() == TierPrimary || section == nil {
		return fmt.Sprintf("Room %d00", grade)
	}
	return fmt.Sprintf("Room %d%02d", grade, *section)
}
