package engine

import (
	"fmt"
	"strings"

	"github.com/noah-isme/sd-cohort-api/internal/models"
)

// BindingKind distinguishes the profile-held primary binding from secondary SectionAssignments.
type BindingKind int

const (
	KindPrimary BindingKind = iota + 1
	KindSecondary
)

// AssignmentRequest proposes binding an instructor to (grade, section, subject).
type AssignmentRequest struct {
	InstructorID string
	Kind         BindingKind
	Grade        Grade
	Section      *int
	Subject      *string
	Schedule     Schedule
	// EditingID is the id of the binding being replaced: the instructor id for
	// a primary binding or the SectionAssignment id. Empty for new bindings.
	EditingID string
}

// AssignmentState is the registry slice a decision reads.
type AssignmentState struct {
	// Instructor holds every binding of the requesting instructor.
	Instructor []models.Binding
	// Scope holds every binding on the target grade (grades 1-3) or on the
	// target (grade, section) (grades 4-6), from any instructor.
	Scope []models.Binding
}

// AssignmentDecision is an admitted binding, normalised and ready to commit.
type AssignmentDecision struct {
	Tier     GradeTier
	Grade    Grade
	Section  *int
	Subject  *string
	Room     string
	Schedule Schedule
}

// AssignmentValidator decides whether an instructor may take a binding.
type AssignmentValidator struct {
	maxInstructors int
}

// NewAssignmentValidator returns a validator with the standard section limits.
func NewAssignmentValidator() AssignmentValidator {
	return AssignmentValidator{maxInstructors: MaxSectionInstructors}
}

// Validate applies the tier rules. Departmentalized checks run in a fixed
// order and stop at the first failure: single subject, triple uniqueness,
// section instructor count, schedule overlap.
func (v AssignmentValidator) Validate(req AssignmentRequest, state AssignmentState) (*AssignmentDecision, error) {
	if strings.TrimSpace(req.InstructorID) == "" {
		return nil, validationError("instructor is required")
	}
	if req.Grade < MinGrade || req.Grade > MaxGrade {
		return nil, validationError("grade level must be between %d and %d", MinGrade, MaxGrade)
	}

	if req.Grade.Tier() == TierPrimary {
		if req.Kind == KindSecondary {
			return nil, validationError("section assignments are only available for grades 4-6")
		}
		return v.validatePrimaryTier(req, state)
	}
	return v.validateDepartmentalized(req, state)
}

func (v AssignmentValidator) validatePrimaryTier(req AssignmentRequest, state AssignmentState) (*AssignmentDecision, error) {
	// A grade adviser carries no subject. Any subject already fixed, the primary
	// binding's own included, stays locked.
	for _, b := range state.Instructor {
		if b.SubjectName() == "" {
			continue
		}
		return nil, conflictError(
			fmt.Sprintf("instructor is already bound to %s", b.SubjectName()),
			ConflictDetail{Rule: RuleSingleSubject, InstructorID: req.InstructorID, Subject: b.SubjectName(), BindingID: b.ID},
		)
	}
	for _, b := range state.Scope {
		if b.Grade != int(req.Grade) || b.InstructorID == req.InstructorID {
			continue
		}
		return nil, conflictError(
			fmt.Sprintf("grade already has a professor: %s", b.InstructorName),
			ConflictDetail{Rule: RuleGradeTaken, InstructorID: b.InstructorID, InstructorName: b.InstructorName, BindingID: b.ID},
		)
	}
	return &AssignmentDecision{
		Tier:  TierPrimary,
		Grade: req.Grade,
		Room:  RoomFor(req.Grade, nil),
	}, nil
}

func (v AssignmentValidator) validateDepartmentalized(req AssignmentRequest, state AssignmentState) (*AssignmentDecision, error) {
	if req.Section == nil {
		return nil, validationError("section is required for grades 4-6")
	}
	if err := ValidateSection(*req.Section); err != nil {
		return nil, err
	}
	if req.Subject == nil || strings.TrimSpace(*req.Subject) == "" {
		return nil, validationError("subject is required for grades 4-6")
	}
	subject, ok := CanonicalSubject(*req.Subject)
	if !ok {
		return nil, validationError("unknown subject %q", *req.Subject)
	}
	slot, err := ParseSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}
	section := *req.Section

	// Editing a secondary assignment may change its subject when it is the only
	// one fixing it; the primary binding stays in the set so its subject is locked.
	skip := ""
	if req.Kind == KindSecondary {
		skip = req.EditingID
	}
	if err := AssertSingleSubject(req.InstructorID, subject, BoundSubjects(state.Instructor, skip)); err != nil {
		return nil, err
	}

	inSection := sectionBindings(state.Scope, req.Grade, section)

	for _, b := range inSection {
		if b.SubjectName() != subject || b.ID == req.EditingID {
			continue
		}
		if b.InstructorID != req.InstructorID {
			return nil, conflictError(
				"subject already taken in this section",
				ConflictDetail{Rule: RuleSubjectTaken, InstructorID: b.InstructorID, InstructorName: b.InstructorName, Subject: subject, BindingID: b.ID},
			)
		}
		return nil, conflictError(
			"instructor already holds this section and subject",
			ConflictDetail{Rule: RuleDuplicate, InstructorID: b.InstructorID, InstructorName: b.InstructorName, Subject: subject, BindingID: b.ID},
		)
	}

	others := make(map[string]struct{}, len(inSection))
	for _, b := range inSection {
		if b.InstructorID != req.InstructorID {
			others[b.InstructorID] = struct{}{}
		}
	}
	if len(others) >= v.limit() {
		return nil, capacityError("section full", len(others), v.limit())
	}

	if slot != nil {
		for _, b := range inSection {
			if b.ID == req.EditingID || !b.HasSchedule() {
				continue
			}
			existing, err := ParseSchedule(scheduleOf(b))
			if err != nil {
				return nil, err
			}
			if slot.Overlaps(existing) {
				return nil, conflictError(
					fmt.Sprintf("schedule conflicts with %s taught by %s", b.SubjectName(), b.InstructorName),
					ConflictDetail{Rule: RuleScheduleClash, InstructorID: b.InstructorID, InstructorName: b.InstructorName, Subject: b.SubjectName(), BindingID: b.ID},
				)
			}
		}
	}

	return &AssignmentDecision{
		Tier:     TierDepartmentalized,
		Grade:    req.Grade,
		Section:  &section,
		Subject:  &subject,
		Room:     RoomFor(req.Grade, &section),
		Schedule: slot.Normalized(),
	}, nil
}

func (v AssignmentValidator) limit() int {
	if v.maxInstructors <= 0 {
		return MaxSectionInstructors
	}
	return v.maxInstructors
}

func sectionBindings(scope []models.Binding, grade Grade, section int) []models.Binding {
	out := make([]models.Binding, 0, len(scope))
	for _, b := range scope {
		if b.Grade == int(grade) && b.SectionNumber() == section {
			out = append(out, b)
		}
	}
	return out
}

func scheduleOf(b models.Binding) Schedule {
	s := Schedule{Days: []string(b.Days)}
	if b.StartTime != nil {
		s.Start = *b.StartTime
	}
	if b.EndTime != nil {
		s.End = *b.EndTime
	}
	return s
}
