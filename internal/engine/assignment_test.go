package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sd-cohort-api/internal/models"
	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

func secondary(id, instructorID, name string, grade, section int, subject string) models.Binding {
	return models.Binding{
		ID:             id,
		InstructorID:   instructorID,
		InstructorName: name,
		Grade:          grade,
		Section:        intPtr(section),
		Subject:        strPtr(subject),
	}
}

func primary(instructorID, name string, grade int, section *int, subject *string) models.Binding {
	return models.Binding{
		ID:             instructorID,
		InstructorID:   instructorID,
		InstructorName: name,
		Grade:          grade,
		Section:        section,
		Subject:        subject,
		IsPrimary:      true,
	}
}

func conflictDetail(t *testing.T, err error) ConflictDetail {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code, appErr.Message)
	detail, ok := appErr.Details.(ConflictDetail)
	require.True(t, ok)
	return detail
}

func TestValidateDepartmentalizedSubjectTaken(t *testing.T) {
	v := NewAssignmentValidator()
	scope := []models.Binding{
		primary("t-math", "Ana Cruz", 5, intPtr(2), strPtr("Math")),
		secondary("sa-sci", "t-sci", "Ben Reyes", 5, 2, "Science"),
	}

	_, err := v.Validate(AssignmentRequest{
		InstructorID: "t-new",
		Kind:         KindSecondary,
		Grade:        5,
		Section:      intPtr(2),
		Subject:      strPtr("Math"),
	}, AssignmentState{Scope: scope})
	detail := conflictDetail(t, err)
	assert.Equal(t, "subject already taken in this section", appErrors.FromError(err).Message)
	assert.Equal(t, RuleSubjectTaken, detail.Rule)
	assert.Equal(t, "Ana Cruz", detail.InstructorName)

	decision, err := v.Validate(AssignmentRequest{
		InstructorID: "t-new",
		Kind:         KindSecondary,
		Grade:        5,
		Section:      intPtr(2),
		Subject:      strPtr("english"),
	}, AssignmentState{Scope: scope})
	require.NoError(t, err)
	assert.Equal(t, TierDepartmentalized, decision.Tier)
	assert.Equal(t, "English", *decision.Subject)
	assert.Equal(t, "Room 502", decision.Room)
	assert.True(t, decision.Schedule.IsZero())
}

func TestValidatePrimaryTierGradeTaken(t *testing.T) {
	v := NewAssignmentValidator()

	for name, existing := range map[string]models.Binding{
		"primary table":   primary("t-a", "Carla Diaz", 2, nil, nil),
		"secondary table": {ID: "sa-legacy", InstructorID: "t-a", InstructorName: "Carla Diaz", Grade: 2},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(AssignmentRequest{
				InstructorID: "t-b",
				Kind:         KindPrimary,
				Grade:        2,
				Section:      intPtr(3),
				Subject:      strPtr("Math"),
			}, AssignmentState{Scope: []models.Binding{existing}})
			detail := conflictDetail(t, err)
			assert.Equal(t, "grade already has a professor: Carla Diaz", appErrors.FromError(err).Message)
			assert.Equal(t, "t-a", detail.InstructorID)
		})
	}
}

func TestValidatePrimaryTierIgnoresSectionAndSubject(t *testing.T) {
	v := NewAssignmentValidator()
	decision, err := v.Validate(AssignmentRequest{
		InstructorID: "t-a",
		Kind:         KindPrimary,
		Grade:        3,
		Section:      intPtr(4),
		Subject:      strPtr("Math"),
	}, AssignmentState{Scope: []models.Binding{primary("t-a", "Carla Diaz", 3, nil, nil)}})
	require.NoError(t, err)
	assert.Nil(t, decision.Section)
	assert.Nil(t, decision.Subject)
	assert.Equal(t, "Room 300", decision.Room)
}

func TestValidateSecondaryInPrimaryTier(t *testing.T) {
	_, err := NewAssignmentValidator().Validate(AssignmentRequest{
		InstructorID: "t-a",
		Kind:         KindSecondary,
		Grade:        1,
	}, AssignmentState{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestValidateRequiredFields(t *testing.T) {
	v := NewAssignmentValidator()
	cases := []struct {
		name string
		req  AssignmentRequest
		msg  string
	}{
		{name: "no instructor", req: AssignmentRequest{Grade: 4}, msg: "instructor is required"},
		{name: "grade out of range", req: AssignmentRequest{InstructorID: "t", Grade: 7}, msg: "grade level must be between 1 and 6"},
		{name: "no section", req: AssignmentRequest{InstructorID: "t", Grade: 4, Subject: strPtr("Math")}, msg: "section is required for grades 4-6"},
		{name: "section out of range", req: AssignmentRequest{InstructorID: "t", Grade: 4, Section: intPtr(9), Subject: strPtr("Math")}, msg: "section must be between 1 and 8"},
		{name: "no subject", req: AssignmentRequest{InstructorID: "t", Grade: 4, Section: intPtr(1)}, msg: "subject is required for grades 4-6"},
		{name: "unknown subject", req: AssignmentRequest{InstructorID: "t", Grade: 4, Section: intPtr(1), Subject: strPtr("Latin")}, msg: `unknown subject "Latin"`},
		{name: "partial schedule", req: AssignmentRequest{InstructorID: "t", Grade: 4, Section: intPtr(1), Subject: strPtr("Math"), Schedule: Schedule{Start: "08:00"}}, msg: "incomplete schedule"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(tc.req, AssignmentState{})
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Equal(t, tc.msg, appErr.Message)
		})
	}
}

func TestValidateSingleSubjectAcrossBindings(t *testing.T) {
	v := NewAssignmentValidator()
	own := []models.Binding{primary("t-1", "Ana Cruz", 4, intPtr(1), strPtr("Math"))}

	_, err := v.Validate(AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindSecondary,
		Grade:        4,
		Section:      intPtr(2),
		Subject:      strPtr("Science"),
	}, AssignmentState{Instructor: own})
	detail := conflictDetail(t, err)
	assert.Equal(t, RuleSingleSubject, detail.Rule)
	assert.Equal(t, "Math", detail.Subject)
	assert.Equal(t, "instructor is already bound to Math", appErrors.FromError(err).Message)

	_, err = v.Validate(AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindSecondary,
		Grade:        6,
		Section:      intPtr(2),
		Subject:      strPtr("Math"),
	}, AssignmentState{Instructor: own})
	require.NoError(t, err)
}

func TestValidatePrimaryEditLocksSubject(t *testing.T) {
	v := NewAssignmentValidator()
	own := []models.Binding{
		primary("t-1", "Ana Cruz", 5, intPtr(1), strPtr("Math")),
		secondary("sa-1", "t-1", "Ana Cruz", 5, 3, "Math"),
	}

	_, err := v.Validate(AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindPrimary,
		Grade:        5,
		Section:      intPtr(1),
		Subject:      strPtr("Science"),
		EditingID:    "t-1",
	}, AssignmentState{Instructor: own, Scope: own[:1]})
	assert.Equal(t, "Math", conflictDetail(t, err).Subject)

	decision, err := v.Validate(AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindPrimary,
		Grade:        6,
		Section:      intPtr(4),
		Subject:      strPtr("Math"),
		EditingID:    "t-1",
	}, AssignmentState{Instructor: own})
	require.NoError(t, err)
	assert.Equal(t, "Room 604", decision.Room)

	_, err = v.Validate(AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindPrimary,
		Grade:        2,
		EditingID:    "t-1",
	}, AssignmentState{Instructor: own})
	assert.Equal(t, RuleSingleSubject, conflictDetail(t, err).Rule)
}

func TestValidatePrimaryMoveToLowerGradeKeepsSubject(t *testing.T) {
	own := []models.Binding{primary("t-1", "Ana Cruz", 5, intPtr(1), strPtr("Math"))}
	_, err := NewAssignmentValidator().Validate(AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindPrimary,
		Grade:        2,
		EditingID:    "t-1",
	}, AssignmentState{Instructor: own})
	detail := conflictDetail(t, err)
	assert.Equal(t, RuleSingleSubject, detail.Rule)
	assert.Equal(t, "Math", detail.Subject)
	assert.Equal(t, "t-1", detail.BindingID)

	adviser := []models.Binding{primary("t-1", "Ana Cruz", 3, nil, nil)}
	decision, err := NewAssignmentValidator().Validate(AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindPrimary,
		Grade:        1,
		EditingID:    "t-1",
	}, AssignmentState{Instructor: adviser})
	require.NoError(t, err)
	assert.Equal(t, "Room 100", decision.Room)
}

func TestValidateSecondaryEditMayChangeSoleSubject(t *testing.T) {
	own := []models.Binding{secondary("sa-1", "t-1", "Ana Cruz", 4, 1, "Science")}
	decision, err := NewAssignmentValidator().Validate(AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindSecondary,
		Grade:        4,
		Section:      intPtr(1),
		Subject:      strPtr("Math"),
		EditingID:    "sa-1",
	}, AssignmentState{Instructor: own, Scope: own})
	require.NoError(t, err)
	assert.Equal(t, "Math", *decision.Subject)
}

func TestValidateDuplicateBinding(t *testing.T) {
	own := []models.Binding{secondary("sa-1", "t-1", "Ana Cruz", 4, 1, "Math")}
	_, err := NewAssignmentValidator().Validate(AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindSecondary,
		Grade:        4,
		Section:      intPtr(1),
		Subject:      strPtr("Math"),
	}, AssignmentState{Instructor: own, Scope: own})
	detail := conflictDetail(t, err)
	assert.Equal(t, RuleDuplicate, detail.Rule)
	assert.Equal(t, "sa-1", detail.BindingID)
}

func TestValidateSectionInstructorLimit(t *testing.T) {
	// A legacy primary binding without a subject still counts toward the limit.
	scope := []models.Binding{
		secondary("sa-1", "t-1", "One", 6, 1, "Math"),
		secondary("sa-2", "t-2", "Two", 6, 1, "Science"),
		secondary("sa-3", "t-3", "Three", 6, 1, "English"),
		secondary("sa-4", "t-4", "Four", 6, 1, "Filipino"),
		secondary("sa-5", "t-5", "Five", 6, 1, "Araling Panlipunan"),
		primary("t-6", "Six", 6, intPtr(1), nil),
	}
	req := AssignmentRequest{InstructorID: "t-7", Kind: KindSecondary, Grade: 6, Section: intPtr(1), Subject: strPtr("MAPEH")}

	_, err := NewAssignmentValidator().Validate(req, AssignmentState{Scope: scope})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCapacity.Code, appErr.Code)
	assert.Equal(t, "section full", appErr.Message)
	assert.Equal(t, CapacityDetail{Current: 6, Max: 6}, appErr.Details)

	// The instructor being rebound is not counted against itself.
	req.InstructorID = "t-6"
	req.Kind = KindPrimary
	req.EditingID = "t-6"
	_, err = NewAssignmentValidator().Validate(req, AssignmentState{Scope: scope})
	require.NoError(t, err)

	small := AssignmentValidator{maxInstructors: 2}
	_, err = small.Validate(AssignmentRequest{InstructorID: "t-9", Kind: KindSecondary, Grade: 6, Section: intPtr(1), Subject: strPtr("MAPEH")},
		AssignmentState{Scope: scope[:2]})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCapacity.Code))
}

func TestValidateScheduleConflict(t *testing.T) {
	existing := secondary("sa-1", "t-1", "Ana Cruz", 4, 2, "Math")
	existing.Days = []string{"monday", "wednesday"}
	existing.StartTime = strPtr("08:00")
	existing.EndTime = strPtr("09:00")
	scope := []models.Binding{existing}

	req := AssignmentRequest{
		InstructorID: "t-2",
		Kind:         KindSecondary,
		Grade:        4,
		Section:      intPtr(2),
		Subject:      strPtr("Science"),
		Schedule:     Schedule{Days: []string{"Wed"}, Start: "8:30 AM", End: "9:30 AM"},
	}
	_, err := NewAssignmentValidator().Validate(req, AssignmentState{Scope: scope})
	detail := conflictDetail(t, err)
	assert.Equal(t, RuleScheduleClash, detail.Rule)
	assert.Equal(t, "schedule conflicts with Math taught by Ana Cruz", appErrors.FromError(err).Message)

	req.Schedule = Schedule{Days: []string{"Wed"}, Start: "9:00 AM", End: "10:00 AM"}
	decision, err := NewAssignmentValidator().Validate(req, AssignmentState{Scope: scope})
	require.NoError(t, err)
	assert.Equal(t, Schedule{Days: []string{"wednesday"}, Start: "09:00", End: "10:00"}, decision.Schedule)

	// Editing its own assignment never clashes with the previous slot.
	own := AssignmentRequest{
		InstructorID: "t-1",
		Kind:         KindSecondary,
		Grade:        4,
		Section:      intPtr(2),
		Subject:      strPtr("Math"),
		Schedule:     Schedule{Days: []string{"monday"}, Start: "08:30", End: "09:30"},
		EditingID:    "sa-1",
	}
	_, err = NewAssignmentValidator().Validate(own, AssignmentState{Instructor: scope, Scope: scope})
	require.NoError(t, err)
}
