package engine

import (
	"fmt"

	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

// ConflictDetail names the existing entity that blocks a binding.
type ConflictDetail struct {
	Rule           string `json:"rule"`
	InstructorID   string `json:"instructor_id,omitempty"`
	InstructorName string `json:"instructor_name,omitempty"`
	Subject        string `json:"subject,omitempty"`
	BindingID      string `json:"binding_id,omitempty"`
}

// CapacityDetail reports the ceiling that was reached.
type CapacityDetail struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Conflict rules.
const (
	RuleGradeTaken    = "grade_taken"
	RuleSubjectTaken  = "subject_taken"
	RuleSingleSubject = "single_subject"
	RuleDuplicate     = "duplicate_binding"
	RuleScheduleClash = "schedule_conflict"
	RuleNotBound      = "not_bound"
)

func validationError(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf(format, args...))
}

func conflictError(message string, detail ConflictDetail) error {
	return appErrors.WithDetails(appErrors.ErrConflict, message, detail)
}

func capacityError(message string, current, max int) error {
	return appErrors.WithDetails(appErrors.ErrCapacity, message, CapacityDetail{Current: current, Max: max})
}

func invalidStateError(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf(format, args...))
}
