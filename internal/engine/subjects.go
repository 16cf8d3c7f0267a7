package engine

import (
	"fmt"

	"github.com/noah-isme/sd-cohort-api/internal/models"
)

// AssertSingleSubject enforces that an instructor teaches exactly one subject
// across all of their bindings. current is the combined primary and secondary set.
func AssertSingleSubject(instructorID, proposed string, current []string) error {
	for _, existing := range current {
		if existing != proposed {
			return conflictError(
				fmt.Sprintf("instructor is already bound to %s", existing),
				ConflictDetail{Rule: RuleSingleSubject, InstructorID: instructorID, Subject: existing},
			)
		}
	}
	return nil
}

// BoundSubjects returns the distinct subjects across bindings, skipping the
// binding with id skipID and subject-less (primary tier) bindings.
func BoundSubjects(bindings []models.Binding, skipID string) []string {
	seen := make(map[string]struct{}, len(bindings))
	var out []string
	for _, b := range bindings {
		if skipID != "" && b.ID == skipID {
			continue
		}
		subject := b.SubjectName()
		if subject == "" {
			continue
		}
		if _, ok := seen[subject]; ok {
			continue
		}
		seen[subject] = struct{}{}
		out = append(out, subject)
	}
	return out
}
