package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sd-cohort-api/internal/models"
)

// RejectPolicy decides which source states reject accepts.
type RejectPolicy int

const (
	// RejectOpen accepts pending and approved records.
	RejectOpen RejectPolicy = iota
	// RejectPendingOnly accepts pending records only.
	RejectPendingOnly
)

// SubjectBinding pairs a subject with the instructor who will teach it to an approved enrollment.
type SubjectBinding struct {
	Subject        string `json:"subject"`
	InstructorID   string `json:"instructor_id"`
	InstructorName string `json:"instructor_name"`
}

// ApprovalResult is everything an approval commits plus the notice published after commit.
type ApprovalResult struct {
	Enrollment models.Enrollment
	Subjects   []models.SubjectEnrollment
	Notice     models.ApprovalNotice
}

// EnrollmentStateMachine governs pending -> approved/rejected and the
// approved-only remove and reassign moves. It never touches storage.
type EnrollmentStateMachine struct {
	capacity CapacityManager
	policy   RejectPolicy
	now      func() time.Time
	newID    func() string
}

// NewEnrollmentStateMachine builds a state machine admitting against capacity.
func NewEnrollmentStateMachine(capacity CapacityManager, policy RejectPolicy) *EnrollmentStateMachine {
	return &EnrollmentStateMachine{
		capacity: capacity,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Approve places a pending enrollment in section. occupancy is the count of
// approved enrollments already in (grade, section). Checks run in order:
// status, grade, section, binding completeness, capacity. Nothing is produced
// unless all pass.
func (m *EnrollmentStateMachine) Approve(e models.Enrollment, section int, bindings []SubjectBinding, occupancy int) (*ApprovalResult, error) {
	grade, err := m.CheckApprovable(e, section)
	if err != nil {
		return nil, err
	}
	resolved, err := completeBindings(grade, bindings)
	if err != nil {
		return nil, err
	}
	if err := m.capacity.CheckAdmission(grade, section, occupancy); err != nil {
		return nil, err
	}

	now := m.now()
	approved := e
	approved.Status = models.EnrollmentStatusApproved
	approved.Section = &section
	approved.UpdatedAt = now

	rows := make([]models.SubjectEnrollment, 0, len(resolved))
	for _, b := range resolved {
		rows = append(rows, models.SubjectEnrollment{
			ID:             m.newID(),
			EnrollmentID:   e.ID,
			Subject:        b.Subject,
			InstructorID:   b.InstructorID,
			InstructorName: b.InstructorName,
			CreatedAt:      now,
		})
	}

	return &ApprovalResult{
		Enrollment: approved,
		Subjects:   rows,
		Notice:     approvalNotice(approved, grade, section, resolved),
	}, nil
}

// CheckApprovable runs the status, grade and section checks of Approve so a
// caller can fail fast before it resolves bindings.
func (m *EnrollmentStateMachine) CheckApprovable(e models.Enrollment, section int) (Grade, error) {
	if e.Status != models.EnrollmentStatusPending {
		return 0, invalidStateError("cannot approve enrollment in %s status", e.Status)
	}
	grade, err := ParseGrade(e.GradeLevel)
	if err != nil {
		return 0, err
	}
	if err := ValidateSection(section); err != nil {
		return 0, err
	}
	return grade, nil
}

// Reject marks the enrollment rejected and clears its section. Rejected is terminal.
func (m *EnrollmentStateMachine) Reject(e models.Enrollment) (models.Enrollment, models.RejectionNotice, error) {
	switch e.Status {
	case models.EnrollmentStatusPending:
	case models.EnrollmentStatusApproved:
		if m.policy == RejectPendingOnly {
			return e, models.RejectionNotice{}, invalidStateError("only pending enrollments can be rejected")
		}
	default:
		return e, models.RejectionNotice{}, invalidStateError("cannot reject enrollment in %s status", e.Status)
	}

	rejected := e
	rejected.Status = models.EnrollmentStatusRejected
	rejected.Section = nil
	rejected.UpdatedAt = m.now()
	return rejected, models.RejectionNotice{
		EnrollmentID: e.ID,
		ToAddress:    e.ContactEmail,
		ToName:       e.ParentName,
		StudentName:  e.StudentName,
	}, nil
}

// RemoveFromSection moves an approved enrollment back to pending. Subject enrollment history stays.
func (m *EnrollmentStateMachine) RemoveFromSection(e models.Enrollment) (models.Enrollment, error) {
	if e.Status != models.EnrollmentStatusApproved {
		return e, invalidStateError("only approved enrollments can be removed from a section")
	}
	out := e
	out.Status = models.EnrollmentStatusPending
	out.Section = nil
	out.UpdatedAt = m.now()
	return out, nil
}

// Reassign places the enrollment in newSection as approved. occupancy counts
// approved enrollments in the destination, excluding e. Moving an approved
// enrollment to its current section is a no-op and reports changed=false.
func (m *EnrollmentStateMachine) Reassign(e models.Enrollment, newSection, occupancy int) (out models.Enrollment, changed bool, err error) {
	if e.Status == models.EnrollmentStatusRejected {
		return e, false, invalidStateError("cannot reassign a rejected enrollment")
	}
	grade, err := ParseGrade(e.GradeLevel)
	if err != nil {
		return e, false, err
	}
	if err := ValidateSection(newSection); err != nil {
		return e, false, err
	}
	if e.Status == models.EnrollmentStatusApproved && e.Section != nil && *e.Section == newSection {
		return e, false, nil
	}
	if err := m.capacity.CheckAdmission(grade, newSection, occupancy); err != nil {
		return e, false, err
	}

	out = e
	out.Status = models.EnrollmentStatusApproved
	out.Section = &newSection
	out.UpdatedAt = m.now()
	return out, true, nil
}

// RequiredSubjects lists the subjects an approval must bind for grade.
func RequiredSubjects(grade Grade) []string {
	if grade.Tier() == TierPrimary {
		return []string{AllSubjects}
	}
	return DepartmentalizedSubjects()
}

// completeBindings normalises bindings and returns them in required-subject
// order, failing on the first missing subject.
func completeBindings(grade Grade, bindings []SubjectBinding) ([]SubjectBinding, error) {
	bySubject := make(map[string]SubjectBinding, len(bindings))
	for _, b := range bindings {
		subject, err := normaliseBindingSubject(grade, b.Subject)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(b.InstructorID) == "" {
			continue
		}
		if _, dup := bySubject[subject]; dup {
			return nil, validationError("duplicate instructor binding for %s", subject)
		}
		b.Subject = subject
		bySubject[subject] = b
	}

	required := RequiredSubjects(grade)
	out := make([]SubjectBinding, 0, len(required))
	for _, subject := range required {
		b, ok := bySubject[subject]
		if !ok {
			return nil, validationError("missing instructor binding for %s", subject)
		}
		out = append(out, b)
	}
	return out, nil
}

// VerifyBindings checks every requested binding against the registry of
// (grade, section) and fills instructor names from it. Grades 1-3 accept only
// the grade's own binding; grades 4-6 need a binding for the same section and
// subject. Entries without an instructor are left for completeness checks.
func VerifyBindings(grade Grade, section int, requested []SubjectBinding, registry []models.Binding) ([]SubjectBinding, error) {
	out := make([]SubjectBinding, 0, len(requested))
	for _, b := range requested {
		b.InstructorID = strings.TrimSpace(b.InstructorID)
		if b.InstructorID == "" {
			out = append(out, b)
			continue
		}
		subject, err := normaliseBindingSubject(grade, b.Subject)
		if err != nil {
			return nil, err
		}
		match, ok := registryMatch(grade, section, subject, b.InstructorID, registry)
		if !ok {
			msg := fmt.Sprintf("instructor is not bound to %s in this section", subject)
			if grade.Tier() == TierPrimary {
				msg = fmt.Sprintf("instructor is not bound to grade %d", grade)
			}
			return nil, conflictError(msg, ConflictDetail{Rule: RuleNotBound, InstructorID: b.InstructorID, Subject: subject})
		}
		b.Subject = subject
		b.InstructorName = match.InstructorName
		out = append(out, b)
	}
	return out, nil
}

func registryMatch(grade Grade, section int, subject, instructorID string, registry []models.Binding) (models.Binding, bool) {
	for _, r := range registry {
		if r.Grade != int(grade) || r.InstructorID != instructorID {
			continue
		}
		if grade.Tier() == TierDepartmentalized && (r.SectionNumber() != section || r.SubjectName() != subject) {
			continue
		}
		return r, true
	}
	return models.Binding{}, false
}

func normaliseBindingSubject(grade Grade, raw string) (string, error) {
	if grade.Tier() == TierPrimary {
		if raw = strings.TrimSpace(raw); raw == "" || strings.EqualFold(raw, AllSubjects) {
			return AllSubjects, nil
		}
		return "", validationError("grades 1-3 take a single %s binding", AllSubjects)
	}
	subject, ok := CanonicalSubject(raw)
	if !ok {
		return "", validationError("unknown subject %q", raw)
	}
	return subject, nil
}

func approvalNotice(e models.Enrollment, grade Grade, section int, bindings []SubjectBinding) models.ApprovalNotice {
	shift := grade.Shift()
	notice := models.ApprovalNotice{
		EnrollmentID: e.ID,
		ToAddress:    e.ContactEmail,
		ToName:       e.ParentName,
		StudentName:  e.StudentName,
		Grade:        int(grade),
		Section:      section,
		Room:         RoomFor(grade, &section),
		Shift:        string(shift),
		TimeWindow:   shift.TimeWindow(),
	}
	if grade.Tier() == TierPrimary {
		notice.Adviser = bindings[0].InstructorName
		return notice
	}
	notice.Subjects = make([]models.SubjectTeacher, 0, len(bindings))
	for _, b := range bindings {
		notice.Subjects = append(notice.Subjects, models.SubjectTeacher{Subject: b.Subject, Instructor: b.InstructorName})
	}
	return notice
}
