package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/repository"
)

// memStore is an in-memory repository.Queries. Atomically serialises units
// on one mutex and restores a snapshot when fn fails, which is all the
// advisory locks and the transaction give the services.
type memStore struct {
	txMu   sync.Mutex
	dataMu sync.Mutex

	enrollments map[string]models.Enrollment
	subjects    []models.SubjectEnrollment
	instructors map[string]models.Instructor
	assignments map[string]models.SectionAssignment

	seq       int
	lockCalls [][]string
	failWith  error
}

func newMemStore() *memStore {
	return &memStore{
		enrollments: map[string]models.Enrollment{},
		instructors: map[string]models.Instructor{},
		assignments: map[string]models.SectionAssignment{},
	}
}

func (m *memStore) Read() repository.Queries { return m }

func (m *memStore) Atomically(ctx context.Context, keys []string, fn func(repository.Queries) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.dataMu.Lock()
	m.lockCalls = append(m.lockCalls, repository.LockOrder(keys))
	snap := m.snapshot()
	m.dataMu.Unlock()

	if err := fn(m); err != nil {
		m.dataMu.Lock()
		m.restore(snap)
		m.dataMu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	enrollments map[string]models.Enrollment
	subjects    []models.SubjectEnrollment
	instructors map[string]models.Instructor
	assignments map[string]models.SectionAssignment
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		enrollments: make(map[string]models.Enrollment, len(m.enrollments)),
		subjects:    append([]models.SubjectEnrollment(nil), m.subjects...),
		instructors: make(map[string]models.Instructor, len(m.instructors)),
		assignments: make(map[string]models.SectionAssignment, len(m.assignments)),
	}
	for k, v := range m.enrollments {
		s.enrollments[k] = v
	}
	for k, v := range m.instructors {
		s.instructors[k] = v
	}
	for k, v := range m.assignments {
		s.assignments[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.enrollments = s.enrollments
	m.subjects = s.subjects
	m.instructors = s.instructors
	m.assignments = s.assignments
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// fixtures

func (m *memStore) addEnrollment(e models.Enrollment) models.Enrollment {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	if e.ID == "" {
		e.ID = m.nextID("enr")
	}
	if e.Status == "" {
		e.Status = models.EnrollmentStatusPending
	}
	m.enrollments[e.ID] = e
	return e
}

func (m *memStore) addInstructor(id, name string) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	m.instructors[id] = models.Instructor{ID: id, FullName: name, Role: models.RoleTeacher, Active: true}
}

func (m *memStore) enrollment(id string) models.Enrollment {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	return m.enrollments[id]
}

// EnrollmentQueries

func (m *memStore) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if e.ID == "" {
		e.ID = m.nextID("enr")
	}
	e.EnrolledAt = time.Now().UTC()
	e.UpdatedAt = e.EnrolledAt
	m.enrollments[e.ID] = *e
	return nil
}

func (m *memStore) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *memStore) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	if m.failWith != nil {
		return nil, 0, m.failWith
	}
	var out []models.Enrollment
	for _, e := range m.enrollments {
		if filter.GradeLevel != "" && e.GradeLevel != filter.GradeLevel {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(e.StudentName), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memStore) UpdateEnrollmentPlacement(ctx context.Context, e *models.Enrollment) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	current, ok := m.enrollments[e.ID]
	if !ok {
		return sql.ErrNoRows
	}
	current.Status = e.Status
	current.Section = e.Section
	current.UpdatedAt = e.UpdatedAt
	m.enrollments[e.ID] = current
	return nil
}

func (m *memStore) CountApproved(ctx context.Context, grade string, section int, excludeID string) (int, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	count := 0
	for _, e := range m.enrollments {
		if e.ID != excludeID && e.GradeLevel == grade && e.Status == models.EnrollmentStatusApproved && e.Section != nil && *e.Section == section {
			count++
		}
	}
	return count, nil
}

func (m *memStore) CountApprovedBySection(ctx context.Context, grade string) (map[int]int, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	counts := map[int]int{}
	for _, e := range m.enrollments {
		if e.GradeLevel == grade && e.Status == models.EnrollmentStatusApproved && e.Section != nil {
			counts[*e.Section]++
		}
	}
	return counts, nil
}

func (m *memStore) ListRoster(ctx context.Context, grade string, section int) ([]models.Enrollment, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	var out []models.Enrollment
	for _, e := range m.enrollments {
		if e.GradeLevel == grade && e.Status == models.EnrollmentStatusApproved && e.Section != nil && *e.Section == section {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentName < out[j].StudentName })
	return out, nil
}

func (m *memStore) CreateSubjectEnrollments(ctx context.Context, rows []models.SubjectEnrollment) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	m.subjects = append(m.subjects, rows...)
	return nil
}

func (m *memStore) ListSubjectEnrollments(ctx context.Context, enrollmentID string) ([]models.SubjectEnrollment, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	var out []models.SubjectEnrollment
	for _, row := range m.subjects {
		if row.EnrollmentID == enrollmentID {
			out = append(out, row)
		}
	}
	return out, nil
}

// BindingQueries

func (m *memStore) GetInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	i, ok := m.instructors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &i, nil
}

func (m *memStore) UpdatePrimaryBinding(ctx context.Context, instructor *models.Instructor) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	if _, ok := m.instructors[instructor.ID]; !ok {
		return sql.ErrNoRows
	}
	m.instructors[instructor.ID] = *instructor
	return nil
}

func (m *memStore) ListBindings(ctx context.Context, filter repository.BindingFilter) ([]models.Binding, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	var out []models.Binding
	for _, i := range m.instructors {
		i := i
		if b, ok := models.PrimaryBinding(&i); ok {
			out = append(out, b)
		}
	}
	for _, a := range m.assignments {
		out = append(out, models.BindingFromAssignment(a, m.instructors[a.InstructorID].FullName))
	}

	filtered := out[:0]
	for _, b := range out {
		if filter.InstructorID != "" && b.InstructorID != filter.InstructorID {
			continue
		}
		if filter.Grade != nil && b.Grade != *filter.Grade {
			continue
		}
		if filter.Section != nil && (b.Section == nil || *b.Section != *filter.Section) {
			continue
		}
		filtered = append(filtered, b)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].IsPrimary != filtered[j].IsPrimary {
			return filtered[i].IsPrimary
		}
		if filtered[i].SubjectName() != filtered[j].SubjectName() {
			return filtered[i].SubjectName() < filtered[j].SubjectName()
		}
		return filtered[i].ID < filtered[j].ID
	})
	return filtered, nil
}

func (m *memStore) GetSectionAssignment(ctx context.Context, id string) (*models.SectionAssignment, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (m *memStore) CreateSectionAssignment(ctx context.Context, a *models.SectionAssignment) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	for _, existing := range m.assignments {
		if existing.Grade == a.Grade && existing.Section == a.Section && existing.Subject == a.Subject {
			return repository.ErrDuplicate
		}
	}
	if a.ID == "" {
		a.ID = m.nextID("sa")
	}
	m.assignments[a.ID] = *a
	return nil
}

func (m *memStore) UpdateSectionAssignment(ctx context.Context, a *models.SectionAssignment) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	existing, ok := m.assignments[a.ID]
	if !ok || existing.InstructorID != a.InstructorID {
		return sql.ErrNoRows
	}
	m.assignments[a.ID] = *a
	return nil
}

func (m *memStore) DeleteSectionAssignment(ctx context.Context, instructorID, id string) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	existing, ok := m.assignments[id]
	if !ok || existing.InstructorID != instructorID {
		return sql.ErrNoRows
	}
	delete(m.assignments, id)
	return nil
}

func (m *memStore) DeleteInstructor(ctx context.Context, id string) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	if _, ok := m.instructors[id]; !ok {
		return sql.ErrNoRows
	}
	for k, a := range m.assignments {
		if a.InstructorID == id {
			delete(m.assignments, k)
		}
	}
	delete(m.instructors, id)
	return nil
}

// recordingPublisher captures notices published after commit.
type recordingPublisher struct {
	mu         sync.Mutex
	approvals  []models.ApprovalNotice
	rejections []models.RejectionNotice
}

func (p *recordingPublisher) PublishApproval(ctx context.Context, n models.ApprovalNotice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.approvals = append(p.approvals, n)
}

func (p *recordingPublisher) PublishRejection(ctx context.Context, n models.RejectionNotice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejections = append(p.rejections, n)
}

var (
	adminActor  = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	parentActor = models.Actor{UserID: "parent-1", Role: models.RoleParent}
)

func intRef(v int) *int       { return &v }
func strRef(v string) *string { return &v }
