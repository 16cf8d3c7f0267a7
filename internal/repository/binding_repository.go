package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sd-cohort-api/internal/models"
)

// BindingFilter narrows the merged binding view. Zero values do not filter.
type BindingFilter struct {
	InstructorID string
	Grade        *int
	Section      *int
}

// BindingQueries covers instructor profiles and their section bindings.
type BindingQueries interface {
	GetInstructor(ctx context.Context, id string) (*models.Instructor, error)
	UpdatePrimaryBinding(ctx context.Context, instructor *models.Instructor) error
	ListBindings(ctx context.Context, filter BindingFilter) ([]models.Binding, error)
	GetSectionAssignment(ctx context.Context, id string) (*models.SectionAssignment, error)
	CreateSectionAssignment(ctx context.Context, assignment *models.SectionAssignment) error
	UpdateSectionAssignment(ctx context.Context, assignment *models.SectionAssignment) error
	DeleteSectionAssignment(ctx context.Context, instructorID, id string) error
	DeleteInstructor(ctx context.Context, id string) error
}

// BindingRepository persists primary bindings on the users table and
// secondary bindings in section_assignments.
type BindingRepository struct {
	db sqlx.ExtContext
}

// NewBindingRepository constructs the repository.
func NewBindingRepository(db sqlx.ExtContext) *BindingRepository {
	return &BindingRepository{db: db}
}

// mergedBindings projects both sources into one row shape. The primary
// binding's id is the instructor id.
const mergedBindings = `
SELECT * FROM (
	SELECT u.id AS id, u.id AS instructor_id, u.full_name AS instructor_name,
	       u.assigned_grade AS grade, u.assigned_section AS section, u.assigned_subject AS subject,
	       COALESCE(u.assigned_room, '') AS room, NULL::TEXT[] AS days,
	       NULL::TEXT AS start_time, NULL::TEXT AS end_time, TRUE AS is_primary
	FROM users u
	WHERE u.assigned_grade IS NOT NULL
	UNION ALL
	SELECT sa.id, sa.instructor_id, u.full_name,
	       sa.grade, sa.section, sa.subject,
	       sa.room, sa.days,
	       sa.start_time, sa.end_time, FALSE
	FROM section_assignments sa
	JOIN users u ON u.id = sa.instructor_id
) b`

// GetInstructor returns a teacher account by id or sql.ErrNoRows.
func (r *BindingRepository) GetInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	const query = `SELECT id, email, full_name, role, active, assigned_grade, assigned_section, assigned_subject, assigned_room, updated_at
FROM users WHERE id = $1 AND role = $2`
	var instructor models.Instructor
	if err := sqlx.GetContext(ctx, r.db, &instructor, query, id, models.RoleTeacher); err != nil {
		return nil, err
	}
	return &instructor, nil
}

// UpdatePrimaryBinding writes the assigned_* profile columns. Nil values clear them.
func (r *BindingRepository) UpdatePrimaryBinding(ctx context.Context, instructor *models.Instructor) error {
	instructor.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET assigned_grade = :assigned_grade, assigned_section = :assigned_section,
	assigned_subject = :assigned_subject, assigned_room = :assigned_room, updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, instructor)
	if err != nil {
		return fmt.Errorf("update primary binding: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated instructor rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListBindings returns primary and secondary bindings matching filter,
// primary first then by grade, section and subject.
func (r *BindingRepository) ListBindings(ctx context.Context, filter BindingFilter) ([]models.Binding, error) {
	var conditions []string
	var args []interface{}

	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("b.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Grade != nil {
		conditions = append(conditions, fmt.Sprintf("b.grade = $%d", len(args)+1))
		args = append(args, *filter.Grade)
	}
	if filter.Section != nil {
		conditions = append(conditions, fmt.Sprintf("b.section = $%d", len(args)+1))
		args = append(args, *filter.Section)
	}

	query := strings.Builder{}
	query.WriteString(mergedBindings)
	if len(conditions) > 0 {
		query.WriteString("\nWHERE " + strings.Join(conditions, " AND "))
	}
	query.WriteString("\nORDER BY b.is_primary DESC, b.grade ASC, b.section ASC NULLS FIRST, b.subject ASC NULLS FIRST, b.id ASC")

	var bindings []models.Binding
	if err := sqlx.SelectContext(ctx, r.db, &bindings, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return bindings, nil
}

// GetSectionAssignment returns a secondary binding by id or sql.ErrNoRows.
func (r *BindingRepository) GetSectionAssignment(ctx context.Context, id string) (*models.SectionAssignment, error) {
	const query = `SELECT id, instructor_id, grade, section, subject, room, days, start_time, end_time, created_at
FROM section_assignments WHERE id = $1`
	var assignment models.SectionAssignment
	if err := sqlx.GetContext(ctx, r.db, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// CreateSectionAssignment inserts a secondary binding.
func (r *BindingRepository) CreateSectionAssignment(ctx context.Context, assignment *models.SectionAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO section_assignments (id, instructor_id, grade, section, subject, room, days, start_time, end_time, created_at)
		VALUES (:id, :instructor_id, :grade, :section, :subject, :room, :days, :start_time, :end_time, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, assignment); err != nil {
		return mapWriteError("create section assignment", err)
	}
	return nil
}

// UpdateSectionAssignment rewrites a secondary binding owned by assignment.InstructorID.
func (r *BindingRepository) UpdateSectionAssignment(ctx context.Context, assignment *models.SectionAssignment) error {
	const query = `UPDATE section_assignments SET grade = :grade, section = :section, subject = :subject, room = :room,
	days = :days, start_time = :start_time, end_time = :end_time
WHERE id = :id AND instructor_id = :instructor_id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, assignment)
	if err != nil {
		return mapWriteError("update section assignment", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated assignment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteSectionAssignment removes an assignment verifying ownership.
func (r *BindingRepository) DeleteSectionAssignment(ctx context.Context, instructorID, id string) error {
	const query = `DELETE FROM section_assignments WHERE id = $1 AND instructor_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, instructorID)
	if err != nil {
		return fmt.Errorf("delete section assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted assignment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteInstructor removes the teacher account and every section assignment it holds.
func (r *BindingRepository) DeleteInstructor(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM section_assignments WHERE instructor_id = $1`, id); err != nil {
		return fmt.Errorf("delete instructor assignments: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1 AND role = $2`, id, models.RoleTeacher)
	if err != nil {
		return fmt.Errorf("delete instructor: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted instructor rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
