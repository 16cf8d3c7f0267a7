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

// EnrollmentQueries covers enrollments and their subject enrollment history.
type EnrollmentQueries interface {
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	UpdateEnrollmentPlacement(ctx context.Context, enrollment *models.Enrollment) error
	CountApproved(ctx context.Context, grade string, section int, excludeID string) (int, error)
	CountApprovedBySection(ctx context.Context, grade string) (map[int]int, error)
	ListRoster(ctx context.Context, grade string, section int) ([]models.Enrollment, error)
	CreateSubjectEnrollments(ctx context.Context, rows []models.SubjectEnrollment) error
	ListSubjectEnrollments(ctx context.Context, enrollmentID string) ([]models.SubjectEnrollment, error)
}

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db sqlx.ExtContext
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db sqlx.ExtContext) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_name, grade_level, section, status, parent_name, contact_email, contact_phone, account_id, enrolled_at, updated_at`

// CreateEnrollment inserts a new enrollment.
func (r *EnrollmentRepository) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_name, grade_level, section, status, parent_name, contact_email, contact_phone, account_id, enrolled_at, updated_at)
		VALUES (:id, :student_name, :grade_level, :section, :status, :parent_name, :contact_email, :contact_phone, :account_id, :enrolled_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, enrollment); err != nil {
		return mapWriteError("create enrollment", err)
	}
	return nil
}

// GetEnrollment returns an enrollment by its ID or sql.ErrNoRows.
func (r *EnrollmentRepository) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.db, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListEnrollments returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Section != nil {
		conditions = append(conditions, fmt.Sprintf("section = $%d", len(args)+1))
		args = append(args, *filter.Section)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("student_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "enrolled_at",
		"student_name": "student_name",
		"section":      "section",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM enrollments%s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentColumns, clause, orderBy, order, size, offset)
	var enrollments []models.Enrollment
	if err := sqlx.SelectContext(ctx, r.db, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, "SELECT COUNT(*) FROM enrollments"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// UpdateEnrollmentPlacement writes status, section and updated_at.
func (r *EnrollmentRepository) UpdateEnrollmentPlacement(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `UPDATE enrollments SET status = :status, section = :section, updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, enrollment)
	if err != nil {
		return fmt.Errorf("update enrollment placement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated enrollment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountApproved returns the approved occupancy of (grade, section), not counting excludeID.
func (r *EnrollmentRepository) CountApproved(ctx context.Context, grade string, section int, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM enrollments WHERE grade_level = $1 AND section = $2 AND status = $3`
	args := []interface{}{grade, section, models.EnrollmentStatusApproved}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count approved enrollments: %w", err)
	}
	return count, nil
}

// CountApprovedBySection returns approved occupancy per section of grade. Empty sections are absent.
func (r *EnrollmentRepository) CountApprovedBySection(ctx context.Context, grade string) (map[int]int, error) {
	const query = `SELECT section, COUNT(*) AS occupancy FROM enrollments
WHERE grade_level = $1 AND status = $2 AND section IS NOT NULL
GROUP BY section`
	var rows []struct {
		Section   int `db:"section"`
		Occupancy int `db:"occupancy"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, grade, models.EnrollmentStatusApproved); err != nil {
		return nil, fmt.Errorf("count section occupancy: %w", err)
	}
	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.Section] = row.Occupancy
	}
	return counts, nil
}

// ListRoster returns the approved enrollments of (grade, section) by student name.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, grade string, section int) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE grade_level = $1 AND section = $2 AND status = $3 ORDER BY student_name ASC`
	var enrollments []models.Enrollment
	if err := sqlx.SelectContext(ctx, r.db, &enrollments, query, grade, section, models.EnrollmentStatusApproved); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return enrollments, nil
}

// CreateSubjectEnrollments inserts the rows of one approval.
func (r *EnrollmentRepository) CreateSubjectEnrollments(ctx context.Context, rows []models.SubjectEnrollment) error {
	const query = `INSERT INTO subject_enrollments (id, enrollment_id, subject, instructor_id, instructor_name, created_at)
		VALUES (:id, :enrollment_id, :subject, :instructor_id, :instructor_name, :created_at)`
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, r.db, query, rows[i]); err != nil {
			return mapWriteError("create subject enrollment", err)
		}
	}
	return nil
}

// ListSubjectEnrollments returns the subject history of an enrollment, oldest first.
func (r *EnrollmentRepository) ListSubjectEnrollments(ctx context.Context, enrollmentID string) ([]models.SubjectEnrollment, error) {
	const query = `SELECT id, enrollment_id, subject, instructor_id, instructor_name, created_at
FROM subject_enrollments WHERE enrollment_id = $1 ORDER BY created_at ASC, subject ASC`
	var rows []models.SubjectEnrollment
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list subject enrollments: %w", err)
	}
	return rows, nil
}
