package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sd-cohort-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var enrollmentCols = []string{"id", "student_name", "grade_level", "section", "status", "parent_name", "contact_email", "contact_phone", "account_id", "enrolled_at", "updated_at"}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "Dana Lim", "4", nil, models.EnrollmentStatusPending, "Rosa Lim", "rosa@example.com", "", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{
		StudentName:  "Dana Lim",
		GradeLevel:   "4",
		Status:       models.EnrollmentStatusPending,
		ParentName:   "Rosa Lim",
		ContactEmail: "rosa@example.com",
	}
	require.NoError(t, repo.CreateEnrollment(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryGetNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("FROM enrollments WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetEnrollment(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(enrollmentCols).
		AddRow("enr-1", "Dana Lim", "4", 2, "approved", "Rosa Lim", "rosa@example.com", "", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE grade_level = $1 AND section = $2 AND status = $3 ORDER BY student_name ASC LIMIT 10 OFFSET 10")).
		WithArgs("4", 2, models.EnrollmentStatusApproved).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE grade_level = $1")).
		WithArgs("4", 2, models.EnrollmentStatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	section := 2
	items, total, err := repo.ListEnrollments(context.Background(), models.EnrollmentFilter{
		GradeLevel: "4",
		Section:    &section,
		Status:     models.EnrollmentStatusApproved,
		Page:       2,
		PageSize:   10,
		SortBy:     "student_name",
		SortOrder:  "asc",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 11, total)
	require.NotNil(t, items[0].Section)
	assert.Equal(t, 2, *items[0].Section)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdatePlacement(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	section := 3
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs(models.EnrollmentStatusApproved, 3, sqlmock.AnyArg(), "enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs(models.EnrollmentStatusPending, nil, sqlmock.AnyArg(), "enr-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateEnrollmentPlacement(context.Background(), &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusApproved, Section: &section}))
	err := repo.UpdateEnrollmentPlacement(context.Background(), &models.Enrollment{ID: "enr-2", Status: models.EnrollmentStatusPending})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE grade_level = $1 AND section = $2 AND status = $3 AND id <> $4")).
		WithArgs("4", 1, models.EnrollmentStatusApproved, "enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(39))
	mock.ExpectQuery("GROUP BY section").
		WithArgs("4", models.EnrollmentStatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"section", "occupancy"}).AddRow(1, 39).AddRow(3, 40))

	count, err := repo.CountApproved(context.Background(), "4", 1, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 39, count)

	counts, err := repo.CountApprovedBySection(context.Background(), "4")
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 39, 3: 40}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySubjectEnrollments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectExec("INSERT INTO subject_enrollments").
		WithArgs("se-1", "enr-1", "Math", "t-1", "Ana Cruz", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO subject_enrollments").
		WithArgs(sqlmock.AnyArg(), "enr-1", "Science", "t-2", "Ben Reyes", now).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateSubjectEnrollments(context.Background(), []models.SubjectEnrollment{
		{ID: "se-1", EnrollmentID: "enr-1", Subject: "Math", InstructorID: "t-1", InstructorName: "Ana Cruz", CreatedAt: now},
		{EnrollmentID: "enr-1", Subject: "Science", InstructorID: "t-2", InstructorName: "Ben Reyes", CreatedAt: now},
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
