package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrDuplicate reports a unique constraint violation raised by PostgreSQL.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = "23505"

// Queries is the persistence surface the services read and write through,
// either directly or inside an atomic unit.
type Queries interface {
	EnrollmentQueries
	BindingQueries
}

type queries struct {
	*EnrollmentRepository
	*BindingRepository
}

// NewQueries binds both repositories to db, which may be a *sqlx.DB or a *sqlx.Tx.
func NewQueries(db sqlx.ExtContext) Queries {
	return queries{
		EnrollmentRepository: NewEnrollmentRepository(db),
		BindingRepository:    NewBindingRepository(db),
	}
}

// Store hands out Queries and runs check-then-write sequences atomically.
type Store struct {
	db *sqlx.DB
}

// NewStore constructs the store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Read returns Queries bound to the pool. Reads through it are not serialised
// against writers.
func (s *Store) Read() Queries {
	return NewQueries(s.db)
}

// Atomically runs fn in one transaction after taking a transaction-scoped
// advisory lock on every key. Keys are locked in sorted order so two units
// sharing keys cannot deadlock. fn's error rolls the transaction back.
func (s *Store) Atomically(ctx context.Context, keys []string, fn func(Queries) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, key := range LockOrder(keys) {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
	}

	if err = fn(NewQueries(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LockOrder returns the distinct non-empty keys sorted.
func LockOrder(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SectionLockKey serialises admissions and bindings on one (grade, section).
func SectionLockKey(grade, section int) string {
	return fmt.Sprintf("section:%d:%d", grade, section)
}

// GradeLockKey serialises primary-tier bindings on a whole grade.
func GradeLockKey(grade int) string {
	return fmt.Sprintf("grade:%d", grade)
}

// InstructorLockKey serialises changes to one instructor's bindings.
func InstructorLockKey(id string) string {
	return "instructor:" + id
}

// EnrollmentLockKey serialises transitions of one enrollment.
func EnrollmentLockKey(id string) string {
	return "enrollment:" + id
}

func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
