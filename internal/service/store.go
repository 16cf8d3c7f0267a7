package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/repository"
	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

// atomicStore is what services persist through. Read is for display paths;
// every admission decision and its write run inside Atomically.
type atomicStore interface {
	Read() repository.Queries
	Atomically(ctx context.Context, keys []string, fn func(repository.Queries) error) error
}

// noticePublisher receives notices after their transition has committed.
type noticePublisher interface {
	PublishApproval(ctx context.Context, notice models.ApprovalNotice)
	PublishRejection(ctx context.Context, notice models.RejectionNotice)
}

func requireAdmin(actor models.Actor) error {
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "administrator role required")
	}
	return nil
}

// translate maps repository failures onto typed errors; typed errors pass through.
func translate(err error, entity, action string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrConflict, entity+" already exists")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to "+action)
	}
}
