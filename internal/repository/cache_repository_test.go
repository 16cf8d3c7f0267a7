package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest []int
	err := repo.Get(ctx, "sdcohort:sections:4", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(ctx, "sdcohort:sections:4", []int{1, 2}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "sdcohort:sections:4"))
	assert.NoError(t, repo.Close())
}
