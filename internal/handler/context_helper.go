package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sd-cohort-api/internal/middleware"
	"github.com/noah-isme/sd-cohort-api/internal/models"
	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext returns the caller identity; anonymous callers get the zero Actor.
func actorFromContext(c *gin.Context) models.Actor {
	return claimsFromContext(c).Actor()
}

func intParam(c *gin.Context, name string) (int, error) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return value, nil
}

func optionalIntQuery(c *gin.Context, name string) (*int, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return &value, nil
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
