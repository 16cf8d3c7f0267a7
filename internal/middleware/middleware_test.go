package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/service"
	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.token = token
	return v.claims, v.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/instructors/:id", handlers...)
	return r
}

func serve(r *gin.Engine, path, auth string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWT(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}}
	r := newRouter(JWT(stub))

	assert.Equal(t, http.StatusOK, serve(r, "/instructors/x", "Bearer abc"))
	assert.Equal(t, "abc", stub.token)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/instructors/x", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/instructors/x", "Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/instructors/x", "Bearer "))

	stub.err = appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/instructors/x", "Bearer abc"))
}

func TestRBAC(t *testing.T) {
	withClaims := func(claims *models.JWTClaims) gin.HandlerFunc {
		return func(c *gin.Context) { c.Set(ContextUserKey, claims) }
	}

	admin := newRouter(withClaims(&models.JWTClaims{UserID: "a", Role: models.RoleSuperAdmin}), RequireAdmin())
	assert.Equal(t, http.StatusOK, serve(admin, "/instructors/t1", ""))

	teacher := newRouter(withClaims(&models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}), RequireAdmin())
	assert.Equal(t, http.StatusForbidden, serve(teacher, "/instructors/t1", ""))

	self := newRouter(withClaims(&models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}), RBAC(string(models.RoleAdmin), SelfParam))
	assert.Equal(t, http.StatusOK, serve(self, "/instructors/t1", ""))
	assert.Equal(t, http.StatusForbidden, serve(self, "/instructors/t2", ""))

	anonymous := newRouter(RequireAdmin())
	assert.Equal(t, http.StatusUnauthorized, serve(anonymous, "/instructors/t1", ""))
}

func TestMetricsMiddleware(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter(Metrics(metrics))
	serve(r, "/instructors/t1", "")
	serve(r, "/instructors/t2", "")

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.GreaterOrEqual(t, snap.AverageRequestDurationMs, float64(0))
}

func TestMetricsMiddlewareSkipsProbesAndLabelsUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, "/health", "")
	assert.Equal(t, uint64(0), metrics.Snapshot().RequestsTotal)

	assert.Equal(t, http.StatusNotFound, serve(r, "/nowhere/abc", ""))
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `path="unmatched"`)
	assert.NotContains(t, w.Body.String(), "/nowhere/abc")
}
