package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ops-audit-api/internal/models"
	"github.com/noah-isme/ops-audit-api/internal/service"
	appErrors "github.com/noah-isme/ops-audit-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func newRouter(validator TokenValidator, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWT(validator), RequireRoles(roles...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func serve(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestJWTRejectsMissingOrMalformedHeader(t *testing.T) {
	r := newRouter(stubValidator{claims: &models.JWTClaims{UserID: 1, Role: models.RoleAdmin}}, models.RoleAdmin)
	for _, header := range []string{"", "Basic abc", "Bearer ", "token"} {
		w := serve(r, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, w))
	}
}

func TestJWTPropagatesValidatorError(t *testing.T) {
	r := newRouter(stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}, models.RoleAdmin)
	w := serve(r, "Bearer abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoles(t *testing.T) {
	viewer := stubValidator{claims: &models.JWTClaims{UserID: 2, Role: models.RoleViewer}}
	w := serve(newRouter(viewer, models.RoleSuperAdmin, models.RoleAdmin), "Bearer ok")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, w))

	admin := stubValidator{claims: &models.JWTClaims{UserID: 1, Role: models.RoleAdmin}}
	w = serve(newRouter(admin, models.RoleSuperAdmin, models.RoleAdmin), "bearer ok")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsMiddlewareLabelsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/audit/:entity", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/audit/Driver", "/nowhere"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `path="/audit/:entity"`)
	assert.Contains(t, w.Body.String(), `path="unmatched"`)
}
