package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reunitehq/reunite-api/internal/models"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
}

func (s *stubValidator) ValidateToken(string) (*models.JWTClaims, error) {
	return s.claims, s.err
}

func browseRouter(validator TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/items", OptionalJWT(validator), func(c *gin.Context) {
		if claims, ok := CurrentUser(c); ok {
			c.JSON(http.StatusOK, gin.H{"viewer": claims.UserID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"viewer": "anonymous"})
	})
	return r
}

func TestOptionalJWTAllowsAnonymousBrowsing(t *testing.T) {
	r := browseRouter(&stubValidator{err: appErrors.ErrUnauthorized})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/items", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anonymous")
}

func TestOptionalJWTIdentifiesAuthenticatedViewer(t *testing.T) {
	r := browseRouter(&stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleMember}})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer token")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u1")
}

func TestOptionalJWTIgnoresInvalidToken(t *testing.T) {
	r := browseRouter(&stubValidator{err: appErrors.ErrUnauthorized})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer expired")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anonymous")
}
