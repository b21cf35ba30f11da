package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-key"
	testIssuer = "presensi"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("scanner-1", RoleScanner, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "scanner-1", claims.Subject)
	assert.Equal(t, RoleScanner, claims.Role)

	_, err = Parse(pair.AccessToken, "other-key", testIssuer)
	assert.Error(t, err)
	_, err = Parse(pair.AccessToken, testKey, "someone-else")
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	pair, err := Issue("scanner-1", RoleScanner, testIssuer, testKey, -time.Minute, time.Hour)
	require.NoError(t, err)
	_, err = Parse(pair.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/scan", DeviceAuth(testKey, testIssuer), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Subject)
	})
	r.GET("/admin", DeviceAuth(testKey, testIssuer), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDeviceAuth(t *testing.T) {
	r := newRouter()
	pair, err := Issue("scanner-1", RoleScanner, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/scan", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/scan", "garbage").Code)

	w := do(r, "/scan", pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "scanner-1", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := newRouter()
	scanner, err := Issue("scanner-1", RoleScanner, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	admin, err := Issue("desk-1", RoleAdmin, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(r, "/admin", scanner.AccessToken).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", admin.AccessToken).Code)
}
