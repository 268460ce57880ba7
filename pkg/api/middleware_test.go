package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/test", append(handlers, func(c *gin.Context) { c.String(http.StatusOK, "ok") })...)
	return r
}

func TestAuthMiddleware_SessionCookieAccepted(t *testing.T) {
	sessions := NewMemorySessionStore()
	sessions.Put("cookie-1", Principal{Subject: "user-1", Role: "operator"})
	credentials := NewMemoryCredentialStore()

	r := newTestRouter(authMiddleware(sessions, credentials, "cp_session"))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.AddCookie(&http.Cookie{Name: "cp_session", Value: "cookie-1"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_BearerFallback(t *testing.T) {
	sessions := NewMemorySessionStore()
	credentials := NewMemoryCredentialStore()
	credentials.Put("tok-1", Principal{Subject: "svc-1", Role: "service"})

	r := newTestRouter(authMiddleware(sessions, credentials, "cp_session"))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_NoCredentialRejected(t *testing.T) {
	r := newTestRouter(authMiddleware(NewMemorySessionStore(), NewMemoryCredentialStore(), "cp_session"))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole_RejectsWrongRole(t *testing.T) {
	sessions := NewMemorySessionStore()
	sessions.Put("cookie-1", Principal{Subject: "user-1", Role: "viewer"})

	r := newTestRouter(authMiddleware(sessions, NewMemoryCredentialStore(), "cp_session"), requireRole("operator"))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.AddCookie(&http.Cookie{Name: "cp_session", Value: "cookie-1"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRFMiddleware_GETExempt(t *testing.T) {
	r := gin.New()
	r.GET("/test", csrfMiddleware([]byte("secret"), "cp_session"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFMiddleware_BearerCallerExempt(t *testing.T) {
	r := gin.New()
	r.POST("/test", func(c *gin.Context) {
		c.Set(principalKey, Principal{Subject: "svc-1", ViaSession: false})
		c.Next()
	}, csrfMiddleware([]byte("secret"), "cp_session"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFMiddleware_SessionCallerRequiresMatchingToken(t *testing.T) {
	r := gin.New()
	r.POST("/test", func(c *gin.Context) {
		c.Set(principalKey, Principal{Subject: "user-1", ViaSession: true})
		c.Next()
	}, csrfMiddleware([]byte("secret"), "cp_session"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.AddCookie(&http.Cookie{Name: "cp_session", Value: "cookie-1"})
	req.Header.Set("X-CSRF-Token", csrfToken([]byte("secret"), "cookie-1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/test", nil)
	req2.AddCookie(&http.Cookie{Name: "cp_session", Value: "cookie-1"})
	req2.Header.Set("X-CSRF-Token", "wrong-token")
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusForbidden, rec2.Code)
}
