package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace/config"
	"marketplace/internal/auth"
	"marketplace/internal/domain"
	"marketplace/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() { gin.SetMode(gin.TestMode) }

var jwtCfg = &config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Hour, Issuer: "marketplace"}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(response.Locale())
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "role": GetRole(c)})
	})
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := newRouter(AuthRequired(jwtCfg))

	w := do(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Status)
	assert.Equal(t, http.StatusUnauthorized, env.Code)

	assert.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)

	token, err := auth.GenerateAccessToken(jwtCfg, 7, "w@example.com", domain.RoleWorker)
	require.NoError(t, err)
	w = do(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"WORKER"}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := newRouter(AuthRequired(jwtCfg), RequireRole(domain.RoleAdmin))

	customer, _ := auth.GenerateAccessToken(jwtCfg, 1, "c@example.com", domain.RoleCustomer)
	admin, _ := auth.GenerateAccessToken(jwtCfg, 2, "a@example.com", domain.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, do(r, customer).Code)
	assert.Equal(t, http.StatusOK, do(r, admin).Code)
}

func TestInMemoryRateLimiter(t *testing.T) {
	l := NewInMemoryRateLimiter(2, time.Minute)
	r := newRouter(RateLimit(l))

	assert.Equal(t, http.StatusOK, do(r, "").Code)
	assert.Equal(t, http.StatusOK, do(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "").Code)

	assert.True(t, l.Allow(context.Background(), "other"))
}

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) IncrWithExpire(_ context.Context, ns, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[ns+":"+key]++
	return f.counts[ns+":"+key], nil
}

func TestRedisRateLimiter(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}}
	l := NewRedisRateLimiter(counter, "api", 1, time.Minute, zap.NewNop())

	assert.True(t, l.Allow(context.Background(), "k"))
	assert.False(t, l.Allow(context.Background(), "k"))
	assert.Equal(t, int64(2), counter.counts["ratelimit:api:k"])

	counter.err = errors.New("connection refused")
	assert.True(t, l.Allow(context.Background(), "k"))
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID(), Logger(zap.NewNop()))

	w := do(r, "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}
