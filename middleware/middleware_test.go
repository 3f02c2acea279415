package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"vsla-ledger/config"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.AppConfig = &config.Config{JWTSecret: "secret", CORSOrigins: []string{"https://app.example"}}
	os.Exit(m.Run())
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetCurrentUserID(c).String())
	})
	r.GET("/", handlers...)
	return r
}

func get(r *gin.Engine, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := newRouter(AuthRequired())
	userID := uuid.New()

	token, err := utils.GenerateToken(userID, "secret")
	require.NoError(t, err)
	w := get(r, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, map[string]string{"Authorization": token}).Code)

	forged, err := utils.GenerateToken(userID, "other-secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, map[string]string{"Authorization": "Bearer " + forged}).Code)
}

func TestRateLimitPerCaller(t *testing.T) {
	r := newRouter(RateLimit(0.001, 2))

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, nil).Code)
}

func TestRateLimitKeysByUser(t *testing.T) {
	r := newRouter(AuthRequired(), RateLimit(0.001, 1))
	a, _ := utils.GenerateToken(uuid.New(), "secret")
	b, _ := utils.GenerateToken(uuid.New(), "secret")

	assert.Equal(t, http.StatusOK, get(r, map[string]string{"Authorization": "Bearer " + a}).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, map[string]string{"Authorization": "Bearer " + a}).Code)
	assert.Equal(t, http.StatusOK, get(r, map[string]string{"Authorization": "Bearer " + b}).Code)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	r := newRouter(CORSMiddleware())

	w := get(r, map[string]string{"Origin": "https://app.example"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
