package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/arena-api/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	jwtService, err := auth.NewJWTService("secret", "")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", NewAuthMiddleware(jwtService).RequireAuth(), func(c *gin.Context) {
		id, ok := StudentID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"student_id": id})
	})
	return router, jwtService
}

func TestRequireAuth(t *testing.T) {
	router, jwtService := newAuthRouter(t)
	token, err := jwtService.GenerateToken(5, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name       string
		url        string
		header     string
		wantStatus int
	}{
		{"bearer токен", "/me", "Bearer " + token, http.StatusOK},
		{"токен в query", "/me?token=" + token, "", http.StatusOK},
		{"нет токена", "/me", "", http.StatusUnauthorized},
		{"неверный формат", "/me", "Token " + token, http.StatusUnauthorized},
		{"неверный токен", "/me", "Bearer broken", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestExtractUUIDParam(t *testing.T) {
	router := gin.New()
	router.GET("/duels/:id", ExtractUUIDParam("id", "duel_id"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("duel_id"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/duels/3f1c9a52-5d5e-4c55-9b8e-3f1a2b3c4d5e", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3f1c9a52-5d5e-4c55-9b8e-3f1a2b3c4d5e", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/duels/42", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimiter_FailOpen(t *testing.T) {
	// Redis недоступен: запросы пропускаются
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	router := gin.New()
	router.POST("/lobby/join", NewRateLimiter(client).LimitByStudent(LobbyRateLimitConfig(1)), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/lobby/join", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}
