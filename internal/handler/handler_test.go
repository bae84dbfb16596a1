package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/arena-api/internal/domain/entity"
	"github.com/yourusername/arena-api/internal/middleware"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
	"github.com/yourusername/arena-api/internal/service"
	"github.com/yourusername/arena-api/internal/service/leaderboard"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestGinContext создает *gin.Context для тестов с JSON body
func newTestGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

func asStudent(c *gin.Context, id uint) {
	c.Set(middleware.ContextStudentID, id)
}

// --- Mocks ---

type MockLobbyService struct {
	mock.Mock
}

func (m *MockLobbyService) JoinLobby(ctx context.Context, input service.JoinLobbyInput) (*entity.PresenceRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PresenceRecord), args.Error(1)
}

func (m *MockLobbyService) ListLobby(ctx context.Context, excludeID uint, grade *int, subject *string) ([]entity.PresenceRecord, error) {
	args := m.Called(ctx, excludeID, grade, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.PresenceRecord), args.Error(1)
}

func (m *MockLobbyService) Heartbeat(ctx context.Context, studentID uint) error {
	return m.Called(ctx, studentID).Error(0)
}

type MockDuelService struct {
	mock.Mock
}

func (m *MockDuelService) SetDuelReady(ctx context.Context, duelID string, studentID uint, ready bool) (*entity.DuelReadyState, error) {
	args := m.Called(ctx, duelID, studentID, ready)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.DuelReadyState), args.Error(1)
}

func (m *MockDuelService) GetDuelReady(ctx context.Context, duelID string) (*entity.DuelReadyState, error) {
	args := m.Called(ctx, duelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.DuelReadyState), args.Error(1)
}

type stubLeaderboardReader struct {
	current  *entity.LeaderboardSnapshot
	latest   *leaderboard.TickResult
	cached   *leaderboard.TickResult
	cacheErr error
}

func (s *stubLeaderboardReader) Current() *entity.LeaderboardSnapshot { return s.current }
func (s *stubLeaderboardReader) Latest() *leaderboard.TickResult      { return s.latest }
func (s *stubLeaderboardReader) CachedTick(context.Context) (*leaderboard.TickResult, error) {
	if s.cacheErr != nil {
		return nil, s.cacheErr
	}
	return s.cached, nil
}

// ============================================================================
// handleServiceError
// ============================================================================

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", fmt.Errorf("duel x: %w", apperrors.ErrNotFound), http.StatusNotFound},
		{"forbidden", service.ErrNotDuelParticipant, http.StatusForbidden},
		{"conflict", apperrors.ErrConflict, http.StatusConflict},
		{"validation", service.ErrInvalidGrade, http.StatusBadRequest},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized},
		{"stale", apperrors.ErrStale, http.StatusServiceUnavailable},
		{"internal", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext(http.MethodGet, "/", nil)

			handleServiceError(c, "test", tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.NotEmpty(t, resp["error"])
		})
	}
}

// ============================================================================
// LobbyHandler
// ============================================================================

func TestJoinLobby_Success(t *testing.T) {
	// Arrange
	svc := new(MockLobbyService)
	h := NewLobbyHandler(svc)
	subject := "math"
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.On("JoinLobby", mock.Anything, service.JoinLobbyInput{
		StudentID: 7, Grade: 9, TotalPoints: 300, PreferredSubject: &subject,
	}).Return(&entity.PresenceRecord{
		StudentID: 7, Grade: 9, TotalPoints: 300, PreferredSubject: &subject,
		Status: entity.PresenceStatusAvailable, JoinedAt: now, LastSeen: now,
	}, nil)

	c, w := newTestGinContext(http.MethodPost, "/api/lobby/join", map[string]interface{}{
		"grade": 9, "total_points": 300, "preferred_subject": "math",
	})
	asStudent(c, 7)

	// Act
	h.JoinLobby(c)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, float64(7), resp["student_id"])
	assert.Equal(t, "available", resp["status"])
	assert.Equal(t, "math", resp["preferred_subject"])
	svc.AssertExpectations(t)
}

func TestJoinLobby_GradeFromToken(t *testing.T) {
	// Arrange
	svc := new(MockLobbyService)
	h := NewLobbyHandler(svc)
	svc.On("JoinLobby", mock.Anything, mock.MatchedBy(func(in service.JoinLobbyInput) bool {
		return in.StudentID == 7 && in.Grade == 10 && in.PreferredSubject == nil
	})).Return(&entity.PresenceRecord{StudentID: 7, Grade: 10, Status: entity.PresenceStatusAvailable}, nil)

	c, w := newTestGinContext(http.MethodPost, "/api/lobby/join", map[string]interface{}{"total_points": 10})
	asStudent(c, 7)
	c.Set(middleware.ContextGrade, 10)

	// Act
	h.JoinLobby(c)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestJoinLobby_RequestErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		student    uint
		wantStatus int
	}{
		{"unauthenticated", map[string]interface{}{"grade": 9}, 0, http.StatusUnauthorized},
		{"empty body", nil, 7, http.StatusBadRequest},
		{"negative points", map[string]interface{}{"grade": 9, "total_points": -1}, 7, http.StatusBadRequest},
		{"grade out of range", map[string]interface{}{"grade": 13}, 7, http.StatusBadRequest},
		{"no grade anywhere", map[string]interface{}{"total_points": 5}, 7, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockLobbyService)
			h := NewLobbyHandler(svc)
			c, w := newTestGinContext(http.MethodPost, "/api/lobby/join", tt.body)
			if tt.student != 0 {
				asStudent(c, tt.student)
			}

			h.JoinLobby(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			svc.AssertNotCalled(t, "JoinLobby", mock.Anything, mock.Anything)
		})
	}
}

func TestHeartbeat(t *testing.T) {
	tests := []struct {
		name       string
		svcErr     error
		wantStatus int
	}{
		{"ok", nil, http.StatusNoContent},
		{"not in lobby", service.ErrNotInLobby, http.StatusNotFound},
		{"storage failure", fmt.Errorf("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockLobbyService)
			svc.On("Heartbeat", mock.Anything, uint(7)).Return(tt.svcErr)
			h := NewLobbyHandler(svc)
			c, _ := newTestGinContext(http.MethodPost, "/api/lobby/heartbeat", nil)
			asStudent(c, 7)

			h.Heartbeat(c)

			// c.Status без тела не пишет заголовок в recorder до Flush
			c.Writer.WriteHeaderNow()
			assert.Equal(t, tt.wantStatus, c.Writer.Status())
			svc.AssertExpectations(t)
		})
	}
}

func TestListLobby_PassesFilters(t *testing.T) {
	// Arrange
	svc := new(MockLobbyService)
	h := NewLobbyHandler(svc)
	svc.On("ListLobby", mock.Anything, uint(7),
		mock.MatchedBy(func(g *int) bool { return g != nil && *g == 9 }),
		mock.MatchedBy(func(s *string) bool { return s != nil && *s == "math" }),
	).Return([]entity.PresenceRecord{
		{StudentID: 3, Grade: 9, TotalPoints: 500, Status: entity.PresenceStatusAvailable},
		{StudentID: 4, Grade: 9, TotalPoints: 200, Status: entity.PresenceStatusAvailable},
	}, nil)

	c, w := newTestGinContext(http.MethodGet, "/api/lobby?grade=9&subject=math", nil)
	asStudent(c, 7)

	// Act
	h.ListLobby(c)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, float64(2), resp["count"])
	students := resp["students"].([]interface{})
	assert.Equal(t, float64(3), students[0].(map[string]interface{})["student_id"])
	svc.AssertExpectations(t)
}

func TestListLobby_EmptyIsArray(t *testing.T) {
	svc := new(MockLobbyService)
	h := NewLobbyHandler(svc)
	svc.On("ListLobby", mock.Anything, uint(7), (*int)(nil), (*string)(nil)).Return([]entity.PresenceRecord{}, nil)

	c, w := newTestGinContext(http.MethodGet, "/api/lobby", nil)
	asStudent(c, 7)

	h.ListLobby(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"students":[]`)
}

// ============================================================================
// DuelHandler
// ============================================================================

const testDuelID = "5f8f8c44-4c1b-4c1e-9a7e-1d2a3b4c5d6e"

func TestSetReady(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		svcState   *entity.DuelReadyState
		svcErr     error
		wantStatus int
		wantCall   bool
	}{
		{
			name:       "both ready",
			body:       map[string]interface{}{"ready": true},
			svcState:   &entity.DuelReadyState{DuelID: testDuelID, ChallengerReady: true, OpponentReady: true, BothReady: true},
			wantStatus: http.StatusOK,
			wantCall:   true,
		},
		{
			name:       "missing ready flag",
			body:       map[string]interface{}{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not a participant",
			body:       map[string]interface{}{"ready": true},
			svcErr:     service.ErrNotDuelParticipant,
			wantStatus: http.StatusForbidden,
			wantCall:   true,
		},
		{
			name:       "unknown duel",
			body:       map[string]interface{}{"ready": false},
			svcErr:     fmt.Errorf("duel %s: %w", testDuelID, apperrors.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantCall:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDuelService)
			if tt.wantCall {
				svc.On("SetDuelReady", mock.Anything, testDuelID, uint(10), mock.AnythingOfType("bool")).Return(tt.svcState, tt.svcErr)
			}
			h := NewDuelHandler(svc)
			c, w := newTestGinContext(http.MethodPut, "/api/duels/"+testDuelID+"/ready", tt.body)
			c.Params = gin.Params{{Key: "id", Value: testDuelID}}
			asStudent(c, 10)

			h.SetReady(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				resp := parseJSONResponse(t, w)
				assert.Equal(t, true, resp["both_ready"])
			}
			if !tt.wantCall {
				svc.AssertNotCalled(t, "SetDuelReady", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestGetReady(t *testing.T) {
	svc := new(MockDuelService)
	svc.On("GetDuelReady", mock.Anything, testDuelID).
		Return(&entity.DuelReadyState{DuelID: testDuelID, ChallengerReady: true}, nil)
	h := NewDuelHandler(svc)
	c, w := newTestGinContext(http.MethodGet, "/api/duels/"+testDuelID+"/ready", nil)
	c.Params = gin.Params{{Key: "id", Value: testDuelID}}

	h.GetReady(c)

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, true, resp["challenger_ready"])
	assert.Equal(t, false, resp["both_ready"])
}

// ============================================================================
// LeaderboardHandler
// ============================================================================

func testSnapshot() *entity.LeaderboardSnapshot {
	taken := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return entity.NewLeaderboardSnapshot(3, taken, []entity.LeaderboardEntry{
		{StudentID: 1, DisplayName: "Ann", TotalPoints: 100},
		{StudentID: 2, DisplayName: "Bob", TotalPoints: 300},
		{StudentID: 3, DisplayName: "Cid", TotalPoints: 200},
	})
}

func TestGetLeaderboard(t *testing.T) {
	tests := []struct {
		name        string
		current     *entity.LeaderboardSnapshot
		url         string
		wantStatus  int
		wantEntries int
	}{
		{"full snapshot", testSnapshot(), "/api/leaderboard", http.StatusOK, 3},
		{"limited", testSnapshot(), "/api/leaderboard?limit=2", http.StatusOK, 2},
		{"bad limit", testSnapshot(), "/api/leaderboard?limit=-1", http.StatusBadRequest, 0},
		{"no snapshot yet", nil, "/api/leaderboard", http.StatusServiceUnavailable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLeaderboardHandler(&stubLeaderboardReader{current: tt.current})
			c, w := newTestGinContext(http.MethodGet, tt.url, nil)

			h.GetLeaderboard(c)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			resp := parseJSONResponse(t, w)
			entries := resp["entries"].([]interface{})
			assert.Len(t, entries, tt.wantEntries)
			assert.Equal(t, float64(3), resp["total"])
			first := entries[0].(map[string]interface{})
			assert.Equal(t, float64(2), first["student_id"])
			assert.Equal(t, float64(1), first["rank"])
		})
	}
}

func TestGetChanges(t *testing.T) {
	local := &leaderboard.TickResult{Seq: 5}
	cached := &leaderboard.TickResult{Seq: 4}

	tests := []struct {
		name       string
		reader     *stubLeaderboardReader
		wantStatus int
		wantSeq    float64
	}{
		{"local tick wins", &stubLeaderboardReader{latest: local, cached: cached}, http.StatusOK, 5},
		{"falls back to cache", &stubLeaderboardReader{cached: cached}, http.StatusOK, 4},
		{"nothing yet", &stubLeaderboardReader{cacheErr: apperrors.ErrNotFound}, http.StatusServiceUnavailable, 0},
		{"cache failure", &stubLeaderboardReader{cacheErr: fmt.Errorf("redis down")}, http.StatusInternalServerError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLeaderboardHandler(tt.reader)
			c, w := newTestGinContext(http.MethodGet, "/api/leaderboard/changes", nil)

			h.GetChanges(c)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				resp := parseJSONResponse(t, w)
				assert.Equal(t, tt.wantSeq, resp["seq"])
			}
		})
	}
}

// ============================================================================
// WSHandler
// ============================================================================

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://arena.example.com"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://arena.example.com", true},
		{"https://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(req))
		})
	}
}

// ============================================================================
// HealthHandler
// ============================================================================

type stubMetrics struct{ clients int }

func (s stubMetrics) GetMetrics() map[string]interface{} {
	return map[string]interface{}{"active_connections": s.clients}
}
func (s stubMetrics) ClientCount() int { return s.clients }

type stubPollStatus struct{ err error }

func (s stubPollStatus) LastError() error { return s.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pollErr    error
		wantStatus int
		wantState  string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"skipped tick", fmt.Errorf("empty snapshot: %w", apperrors.ErrStale), http.StatusOK, "degraded"},
		{"source down", fmt.Errorf("connection refused"), http.StatusServiceUnavailable, "unavailable"},
		{"duplicate student in snapshot", fmt.Errorf("duplicate student 1: %w", apperrors.ErrConflict), http.StatusServiceUnavailable, "conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(stubMetrics{clients: 2}, stubPollStatus{err: tt.pollErr})
			c, w := newTestGinContext(http.MethodGet, "/health", nil)

			h.Health(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, tt.wantState, resp["status"])
			assert.Equal(t, float64(2), resp["active_connections"])
		})
	}
}

func TestMetrics(t *testing.T) {
	h := NewHealthHandler(stubMetrics{clients: 3}, stubPollStatus{})
	c, w := newTestGinContext(http.MethodGet, "/api/ws/metrics", nil)

	h.Metrics(c)

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, float64(3), resp["active_connections"])
	assert.Contains(t, resp, "generated_at")
}
