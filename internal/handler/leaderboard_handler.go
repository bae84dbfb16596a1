package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/arena-api/internal/domain/entity"
	"github.com/yourusername/arena-api/internal/handler/dto"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
	"github.com/yourusername/arena-api/internal/service/leaderboard"
)

// LeaderboardReader отдает состояние опроса лидерборда
type LeaderboardReader interface {
	Current() *entity.LeaderboardSnapshot
	Latest() *leaderboard.TickResult
	CachedTick(ctx context.Context) (*leaderboard.TickResult, error)
}

// LeaderboardHandler обрабатывает запросы лидерборда
type LeaderboardHandler struct {
	reader LeaderboardReader
}

// NewLeaderboardHandler создает новый обработчик лидерборда
func NewLeaderboardHandler(reader LeaderboardReader) *LeaderboardHandler {
	return &LeaderboardHandler{reader: reader}
}

// GetLeaderboard возвращает текущий снимок.
// GET /api/leaderboard?limit=
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	var query dto.LeaderboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	snapshot := h.reader.Current()
	if snapshot == nil {
		handleServiceError(c, "GetLeaderboard", apperrors.ErrStale)
		return
	}

	c.JSON(http.StatusOK, dto.NewLeaderboardResponse(snapshot, query.Limit))
}

// GetChanges возвращает изменения последнего тика.
// Если процесс еще не опрашивал источник, используется кэш соседнего инстанса.
// GET /api/leaderboard/changes
func (h *LeaderboardHandler) GetChanges(c *gin.Context) {
	if tick := h.reader.Latest(); tick != nil {
		c.JSON(http.StatusOK, tick)
		return
	}

	tick, err := h.reader.CachedTick(c.Request.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			err = apperrors.ErrStale
		}
		handleServiceError(c, "GetChanges", err)
		return
	}

	c.JSON(http.StatusOK, tick)
}
