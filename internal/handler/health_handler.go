package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// MetricsProvider отдает счетчики WebSocket хаба
type MetricsProvider interface {
	GetMetrics() map[string]interface{}
	ClientCount() int
}

// PollStatus отдает результат последнего опроса лидерборда
type PollStatus interface {
	LastError() error
}

// HealthHandler отдает состояние процесса для балансировщика и мониторинга
type HealthHandler struct {
	hub    MetricsProvider
	poller PollStatus
}

// NewHealthHandler создает обработчик состояния
func NewHealthHandler(hub MetricsProvider, poller PollStatus) *HealthHandler {
	return &HealthHandler{hub: hub, poller: poller}
}

// Health возвращает 200, если опрос лидерборда не падает с ошибкой.
// Пропущенный тик (пустой снимок) считается деградацией, а не отказом.
// Снимок с дублирующимся studentId нарушает контракт источника и считается отказом.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	response := gin.H{
		"active_connections": h.hub.ClientCount(),
		"timestamp":          time.Now().Format(time.RFC3339),
	}

	if err := h.poller.LastError(); err != nil {
		response["last_poll_error"] = err.Error()
		switch {
		case errors.Is(err, apperrors.ErrConflict):
			status = "conflict"
			code = http.StatusServiceUnavailable
		case errors.Is(err, apperrors.ErrStale):
			status = "degraded"
		default:
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	response["status"] = status
	c.JSON(code, response)
}

// Metrics возвращает счетчики хаба.
// GET /api/ws/metrics
func (h *HealthHandler) Metrics(c *gin.Context) {
	metrics := h.hub.GetMetrics()
	metrics["generated_at"] = time.Now().Format(time.RFC3339)
	c.JSON(http.StatusOK, metrics)
}
