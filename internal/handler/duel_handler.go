package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/arena-api/internal/domain/entity"
	"github.com/yourusername/arena-api/internal/handler/dto"
	"github.com/yourusername/arena-api/internal/middleware"
)

// DuelService - операции рукопожатия дуэли
type DuelService interface {
	SetDuelReady(ctx context.Context, duelID string, studentID uint, ready bool) (*entity.DuelReadyState, error)
	GetDuelReady(ctx context.Context, duelID string) (*entity.DuelReadyState, error)
}

// DuelHandler обрабатывает запросы готовности к дуэли
type DuelHandler struct {
	duelService DuelService
}

// NewDuelHandler создает новый обработчик дуэлей
func NewDuelHandler(duelService DuelService) *DuelHandler {
	return &DuelHandler{duelService: duelService}
}

// SetReady выставляет флаг готовности вызывающего участника.
// PUT /api/duels/:id/ready
func (h *DuelHandler) SetReady(c *gin.Context) {
	studentID, ok := middleware.StudentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dto.DuelReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	state, err := h.duelService.SetDuelReady(c.Request.Context(), c.Param("id"), studentID, *req.Ready)
	if err != nil {
		handleServiceError(c, "SetDuelReady", err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetReady возвращает текущее состояние рукопожатия.
// GET /api/duels/:id/ready
func (h *DuelHandler) GetReady(c *gin.Context) {
	state, err := h.duelService.GetDuelReady(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, "GetDuelReady", err)
		return
	}

	c.JSON(http.StatusOK, state)
}
