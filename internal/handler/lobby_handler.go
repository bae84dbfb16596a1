package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/arena-api/internal/domain/entity"
	"github.com/yourusername/arena-api/internal/handler/dto"
	"github.com/yourusername/arena-api/internal/middleware"
	"github.com/yourusername/arena-api/internal/service"
)

// LobbyService - операции лобби, нужные HTTP слою
type LobbyService interface {
	JoinLobby(ctx context.Context, input service.JoinLobbyInput) (*entity.PresenceRecord, error)
	ListLobby(ctx context.Context, excludeID uint, grade *int, subject *string) ([]entity.PresenceRecord, error)
	Heartbeat(ctx context.Context, studentID uint) error
}

// LobbyHandler обрабатывает запросы лобби дуэлей
type LobbyHandler struct {
	lobbyService LobbyService
}

// NewLobbyHandler создает новый обработчик лобби
func NewLobbyHandler(lobbyService LobbyService) *LobbyHandler {
	return &LobbyHandler{lobbyService: lobbyService}
}

// JoinLobby отмечает студента доступным для дуэли.
// POST /api/lobby/join
func (h *LobbyHandler) JoinLobby(c *gin.Context) {
	studentID, ok := middleware.StudentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dto.JoinLobbyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	grade := req.Grade
	if grade == nil {
		if claimGrade, exists := c.Get(middleware.ContextGrade); exists {
			if g, ok := claimGrade.(int); ok {
				grade = &g
			}
		}
	}
	if grade == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "grade is required", "error_type": "validation"})
		return
	}

	record, err := h.lobbyService.JoinLobby(c.Request.Context(), service.JoinLobbyInput{
		StudentID:        studentID,
		Grade:            *grade,
		TotalPoints:      req.TotalPoints,
		PreferredSubject: req.PreferredSubject,
	})
	if err != nil {
		handleServiceError(c, "JoinLobby", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPresenceDTO(record))
}

// Heartbeat продлевает присутствие студента.
// POST /api/lobby/heartbeat
func (h *LobbyHandler) Heartbeat(c *gin.Context) {
	studentID, ok := middleware.StudentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.lobbyService.Heartbeat(c.Request.Context(), studentID); err != nil {
		handleServiceError(c, "Heartbeat", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListLobby возвращает доступных соперников, исключая самого студента.
// GET /api/lobby?grade=&subject=
func (h *LobbyHandler) ListLobby(c *gin.Context) {
	studentID, ok := middleware.StudentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var query dto.LobbyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	records, err := h.lobbyService.ListLobby(c.Request.Context(), studentID, query.Grade, query.Subject)
	if err != nil {
		handleServiceError(c, "ListLobby", err)
		return
	}

	students := make([]dto.PresenceDTO, 0, len(records))
	for i := range records {
		students = append(students, dto.NewPresenceDTO(&records[i]))
	}
	c.JSON(http.StatusOK, dto.LobbyResponse{Students: students, Count: len(students)})
}
