package dto

import (
	"time"

	"github.com/yourusername/arena-api/internal/domain/entity"
)

// JoinLobbyRequest - тело запроса входа в лобби.
// Grade можно не передавать, если он есть в токене.
type JoinLobbyRequest struct {
	Grade            *int    `json:"grade" binding:"omitempty,min=0,max=12"`
	TotalPoints      int64   `json:"total_points" binding:"min=0"`
	PreferredSubject *string `json:"preferred_subject" binding:"omitempty,max=50"`
}

// LobbyQuery - параметры выборки лобби
type LobbyQuery struct {
	Grade   *int    `form:"grade" binding:"omitempty,min=0,max=12"`
	Subject *string `form:"subject" binding:"omitempty,max=50"`
}

// PresenceDTO - запись лобби в ответе
type PresenceDTO struct {
	StudentID        uint      `json:"student_id"`
	Grade            int       `json:"grade"`
	TotalPoints      int64     `json:"total_points"`
	PreferredSubject *string   `json:"preferred_subject"`
	Status           string    `json:"status"`
	JoinedAt         time.Time `json:"joined_at"`
	LastSeen         time.Time `json:"last_seen"`
}

// LobbyResponse - ответ выборки лобби
type LobbyResponse struct {
	Students []PresenceDTO `json:"students"`
	Count    int           `json:"count"`
}

// NewPresenceDTO преобразует запись присутствия в DTO
func NewPresenceDTO(p *entity.PresenceRecord) PresenceDTO {
	return PresenceDTO{
		StudentID:        p.StudentID,
		Grade:            p.Grade,
		TotalPoints:      p.TotalPoints,
		PreferredSubject: p.PreferredSubject,
		Status:           p.Status,
		JoinedAt:         p.JoinedAt,
		LastSeen:         p.LastSeen,
	}
}

// DuelReadyRequest - тело запроса рукопожатия
type DuelReadyRequest struct {
	Ready *bool `json:"ready" binding:"required"`
}
