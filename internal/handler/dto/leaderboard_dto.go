package dto

import (
	"time"

	"github.com/yourusername/arena-api/internal/domain/entity"
)

// LeaderboardQuery - параметры выдачи лидерборда
type LeaderboardQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// LeaderboardEntryDTO представляет одного участника в лидерборде
type LeaderboardEntryDTO struct {
	Rank           int       `json:"rank"`
	StudentID      uint      `json:"student_id"`
	DisplayName    string    `json:"display_name"`
	TotalPoints    int64     `json:"total_points"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// LeaderboardResponse - текущий снимок лидерборда
type LeaderboardResponse struct {
	Seq     uint64                `json:"seq"`
	TakenAt time.Time             `json:"taken_at"`
	Total   int                   `json:"total"`
	Entries []LeaderboardEntryDTO `json:"entries"`
}

// NewLeaderboardResponse формирует ответ из снимка, ограничивая выдачу limit записями
func NewLeaderboardResponse(snapshot *entity.LeaderboardSnapshot, limit int) *LeaderboardResponse {
	n := snapshot.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	entries := make([]LeaderboardEntryDTO, n)
	for i := 0; i < n; i++ {
		e := snapshot.Entries[i]
		entries[i] = LeaderboardEntryDTO{
			Rank:           e.Rank,
			StudentID:      e.StudentID,
			DisplayName:    e.DisplayName,
			TotalPoints:    e.TotalPoints,
			LastActivityAt: e.LastActivityAt,
		}
	}
	return &LeaderboardResponse{
		Seq:     snapshot.Seq,
		TakenAt: snapshot.TakenAt,
		Total:   snapshot.Len(),
		Entries: entries,
	}
}
