package entity

import (
	"time"
)

// Статусы дуэли. Создает и ведет дуэль внешний поток принятия вызова.
const (
	DuelStatusPending    = "pending"
	DuelStatusInProgress = "in_progress"
	DuelStatusCompleted  = "completed"
	DuelStatusCancelled  = "cancelled"
)

// Роли участников дуэли
const (
	DuelRoleChallenger = "challenger"
	DuelRoleOpponent   = "opponent"
)

// Duel представляет дуэль двух студентов. В этом сервисе меняются только флаги готовности.
type Duel struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	ChallengerID    uint      `gorm:"not null;index" json:"challenger_id"`
	OpponentID      uint      `gorm:"not null;index" json:"opponent_id"`
	ChallengerReady bool      `gorm:"not null;default:false" json:"challenger_ready"`
	OpponentReady   bool      `gorm:"not null;default:false" json:"opponent_ready"`
	Status          string    `gorm:"size:20;not null;default:'pending'" json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Duel) TableName() string {
	return "duels"
}

// RoleOf возвращает роль студента в дуэли или пустую строку, если он не участник
func (d *Duel) RoleOf(studentID uint) string {
	switch studentID {
	case d.ChallengerID:
		return DuelRoleChallenger
	case d.OpponentID:
		return DuelRoleOpponent
	default:
		return ""
	}
}

// BothReady возвращает true, когда оба участника подтвердили готовность
func (d *Duel) BothReady() bool {
	return d.ChallengerReady && d.OpponentReady
}

// ReadyState возвращает текущее состояние рукопожатия
func (d *Duel) ReadyState() DuelReadyState {
	return DuelReadyState{
		DuelID:          d.ID,
		ChallengerReady: d.ChallengerReady,
		OpponentReady:   d.OpponentReady,
		BothReady:       d.BothReady(),
		Status:          d.Status,
	}
}

// DuelReadyState - ответ рукопожатия готовности
type DuelReadyState struct {
	DuelID          string `json:"duel_id"`
	ChallengerReady bool   `json:"challenger_ready"`
	OpponentReady   bool   `json:"opponent_ready"`
	BothReady       bool   `json:"both_ready"`
	Status          string `json:"status,omitempty"`
}

// ReadyColumn возвращает имя колонки флага готовности для роли
func ReadyColumn(role string) string {
	if role == DuelRoleChallenger {
		return "challenger_ready"
	}
	return "opponent_ready"
}
