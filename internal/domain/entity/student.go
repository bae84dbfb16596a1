package entity

import (
	"time"
)

// Student - строка рейтинга студента, из которой строится снимок лидерборда.
// Очки начисляет внешняя подсистема проверки ответов, здесь таблица только читается.
type Student struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	DisplayName       string    `gorm:"size:100;not null" json:"display_name"`
	Grade             int       `gorm:"not null;default:0" json:"grade"`
	TotalPoints       int64     `gorm:"not null;default:0;index:idx_students_leaderboard" json:"total_points"`
	QuestionsAnswered int64     `gorm:"not null;default:0;index:idx_students_leaderboard" json:"questions_answered"`
	IsActive          bool      `gorm:"not null;default:true" json:"is_active"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Student) TableName() string {
	return "students"
}

// ToLeaderboardEntry преобразует студента в запись лидерборда.
// Тай-брейк - количество отвеченных вопросов.
func (s *Student) ToLeaderboardEntry() LeaderboardEntry {
	return LeaderboardEntry{
		StudentID:         s.ID,
		DisplayName:       s.DisplayName,
		TotalPoints:       s.TotalPoints,
		SecondaryTieBreak: s.QuestionsAnswered,
		LastActivityAt:    s.LastActivityAt,
	}
}
