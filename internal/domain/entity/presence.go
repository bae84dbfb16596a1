package entity

import (
	"time"
)

// Статусы присутствия в лобби
const (
	PresenceStatusAvailable = "available"
	PresenceStatusBusy      = "busy"
)

// PresenceRecord - самоотчет студента "готов к дуэли" с отметкой heartbeat.
// Одна запись на студента, меняет ее только клиент самого студента.
type PresenceRecord struct {
	StudentID        uint      `gorm:"primaryKey;autoIncrement:false" json:"student_id"`
	Grade            int       `gorm:"not null;index" json:"grade"`
	TotalPoints      int64     `gorm:"not null;default:0" json:"total_points"`
	PreferredSubject *string   `gorm:"size:50" json:"preferred_subject"` // nil = любой предмет
	Status           string    `gorm:"size:20;not null;default:'available';index" json:"status"`
	JoinedAt         time.Time `gorm:"not null" json:"joined_at"`
	LastSeen         time.Time `gorm:"not null;index" json:"last_seen"`
}

// TableName определяет имя таблицы для GORM
func (PresenceRecord) TableName() string {
	return "lobby_presence"
}

// IsAvailable проверяет статус записи
func (p *PresenceRecord) IsAvailable() bool {
	return p.Status == PresenceStatusAvailable
}

// IsLive проверяет, что запись не старше окна живости относительно now
func (p *PresenceRecord) IsLive(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastSeen) <= window
}

// AcceptsSubject проверяет совпадение предмета (nil у записи означает любой предмет)
func (p *PresenceRecord) AcceptsSubject(subject string) bool {
	return p.PreferredSubject == nil || *p.PreferredSubject == subject
}

// PresenceFilter описывает предикаты выборки лобби.
// Окно живости вычисляется сервисом и передается как SeenSince.
type PresenceFilter struct {
	ExcludeStudentID uint
	Grade            *int
	Subject          *string
	SeenSince        time.Time
	Limit            int
}

// Matches проверяет запись против фильтра (используется in-memory и Redis хранилищами)
func (f *PresenceFilter) Matches(p *PresenceRecord) bool {
	if !p.IsAvailable() {
		return false
	}
	if p.LastSeen.Before(f.SeenSince) {
		return false
	}
	if f.ExcludeStudentID != 0 && p.StudentID == f.ExcludeStudentID {
		return false
	}
	if f.Grade != nil && p.Grade != *f.Grade {
		return false
	}
	if f.Subject != nil && !p.AcceptsSubject(*f.Subject) {
		return false
	}
	return true
}
