package postgres

import (
	"context"
	"log"

	"gorm.io/gorm"

	"github.com/yourusername/arena-api/internal/domain/entity"
)

// LeaderboardRepo реализует repository.LeaderboardSource поверх таблицы students
type LeaderboardRepo struct {
	db *gorm.DB
}

// NewLeaderboardRepo создает новый источник лидерборда
func NewLeaderboardRepo(db *gorm.DB) *LeaderboardRepo {
	return &LeaderboardRepo{db: db}
}

// FetchEntries возвращает полный ранжированный список активных студентов.
// Порядок совпадает с порядком снимка: очки, количество ответов, id.
func (r *LeaderboardRepo) FetchEntries(ctx context.Context) ([]entity.LeaderboardEntry, error) {
	var students []entity.Student
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("total_points DESC, questions_answered DESC, id ASC").
		Find(&students).Error
	if err != nil {
		log.Printf("[LeaderboardRepo] Ошибка при получении студентов для лидерборда: %v", err)
		return nil, err
	}

	entries := make([]entity.LeaderboardEntry, len(students))
	for i := range students {
		entries[i] = students[i].ToLeaderboardEntry()
	}
	return entries, nil
}
