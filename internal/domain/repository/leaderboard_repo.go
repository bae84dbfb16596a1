package repository

import (
	"context"

	"github.com/yourusername/arena-api/internal/domain/entity"
)

// LeaderboardSource - внешний источник полного ранжированного лидерборда.
// Реализация возвращает записи в полном порядке, ранги назначает entity.NewLeaderboardSnapshot.
type LeaderboardSource interface {
	FetchEntries(ctx context.Context) ([]entity.LeaderboardEntry, error)
}
