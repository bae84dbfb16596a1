package repository

import (
	"context"

	"github.com/yourusername/arena-api/internal/domain/entity"
)

// DuelRepository определяет хранилище дуэлей в части рукопожатия готовности
type DuelRepository interface {
	// GetByID возвращает дуэль или apperrors.ErrNotFound
	GetByID(ctx context.Context, duelID string) (*entity.Duel, error)
	// SetReady записывает только флаг указанной роли (без read-modify-write общей строки)
	SetReady(ctx context.Context, duelID string, role string, ready bool) error
}
