package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/arena-api/internal/domain/entity"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// DuelRepo реализует repository.DuelRepository
type DuelRepo struct {
	db *gorm.DB
}

// NewDuelRepo создает новый репозиторий дуэлей
func NewDuelRepo(db *gorm.DB) *DuelRepo {
	return &DuelRepo{db: db}
}

// GetByID возвращает дуэль по ID
func (r *DuelRepo) GetByID(ctx context.Context, duelID string) (*entity.Duel, error) {
	var duel entity.Duel
	err := r.db.WithContext(ctx).Where("id = ?", duelID).First(&duel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &duel, nil
}

// SetReady обновляет ТОЛЬКО колонку флага готовности роли.
// Два участника пишут в разные колонки, поэтому параллельные вызовы не конфликтуют.
func (r *DuelRepo) SetReady(ctx context.Context, duelID string, role string, ready bool) error {
	result := r.db.WithContext(ctx).Model(&entity.Duel{}).
		Where("id = ?", duelID).
		Updates(map[string]interface{}{
			entity.ReadyColumn(role): ready,
			"updated_at":             time.Now(),
		})
	if result.Error != nil {
		return translateError(result.Error, "set %s ready for duel %s", role, duelID)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
