package repository

import (
	"context"
	"time"

	"github.com/yourusername/arena-api/internal/domain/entity"
)

// PresenceRepository определяет хранилище записей присутствия в лобби.
// Ключ - studentId, любая запись затрагивает только строку своего студента.
type PresenceRepository interface {
	// Get возвращает запись студента или apperrors.ErrNotFound
	Get(ctx context.Context, studentID uint) (*entity.PresenceRecord, error)
	// Upsert вставляет или перезаписывает запись по studentId
	Upsert(ctx context.Context, record *entity.PresenceRecord) error
	// Touch обновляет lastSeen; apperrors.ErrNotFound, если записи нет
	Touch(ctx context.Context, studentID uint, seenAt time.Time) error
	// SetStatus меняет статус записи; apperrors.ErrNotFound, если записи нет
	SetStatus(ctx context.Context, studentID uint, status string) error
	// List возвращает записи, подходящие под фильтр, по lastSeen desc, не больше filter.Limit
	List(ctx context.Context, filter entity.PresenceFilter) ([]entity.PresenceRecord, error)
	// DeleteStale физически удаляет записи старше olderThan и возвращает их количество
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
}
