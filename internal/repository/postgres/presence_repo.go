package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/arena-api/internal/domain/entity"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// PresenceRepo реализует repository.PresenceRepository поверх таблицы lobby_presence
type PresenceRepo struct {
	db *gorm.DB
}

// NewPresenceRepo создает новый репозиторий присутствия
func NewPresenceRepo(db *gorm.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// Get возвращает запись присутствия студента
func (r *PresenceRepo) Get(ctx context.Context, studentID uint) (*entity.PresenceRecord, error) {
	var record entity.PresenceRecord
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Upsert вставляет запись или обновляет существующую одной командой INSERT ... ON CONFLICT.
// joined_at при конфликте не перезаписывается.
func (r *PresenceRepo) Upsert(ctx context.Context, record *entity.PresenceRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"grade", "total_points", "preferred_subject", "status", "last_seen",
		}),
	}).Create(record).Error
	return translateError(err, "upsert presence for student %d", record.StudentID)
}

// Touch обновляет last_seen записи студента
func (r *PresenceRepo) Touch(ctx context.Context, studentID uint, seenAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&entity.PresenceRecord{}).
		Where("student_id = ?", studentID).
		Update("last_seen", seenAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetStatus меняет статус записи студента
func (r *PresenceRepo) SetStatus(ctx context.Context, studentID uint, status string) error {
	result := r.db.WithContext(ctx).Model(&entity.PresenceRecord{}).
		Where("student_id = ?", studentID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// List возвращает доступные и живые записи лобби по фильтру
func (r *PresenceRepo) List(ctx context.Context, filter entity.PresenceFilter) ([]entity.PresenceRecord, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND last_seen >= ?", entity.PresenceStatusAvailable, filter.SeenSince)

	if filter.ExcludeStudentID != 0 {
		query = query.Where("student_id <> ?", filter.ExcludeStudentID)
	}
	if filter.Grade != nil {
		query = query.Where("grade = ?", *filter.Grade)
	}
	if filter.Subject != nil {
		// NULL в preferred_subject означает "любой предмет"
		query = query.Where("(preferred_subject = ? OR preferred_subject IS NULL)", *filter.Subject)
	}

	var records []entity.PresenceRecord
	err := query.
		Order("last_seen DESC, student_id ASC").
		Limit(filter.Limit).
		Find(&records).Error
	return records, err
}

// DeleteStale удаляет записи, не обновлявшиеся с olderThan
func (r *PresenceRepo) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("last_seen < ?", olderThan).
		Delete(&entity.PresenceRecord{})
	return result.RowsAffected, result.Error
}
