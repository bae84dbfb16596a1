package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/yourusername/arena-api/internal/domain/entity"
	"github.com/yourusername/arena-api/internal/domain/repository"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// LobbyConfig содержит параметры выборки лобби
type LobbyConfig struct {
	LivenessWindow time.Duration // Запись старше окна не показывается в лобби
	Limit          int           // Максимум записей в ответе
}

// DefaultLobbyConfig возвращает конфигурацию лобби по умолчанию
func DefaultLobbyConfig() LobbyConfig {
	return LobbyConfig{
		LivenessWindow: 5 * time.Minute,
		Limit:          50,
	}
}

// JoinLobbyInput - данные самоотчета студента при входе в лобби
type JoinLobbyInput struct {
	StudentID        uint
	Grade            int
	TotalPoints      int64
	PreferredSubject *string // nil или пустая строка = любой предмет
}

// LobbyService управляет присутствием студентов в лобби дуэлей
type LobbyService struct {
	presenceRepo repository.PresenceRepository
	config       LobbyConfig
	clock        func() time.Time
}

// NewLobbyService создает новый сервис лобби
func NewLobbyService(presenceRepo repository.PresenceRepository, config LobbyConfig) *LobbyService {
	defaults := DefaultLobbyConfig()
	if config.LivenessWindow <= 0 {
		config.LivenessWindow = defaults.LivenessWindow
	}
	if config.Limit <= 0 {
		config.Limit = defaults.Limit
	}
	return &LobbyService{
		presenceRepo: presenceRepo,
		config:       config,
		clock:        time.Now,
	}
}

// WithClock подменяет источник времени (для тестов)
func (s *LobbyService) WithClock(clock func() time.Time) *LobbyService {
	s.clock = clock
	return s
}

// JoinLobby создает или обновляет запись присутствия студента.
// Повторный вызов идемпотентен: меняются lastSeen, предмет и статус, joinedAt сохраняется.
func (s *LobbyService) JoinLobby(ctx context.Context, input JoinLobbyInput) (*entity.PresenceRecord, error) {
	if input.StudentID == 0 {
		return nil, ErrInvalidStudentID
	}
	if input.Grade < 0 {
		return nil, ErrInvalidGrade
	}
	if input.TotalPoints < 0 {
		return nil, ErrInvalidPoints
	}

	now := s.clock()
	record := &entity.PresenceRecord{
		StudentID:        input.StudentID,
		Grade:            input.Grade,
		TotalPoints:      input.TotalPoints,
		PreferredSubject: normalizeSubject(input.PreferredSubject),
		Status:           entity.PresenceStatusAvailable,
		JoinedAt:         now,
		LastSeen:         now,
	}

	if err := s.presenceRepo.Upsert(ctx, record); err != nil {
		log.Printf("[LobbyService] Ошибка при входе студента %d в лобби: %v", input.StudentID, err)
		return nil, err
	}

	// Перечитываем запись, чтобы вернуть сохраненный joinedAt
	stored, err := s.presenceRepo.Get(ctx, input.StudentID)
	if err != nil {
		log.Printf("[LobbyService] Не удалось прочитать запись лобби студента %d: %v", input.StudentID, err)
		return nil, err
	}
	return stored, nil
}

// ListLobby возвращает доступных живых соперников, исключая самого студента
func (s *LobbyService) ListLobby(ctx context.Context, excludeID uint, grade *int, subject *string) ([]entity.PresenceRecord, error) {
	filter := entity.PresenceFilter{
		ExcludeStudentID: excludeID,
		Grade:            grade,
		Subject:          normalizeSubject(subject),
		SeenSince:        s.clock().Add(-s.config.LivenessWindow),
		Limit:            s.config.Limit,
	}

	records, err := s.presenceRepo.List(ctx, filter)
	if err != nil {
		log.Printf("[LobbyService] Ошибка при получении лобби: %v", err)
		return nil, err
	}
	if records == nil {
		records = []entity.PresenceRecord{}
	}
	return records, nil
}

// Heartbeat продлевает присутствие студента, не меняя остальные поля
func (s *LobbyService) Heartbeat(ctx context.Context, studentID uint) error {
	if studentID == 0 {
		return ErrInvalidStudentID
	}
	if err := s.presenceRepo.Touch(ctx, studentID, s.clock()); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrNotInLobby
		}
		return err
	}
	return nil
}

// MarkBusy переводит студента в статус busy (дуэль передана дальше)
func (s *LobbyService) MarkBusy(ctx context.Context, studentID uint) error {
	if err := s.presenceRepo.SetStatus(ctx, studentID, entity.PresenceStatusBusy); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrNotInLobby
		}
		return err
	}
	return nil
}

// NotifyDuelReady убирает обоих участников начавшейся дуэли из выдачи лобби.
// Студент, уже покинувший лобби, пропускается.
func (s *LobbyService) NotifyDuelReady(state entity.DuelReadyState, studentIDs ...uint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, id := range studentIDs {
		if err := s.MarkBusy(ctx, id); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[LobbyService] Не удалось пометить студента %d занятым (дуэль %s): %v", id, state.DuelID, err)
		}
	}
}

// ReapStale удаляет записи, не обновлявшиеся дольше olderThan
func (s *LobbyService) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	removed, err := s.presenceRepo.DeleteStale(ctx, s.clock().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Printf("[LobbyService] Удалено %d устаревших записей лобби", removed)
	}
	return removed, nil
}

// RunReaper периодически удаляет устаревшие записи до отмены контекста
func (s *LobbyService) RunReaper(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.ReapStale(ctx, olderThan); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[LobbyService] Ошибка очистки лобби: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func normalizeSubject(subject *string) *string {
	if subject == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*subject)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
