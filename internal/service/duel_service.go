package service

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/yourusername/arena-api/internal/domain/entity"
	"github.com/yourusername/arena-api/internal/domain/repository"
)

// DuelNotifier доставляет участникам событие "оба готовы"
type DuelNotifier interface {
	NotifyDuelReady(state entity.DuelReadyState, studentIDs ...uint)
}

// DuelNotifiers рассылает событие всем получателям по очереди
type DuelNotifiers []DuelNotifier

// NotifyDuelReady реализует DuelNotifier
func (n DuelNotifiers) NotifyDuelReady(state entity.DuelReadyState, studentIDs ...uint) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.NotifyDuelReady(state, studentIDs...)
		}
	}
}

// DuelService реализует рукопожатие готовности двух участников дуэли
type DuelService struct {
	duelRepo repository.DuelRepository
	notifier DuelNotifier // может быть nil
}

// NewDuelService создает новый сервис дуэлей
func NewDuelService(duelRepo repository.DuelRepository, notifier DuelNotifier) *DuelService {
	return &DuelService{
		duelRepo: duelRepo,
		notifier: notifier,
	}
}

// SetDuelReady записывает флаг готовности вызывающего студента.
// Пишется только колонка его роли, поэтому одновременные вызовы двух участников не затирают друг друга.
func (s *DuelService) SetDuelReady(ctx context.Context, duelID string, studentID uint, ready bool) (*entity.DuelReadyState, error) {
	if _, err := uuid.Parse(duelID); err != nil {
		return nil, ErrInvalidDuelID
	}

	duel, err := s.duelRepo.GetByID(ctx, duelID)
	if err != nil {
		return nil, err
	}

	role := duel.RoleOf(studentID)
	if role == "" {
		log.Printf("[DuelService] Студент %d не участвует в дуэли %s", studentID, duelID)
		return nil, ErrNotDuelParticipant
	}

	if err := s.duelRepo.SetReady(ctx, duelID, role, ready); err != nil {
		log.Printf("[DuelService] Ошибка записи готовности (%s) в дуэли %s: %v", role, duelID, err)
		return nil, err
	}

	// Читаем строку заново: флаг второй стороны мог измениться параллельно
	updated, err := s.duelRepo.GetByID(ctx, duelID)
	if err != nil {
		return nil, err
	}

	state := updated.ReadyState()
	if state.BothReady && s.notifier != nil {
		s.notifier.NotifyDuelReady(state, updated.ChallengerID, updated.OpponentID)
	}
	return &state, nil
}

// GetDuelReady возвращает текущее состояние рукопожатия без изменений
func (s *DuelService) GetDuelReady(ctx context.Context, duelID string) (*entity.DuelReadyState, error) {
	if _, err := uuid.Parse(duelID); err != nil {
		return nil, ErrInvalidDuelID
	}

	duel, err := s.duelRepo.GetByID(ctx, duelID)
	if err != nil {
		return nil, err
	}

	state := duel.ReadyState()
	return &state, nil
}
