package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/arena-api/internal/domain/entity"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// memDuelRepo хранит дуэли в памяти; SetReady меняет только поле роли
type memDuelRepo struct {
	mu    sync.Mutex
	duels map[string]*entity.Duel
}

func (r *memDuelRepo) GetByID(_ context.Context, duelID string) (*entity.Duel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.duels[duelID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *memDuelRepo) SetReady(_ context.Context, duelID string, role string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.duels[duelID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if role == entity.DuelRoleChallenger {
		d.ChallengerReady = ready
	} else {
		d.OpponentReady = ready
	}
	return nil
}

type MockDuelNotifier struct {
	mock.Mock
}

func (m *MockDuelNotifier) NotifyDuelReady(state entity.DuelReadyState, studentIDs ...uint) {
	m.Called(state, studentIDs)
}

func newTestDuel() (*memDuelRepo, string) {
	id := uuid.NewString()
	repo := &memDuelRepo{duels: map[string]*entity.Duel{
		id: {ID: id, ChallengerID: 10, OpponentID: 20, Status: entity.DuelStatusPending},
	}}
	return repo, id
}

func TestDuelService_SetDuelReady(t *testing.T) {
	// Arrange
	repo, duelID := newTestDuel()
	notifier := new(MockDuelNotifier)
	notifier.On("NotifyDuelReady", mock.Anything, []uint{10, 20}).Return().Once()
	svc := NewDuelService(repo, notifier)
	ctx := context.Background()

	// Act
	afterChallenger, err := svc.SetDuelReady(ctx, duelID, 10, true)
	require.NoError(t, err)
	afterOpponent, err := svc.SetDuelReady(ctx, duelID, 20, true)
	require.NoError(t, err)

	// Assert
	assert.True(t, afterChallenger.ChallengerReady)
	assert.False(t, afterChallenger.OpponentReady)
	assert.False(t, afterChallenger.BothReady)

	assert.True(t, afterOpponent.ChallengerReady)
	assert.True(t, afterOpponent.OpponentReady)
	assert.True(t, afterOpponent.BothReady)
	notifier.AssertExpectations(t)
}

func TestDuelService_SetDuelReadyIsIdempotent(t *testing.T) {
	repo, duelID := newTestDuel()
	svc := NewDuelService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		state, err := svc.SetDuelReady(ctx, duelID, 20, true)
		require.NoError(t, err)
		assert.True(t, state.OpponentReady)
		assert.False(t, state.ChallengerReady)
	}

	state, err := svc.SetDuelReady(ctx, duelID, 20, false)
	require.NoError(t, err)
	assert.False(t, state.OpponentReady)
}

func TestDuelService_ConcurrentReadyDoesNotClobber(t *testing.T) {
	repo, duelID := newTestDuel()
	svc := NewDuelService(repo, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, studentID := range []uint{10, 20} {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := svc.SetDuelReady(ctx, duelID, id, true)
			assert.NoError(t, err)
		}(studentID)
	}
	wg.Wait()

	state, err := svc.GetDuelReady(ctx, duelID)
	require.NoError(t, err)
	assert.True(t, state.BothReady)
	assert.Equal(t, entity.DuelStatusPending, state.Status)
}

func TestDuelService_Errors(t *testing.T) {
	repo, duelID := newTestDuel()
	svc := NewDuelService(repo, nil)

	tests := []struct {
		name      string
		duelID    string
		studentID uint
		want      error
	}{
		{"не участник", duelID, 99, apperrors.ErrForbidden},
		{"неизвестная дуэль", uuid.NewString(), 10, apperrors.ErrNotFound},
		{"некорректный id", "not-a-uuid", 10, apperrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetDuelReady(context.Background(), tt.duelID, tt.studentID, true)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	d, err := repo.GetByID(context.Background(), duelID)
	require.NoError(t, err)
	assert.False(t, d.ChallengerReady)
	assert.False(t, d.OpponentReady)
}

func TestDuelService_GetDuelReady(t *testing.T) {
	repo, duelID := newTestDuel()
	repo.duels[duelID].ChallengerReady = true
	svc := NewDuelService(repo, nil)

	state, err := svc.GetDuelReady(context.Background(), duelID)

	require.NoError(t, err)
	assert.Equal(t, duelID, state.DuelID)
	assert.True(t, state.ChallengerReady)
	assert.False(t, state.BothReady)

	_, err = svc.GetDuelReady(context.Background(), uuid.NewString())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDuelNotifiers_FansOut(t *testing.T) {
	first := new(MockDuelNotifier)
	second := new(MockDuelNotifier)
	state := entity.DuelReadyState{DuelID: "d1", BothReady: true}
	first.On("NotifyDuelReady", state, []uint{10, 20}).Return().Once()
	second.On("NotifyDuelReady", state, []uint{10, 20}).Return().Once()

	DuelNotifiers{first, nil, second}.NotifyDuelReady(state, 10, 20)

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}
