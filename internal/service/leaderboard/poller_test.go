package leaderboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/arena-api/internal/domain/entity"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// ============================================================================
// Моки для Poller
// ============================================================================

type MockLeaderboardSource struct {
	mock.Mock
}

func (m *MockLeaderboardSource) FetchEntries(ctx context.Context) ([]entity.LeaderboardEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.LeaderboardEntry), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishTick(ctx context.Context, tick *TickResult) error {
	args := m.Called(ctx, tick)
	return args.Error(0)
}

type MockCacheRepo struct {
	mock.Mock
}

func (m *MockCacheRepo) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepo) GetJSON(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(key, dest)
	return args.Error(0)
}

func fixedClock() func() time.Time {
	return func() time.Time { return baseTime }
}

// ============================================================================
// Тесты
// ============================================================================

func TestPoller_BaselineThenDiff(t *testing.T) {
	// Arrange
	source := new(MockLeaderboardSource)
	publisher := new(MockPublisher)
	source.On("FetchEntries", mock.Anything).Return([]entity.LeaderboardEntry{entry(1, 100), entry(2, 80)}, nil).Once()
	source.On("FetchEntries", mock.Anything).Return([]entity.LeaderboardEntry{entry(2, 150), entry(1, 100), entry(3, 50)}, nil).Once()
	publisher.On("PublishTick", mock.Anything, mock.AnythingOfType("*leaderboard.TickResult")).Return(nil)

	poller := NewPoller(DefaultConfig(), &Dependencies{Source: source, Publisher: publisher, Clock: fixedClock()})

	// Act
	first, err := poller.PollAndDiff(context.Background())
	require.NoError(t, err)
	second, err := poller.PollAndDiff(context.Background())
	require.NoError(t, err)

	// Assert
	assert.True(t, first.Baseline)
	assert.Empty(t, first.Diffs)
	assert.Equal(t, uint64(1), first.Seq)

	assert.False(t, second.Baseline)
	assert.Equal(t, uint64(2), second.Seq)
	require.Len(t, second.Diffs, 3)
	assert.Equal(t, uint(2), second.Diffs[0].StudentID)
	assert.True(t, second.Diffs[0].Tags.IsKing)

	assert.Same(t, second, poller.Latest())
	assert.NoError(t, poller.LastError())
	assert.Equal(t, uint64(2), poller.Store().Current().Seq)
	publisher.AssertNumberOfCalls(t, "PublishTick", 2)
	source.AssertExpectations(t)
}

func TestPoller_StaleTickKeepsBaseline(t *testing.T) {
	tests := []struct {
		name    string
		entries []entity.LeaderboardEntry
		err     error
		wantErr error
		stale   bool
	}{
		{"пустой снимок", []entity.LeaderboardEntry{}, nil, apperrors.ErrStale, true},
		{"дубликат studentId", []entity.LeaderboardEntry{entry(1, 10), entry(1, 20)}, nil, apperrors.ErrConflict, false},
		{"ошибка источника", nil, errors.New("connection refused"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			source := new(MockLeaderboardSource)
			source.On("FetchEntries", mock.Anything).Return([]entity.LeaderboardEntry{entry(1, 100), entry(2, 80)}, nil).Once()
			if tt.entries == nil {
				source.On("FetchEntries", mock.Anything).Return(nil, tt.err).Once()
			} else {
				source.On("FetchEntries", mock.Anything).Return(tt.entries, nil).Once()
			}
			source.On("FetchEntries", mock.Anything).Return([]entity.LeaderboardEntry{entry(2, 130), entry(1, 100)}, nil).Once()

			poller := NewPoller(DefaultConfig(), &Dependencies{Source: source, Clock: fixedClock()})

			// Act
			_, err := poller.PollAndDiff(context.Background())
			require.NoError(t, err)

			_, err = poller.PollAndDiff(context.Background())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
			assert.Equal(t, tt.stale, errors.Is(err, apperrors.ErrStale))
			assert.Error(t, poller.LastError())
			assert.Equal(t, uint64(1), poller.Store().Current().Seq)

			third, err := poller.PollAndDiff(context.Background())

			// Assert: сравнение идет с последним корректным снимком
			require.NoError(t, err)
			assert.NoError(t, poller.LastError())
			assert.Equal(t, uint64(2), third.Seq)
			require.Len(t, third.Diffs, 2)
			assert.Equal(t, uint(2), third.Diffs[0].StudentID)
			assert.Equal(t, int64(50), third.Diffs[0].PointsGained)
		})
	}
}

func TestPoller_CachesTick(t *testing.T) {
	source := new(MockLeaderboardSource)
	cache := new(MockCacheRepo)
	config := DefaultConfig()
	source.On("FetchEntries", mock.Anything).Return([]entity.LeaderboardEntry{entry(1, 100)}, nil)
	cache.On("SetJSON", config.CacheKey, mock.AnythingOfType("*leaderboard.TickResult"), config.CacheTTL).
		Return(errors.New("redis down"))

	poller := NewPoller(config, &Dependencies{Source: source, CacheRepo: cache, Clock: fixedClock()})

	tick, err := poller.PollAndDiff(context.Background())

	// Ошибка кеша не ломает тик
	require.NoError(t, err)
	assert.True(t, tick.Baseline)
	cache.AssertExpectations(t)
}

func TestPoller_CachedTickWithoutCache(t *testing.T) {
	poller := NewPoller(nil, &Dependencies{Source: new(MockLeaderboardSource)})

	_, err := poller.CachedTick(context.Background())

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

// blockingSource блокирует FetchEntries, пока не будет закрыт release
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSource) FetchEntries(ctx context.Context) ([]entity.LeaderboardEntry, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return []entity.LeaderboardEntry{entry(1, 10)}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPoller_AtMostOnePollInFlight(t *testing.T) {
	// Arrange
	source := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	poller := NewPoller(DefaultConfig(), &Dependencies{Source: source, Clock: fixedClock()})

	done := make(chan error, 1)
	go func() {
		_, err := poller.PollAndDiff(context.Background())
		done <- err
	}()
	<-source.started

	// Act
	_, err := poller.PollAndDiff(context.Background())

	// Assert
	assert.True(t, errors.Is(err, ErrPollInFlight))

	close(source.release)
	require.NoError(t, <-done)
	assert.Equal(t, uint64(1), poller.Store().Current().Seq)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	source := new(MockLeaderboardSource)
	source.On("FetchEntries", mock.Anything).Return([]entity.LeaderboardEntry{entry(1, 10)}, nil)

	config := DefaultConfig()
	config.PollInterval = 10 * time.Millisecond
	poller := NewPoller(config, &Dependencies{Source: source, Clock: fixedClock()})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return poller.Latest() != nil }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
