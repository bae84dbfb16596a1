package leaderboard

import (
	"sync"

	"github.com/yourusername/arena-api/internal/domain/entity"
)

// SnapshotStore хранит текущий снимок лидерборда.
// Предыдущий снимок существует только между Diff и Rotate: Rotate возвращает его вызывающему.
// Rotate вызывается одним потребителем на тик; мьютекс нужен только для читателей Current.
type SnapshotStore struct {
	mu      sync.RWMutex
	current *entity.LeaderboardSnapshot
}

// NewSnapshotStore создает пустое хранилище снимков
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Rotate делает next текущим снимком и возвращает снимок, бывший текущим до вызова.
// При первом вызове возвращает nil: сравнивать не с чем.
func (s *SnapshotStore) Rotate(next *entity.LeaderboardSnapshot) *entity.LeaderboardSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.current
	s.current = next
	return prior
}

// Current возвращает текущий снимок (nil до первого тика)
func (s *SnapshotStore) Current() *entity.LeaderboardSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
