package leaderboard

import (
	"context"
	"time"

	"github.com/yourusername/arena-api/internal/domain/entity"
	"github.com/yourusername/arena-api/internal/domain/repository"
)

// Config содержит пороги классификатора и параметры цикла опроса
type Config struct {
	// Цикл опроса
	PollInterval time.Duration // Интервал между тиками
	FetchTimeout time.Duration // Таймаут одного запроса снимка

	// Пороги классификатора
	FireThreshold    int64         // Очков за тик для "on fire"
	HotWindow        time.Duration // Окно активности для "hot"
	RocketMinDelta   int           // Минимальный рост ранга для "rocket"
	DuelGapThreshold int64         // Разрыв в очках с соседом для "dueling"

	// Кеширование последнего тика для других инстансов
	CacheKey string
	CacheTTL time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     10 * time.Second,
		FetchTimeout:     5 * time.Second,
		FireThreshold:    100,
		HotWindow:        5 * time.Minute,
		RocketMinDelta:   3,
		DuelGapThreshold: 50,
		CacheKey:         "leaderboard:latest_tick",
		CacheTTL:         5 * time.Minute,
	}
}

// Publisher получает результат каждого тика (WebSocket рассылка, лента активности и т.д.)
type Publisher interface {
	PublishTick(ctx context.Context, tick *TickResult) error
}

// Dependencies содержит зависимости Poller
type Dependencies struct {
	Source    repository.LeaderboardSource
	Publisher Publisher                  // может быть nil
	CacheRepo repository.CacheRepository // может быть nil
	Clock     func() time.Time           // nil = time.Now
}

// ClassifiedDiff - изменение участника с вычисленными тегами
type ClassifiedDiff struct {
	entity.LeaderboardDiff
	Tags Tags `json:"tags"`
}

// TickResult - то, что получают потребители на каждом тике
type TickResult struct {
	Seq      uint64           `json:"seq"`
	TakenAt  time.Time        `json:"taken_at"`
	Baseline bool             `json:"baseline"` // первый тик: сравнивать не с чем
	Diffs    []ClassifiedDiff `json:"diffs"`
}
