package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/arena-api/internal/domain/entity"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// ErrPollInFlight возвращается, когда предыдущий опрос еще не завершился
var ErrPollInFlight = errors.New("leaderboard poll already in flight")

// Poller периодически забирает снимок лидерборда, вычисляет и классифицирует изменения
type Poller struct {
	// Настройки
	config *Config

	// Зависимости
	deps *Dependencies

	// Внутреннее состояние
	store      *SnapshotStore
	classifier *Classifier
	inFlight   atomic.Bool
	seq        uint64 // меняется только под inFlight

	mu      sync.RWMutex
	latest  *TickResult
	lastErr error

	wg sync.WaitGroup
}

// NewPoller создает новый опросчик лидерборда
func NewPoller(config *Config, deps *Dependencies) *Poller {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Poller{
		config:     config,
		deps:       deps,
		store:      NewSnapshotStore(),
		classifier: NewClassifier(config),
	}
}

// Store возвращает хранилище снимков (для чтения текущего лидерборда)
func (p *Poller) Store() *SnapshotStore {
	return p.store
}

// Current возвращает текущий снимок лидерборда (nil до первого успешного тика)
func (p *Poller) Current() *entity.LeaderboardSnapshot {
	return p.store.Current()
}

// Latest возвращает результат последнего успешного тика (nil до первого тика)
func (p *Poller) Latest() *TickResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// LastError возвращает ошибку последнего тика (nil, если тик прошел успешно)
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// CachedTick читает последний тик из общего кеша (тик мог быть вычислен другим инстансом)
func (p *Poller) CachedTick(ctx context.Context) (*TickResult, error) {
	if p.deps.CacheRepo == nil {
		return nil, apperrors.ErrNotFound
	}
	var tick TickResult
	if err := p.deps.CacheRepo.GetJSON(ctx, p.config.CacheKey, &tick); err != nil {
		return nil, err
	}
	return &tick, nil
}

// PollAndDiff выполняет один тик: забирает снимок, сравнивает с предыдущим и классифицирует изменения.
// Снимки ротируются только после успешной загрузки и проверки нового снимка.
// Пустой ответ источника возвращает ErrStale, и предыдущий снимок остается базой для сравнения.
func (p *Poller) PollAndDiff(ctx context.Context) (*TickResult, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, ErrPollInFlight
	}
	defer p.inFlight.Store(false)

	tick, err := p.poll(ctx)
	p.mu.Lock()
	p.lastErr = err
	if err == nil {
		p.latest = tick
	}
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.cacheTick(ctx, tick)
	if p.deps.Publisher != nil {
		if err := p.deps.Publisher.PublishTick(ctx, tick); err != nil {
			log.Printf("[LeaderboardPoller] Ошибка публикации тика #%d: %v", tick.Seq, err)
		}
	}
	return tick, nil
}

func (p *Poller) poll(ctx context.Context) (*TickResult, error) {
	fetchCtx := ctx
	if p.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.config.FetchTimeout)
		defer cancel()
	}

	entries, err := p.deps.Source.FetchEntries(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: source returned no entries", apperrors.ErrStale)
	}

	now := p.deps.Clock()
	next := entity.NewLeaderboardSnapshot(p.seq+1, now, entries)

	// Diff проверяет дубликаты до ротации, поэтому некорректный снимок не заменяет текущий
	diffs, err := Diff(p.store.Current(), next)
	if err != nil {
		return nil, err
	}

	prior := p.store.Rotate(next)
	p.seq = next.Seq

	return &TickResult{
		Seq:      next.Seq,
		TakenAt:  next.TakenAt,
		Baseline: prior == nil,
		Diffs:    p.classifier.ClassifyAll(diffs, ClassifyContext{Current: next, Now: now}),
	}, nil
}

// cacheTick сохраняет тик в общий кеш. Ошибка кеша не влияет на тик.
func (p *Poller) cacheTick(ctx context.Context, tick *TickResult) {
	if p.deps.CacheRepo == nil || p.config.CacheKey == "" {
		return
	}
	if err := p.deps.CacheRepo.SetJSON(ctx, p.config.CacheKey, tick, p.config.CacheTTL); err != nil {
		log.Printf("[LeaderboardPoller] Не удалось закешировать тик #%d: %v", tick.Seq, err)
	}
}

// Run запускает цикл опроса до отмены контекста.
// Если предыдущий опрос еще выполняется, очередной тик пропускается.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("[LeaderboardPoller] Запуск опроса лидерборда каждые %v", p.config.PollInterval)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-ctx.Done():
			p.wg.Wait()
			log.Println("[LeaderboardPoller] Опрос лидерборда остановлен")
			return
		}
	}
}

// tick запускает опрос в отдельной горутине, чтобы медленный источник не блокировал тикер
func (p *Poller) tick(ctx context.Context) {
	if p.inFlight.Load() {
		log.Println("[LeaderboardPoller] Предыдущий опрос еще выполняется, тик пропущен")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		tick, err := p.PollAndDiff(ctx)
		switch {
		case err == nil:
			if tick.Baseline {
				log.Printf("[LeaderboardPoller] Базовый снимок #%d получен", tick.Seq)
			} else if len(tick.Diffs) > 0 {
				log.Printf("[LeaderboardPoller] Тик #%d: %d изменений", tick.Seq, len(tick.Diffs))
			}
		case errors.Is(err, ErrPollInFlight):
			// гонка с другим вызовом PollAndDiff, пропускаем
		case errors.Is(err, apperrors.ErrConflict):
			log.Printf("[LeaderboardPoller] Источник нарушил контракт снимка, тик отклонен: %v", err)
		case errors.Is(err, apperrors.ErrStale):
			log.Printf("[LeaderboardPoller] Тик пропущен: %v", err)
		case errors.Is(err, context.Canceled):
		default:
			log.Printf("[LeaderboardPoller] Ошибка опроса лидерборда: %v", err)
		}
	}()
}
