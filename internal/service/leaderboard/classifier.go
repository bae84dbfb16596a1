package leaderboard

import (
	"time"

	"github.com/yourusername/arena-api/internal/domain/entity"
)

// Уровни празднования
const (
	CelebrationNone   = "none"
	CelebrationSmall  = "small"
	CelebrationMedium = "medium"
	CelebrationBig    = "big"
	CelebrationRocket = "rocket"
)

// Tags - поведенческие теги одного изменения
type Tags struct {
	IsKing      bool   `json:"is_king"`
	IsOnFire    bool   `json:"is_on_fire"`
	IsHot       bool   `json:"is_hot"`
	IsDueling   bool   `json:"is_dueling"`
	RocketLevel int    `json:"rocket_level"`
	Celebration string `json:"celebration"`
}

// ClassifyContext - вспомогательные данные для классификации
type ClassifyContext struct {
	Current *entity.LeaderboardSnapshot
	Now     time.Time
}

// Classifier вычисляет теги по порогам из Config. Чистая функция, без I/O.
type Classifier struct {
	config *Config
}

// NewClassifier создает классификатор
func NewClassifier(config *Config) *Classifier {
	if config == nil {
		config = DefaultConfig()
	}
	return &Classifier{config: config}
}

// Classify вычисляет теги одного изменения
func (c *Classifier) Classify(diff entity.LeaderboardDiff, cc ClassifyContext) Tags {
	tags := Tags{
		IsKing:   diff.NewRank == 1,
		IsOnFire: diff.PointsGained >= c.config.FireThreshold,
	}

	entry, found := cc.Current.At(diff.NewRank)
	if found && entry.StudentID != diff.StudentID {
		found = false
	}

	// on fire важнее hot, чтобы не праздновать дважды
	if found && !tags.IsOnFire && !entry.LastActivityAt.IsZero() {
		tags.IsHot = cc.Now.Sub(entry.LastActivityAt) <= c.config.HotWindow
	}

	if diff.RankChange == entity.RankChangeUp && diff.RankDelta >= c.config.RocketMinDelta {
		tags.RocketLevel = diff.RankDelta
	}

	if found {
		tags.IsDueling = c.isDueling(cc.Current, entry)
	}

	tags.Celebration = CelebrationFor(diff.OldRank, diff.NewRank, tags.RocketLevel)
	return tags
}

// ClassifyAll классифицирует список изменений, сохраняя порядок
func (c *Classifier) ClassifyAll(diffs []entity.LeaderboardDiff, cc ClassifyContext) []ClassifiedDiff {
	result := make([]ClassifiedDiff, len(diffs))
	for i, d := range diffs {
		result[i] = ClassifiedDiff{LeaderboardDiff: d, Tags: c.Classify(d, cc)}
	}
	return result
}

// isDueling проверяет разрыв в очках с соседями сверху и снизу
func (c *Classifier) isDueling(snapshot *entity.LeaderboardSnapshot, entry entity.RankedEntry) bool {
	for _, neighbourRank := range []int{entry.Rank - 1, entry.Rank + 1} {
		neighbour, ok := snapshot.At(neighbourRank)
		if !ok {
			continue
		}
		gap := entry.TotalPoints - neighbour.TotalPoints
		if gap < 0 {
			gap = -gap
		}
		if gap <= c.config.DuelGapThreshold {
			return true
		}
	}
	return false
}

// celebrationRule - строка таблицы уровней празднования.
// oldRank == nil (новый участник) считается приходом "снаружи" любого порога.
type celebrationRule struct {
	level string
	match func(oldRank *int, newRank int, rocketLevel int) bool
}

// enteredTop возвращает true, если участник оказался в топ-limit, придя из-за его пределов
func enteredTop(oldRank *int, newRank int, limit int) bool {
	return newRank <= limit && (oldRank == nil || *oldRank > limit)
}

// celebrationRules проверяются по порядку, выигрывает первое совпадение
var celebrationRules = []celebrationRule{
	{
		level: CelebrationBig,
		match: func(oldRank *int, newRank int, _ int) bool {
			return newRank == 1 && (oldRank == nil || *oldRank != 1)
		},
	},
	{
		level: CelebrationMedium,
		match: func(oldRank *int, newRank int, _ int) bool {
			return enteredTop(oldRank, newRank, 3)
		},
	},
	{
		level: CelebrationRocket,
		match: func(_ *int, _ int, rocketLevel int) bool {
			return rocketLevel > 0
		},
	},
	{
		level: CelebrationSmall,
		match: func(oldRank *int, newRank int, _ int) bool {
			return enteredTop(oldRank, newRank, 10)
		},
	},
}

// CelebrationFor возвращает уровень празднования для перехода oldRank -> newRank
func CelebrationFor(oldRank *int, newRank int, rocketLevel int) string {
	for _, rule := range celebrationRules {
		if rule.match(oldRank, newRank, rocketLevel) {
			return rule.level
		}
	}
	return CelebrationNone
}
