package leaderboard

import (
	"fmt"
	"sort"

	"github.com/yourusername/arena-api/internal/domain/entity"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

type previousPosition struct {
	rank   int
	points int64
}

// Diff сравнивает два соседних снимка и возвращает изменения участников.
//
// previous == nil означает первый тик (базовая линия) - результат пустой.
// Новый участник получает pointsGained = его текущие очки (базы для сравнения нет).
// Отрицательный прирост очков (внешняя корректировка) обрезается до 0.
// Участник без изменений ранга и очков событий не порождает, исчезнувший из снимка - тоже.
// Дубликат studentId в любом из снимков - нарушение контракта источника, возвращается ErrConflict.
func Diff(previous, current *entity.LeaderboardSnapshot) ([]entity.LeaderboardDiff, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: current snapshot is nil", apperrors.ErrStale)
	}
	if id, dup := current.DuplicateStudentID(); dup {
		return nil, fmt.Errorf("%w: duplicate student %d in snapshot #%d", apperrors.ErrConflict, id, current.Seq)
	}
	if previous == nil {
		return []entity.LeaderboardDiff{}, nil
	}
	if id, dup := previous.DuplicateStudentID(); dup {
		return nil, fmt.Errorf("%w: duplicate student %d in snapshot #%d", apperrors.ErrConflict, id, previous.Seq)
	}

	lookup := make(map[uint]previousPosition, previous.Len())
	for _, e := range previous.Entries {
		lookup[e.StudentID] = previousPosition{rank: e.Rank, points: e.TotalPoints}
	}

	diffs := make([]entity.LeaderboardDiff, 0)
	for _, e := range current.Entries {
		diff := entity.LeaderboardDiff{
			StudentID:   e.StudentID,
			DisplayName: e.DisplayName,
			NewRank:     e.Rank,
			Timestamp:   current.TakenAt,
		}

		prev, seen := lookup[e.StudentID]
		if !seen {
			diff.RankChange = entity.RankChangeNew
			diff.PointsGained = e.TotalPoints
			diffs = append(diffs, diff)
			continue
		}

		oldRank := prev.rank
		diff.OldRank = &oldRank
		diff.RankChange, diff.RankDelta = entity.RankChangeFor(&oldRank, e.Rank)
		diff.PointsGained = e.TotalPoints - prev.points
		if diff.PointsGained < 0 {
			diff.PointsGained = 0
		}

		if diff.RankDelta == 0 && diff.PointsGained == 0 {
			continue
		}
		diffs = append(diffs, diff)
	}

	sortDiffs(diffs)
	return diffs, nil
}

// sortDiffs упорядочивает изменения: сначала самые большие приросты очков, затем скачки рангов.
// Последний ключ newRank делает порядок детерминированным.
func sortDiffs(diffs []entity.LeaderboardDiff) {
	sort.SliceStable(diffs, func(i, j int) bool {
		if diffs[i].PointsGained != diffs[j].PointsGained {
			return diffs[i].PointsGained > diffs[j].PointsGained
		}
		if diffs[i].RankDelta != diffs[j].RankDelta {
			return diffs[i].RankDelta > diffs[j].RankDelta
		}
		return diffs[i].NewRank < diffs[j].NewRank
	})
}
