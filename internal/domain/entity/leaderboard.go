package entity

import (
	"fmt"
	"sort"
	"time"
)

// Типы изменения позиции в лидерборде
const (
	RankChangeNew  = "new"
	RankChangeUp   = "up"
	RankChangeDown = "down"
	RankChangeSame = "same"
)

// LeaderboardEntry представляет одного участника рейтинга на момент снимка
type LeaderboardEntry struct {
	StudentID         uint      `json:"student_id"`
	DisplayName       string    `json:"display_name"`
	TotalPoints       int64     `json:"total_points"`
	SecondaryTieBreak int64     `json:"secondary_tie_break"` // например, количество отвеченных вопросов
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// RankedEntry - запись снимка вместе с вычисленным рангом (1-based)
type RankedEntry struct {
	LeaderboardEntry
	Rank int `json:"rank"`
}

// LeaderboardSnapshot - упорядоченный неизменяемый снимок лидерборда.
// Ранг = позиция после сортировки по (TotalPoints desc, SecondaryTieBreak desc, StudentID asc).
type LeaderboardSnapshot struct {
	Seq     uint64        `json:"seq"`
	TakenAt time.Time     `json:"taken_at"`
	Entries []RankedEntry `json:"entries"`
}

// NewLeaderboardSnapshot сортирует записи и назначает ранги.
// Входной слайс не модифицируется.
func NewLeaderboardSnapshot(seq uint64, takenAt time.Time, entries []LeaderboardEntry) *LeaderboardSnapshot {
	sorted := make([]LeaderboardEntry, len(entries))
	copy(sorted, entries)

	sort.SliceStable(sorted, func(i, j int) bool {
		return entryLess(sorted[i], sorted[j])
	})

	ranked := make([]RankedEntry, len(sorted))
	for i, e := range sorted {
		ranked[i] = RankedEntry{LeaderboardEntry: e, Rank: i + 1}
	}

	return &LeaderboardSnapshot{
		Seq:     seq,
		TakenAt: takenAt,
		Entries: ranked,
	}
}

// entryLess задает строгий порядок: при равных очках решает тай-брейк, затем studentId
func entryLess(a, b LeaderboardEntry) bool {
	if a.TotalPoints != b.TotalPoints {
		return a.TotalPoints > b.TotalPoints
	}
	if a.SecondaryTieBreak != b.SecondaryTieBreak {
		return a.SecondaryTieBreak > b.SecondaryTieBreak
	}
	return a.StudentID < b.StudentID
}

// Len возвращает количество участников снимка
func (s *LeaderboardSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// At возвращает запись по рангу (1-based). ok=false, если ранг вне диапазона.
func (s *LeaderboardSnapshot) At(rank int) (RankedEntry, bool) {
	if s == nil || rank < 1 || rank > len(s.Entries) {
		return RankedEntry{}, false
	}
	return s.Entries[rank-1], true
}

// DuplicateStudentID возвращает первый повторяющийся studentId, если он есть.
func (s *LeaderboardSnapshot) DuplicateStudentID() (uint, bool) {
	if s == nil {
		return 0, false
	}
	seen := make(map[uint]struct{}, len(s.Entries))
	for _, e := range s.Entries {
		if _, ok := seen[e.StudentID]; ok {
			return e.StudentID, true
		}
		seen[e.StudentID] = struct{}{}
	}
	return 0, false
}

// Validate проверяет, что ранги образуют перестановку 1..N и порядок соблюден
func (s *LeaderboardSnapshot) Validate() error {
	for i, e := range s.Entries {
		if e.Rank != i+1 {
			return fmt.Errorf("entry %d has rank %d, expected %d", e.StudentID, e.Rank, i+1)
		}
		if i > 0 && !entryLess(s.Entries[i-1].LeaderboardEntry, e.LeaderboardEntry) {
			return fmt.Errorf("entries at ranks %d and %d are out of order", i, i+1)
		}
	}
	return nil
}

// LeaderboardDiff - изменение одного участника между двумя соседними снимками.
// Никогда не сохраняется отдельно, вычисляется из пары снимков.
type LeaderboardDiff struct {
	StudentID    uint      `json:"student_id"`
	DisplayName  string    `json:"display_name"`
	OldRank      *int      `json:"old_rank"` // nil для нового участника
	NewRank      int       `json:"new_rank"`
	RankChange   string    `json:"rank_change"` // new, up, down, same
	RankDelta    int       `json:"rank_delta"`
	PointsGained int64     `json:"points_gained"`
	Timestamp    time.Time `json:"timestamp"`
}

// IsNew возвращает true, если участник появился впервые
func (d *LeaderboardDiff) IsNew() bool {
	return d.OldRank == nil
}

// RankChangeFor вычисляет тип изменения и модуль дельты ранга.
// oldRank == nil означает нового участника.
func RankChangeFor(oldRank *int, newRank int) (string, int) {
	if oldRank == nil {
		return RankChangeNew, 0
	}
	switch {
	case newRank < *oldRank:
		return RankChangeUp, *oldRank - newRank
	case newRank > *oldRank:
		return RankChangeDown, newRank - *oldRank
	default:
		return RankChangeSame, 0
	}
}
