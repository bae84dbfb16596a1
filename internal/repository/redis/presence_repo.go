package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/arena-api/internal/domain/entity"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

const (
	presenceKeyPrefix = "lobby:presence:"
	presenceSeenKey   = "lobby:seen" // ZSET studentId -> lastSeen (unix ms)
)

// touchScript обновляет поле только у существующей записи, чтобы не создать "полузапись"
var touchScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
if ARGV[3] ~= "" then
	redis.call("ZADD", KEYS[2], ARGV[3], ARGV[4])
end
return 1
`)

// reapScript выбирает и удаляет устаревшие записи за один вызов.
// Score перепроверяется перед удалением каждой записи.
// KEYS[1] - ZSET lastSeen, ARGV[1] - граница в unix ms, ARGV[2] - префикс ключей HASH.
var reapScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1])
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
local removed = 0
for _, id in ipairs(ids) do
	local score = redis.call("ZSCORE", KEYS[1], id)
	if score and tonumber(score) < cutoff then
		redis.call("DEL", ARGV[2] .. id)
		redis.call("ZREM", KEYS[1], id)
		removed = removed + 1
	end
end
return removed
`)

// PresenceRepo реализует repository.PresenceRepository на Redis:
// HASH на каждого студента и ZSET с временем последней активности для выборки по lastSeen desc.
type PresenceRepo struct {
	client redis.UniversalClient
}

// NewPresenceRepo создает Redis-репозиторий присутствия
func NewPresenceRepo(client redis.UniversalClient) (*PresenceRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for PresenceRepo")
	}
	return &PresenceRepo{client: client}, nil
}

func presenceKey(studentID uint) string {
	return presenceKeyPrefix + strconv.FormatUint(uint64(studentID), 10)
}

// Get возвращает запись присутствия студента
func (r *PresenceRepo) Get(ctx context.Context, studentID uint) (*entity.PresenceRecord, error) {
	fields, err := r.client.HGetAll(ctx, presenceKey(studentID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return decodePresence(studentID, fields)
}

// Upsert записывает запись. joined_at выставляется только при первой вставке (HSETNX).
func (r *PresenceRepo) Upsert(ctx context.Context, record *entity.PresenceRecord) error {
	key := presenceKey(record.StudentID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "joined_at", record.JoinedAt.UTC().Format(time.RFC3339Nano))
		pipe.HSet(ctx, key,
			"grade", record.Grade,
			"total_points", record.TotalPoints,
			"status", record.Status,
			"last_seen", record.LastSeen.UTC().Format(time.RFC3339Nano),
		)
		if record.PreferredSubject != nil {
			pipe.HSet(ctx, key, "preferred_subject", *record.PreferredSubject)
		} else {
			pipe.HDel(ctx, key, "preferred_subject")
		}
		pipe.ZAdd(ctx, presenceSeenKey, &redis.Z{
			Score:  float64(record.LastSeen.UnixMilli()),
			Member: record.StudentID,
		})
		return nil
	})
	return err
}

// Touch обновляет last_seen у существующей записи
func (r *PresenceRepo) Touch(ctx context.Context, studentID uint, seenAt time.Time) error {
	return r.setField(ctx, studentID, "last_seen", seenAt.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(seenAt.UnixMilli(), 10))
}

// SetStatus меняет статус существующей записи
func (r *PresenceRepo) SetStatus(ctx context.Context, studentID uint, status string) error {
	return r.setField(ctx, studentID, "status", status, "")
}

func (r *PresenceRepo) setField(ctx context.Context, studentID uint, field, value, seenScore string) error {
	updated, err := touchScript.Run(ctx, r.client,
		[]string{presenceKey(studentID), presenceSeenKey},
		field, value, seenScore, strconv.FormatUint(uint64(studentID), 10),
	).Int()
	if err != nil {
		return err
	}
	if updated == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// List выбирает кандидатов из ZSET по окну живости (от свежих к старым) и фильтрует их
func (r *PresenceRepo) List(ctx context.Context, filter entity.PresenceFilter) ([]entity.PresenceRecord, error) {
	ids, err := r.client.ZRevRangeByScore(ctx, presenceSeenKey, &redis.ZRangeBy{
		Max: "+inf",
		Min: strconv.FormatInt(filter.SeenSince.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []entity.PresenceRecord{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, presenceKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	records := make([]entity.PresenceRecord, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue // запись удалена между ZRANGE и HGETALL
		}
		studentID, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		record, err := decodePresence(uint(studentID), fields)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(record) {
			continue
		}
		records = append(records, *record)
	}

	sortPresence(records)
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// sortPresence упорядочивает записи как PostgreSQL-хранилище: last_seen DESC, student_id ASC.
// ZSET при равных score отдает участников в обратном лексикографическом порядке.
func sortPresence(records []entity.PresenceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].LastSeen.Equal(records[j].LastSeen) {
			return records[i].LastSeen.After(records[j].LastSeen)
		}
		return records[i].StudentID < records[j].StudentID
	})
}

// DeleteStale удаляет записи, last_seen которых раньше olderThan
func (r *PresenceRepo) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	return reapScript.Run(ctx, r.client,
		[]string{presenceSeenKey},
		strconv.FormatInt(olderThan.UnixMilli(), 10), presenceKeyPrefix,
	).Int64()
}

// decodePresence собирает запись из полей HASH
func decodePresence(studentID uint, fields map[string]string) (*entity.PresenceRecord, error) {
	record := &entity.PresenceRecord{
		StudentID: studentID,
		Status:    fields["status"],
	}

	var err error
	if record.Grade, err = strconv.Atoi(fields["grade"]); err != nil {
		return nil, fmt.Errorf("presence %d: invalid grade: %w", studentID, err)
	}
	if record.TotalPoints, err = strconv.ParseInt(fields["total_points"], 10, 64); err != nil {
		return nil, fmt.Errorf("presence %d: invalid total_points: %w", studentID, err)
	}
	if record.JoinedAt, err = time.Parse(time.RFC3339Nano, fields["joined_at"]); err != nil {
		return nil, fmt.Errorf("presence %d: invalid joined_at: %w", studentID, err)
	}
	if record.LastSeen, err = time.Parse(time.RFC3339Nano, fields["last_seen"]); err != nil {
		return nil, fmt.Errorf("presence %d: invalid last_seen: %w", studentID, err)
	}
	if subject, ok := fields["preferred_subject"]; ok {
		record.PreferredSubject = &subject
	}
	return record, nil
}
