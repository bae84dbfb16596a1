package repository

import (
	"context"
	"time"
)

// CacheRepository - общий для инстансов кеш JSON значений.
// Отсутствие ключа возвращается как apperrors.ErrNotFound.
type CacheRepository interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
}
