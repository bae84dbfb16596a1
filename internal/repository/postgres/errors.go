package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// Коды ошибок Postgres, которые переводятся в ошибки приложения
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// pgErrorCode извлекает SQLSTATE для pgconn (pgx/v5) и lib/pq драйверов
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// isUniqueViolation проверяет Postgres unique violation (23505)
func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

// translateError переводит ошибки ограничений в ошибки приложения, остальные возвращает как есть
func translateError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", apperrors.ErrConflict, msg)
	case pgErrorCode(err) == pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, msg)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
