package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены (неизвестная дуэль, нет записи в лобби).
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок авторизации (неверный или отсутствующий токен).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда студент не является участником дуэли.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния.
	// В частности: дубликат studentId внутри одного снимка лидерборда (нарушение контракта источника).
	ErrConflict = errors.New("resource state conflict")

	// ErrStale используется, когда источник вернул пустой или некорректный снимок.
	// Такой тик пропускается, а не роняет цикл опроса.
	ErrStale = errors.New("stale or malformed snapshot")
)
