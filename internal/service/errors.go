package service

import (
	"fmt"

	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// Ошибки сервисов лобби и дуэлей. Каждая оборачивает общую ошибку из apperrors,
// поэтому обработчики сопоставляют их со статусами через errors.Is.
var (
	ErrNotDuelParticipant = fmt.Errorf("%w: student is not a participant of this duel", apperrors.ErrForbidden)
	ErrInvalidDuelID      = fmt.Errorf("%w: duel id must be a uuid", apperrors.ErrValidation)
	ErrInvalidStudentID   = fmt.Errorf("%w: student id is required", apperrors.ErrValidation)
	ErrInvalidGrade       = fmt.Errorf("%w: grade must be non-negative", apperrors.ErrValidation)
	ErrInvalidPoints      = fmt.Errorf("%w: total points must be non-negative", apperrors.ErrValidation)
	ErrNotInLobby         = fmt.Errorf("%w: student is not in the lobby", apperrors.ErrNotFound)
)
