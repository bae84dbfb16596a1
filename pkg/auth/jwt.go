package auth

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
)

// StudentClaims - поля токена, выданного внешним провайдером идентификации
type StudentClaims struct {
	StudentID uint   `json:"student_id"`
	Grade     *int   `json:"grade,omitempty"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTService проверяет токены студентов. Сервис сам токены не выдает,
// GenerateToken нужен для локальной разработки и тестов.
type JWTService struct {
	secret []byte
	issuer string // пустая строка = issuer не проверяется
}

// NewJWTService создает сервис проверки токенов
func NewJWTService(secret, issuer string) (*JWTService, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required for JWTService")
	}
	return &JWTService{secret: []byte(secret), issuer: issuer}, nil
}

// ParseToken проверяет подпись и срок действия токена и возвращает его claims.
// Любая ошибка оборачивает apperrors.ErrUnauthorized.
func (s *JWTService) ParseToken(tokenString string) (*StudentClaims, error) {
	claims := &StudentClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) {
			switch {
			case ve.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, fmt.Errorf("%w: token is malformed", apperrors.ErrUnauthorized)
			case ve.Errors&jwt.ValidationErrorExpired != 0:
				return nil, fmt.Errorf("%w: token is expired", apperrors.ErrUnauthorized)
			case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
				return nil, fmt.Errorf("%w: token not valid yet", apperrors.ErrUnauthorized)
			case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
				log.Printf("[JWT] Ошибка: неверная подпись токена для студента ID=%d", claims.StudentID)
				return nil, fmt.Errorf("%w: signature is invalid", apperrors.ErrUnauthorized)
			}
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperrors.ErrUnauthorized)
	}

	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", apperrors.ErrUnauthorized, claims.Issuer)
	}

	// Некоторые провайдеры кладут id только в sub
	if claims.StudentID == 0 && claims.Subject != "" {
		if id, err := strconv.ParseUint(claims.Subject, 10, 64); err == nil {
			claims.StudentID = uint(id)
		}
	}
	if claims.StudentID == 0 {
		return nil, fmt.Errorf("%w: token has no student id", apperrors.ErrUnauthorized)
	}

	return claims, nil
}

// GenerateToken подписывает токен студента (HS256)
func (s *JWTService) GenerateToken(studentID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &StudentClaims{
		StudentID: studentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(studentID), 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
