package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	apperrors "github.com/yourusername/arena-api/internal/pkg/errors"
	"github.com/yourusername/arena-api/internal/websocket"
	"github.com/yourusername/arena-api/pkg/auth"
)

// LobbyHeartbeater продлевает присутствие в лобби по сообщению из сокета
type LobbyHeartbeater interface {
	Heartbeat(ctx context.Context, studentID uint) error
}

// WSHandler обрабатывает WebSocket соединения
type WSHandler struct {
	wsHub      *websocket.Hub
	wsManager  *websocket.Manager
	lobby      LobbyHeartbeater
	jwtService *auth.JWTService
	upgrader   gorillaws.Upgrader
}

// NewWSHandler создает новый обработчик WebSocket.
// allowedOrigins синхронизирован с CORS роутера; пустой Origin (мобильные клиенты) разрешен всегда.
func NewWSHandler(
	wsHub *websocket.Hub,
	wsManager *websocket.Manager,
	lobby LobbyHeartbeater,
	jwtService *auth.JWTService,
	allowedOrigins []string,
) *WSHandler {
	h := &WSHandler{
		wsHub:      wsHub,
		wsManager:  wsManager,
		lobby:      lobby,
		jwtService: jwtService,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			CheckOrigin:       originChecker(allowedOrigins),
			EnableCompression: true,
		},
	}

	h.registerMessageHandlers()

	return h
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
		return false
	}
}

// HandleConnection обрабатывает входящее WebSocket соединение.
// Токен передается query-параметром token, так как браузер не может выставить заголовок при upgrade.
func (h *WSHandler) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication token parameter"})
		return
	}

	claims, err := h.jwtService.ParseToken(token)
	if err != nil {
		log.Printf("WebSocket: invalid or expired token - %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже записал ответ клиенту
		log.Printf("WebSocket: error upgrading connection for student %d: %v", claims.StudentID, err)
		return
	}

	log.Printf("WebSocket: connection upgraded for student %d", claims.StudentID)

	client := websocket.NewClient(h.wsHub, conn, fmt.Sprintf("%d", claims.StudentID))
	h.wsManager.SubscribeClientToTypes(client, websocket.DefaultSubscriptions)
	client.StartPumps(h.wsManager.HandleMessage)
}

// registerMessageHandlers регистрирует обработчики сообщений клиента
func (h *WSHandler) registerMessageHandlers() {
	h.wsManager.RegisterHandler(websocket.LOBBY_HEARTBEAT, func(_ json.RawMessage, client *websocket.Client) error {
		studentID := client.StudentID()
		if studentID == 0 {
			h.wsManager.SendErrorToClient(client, "internal_error", "Invalid student ID")
			return fmt.Errorf("invalid student id %q", client.UserID)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.lobby.Heartbeat(ctx, studentID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				h.wsManager.SendErrorToClient(client, "not_in_lobby", "Join the lobby first")
				return nil
			}
			log.Printf("[WSHandler] Ошибка heartbeat для студента %d: %v", studentID, err)
			h.wsManager.SendErrorToClient(client, "heartbeat_error", "Failed to refresh presence")
		}
		// Ошибки heartbeat не закрывают соединение
		return nil
	})
}
