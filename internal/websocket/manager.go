package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/yourusername/arena-api/internal/domain/entity"
	"github.com/yourusername/arena-api/internal/service/leaderboard"
)

// Event представляет структуру WebSocket-сообщения
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Manager обрабатывает WebSocket сообщения и доставляет события домена клиентам
type Manager struct {
	hub            HubInterface
	messageHandler map[string]func(data json.RawMessage, client *Client) error
}

// NewManager создает новый менеджер WebSocket
func NewManager(hub HubInterface) *Manager {
	m := &Manager{
		hub:            hub,
		messageHandler: make(map[string]func(data json.RawMessage, client *Client) error),
	}
	m.RegisterHandler(SUBSCRIBE, m.handleSubscribe)
	m.RegisterHandler(UNSUBSCRIBE, m.handleUnsubscribe)
	return m
}

// RegisterHandler регистрирует обработчик для определенного типа сообщений
func (m *Manager) RegisterHandler(eventType string, handler func(data json.RawMessage, client *Client) error) {
	m.messageHandler[eventType] = handler
	log.Printf("[WebSocketManager] Зарегистрирован обработчик для сообщений типа: %s", eventType)
}

// HandleMessage обрабатывает входящее сообщение от клиента.
// Возвращает error, если обработка не удалась и соединение нужно закрыть.
func (m *Manager) HandleMessage(message []byte, client *Client) error {
	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &event); err != nil {
		log.Printf("[WebSocketManager] Некорректное сообщение от %s: %v", client.UserID, err)
		m.SendErrorToClient(client, "invalid_message_format", "Invalid JSON format")
		return err
	}

	handler, ok := m.messageHandler[event.Type]
	if !ok {
		m.SendErrorToClient(client, "unknown_message_type", fmt.Sprintf("Unknown message type: %s", event.Type))
		return nil // неизвестный тип не закрывает соединение
	}

	if err := handler(event.Data, client); err != nil {
		log.Printf("[WebSocketManager] Обработчик '%s' вернул ошибку для клиента %s: %v", event.Type, client.UserID, err)
		return err
	}
	return nil
}

// SendErrorToClient отправляет стандартизированное сообщение об ошибке клиенту.
// Соединение не закрывается.
func (m *Manager) SendErrorToClient(client *Client, code string, message string) {
	errorEvent := Event{
		Type: SERVER_ERROR,
		Data: map[string]string{
			"code":    code,
			"message": message,
		},
	}
	if err := m.hub.SendJSONToUser(client.UserID, errorEvent); err != nil {
		log.Printf("[WebSocketManager] Ошибка отправки ошибки клиенту %s: %v", client.UserID, err)
	}
}

// BroadcastEvent отправляет событие всем клиентам
func (m *Manager) BroadcastEvent(eventType string, data interface{}) error {
	return m.hub.BroadcastJSON(Event{Type: eventType, Data: data})
}

// SendEventToUser отправляет событие конкретному пользователю
func (m *Manager) SendEventToUser(userID string, eventType string, data interface{}) error {
	return m.hub.SendJSONToUser(userID, Event{Type: eventType, Data: data})
}

// PublishTick рассылает результат тика лидерборда клиентам этого инстанса.
// Каждый инстанс опрашивает источник сам, поэтому тик не ретранслируется в кластер.
// Базовый тик и тик без изменений не рассылаются: клиентам нечего праздновать.
func (m *Manager) PublishTick(_ context.Context, tick *leaderboard.TickResult) error {
	if tick == nil || tick.Baseline || len(tick.Diffs) == 0 {
		return nil
	}
	return m.hub.BroadcastJSONLocal(Event{Type: LEADERBOARD_TICK, Data: tick})
}

// NotifyDuelReady отправляет событие готовности дуэли каждому участнику
func (m *Manager) NotifyDuelReady(state entity.DuelReadyState, studentIDs ...uint) {
	for _, id := range studentIDs {
		userID := strconv.FormatUint(uint64(id), 10)
		if err := m.SendEventToUser(userID, DUEL_READY, state); err != nil {
			log.Printf("[WebSocketManager] Не удалось уведомить студента %s о готовности дуэли %s: %v", userID, state.DuelID, err)
		}
	}
}

// SubscribeClientToTypes подписывает клиента на указанные типы сообщений
func (m *Manager) SubscribeClientToTypes(client *Client, messageTypes []string) {
	for _, msgType := range messageTypes {
		client.Subscribe(msgType)
	}
}

// GetMetrics возвращает текущие метрики WebSocket-подсистемы
func (m *Manager) GetMetrics() map[string]interface{} {
	metrics := m.hub.GetMetrics()
	metrics["client_count"] = m.hub.ClientCount()
	return metrics
}

type subscriptionRequest struct {
	Types []string `json:"types"`
}

func (m *Manager) handleSubscribe(data json.RawMessage, client *Client) error {
	var req subscriptionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		m.SendErrorToClient(client, "invalid_subscription", "Expected {\"types\": [...]}")
		return nil
	}
	m.SubscribeClientToTypes(client, req.Types)
	return nil
}

func (m *Manager) handleUnsubscribe(data json.RawMessage, client *Client) error {
	var req subscriptionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		m.SendErrorToClient(client, "invalid_subscription", "Expected {\"types\": [...]}")
		return nil
	}
	for _, msgType := range req.Types {
		client.Unsubscribe(msgType)
	}
	return nil
}
