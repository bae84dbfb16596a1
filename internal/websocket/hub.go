package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/arena-api/internal/config"
)

const (
	defaultBroadcastBuffer = 256
	defaultRegisterBuffer  = 100
)

// hubMetrics содержит счетчики хаба
type hubMetrics struct {
	activeConnections atomic.Int64
	messagesSent      atomic.Int64
	droppedMessages   atomic.Int64
	slowClientsKicked atomic.Int64
	startedAt         time.Time
}

// Hub хранит локальные подключения и рассылает им события.
// Рассылка между инстансами идет через ClusterHub.
type Hub struct {
	clients    sync.Map // *Client -> struct{}
	userMap    sync.Map // UserID -> *Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	clientBuffer int
	instanceID   string
	cluster      *ClusterHub
	metrics      *hubMetrics
}

// NewHub создает новый хаб. provider может быть nil (одиночный режим).
func NewHub(cfg config.WebSocketConfig, provider PubSubProvider) *Hub {
	broadcastBuffer := cfg.BroadcastBuffer
	if broadcastBuffer <= 0 {
		broadcastBuffer = defaultBroadcastBuffer
	}
	instanceID := cfg.Cluster.InstanceID
	if instanceID == "" {
		instanceID = "instance_" + uuid.NewString()
	}

	h := &Hub{
		broadcast:    make(chan []byte, broadcastBuffer),
		register:     make(chan *Client, defaultRegisterBuffer),
		unregister:   make(chan *Client, defaultRegisterBuffer),
		done:         make(chan struct{}),
		clientBuffer: cfg.ClientSendBuffer,
		instanceID:   instanceID,
		metrics:      &hubMetrics{startedAt: time.Now()},
	}

	clusterCfg := cfg.Cluster
	clusterCfg.InstanceID = instanceID
	h.cluster = NewClusterHub(h, clusterCfg, provider)
	return h
}

// Run запускает цикл обработки хаба до вызова Close
func (h *Hub) Run() {
	if err := h.cluster.Start(); err != nil {
		log.Printf("[Hub] Не удалось запустить кластерный режим: %v", err)
	}

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case message := <-h.broadcast:
			h.handleBroadcast(message)
		case <-h.done:
			log.Printf("[Hub] Получен сигнал завершения работы, останавливаемся")
			h.cleanupAllClients()
			return
		}
	}
}

// handleRegister регистрирует клиента. Предыдущее соединение того же пользователя закрывается.
func (h *Hub) handleRegister(client *Client) {
	if existing, loaded := h.userMap.Swap(client.UserID, client); loaded {
		if old, ok := existing.(*Client); ok && old != client {
			log.Printf("[Hub] Пользователь %s переподключился, старое соединение %s закрывается", client.UserID, old.ConnectionID)
			h.dropClient(old)
		}
	}

	h.clients.Store(client, struct{}{})
	h.metrics.activeConnections.Add(1)
	log.Printf("[Hub] Клиент %s (Conn: %s) зарегистрирован", client.UserID, client.ConnectionID)

	if client.registrationComplete != nil {
		select {
		case client.registrationComplete <- struct{}{}:
		default:
		}
	}
}

// handleUnregister удаляет клиента
func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients.Load(client); !ok {
		return
	}
	h.userMap.CompareAndDelete(client.UserID, client)
	h.dropClient(client)
	log.Printf("[Hub] Клиент %s (Conn: %s) отключен", client.UserID, client.ConnectionID)
}

// dropClient закрывает соединение клиента и убирает его из набора
func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients.LoadAndDelete(client); ok {
		h.metrics.activeConnections.Add(-1)
	}
	if client.conn != nil {
		client.conn.Close()
	}
	client.CloseSend()
}

// handleBroadcast отправляет сообщение всем подписанным клиентам
func (h *Hub) handleBroadcast(message []byte) {
	messageType := messageTypeFromBytes(message)
	var delivered int64

	h.clients.Range(func(key, _ interface{}) bool {
		client, ok := key.(*Client)
		if !ok {
			return true
		}
		if messageType != "" && !client.IsSubscribed(messageType) {
			return true
		}
		if h.enqueue(client, message) {
			delivered++
		}
		return true
	})

	h.metrics.messagesSent.Add(delivered)
	if messageType != "" {
		log.Printf("[Hub] Сообщение %s разослано %d клиентам", messageType, delivered)
	}
}

// enqueue кладет сообщение в буфер клиента, не блокируясь.
// Клиент, переполнивший буфер maxBufferWarnings раз подряд, отключается.
func (h *Hub) enqueue(client *Client, message []byte) bool {
	if client.IsSendClosed() {
		return false
	}
	if client.trySend(message) {
		client.resetBufferWarningCount()
		return true
	}

	h.metrics.droppedMessages.Add(1)
	count := client.incrementBufferWarningCount()
	if count >= maxBufferWarnings {
		log.Printf("[Hub] Клиент %s (Conn: %s) превысил лимит предупреждений буфера (%d), отключаем", client.UserID, client.ConnectionID, maxBufferWarnings)
		h.userMap.CompareAndDelete(client.UserID, client)
		h.dropClient(client)
		h.metrics.slowClientsKicked.Add(1)
		return false
	}

	warning, _ := json.Marshal(Event{
		Type: BUFFER_WARNING,
		Data: map[string]interface{}{
			"warning_count": count,
			"max_warnings":  maxBufferWarnings,
		},
	})
	client.trySend(warning)
	return false
}

// cleanupAllClients закрывает все соединения при остановке
func (h *Hub) cleanupAllClients() {
	h.clients.Range(func(key, _ interface{}) bool {
		if client, ok := key.(*Client); ok {
			h.userMap.CompareAndDelete(client.UserID, client)
			h.dropClient(client)
		}
		return true
	})
}

// BroadcastBytes рассылает сообщение локально и публикует его в кластер
func (h *Hub) BroadcastBytes(message []byte) {
	h.BroadcastBytesLocal(message)
	if err := h.cluster.BroadcastToCluster(message); err != nil {
		log.Printf("[Hub] Ошибка публикации в кластер: %v", err)
	}
}

// BroadcastBytesLocal рассылает сообщение только локальным клиентам
func (h *Hub) BroadcastBytesLocal(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.metrics.droppedMessages.Add(1)
		log.Printf("[Hub] Канал рассылки переполнен, сообщение %s отброшено", messageTypeFromBytes(message))
	}
}

// BroadcastJSON сериализует и рассылает структуру всем клиентам
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.BroadcastBytes(data)
	return nil
}

// BroadcastJSONLocal сериализует и рассылает структуру только клиентам этого инстанса
func (h *Hub) BroadcastJSONLocal(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.BroadcastBytesLocal(data)
	return nil
}

// SendToUser отправляет сообщение локальному пользователю
func (h *Hub) SendToUser(userID string, message []byte) bool {
	value, ok := h.userMap.Load(userID)
	if !ok {
		return false
	}
	client, ok := value.(*Client)
	if !ok {
		return false
	}
	return h.enqueue(client, message)
}

// SendJSONToUser отправляет структуру пользователю; если он подключен к другому инстансу, сообщение уходит через кластер
func (h *Hub) SendJSONToUser(userID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if h.SendToUser(userID, data) {
		return nil
	}
	return h.cluster.SendToUserInCluster(userID, data)
}

// ClientCount возвращает количество локальных подключений
func (h *Hub) ClientCount() int {
	return int(h.metrics.activeConnections.Load())
}

// GetInstanceID возвращает ID инстанса
func (h *Hub) GetInstanceID() string {
	return h.instanceID
}

// GetMetrics возвращает метрики хаба
func (h *Hub) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"instance_id":         h.instanceID,
		"active_connections":  h.metrics.activeConnections.Load(),
		"messages_sent":       h.metrics.messagesSent.Load(),
		"dropped_messages":    h.metrics.droppedMessages.Load(),
		"slow_clients_kicked": h.metrics.slowClientsKicked.Load(),
		"uptime_seconds":      int64(time.Since(h.metrics.startedAt).Seconds()),
	}
}

// Close останавливает хаб и кластерную подписку
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.cluster.Stop()
		close(h.done)
	})
}
