package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время ожидания следующего сообщения (или pong) от клиента.
	pongWait = 30 * time.Second

	// Периодичность отправки ping-сообщений клиенту.
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения
	maxMessageSize = 512

	// Размер буфера по умолчанию для канала отправки клиенту
	defaultClientBufferSize = 128

	// Максимальное количество переполнений буфера подряд до отключения
	maxBufferWarnings = 3

	registrationTimeout = 5 * time.Second
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client является посредником между WebSocket соединением и Hub.
type Client struct {
	// ID студента
	UserID string

	// Уникальный ID соединения
	ConnectionID string

	hub  *Hub
	conn *websocket.Conn

	// Буферизованный канал исходящих сообщений
	send       chan []byte
	sendMu     sync.RWMutex // отправка под RLock, закрытие под Lock
	sendClosed atomic.Bool

	registrationComplete chan struct{}

	// Подписки на типы широковещательных сообщений
	subscriptions sync.Map

	bufferWarningCount atomic.Int32
}

// NewClient создает нового клиента
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	bufferSize := defaultClientBufferSize
	if hub != nil && hub.clientBuffer > 0 {
		bufferSize = hub.clientBuffer
	}
	return &Client{
		hub:                  hub,
		conn:                 conn,
		send:                 make(chan []byte, bufferSize),
		UserID:               userID,
		ConnectionID:         uuid.New().String(),
		registrationComplete: make(chan struct{}, 1),
	}
}

// readPump читает сообщения от клиента и передает их обработчику
func (c *Client) readPump(messageHandler func(message []byte, client *Client) error) {
	defer func() {
		log.Printf("[Client %s/%s] readPump завершен", c.UserID, c.ConnectionID)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[Client %s/%s] Ошибка чтения: %v", c.UserID, c.ConnectionID, err)
			}
			break
		}

		if handlerErr := safeHandleMessage(message, c, messageHandler); handlerErr != nil {
			log.Printf("[Client %s/%s] Ошибка обработчика, соединение закрывается: %v", c.UserID, c.ConnectionID, handlerErr)
			break
		}

		c.resetBufferWarningCount()
	}
}

// safeHandleMessage вызывает обработчик с recover; паника считается фатальной для соединения
func safeHandleMessage(message []byte, client *Client, messageHandler func(message []byte, client *Client) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Client %s/%s] PANIC в обработчике сообщения: %v\n%s",
				client.UserID, client.ConnectionID, r, string(debug.Stack()))
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
	if messageHandler != nil {
		err = messageHandler(message, client)
	}
	return err
}

// writePump отправляет сообщения клиенту из канала send
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Хаб закрыл канал
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				log.Printf("[Client %s/%s] Ошибка записи: %v", c.UserID, c.ConnectionID, err)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// StartPumps регистрирует клиента в хабе и запускает горутины чтения и записи
func (c *Client) StartPumps(messageHandler func(message []byte, client *Client) error) {
	if c.UserID == "" || c.hub == nil {
		log.Printf("[Client] Нет UserID или хаба, регистрация пропущена")
		c.conn.Close()
		return
	}

	c.hub.register <- c

	select {
	case <-c.registrationComplete:
	case <-time.After(registrationTimeout):
		log.Printf("[Client %s] Таймаут ожидания регистрации в хабе", c.UserID)
		c.conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(messageHandler)
}

// IsSubscribed проверяет подписку клиента на тип сообщений
func (c *Client) IsSubscribed(messageType string) bool {
	if messageType == "" {
		return true
	}
	_, ok := c.subscriptions.Load(messageType)
	return ok
}

// Subscribe подписывает клиента на тип сообщений
func (c *Client) Subscribe(messageType string) {
	if messageType == "" {
		return
	}
	c.subscriptions.Store(messageType, true)
}

// Unsubscribe отменяет подписку клиента на тип сообщений
func (c *Client) Unsubscribe(messageType string) {
	c.subscriptions.Delete(messageType)
}

func (c *Client) incrementBufferWarningCount() int32 {
	return c.bufferWarningCount.Add(1)
}

func (c *Client) resetBufferWarningCount() {
	c.bufferWarningCount.Store(0)
}

// CloseSend безопасно закрывает канал send (только один раз).
// Возвращает true, если канал был закрыт этим вызовом.
func (c *Client) CloseSend() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed.CompareAndSwap(false, true) {
		close(c.send)
		return true
	}
	return false
}

// trySend кладет сообщение в буфер без блокировки.
// false, если буфер полон или канал уже закрыт.
func (c *Client) trySend(message []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed.Load() {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// IsSendClosed проверяет, закрыт ли канал send
func (c *Client) IsSendClosed() bool {
	return c.sendClosed.Load()
}

// StudentID преобразует UserID в uint. Возвращает 0 при ошибке.
func (c *Client) StudentID() uint {
	id, err := strconv.ParseUint(c.UserID, 10, 64)
	if err != nil {
		log.Printf("[Client %s] Ошибка преобразования UserID в uint: %v", c.UserID, err)
		return 0
	}
	return uint(id)
}

// messageTypeFromBytes извлекает поле type из JSON; пустая строка, если его нет
func messageTypeFromBytes(message []byte) string {
	var event struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(message, &event) == nil {
		return event.Type
	}
	return ""
}
