package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/yourusername/arena-api/internal/config"
)

// Типы сообщений кластера
const (
	clusterMessageBroadcast = "broadcast"
	clusterMessageDirect    = "direct"
)

// PubSubProvider определяет интерфейс для провайдеров публикации/подписки
type PubSubProvider interface {
	// Publish публикует сообщение в указанный канал
	Publish(channel string, message []byte) error

	// Subscribe подписывается на канал и возвращает канал для сообщений
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// Close закрывает соединения и освобождает ресурсы
	Close() error
}

// ClusterMessage представляет сообщение, передаваемое между инстансами
type ClusterMessage struct {
	MessageType string          `json:"type"`
	RecipientID string          `json:"recipient_id,omitempty"`
	InstanceID  string          `json:"instance_id"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NoOpPubSub используется, когда кластерный режим отключен
type NoOpPubSub struct{}

// Publish ничего не делает в одиночном режиме
func (p *NoOpPubSub) Publish(channel string, message []byte) error {
	return nil
}

// Subscribe возвращает канал, который закроется вместе с контекстом
func (p *NoOpPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	msgCh := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(msgCh)
	}()
	return msgCh, nil
}

// Close реализует PubSubProvider.Close
func (p *NoOpPubSub) Close() error {
	return nil
}

// ClusterHub пересылает события между инстансами через Pub/Sub:
// тики лидерборда уходят широковещательно, события дуэлей адресно.
type ClusterHub struct {
	config   config.ClusterConfig
	parent   ClusterAwareHub
	Provider PubSubProvider
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewClusterHub создает новый экземпляр ClusterHub
func NewClusterHub(parent ClusterAwareHub, cfg config.ClusterConfig, provider PubSubProvider) *ClusterHub {
	ctx, cancel := context.WithCancel(context.Background())
	if provider == nil {
		provider = &NoOpPubSub{}
	}
	return &ClusterHub{
		config:   cfg,
		parent:   parent,
		Provider: provider,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start запускает обработку сообщений кластера
func (ch *ClusterHub) Start() error {
	if !ch.config.Enabled {
		log.Println("[ClusterHub] Кластерный режим отключен, работаем в автономном режиме")
		return nil
	}

	log.Printf("[ClusterHub] Запуск кластерного режима, ID инстанса: %s", ch.parent.GetInstanceID())

	for _, channel := range []string{ch.config.BroadcastChannel, ch.config.DirectChannel} {
		if channel == "" {
			continue
		}
		msgCh, err := ch.Provider.Subscribe(ch.ctx, channel)
		if err != nil {
			return fmt.Errorf("subscribe to cluster channel %s: %w", channel, err)
		}
		ch.wg.Add(1)
		go func(channel string, msgCh <-chan []byte) {
			defer ch.wg.Done()
			ch.consume(channel, msgCh)
		}(channel, msgCh)
	}
	return nil
}

// Stop останавливает обработку сообщений кластера
func (ch *ClusterHub) Stop() {
	ch.cancel()
	ch.wg.Wait()
}

// BroadcastToCluster публикует сообщение для всех остальных инстансов
func (ch *ClusterHub) BroadcastToCluster(payload []byte) error {
	if !ch.config.Enabled {
		return nil
	}
	return ch.publish(ch.config.BroadcastChannel, ClusterMessage{
		MessageType: clusterMessageBroadcast,
		Payload:     payload,
	})
}

// SendToUserInCluster публикует адресное сообщение; доставит тот инстанс, где подключен пользователь
func (ch *ClusterHub) SendToUserInCluster(userID string, payload []byte) error {
	if !ch.config.Enabled {
		return nil
	}
	return ch.publish(ch.config.DirectChannel, ClusterMessage{
		MessageType: clusterMessageDirect,
		RecipientID: userID,
		Payload:     payload,
	})
}

func (ch *ClusterHub) publish(channel string, msg ClusterMessage) error {
	msg.InstanceID = ch.parent.GetInstanceID()
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ch.Provider.Publish(channel, data)
}

// consume читает сообщения канала до остановки
func (ch *ClusterHub) consume(channel string, msgCh <-chan []byte) {
	for {
		select {
		case <-ch.ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				log.Printf("[ClusterHub] Канал %s закрыт", channel)
				return
			}
			ch.dispatch(data)
		}
	}
}

// dispatch передает сообщение другого инстанса локальному хабу
func (ch *ClusterHub) dispatch(data []byte) {
	var msg ClusterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[ClusterHub] Ошибка десериализации сообщения: %v", err)
		return
	}

	// Свои сообщения уже доставлены локально
	if msg.InstanceID == ch.parent.GetInstanceID() {
		return
	}

	switch msg.MessageType {
	case clusterMessageBroadcast:
		ch.parent.BroadcastBytesLocal(msg.Payload)
	case clusterMessageDirect:
		if msg.RecipientID != "" {
			ch.parent.SendToUser(msg.RecipientID, msg.Payload)
		}
	default:
		log.Printf("[ClusterHub] Неизвестный тип сообщения %q от %s", msg.MessageType, msg.InstanceID)
	}
}

// RedisPubSub реализует PubSubProvider поверх Redis
type RedisPubSub struct {
	client redis.UniversalClient
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	subs   []*redis.PubSub
}

// NewRedisPubSub создает провайдер, используя существующий UniversalClient
func NewRedisPubSub(client redis.UniversalClient) (*RedisPubSub, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil for RedisPubSub")
	}

	ctx, cancelCheck := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCheck()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("provided redis client failed ping check: %w", err)
	}

	ctxPubSub, cancel := context.WithCancel(context.Background())
	return &RedisPubSub{
		client: client,
		ctx:    ctxPubSub,
		cancel: cancel,
	}, nil
}

// Publish публикует сообщение в канал
func (p *RedisPubSub) Publish(channel string, message []byte) error {
	if err := p.client.Publish(p.ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe подписывается на канал Redis
func (p *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := p.client.Subscribe(p.ctx, channel)
	if _, err := pubsub.Receive(p.ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to Redis channel %s: %w", channel, err)
	}

	p.mu.Lock()
	p.subs = append(p.subs, pubsub)
	p.mu.Unlock()

	msgCh := make(chan []byte, 100)
	go func() {
		defer func() {
			pubsub.Close()
			close(msgCh)
		}()

		redisCh := pubsub.Channel()
		for {
			select {
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case msgCh <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				case <-p.ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			case <-p.ctx.Done():
				return
			}
		}
	}()

	log.Printf("[RedisPubSub] Подписка на канал '%s' оформлена", channel)
	return msgCh, nil
}

// Close закрывает все подписки. Сам клиент Redis принадлежит вызывающему коду.
func (p *RedisPubSub) Close() error {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for _, sub := range p.subs {
		if err := sub.Close(); err != nil {
			lastErr = err
		}
	}
	p.subs = nil
	return lastErr
}
