package websocket

// HubInterface объединяет возможности хаба, нужные Manager
type HubInterface interface {
	// BroadcastJSON отправляет структуру JSON всем клиентам (включая другие инстансы кластера)
	BroadcastJSON(v interface{}) error

	// BroadcastJSONLocal отправляет структуру JSON только клиентам этого инстанса
	BroadcastJSONLocal(v interface{}) error

	// SendJSONToUser отправляет структуру JSON конкретному пользователю
	SendJSONToUser(userID string, v interface{}) error

	// SendToUser отправляет байтовое сообщение локальному пользователю
	SendToUser(userID string, message []byte) bool

	// GetMetrics возвращает метрики хаба
	GetMetrics() map[string]interface{}

	// ClientCount возвращает количество подключенных клиентов
	ClientCount() int
}

// ClusterAwareHub - то, что нужно ClusterHub от локального хаба
type ClusterAwareHub interface {
	// BroadcastBytesLocal отправляет сообщение только локальным клиентам, без повторной публикации в кластер
	BroadcastBytesLocal(message []byte)

	// SendToUser возвращает true, если клиент найден локально и сообщение поставлено в очередь
	SendToUser(userID string, message []byte) bool

	// GetInstanceID возвращает уникальный ID этого инстанса
	GetInstanceID() string
}
