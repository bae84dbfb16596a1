package websocket

// Серверные события
const (
	// LEADERBOARD_TICK рассылает классифицированные изменения лидерборда за тик
	LEADERBOARD_TICK = "leaderboard:tick"

	// DUEL_READY сообщает обоим участникам, что рукопожатие завершено
	DUEL_READY = "duel:ready"

	// SERVER_ERROR - стандартная ошибка обработки сообщения клиента
	SERVER_ERROR = "server:error"

	// BUFFER_WARNING предупреждает медленного клиента о переполнении буфера
	BUFFER_WARNING = "server:buffer_warning"
)

// Сообщения клиента
const (
	// LOBBY_HEARTBEAT продлевает присутствие в лобби без HTTP запроса
	LOBBY_HEARTBEAT = "lobby:heartbeat"

	// SUBSCRIBE / UNSUBSCRIBE управляют подписками на широковещательные события
	SUBSCRIBE   = "subscribe"
	UNSUBSCRIBE = "unsubscribe"
)

// DefaultSubscriptions - события, на которые клиент подписан сразу после подключения
var DefaultSubscriptions = []string{LEADERBOARD_TICK}
