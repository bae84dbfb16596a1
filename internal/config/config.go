package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Хранилища присутствия в лобби
const (
	LobbyStorePostgres = "postgres"
	LobbyStoreRedis    = "redis"
)

// Config хранит все настройки приложения
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Leaderboard LeaderboardConfig
	Lobby       LobbyConfig
	WebSocket   WebSocketConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent | error | warn | info
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"` // применять миграции при старте api
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Для 'single' используется первый адрес.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Адрес для режима 'single', если Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"` // мс
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"` // мс
}

// AuthConfig содержит настройки проверки токенов внешнего провайдера идентификации
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"` // пустая строка = не проверять
}

// LeaderboardConfig содержит настройки опроса лидерборда и пороги классификатора
type LeaderboardConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FireThreshold    int64         `mapstructure:"fire_threshold"`
	HotWindow        time.Duration `mapstructure:"hot_window"`
	RocketMinDelta   int           `mapstructure:"rocket_min_delta"`
	DuelGapThreshold int64         `mapstructure:"duel_gap_threshold"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// LobbyConfig содержит настройки лобби дуэлей
type LobbyConfig struct {
	Store          string        `mapstructure:"store"` // postgres | redis
	LivenessWindow time.Duration `mapstructure:"liveness_window"`
	Limit          int           `mapstructure:"limit"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval"` // 0 = очистка отключена
	ReapAfter      time.Duration `mapstructure:"reap_after"`
	RateLimit      int           `mapstructure:"rate_limit"` // запросов на запись в минуту на студента
}

// WebSocketConfig содержит настройки WebSocket-подсистемы
type WebSocketConfig struct {
	ClientSendBuffer int `mapstructure:"client_send_buffer"`
	BroadcastBuffer  int `mapstructure:"broadcast_buffer"`
	Cluster          ClusterConfig
}

// ClusterConfig содержит настройки кластеризации
type ClusterConfig struct {
	Enabled          bool
	InstanceID       string `mapstructure:"instance_id"`
	BroadcastChannel string `mapstructure:"broadcast_channel"`
	DirectChannel    string `mapstructure:"direct_channel"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// PostgresURL формирует URL подключения (для golang-migrate и lib/pq)
func (d *DatabaseConfig) PostgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readtimeout", 10)
	vip.SetDefault("server.writetimeout", 10)
	vip.SetDefault("server.allowed_origins", []string{"*"})

	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.max_open_conns", 25)
	vip.SetDefault("database.max_idle_conns", 10)
	vip.SetDefault("database.conn_max_lifetime", time.Hour)
	vip.SetDefault("database.log_level", "warn")
	vip.SetDefault("database.migrations_path", "migrations")
	vip.SetDefault("database.auto_migrate", true)

	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("redis.addr", "localhost:6379")

	vip.SetDefault("leaderboard.poll_interval", 10*time.Second)
	vip.SetDefault("leaderboard.fetch_timeout", 5*time.Second)
	vip.SetDefault("leaderboard.fire_threshold", 100)
	vip.SetDefault("leaderboard.hot_window", 5*time.Minute)
	vip.SetDefault("leaderboard.rocket_min_delta", 3)
	vip.SetDefault("leaderboard.duel_gap_threshold", 50)
	vip.SetDefault("leaderboard.cache_ttl", 5*time.Minute)

	vip.SetDefault("lobby.store", LobbyStorePostgres)
	vip.SetDefault("lobby.liveness_window", 5*time.Minute)
	vip.SetDefault("lobby.limit", 50)
	vip.SetDefault("lobby.reaper_interval", time.Duration(0))
	vip.SetDefault("lobby.reap_after", time.Hour)
	vip.SetDefault("lobby.rate_limit", 30)

	vip.SetDefault("websocket.client_send_buffer", 128)
	vip.SetDefault("websocket.broadcast_buffer", 256)
	vip.SetDefault("websocket.cluster.broadcast_channel", "arena:ws:broadcast")
	vip.SetDefault("websocket.cluster.direct_channel", "arena:ws:direct")
}

// Load загружает конфигурацию из файла
func Load(configPath string) (*Config, error) {
	vip := viper.New() // отдельный экземпляр, без глобального состояния

	// 1. Значения по умолчанию
	setDefaults(vip)

	// 2. Привязываем переменные окружения ЯВНО
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")
	vip.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	vip.BindEnv("database.migrations_path", "DATABASE_MIGRATIONS_PATH")
	vip.BindEnv("database.auto_migrate", "DATABASE_AUTO_MIGRATE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	vip.BindEnv("auth.issuer", "AUTH_ISSUER")

	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.allowed_origins", "SERVER_ALLOWED_ORIGINS")

	vip.BindEnv("leaderboard.poll_interval", "LEADERBOARD_POLL_INTERVAL")
	vip.BindEnv("leaderboard.fire_threshold", "LEADERBOARD_FIRE_THRESHOLD")

	vip.BindEnv("lobby.store", "LOBBY_STORE")
	vip.BindEnv("lobby.liveness_window", "LOBBY_LIVENESS_WINDOW")
	vip.BindEnv("lobby.reaper_interval", "LOBBY_REAPER_INTERVAL")

	vip.BindEnv("websocket.cluster.enabled", "WEBSOCKET_CLUSTER_ENABLED")
	vip.BindEnv("websocket.cluster.instance_id", "WEBSOCKET_CLUSTER_INSTANCE_ID")

	// 3. Файл конфигурации необязателен: все ключи можно задать через окружение
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	// 4. Анмаршалим (viper объединит файл, env и умолчания)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s (mode: %s)", cfg.Redis.Addr, cfg.Redis.Mode)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("Leaderboard Poll Interval: %v", cfg.Leaderboard.PollInterval)
		log.Printf("Lobby Store: %s, Liveness Window: %v", cfg.Lobby.Store, cfg.Lobby.LivenessWindow)
		log.Printf("Websocket Cluster Enabled: %t", cfg.WebSocket.Cluster.Enabled)
		log.Printf("-----------------------------------------")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры и допустимые значения
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt secret is required in config (check AUTH_JWT_SECRET env var)")
	}
	if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if c.Lobby.Store != LobbyStorePostgres && c.Lobby.Store != LobbyStoreRedis {
		return fmt.Errorf("unsupported lobby store %q (expected %q or %q)", c.Lobby.Store, LobbyStorePostgres, LobbyStoreRedis)
	}
	if c.Leaderboard.PollInterval <= 0 {
		return fmt.Errorf("leaderboard poll interval must be positive, got %v", c.Leaderboard.PollInterval)
	}
	if c.Lobby.LivenessWindow <= 0 {
		return fmt.Errorf("lobby liveness window must be positive, got %v", c.Lobby.LivenessWindow)
	}
	if c.Lobby.Limit <= 0 {
		return fmt.Errorf("lobby limit must be positive, got %d", c.Lobby.Limit)
	}
	return nil
}
