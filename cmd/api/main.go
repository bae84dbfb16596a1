package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/yourusername/arena-api/internal/config"
	"github.com/yourusername/arena-api/internal/domain/repository"
	"github.com/yourusername/arena-api/internal/handler"
	"github.com/yourusername/arena-api/internal/middleware"
	pgRepo "github.com/yourusername/arena-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/arena-api/internal/repository/redis"
	"github.com/yourusername/arena-api/internal/service"
	"github.com/yourusername/arena-api/internal/service/leaderboard"
	ws "github.com/yourusername/arena-api/internal/websocket"
	"github.com/yourusername/arena-api/pkg/auth"
	"github.com/yourusername/arena-api/pkg/database"
	"gorm.io/gorm"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Контекст жизненного цикла фоновых горутин (опрос, очистка лобби)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if cfg.Database.AutoMigrate {
		if err := database.MigrateDB(db, cfg.Database.MigrationsPath); err != nil {
			log.Printf("Failed to migrate database: %v", err)
			os.Exit(1)
		}
	}

	redisClient, err := database.NewUniversalRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// --- Репозитории ---
	leaderboardRepo := pgRepo.NewLeaderboardRepo(db)
	duelRepo := pgRepo.NewDuelRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	presenceRepo, err := newPresenceRepo(cfg.Lobby.Store, db, redisClient)
	if err != nil {
		log.Printf("Failed to initialize presence store: %v", err)
		os.Exit(1)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// --- WebSocket ---
	var pubSubProvider ws.PubSubProvider = &ws.NoOpPubSub{}
	if cfg.WebSocket.Cluster.Enabled {
		redisProvider, errProv := ws.NewRedisPubSub(redisClient)
		if errProv != nil {
			log.Printf("Ошибка при создании Redis PubSub провайдера: %v. Кластеризация WS будет неактивна.", errProv)
		} else {
			pubSubProvider = redisProvider
		}
	}

	wsHub := ws.NewHub(cfg.WebSocket, pubSubProvider)
	go wsHub.Run()
	wsManager := ws.NewManager(wsHub)

	// --- Сервисы ---
	lobbyService := service.NewLobbyService(presenceRepo, service.LobbyConfig{
		LivenessWindow: cfg.Lobby.LivenessWindow,
		Limit:          cfg.Lobby.Limit,
	})
	duelService := service.NewDuelService(duelRepo, service.DuelNotifiers{wsManager, lobbyService})

	pollerConfig := leaderboard.DefaultConfig()
	pollerConfig.PollInterval = cfg.Leaderboard.PollInterval
	pollerConfig.FetchTimeout = cfg.Leaderboard.FetchTimeout
	pollerConfig.FireThreshold = cfg.Leaderboard.FireThreshold
	pollerConfig.HotWindow = cfg.Leaderboard.HotWindow
	pollerConfig.RocketMinDelta = cfg.Leaderboard.RocketMinDelta
	pollerConfig.DuelGapThreshold = cfg.Leaderboard.DuelGapThreshold
	pollerConfig.CacheTTL = cfg.Leaderboard.CacheTTL

	poller := leaderboard.NewPoller(pollerConfig, &leaderboard.Dependencies{
		Source:    leaderboardRepo,
		Publisher: wsManager,
		CacheRepo: cacheRepo,
	})

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		poller.Run(ctx)
	}()

	if cfg.Lobby.ReaperInterval > 0 {
		background.Add(1)
		go func() {
			defer background.Done()
			lobbyService.RunReaper(ctx, cfg.Lobby.ReaperInterval, cfg.Lobby.ReapAfter)
		}()
	}

	// --- Обработчики и middleware ---
	lobbyHandler := handler.NewLobbyHandler(lobbyService)
	duelHandler := handler.NewDuelHandler(duelService)
	leaderboardHandler := handler.NewLeaderboardHandler(poller)
	healthHandler := handler.NewHealthHandler(wsHub, poller)
	wsHandler := handler.NewWSHandler(wsHub, wsManager, lobbyService, jwtService, cfg.Server.AllowedOrigins)

	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(redisClient)
	lobbyLimit := rateLimiter.LimitByStudent(middleware.LobbyRateLimitConfig(cfg.Lobby.RateLimit))

	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	router.GET("/health", healthHandler.Health)

	api := router.Group("/api")
	{
		// Лидерборд публичный
		api.GET("/leaderboard", leaderboardHandler.GetLeaderboard)
		api.GET("/leaderboard/changes", leaderboardHandler.GetChanges)
		api.GET("/ws/metrics", healthHandler.Metrics)

		lobby := api.Group("/lobby")
		lobby.Use(authMiddleware.RequireAuth())
		{
			lobby.GET("", lobbyHandler.ListLobby)
			lobby.POST("/join", lobbyLimit, lobbyHandler.JoinLobby)
			lobby.POST("/heartbeat", lobbyLimit, lobbyHandler.Heartbeat)
		}

		duels := api.Group("/duels/:id")
		duels.Use(authMiddleware.RequireAuth(), middleware.ExtractUUIDParam("id", "duelID"))
		{
			duels.GET("/ready", duelHandler.GetReady)
			duels.PUT("/ready", lobbyLimit, duelHandler.SetReady)
		}
	}

	router.GET("/ws", rateLimiter.LimitByIP(middleware.WebSocketRateLimitConfig()), wsHandler.HandleConnection)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Останавливаем опрос и очистку, дожидаясь текущего тика
	cancel()
	background.Wait()

	wsHub.Close()
	if err := pubSubProvider.Close(); err != nil {
		log.Printf("Error closing PubSub provider: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Println("Server exited properly")
}

// newPresenceRepo выбирает хранилище присутствия по конфигурации
func newPresenceRepo(store string, db *gorm.DB, redisClient redis.UniversalClient) (repository.PresenceRepository, error) {
	if store == config.LobbyStoreRedis {
		repo, err := redisRepo.NewPresenceRepo(redisClient)
		if err != nil {
			return nil, err
		}
		log.Println("Lobby presence: Redis")
		return repo, nil
	}
	log.Println("Lobby presence: PostgreSQL")
	return pgRepo.NewPresenceRepo(db), nil
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			// cors запрещает AllowCredentials вместе с AllowAllOrigins
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = allowedOrigins
	return cfg
}
