package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zone-detection-console/internal/api/handlers"
	"zone-detection-console/internal/api/middleware"
	"zone-detection-console/internal/api/websocket"
	"zone-detection-console/internal/config"
	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/metrics"
	"zone-detection-console/internal/repository"
	"zone-detection-console/internal/service/cache"
	"zone-detection-console/internal/service/connection"
	"zone-detection-console/internal/service/health"
	"zone-detection-console/internal/service/telemetry"
	"zone-detection-console/internal/session"
	"zone-detection-console/pkg/console_client"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// ASCII баннер
	printBanner()

	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		color.Red("❌ Ошибка конфигурации: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		FilePath:    cfg.Log.FilePath,
	}); err != nil {
		color.Red("❌ Ошибка инициализации логгера: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log()
	log.Info("✅ Конфигурация загружена", zap.String("backend", cfg.Backend.BaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// База данных хранит только резервные учетные данные, работаем и без нее
	var repo repository.RepositoryInterface
	db, err := initDatabase(cfg.Database.GetDSN())
	if err != nil {
		log.Warn("⚠️  БД недоступна (учетные данные не сохраняются)", zap.Error(err))
	} else {
		defer db.Close()
		if err := repository.MigrateUp(cfg.Database.GetDSN()); err != nil {
			log.Fatal("❌ Ошибка миграций", zap.Error(err))
		}
		repo = repository.NewRepository(db)
		log.Info("✅ База данных подключена")
	}

	// Инициализируем Redis кэш
	var deviceCache connection.DeviceCache
	cacheService, err := cache.NewService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	if err != nil {
		log.Warn("⚠️  Redis недоступен (работаем без кэша)", zap.Error(err))
	} else {
		defer cacheService.Close()
		deviceCache = cacheService
		log.Info("✅ Redis кэш подключен")
	}

	// Клиент бэкенда консоли
	client := console_client.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	// Инициализируем WebSocket manager
	wsManager := websocket.NewManager()
	go wsManager.Run(ctx)
	log.Info("✅ WebSocket manager запущен")

	// Телеметрия, сессия и сервисы
	aggregator := telemetry.NewAggregator(
		telemetry.WithWindow(cfg.Telemetry.Window),
		telemetry.WithHistory(cfg.Telemetry.History),
		telemetry.WithRecentSize(cfg.Telemetry.RecentSize),
		telemetry.WithOnTick(wsManager.BroadcastTelemetry),
	)
	go aggregator.Run(ctx)

	connService := connection.NewService(client, repo, deviceCache)
	sess := session.New(client, connService, session.ClientStream(client), aggregator,
		session.WithSettleDelay(cfg.Backend.SettleDelay))
	unsubscribe := sess.Subscribe(wsManager.BroadcastSessionEvent)
	defer unsubscribe()

	location, _ := cfg.Telemetry.Location()
	healthService := health.NewService(client, location)

	handler := handlers.NewHandler(sess, connService, healthService, client, handlers.WithLifetime(ctx))

	// Создаем роутер
	router := setupRouter(handler, wsManager, sess, cfg)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("🎉 Сервер успешно запущен!",
			zap.String("api", fmt.Sprintf("http://localhost:%s/api", cfg.Server.Port)),
			zap.String("websocket", fmt.Sprintf("ws://localhost:%s/ws", cfg.Server.Port)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ Ошибка запуска сервера", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Остановка сервера...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("❌ Ошибка остановки сервера", zap.Error(err))
	}

	// Закрываем поток кадров бэкенда
	sess.Reset()
	log.Info("👋 Сервер остановлен")
}

// initDatabase инициализирует подключение к базе данных
func initDatabase(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Настраиваем connection pool
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	return db, nil
}

// setupRouter настраивает роутер с middleware и endpoints
func setupRouter(handler *handlers.Handler, wsManager *websocket.Manager, sess *session.Session, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()

	// Middleware
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())

	// WebSocket endpoint: новый зритель сразу получает состояние сессии
	wsHandler := websocket.NewHandler(wsManager, func(c *websocket.Client) {
		c.Send <- websocket.Message{Type: websocket.MessageTypeSessionState, Payload: sess.Snapshot()}
	})
	router.GET("/ws", wsHandler.HandleWebSocket)

	// API группа
	api := router.Group("/api")
	{
		// Подключение к консоли
		api.GET("/connection", handler.HandleGetConnection)
		api.PUT("/connection", handler.HandleLogin)
		api.PUT("/client", handler.HandleSelectConsoleType)

		// Устройства
		api.GET("/devices", handler.HandleGetDevices)
		api.GET("/devices/:id", handler.HandleGetDevice)
		api.GET("/devices/:id/object_count", handler.HandleLastObjectCount)

		// Сессия оператора
		api.GET("/session", handler.HandleGetSession)
		api.POST("/session/reset", handler.HandleResetSession)
		api.PUT("/session/device", handler.HandleSelectDevice)
		api.PUT("/session/model", handler.HandleSelectModel)
		api.POST("/session/apply", handler.HandleApply)
		api.POST("/session/configure", handler.HandleConfigure)
		api.POST("/session/extra", handler.HandleToggleExtra)

		// Параметры
		api.PATCH("/session/parameters", handler.HandleUpdateParameters)
		api.PUT("/session/parameters/:field/text", handler.HandleCommitParameterText)

		// Зона
		api.POST("/session/zone/edit", handler.HandleEditZone)
		api.PUT("/session/zone", handler.HandleSetZone)
		api.POST("/session/zone/accept", handler.HandleAcceptZone)

		// Редактор конфигурации
		api.GET("/session/editor", handler.HandleGetEditor)
		api.PUT("/session/editor", handler.HandleApplyEdit)

		// Инференс
		api.POST("/session/inference/start", handler.HandleStartInference)
		api.POST("/session/inference/stop", handler.HandleStopInference)

		// Телеметрия
		api.GET("/telemetry", handler.HandleGetTelemetry)
		api.DELETE("/telemetry", handler.HandleResetTelemetry)

		// Состояние консоли
		api.GET("/health/telemetry_rates", handler.HandleTelemetryRates)
		api.GET("/health/data_rates", handler.HandleDataRates)
		api.GET("/health/database", handler.HandleDatabaseInfo)
		api.DELETE("/health/data/:id", handler.HandleDeleteDeviceData)
	}

	// Метрики Prometheus
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "zone-detection-console",
			"viewers": wsManager.ClientCount(),
		})
	})

	return router
}

// printBanner печатает баннер при старте
func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║   📷  ZONE DETECTION CONSOLE                          ║
║                                                       ║
║   Настройка зоны детекции и мониторинг устройств      ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝
`
	color.New(color.FgCyan, color.Bold).Println(banner)
	color.New(color.FgHiBlack).Println("🚀 Инициализация сервисов...")
}
