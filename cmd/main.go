package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stolenhq/notify/internal/channel"
	"github.com/stolenhq/notify/internal/config"
	"github.com/stolenhq/notify/internal/dispatch"
	"github.com/stolenhq/notify/internal/handlers"
	"github.com/stolenhq/notify/internal/middleware"
	"github.com/stolenhq/notify/internal/prefs"
	"github.com/stolenhq/notify/internal/queue"
	"github.com/stolenhq/notify/internal/realtime"
	"github.com/stolenhq/notify/pkg/circuitbreaker"
	"github.com/stolenhq/notify/pkg/logger"
	redisclient "github.com/stolenhq/notify/pkg/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	zlog, err := logger.New()
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer zlog.Sync()

	rdb, err := redisclient.InitRedis(cfg.Redis)
	if err != nil {
		zlog.Fatal("redis init failed", zap.Error(err))
	}

	rabbit, err := queue.NewRabbitMqClient(cfg.RabbitMQ)
	if err != nil {
		zlog.Fatal("rabbitmq init failed", zap.Error(err))
	}
	defer rabbit.CloseConnection()
	if err := rabbit.SetUpExchangeAndQueues(); err != nil {
		zlog.Fatal("rabbitmq topology setup failed", zap.Error(err))
	}

	hub := realtime.NewHub(zlog)

	breaker := circuitbreaker.Settings{
		MinRequests:  cfg.Dispatch.BreakerMinRequests,
		FailureRatio: cfg.Dispatch.BreakerFailureRatio,
		Cooldown:     cfg.Dispatch.BreakerCooldown,
	}
	adapters := []channel.Adapter{
		channel.NewEmailAdapter(rabbit, cfg.RabbitMQ.EmailQueue, breaker),
		channel.NewSMSAdapter(rabbit, cfg.RabbitMQ.SMSQueue, breaker),
		channel.NewPushAdapter(rabbit, cfg.RabbitMQ.PushQueue, breaker),
		channel.NewInAppAdapter(hub),
	}

	store := prefs.NewRedisStore(rdb)
	svc := dispatch.NewService(store, adapters, zlog,
		dispatch.WithRetryQueue(rabbit, cfg.RabbitMQ.RetryQueue),
		dispatch.WithIdempotency(dispatch.NewRedisIdempotency(rdb, cfg.Dispatch.IdempotencyTTL)),
		dispatch.WithChannelTimeout(cfg.Dispatch.ChannelTimeout),
		dispatch.WithBatchWorkers(cfg.Dispatch.BatchWorkers),
	)

	notifHandler := handlers.NewNotificationHandler(svc, zlog)
	realtimeHandler := handlers.NewRealtimeHandler(hub, zlog)
	healthHandler := handlers.NewHealthHandler(rabbit, rdb)

	r := gin.Default()
	r.Use(middleware.CorrelationID())

	r.GET("/health", healthHandler.HealthCheck)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	{
		api.GET("/ws", realtimeHandler.Subscribe)
		api.POST("/notifications", notifHandler.Send)
		api.POST("/notifications/batch", notifHandler.SendBatch)
		api.GET("/users/:user_id/preferences", notifHandler.GetPreferences)
		api.PUT("/users/:user_id/preferences", notifHandler.UpdatePreferences)
	}

	zlog.Info("notify service listening", zap.String("port", cfg.Server.Port))
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}
