package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"marketplace-realtime/internal/auth"
	"marketplace-realtime/internal/cache"
	"marketplace-realtime/internal/config"
	"marketplace-realtime/internal/db"
	"marketplace-realtime/internal/handlers"
	"marketplace-realtime/internal/middleware"
	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/rabbitmq"
	"marketplace-realtime/internal/realtime"
	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/telemetry"
	"marketplace-realtime/internal/ws"
)

const serviceName = "marketplace-realtime"

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}

	opts := realtime.Options{
		OfflineTTL:         cfg.OfflineTTL,
		ProbeBackoff:       cfg.ProbeBackoff,
		TypingTTL:          cfg.TypingTTL,
		SessionIdleTimeout: cfg.SessionIdleTimeout,
		CleanupInterval:    cfg.CleanupInterval,
	}

	var mongoClient *mongo.Client
	switch cfg.StoreBackend {
	case "memory":
		store := repositories.NewMemoryStore()
		opts.Chats, opts.Messages, opts.Offline = store, store, store
		opts.Presence = store
		log.Printf("store backend=memory")
	default:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		if err := db.EnsureIndexes(ctx, database); err != nil {
			log.Fatalf("failed to ensure indexes: %v", err)
		}
		mongoClient = client
		opts.Chats = repositories.NewChatRepo(database)
		opts.Messages = repositories.NewMessageRepo(database)
		opts.Offline = repositories.NewOfflineRepo(database)
		log.Printf("store backend=mongo database=%s", cfg.MongoDatabase)
	}

	var presenceDB *sqlx.DB
	if cfg.PresenceDSN != "" {
		presenceDB, err = db.ConnectPostgres(cfg.PresenceDSN)
		if err != nil {
			log.Fatalf("failed to connect to presence db: %v", err)
		}
		opts.Presence = repositories.NewPresenceRepo(presenceDB)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("idempotency guard disabled: %v", err)
		} else {
			opts.Guard = cache.NewIdempotencyGuard(redisClient, cache.ClientMessageTTL)
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	log.Printf("event publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Environment)

	coord := realtime.NewCoordinator(opts)
	tokens := auth.NewTokenService(cfg.JWTSecret, 24*time.Hour)

	wsLimiter := middleware.NewRateLimiter(cfg.WSRateLimit, cfg.WSRateBurst)
	httpLimiter := middleware.NewRateLimiter(cfg.WSRateLimit, cfg.WSRateBurst)

	chatHandler := handlers.NewChatHandler(coord, audit)
	presenceHandler := handlers.NewPresenceHandler(coord, audit)
	wsHandler := ws.NewWebSocketHandler(coord, tokens, wsLimiter, cfg.AllowedOrigins)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/ws", wsHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(tokens)
	limited := httpLimiter.Middleware()

	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, limited, chatHandler.PostChatMessage)
	router.POST("/chats/:chat_id/read", authMiddleware, chatHandler.MarkRead)
	router.GET("/chats/:chat_id/unread", authMiddleware, chatHandler.GetUnreadCount)
	router.DELETE("/messages/:message_id", authMiddleware, chatHandler.DeleteMessage)
	router.POST("/messages/:message_id/reactions", authMiddleware, limited, chatHandler.AddReaction)
	router.DELETE("/messages/:message_id/reactions/:emoji", authMiddleware, chatHandler.RemoveReaction)

	router.POST("/notifications/:user_id", authMiddleware, limited, presenceHandler.Notify)
	router.GET("/users/:user_id/presence", authMiddleware, presenceHandler.GetPresence)

	handlers.RegisterDebugRoutes(router, coord, audit, cfg.DebugRoutes)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "X-Device-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go coord.RunJanitor(ctx)
	go wsLimiter.Run(ctx)
	go httpLimiter.Run(ctx)

	go func() {
		log.Printf("%s listening on :%s", serviceName, cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown server gracefully: %v", err)
	}
	coord.Wait()

	if err := publisher.Close(); err != nil {
		log.Printf("close publisher: %v", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if presenceDB != nil {
		_ = presenceDB.Close()
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			log.Printf("disconnect mongo: %v", err)
		}
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}
}
