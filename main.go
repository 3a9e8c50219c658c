package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"collab-service/internal/config"
	"collab-service/internal/db"
	"collab-service/internal/feed"
	"collab-service/internal/handlers"
	"collab-service/internal/identity"
	"collab-service/internal/middleware"
	"collab-service/internal/observability"
	"collab-service/internal/rabbitmq"
	"collab-service/internal/repositories"
	"collab-service/internal/session"
	"collab-service/internal/storage"
	"collab-service/internal/telemetry"
	"collab-service/internal/ws"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()
	shutdownTracing, err := observability.SetupTracing(ctx, "collab-service", cfg.OTLP.Endpoint)
	if err != nil {
		sugar.Fatalw("failed to set up tracing", "error", err)
	}
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DB.DSN)
	if err != nil {
		sugar.Fatalw("failed to connect to db", "error", err)
	}
	defer database.Close()

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.AuditExchange, sugar)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.collab", "collab-service", cfg.App.Env, sugar)

	messageFeed := newFeed(cfg, sugar)
	if closer, ok := messageFeed.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	profileRepo := repositories.NewProfileRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	resourceRepo := repositories.NewResourceRepo(database)

	tokens := identity.NewTokenManager(cfg.JWT.Secret, cfg.TokenExpiry, nil)
	cache := session.NewCache(cfg.CacheTTL, nil)
	loader := session.NewLoader(groupRepo, messageRepo, cache, cfg.Sync.HistoryLimit)
	deleter := session.NewDeleter(messageRepo, messageFeed, sugar)

	hub := ws.NewHub(sugar)
	registry := ws.NewManagerRegistry(func(viewerID string) *session.Manager {
		return session.NewManager(session.ManagerConfig{
			ViewerID: viewerID,
			Cache:    cache,
			Loader:   loader,
			Feed:     messageFeed,
			Profiles: profileRepo,
			Messages: messageRepo,
			Logger:   sugar,
		})
	})
	gateway := ws.NewGateway(hub, tokens, groupRepo, registry, audit, sugar)

	authHandler := handlers.NewAuthHandler(profileRepo, tokens, audit)
	groupHandler := handlers.NewGroupHandler(groupRepo, audit)
	messageHandler := handlers.NewMessageHandler(groupRepo, messageRepo, loader, deleter, messageFeed, audit, sugar)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("collab-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/auth/signup", authHandler.Signup)
	router.POST("/auth/login", authHandler.Login)

	authorized := router.Group("/")
	authorized.Use(middleware.AuthMiddleware(tokens))
	authorized.GET("/auth/me", authHandler.Me)
	authorized.PATCH("/auth/me", authHandler.UpdateMe)

	authorized.POST("/groups", groupHandler.CreateGroup)
	authorized.GET("/groups", groupHandler.ListGroups)
	authorized.POST("/groups/join", groupHandler.JoinGroup)
	authorized.GET("/groups/:group_id", groupHandler.GetGroup)
	authorized.DELETE("/groups/:group_id", groupHandler.DeleteGroup)
	authorized.DELETE("/groups/:group_id/members/me", groupHandler.LeaveGroup)
	authorized.PATCH("/groups/:group_id/members/:user_id", groupHandler.SetMemberRole)
	authorized.DELETE("/groups/:group_id/members/:user_id", groupHandler.RemoveMember)

	authorized.GET("/groups/:group_id/messages", messageHandler.ListMessages)
	authorized.POST("/groups/:group_id/messages", messageHandler.PostMessage)
	authorized.POST("/groups/:group_id/messages/:message_id/hide", messageHandler.HideMessage)
	authorized.DELETE("/groups/:group_id/messages/:message_id", messageHandler.DeleteMessageForAll)

	if store := newObjectStore(ctx, cfg, sugar); store != nil {
		resourceHandler := handlers.NewResourceHandler(groupRepo, resourceRepo, store, audit, sugar)
		authorized.GET("/groups/:group_id/resources", resourceHandler.ListResources)
		authorized.POST("/groups/:group_id/resources", resourceHandler.UploadResource)
		authorized.DELETE("/groups/:group_id/resources/:resource_id", resourceHandler.DeleteResource)
	} else {
		sugar.Infow("resource endpoints disabled", "reason", "no s3 bucket configured")
	}

	router.GET("/ws/groups/:group_id", gateway.Handle)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		sugar.Infow("server started", "port", cfg.App.Port, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("shutdown error", "error", err)
	}
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	var zcfg zap.Config
	if cfg.App.Env == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Log.Level != "" {
		if lvl, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
			zcfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// newFeed prefers the broker-backed feed so events cross instances; without a
// broker the in-process bus still serves a single instance.
func newFeed(cfg *config.Config, logger *zap.SugaredLogger) feed.Feed {
	if cfg.AMQP.URL == "" {
		logger.Infow("message feed using in-process bus", "reason", "empty amqp url")
		return feed.NewBus()
	}
	amqpFeed, err := feed.NewAMQPFeed(cfg.AMQP.URL, cfg.AMQP.FeedExchange, logger)
	if err != nil {
		logger.Warnw("amqp feed unavailable, using in-process bus", "error", err)
		return feed.NewBus()
	}
	return amqpFeed
}

func newObjectStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) storage.ObjectStore {
	if cfg.AWS.Bucket == "" {
		return nil
	}
	s3Store, err := storage.NewS3Store(ctx, cfg.AWS.Region, cfg.AWS.Bucket, cfg.PresignTTL)
	if err != nil {
		logger.Warnw("object store unavailable", "error", err)
		return nil
	}
	if cfg.Redis.Addr == "" {
		return s3Store
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return storage.NewSignedURLCache(s3Store, client, cfg.PresignTTL)
}
