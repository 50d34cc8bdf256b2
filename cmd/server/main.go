// ChatLink backend server: chat, presence, call signaling, and media
// uploads behind a single HTTP/WebSocket listener.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redisclient "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatlink-backend/internal/call"
	"chatlink-backend/internal/config"
	"chatlink-backend/internal/delivery"
	authhandler "chatlink-backend/internal/handler/http/auth"
	chathandler "chatlink-backend/internal/handler/http/chat"
	grouphandler "chatlink-backend/internal/handler/http/group"
	pushhandler "chatlink-backend/internal/handler/http/push"
	storagehandler "chatlink-backend/internal/handler/http/storage"
	userhandler "chatlink-backend/internal/handler/http/user"
	"chatlink-backend/internal/handler/ws"
	"chatlink-backend/internal/middleware"
	"chatlink-backend/internal/presence"
	redisrepo "chatlink-backend/internal/repository/redis"
	authservice "chatlink-backend/internal/service/auth"
	"chatlink-backend/internal/service/notification"
	storageservice "chatlink-backend/internal/service/storage"
	"chatlink-backend/internal/store"
	pkgcontext "chatlink-backend/pkg/context"
	"chatlink-backend/pkg/jwt"
	"chatlink-backend/pkg/lockout"
	"chatlink-backend/pkg/logger"
	"chatlink-backend/pkg/push"
)

func main() {
	// 1. Load configuration
	cfg := config.Load()

	logLevel := "debug"
	logFormat := "text"
	if cfg.IsProduction() {
		logLevel = "info"
		logFormat = "json"
	}
	if err := logger.Init(&logger.Config{Level: logLevel, Format: logFormat}); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.IsProduction() && len(cfg.JWTSecret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters in production")
	}

	// 2. Open the flat-file store
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to open data store", zap.Error(err))
	}

	// 3. Optional Redis: presence mirror and login lockout
	var mirror presence.Mirror
	var throttle authservice.LoginThrottle
	if cfg.RedisAddr != "" {
		rdb := redisclient.NewClient(&redisclient.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := pkgcontext.WithShortTimeout(context.Background())
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		cancel()
		defer rdb.Close()
		mirror = redisrepo.NewPresenceRepository(rdb)
		throttle = lockout.NewManager(rdb)
		logger.Info("Redis enabled", zap.String("addr", cfg.RedisAddr))
	}

	// 4. Push providers
	providers := make(map[string]push.Provider)
	if cfg.FCMCredentialsFile != "" {
		fcm, err := push.NewFCMProvider(cfg.FCMCredentialsFile)
		if err != nil {
			logger.Fatal("Failed to initialize FCM provider", zap.Error(err))
		}
		providers[push.PlatformFCM] = fcm
	}
	if cfg.APNsKeyFile != "" {
		apns, err := push.NewAPNsProvider(&push.APNsConfig{
			KeyFile:    cfg.APNsKeyFile,
			KeyID:      cfg.APNsKeyID,
			TeamID:     cfg.APNsTeamID,
			Topic:      cfg.APNsTopic,
			Production: cfg.APNsProduction,
		})
		if err != nil {
			logger.Fatal("Failed to initialize APNs provider", zap.Error(err))
		}
		providers[push.PlatformAPNs] = apns
	}
	notifier := notification.NewService(st, providers)

	// 5. Real-time coordinators
	registry := presence.NewRegistry(st, mirror)
	calls := call.NewCoordinator(registry, st, cfg.RingTimeout)
	deliv := delivery.NewCoordinator(registry, st, st, st, notifier)
	registry.AddListener(calls)
	registry.AddListener(deliv)

	// 6. Upload backend
	var backend storageservice.Backend
	if cfg.MinIOEndpoint != "" {
		backend, err = storageservice.NewMinioBackend(
			cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey,
			cfg.MinIOBucket, cfg.MinIOUseSSL)
		if err != nil {
			logger.Fatal("Failed to initialize MinIO backend", zap.Error(err))
		}
	} else {
		uploadDir := filepath.Join(cfg.DataDir, "uploads")
		backend, err = storageservice.NewDiskBackend(uploadDir)
		if err != nil {
			logger.Fatal("Failed to initialize upload directory", zap.Error(err))
		}
	}

	// 7. Services
	jwtManager := jwt.NewManager(cfg.JWTSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
	authSvc := authservice.NewService(st, jwtManager, throttle)
	storageSvc := storageservice.NewService(backend, cfg.MaxVoiceTime)

	// 8. Handlers
	authHdlr := authhandler.NewHandler(authSvc)
	userHdlr := userhandler.NewHandler(st, registry)
	groupHdlr := grouphandler.NewHandler(st)
	chatHdlr := chathandler.NewHandler(st, deliv)
	storageHdlr := storagehandler.NewHandler(storageSvc)
	pushHdlr := pushhandler.NewHandler(st)
	wsHdlr := ws.NewHandler(registry, calls, deliv)

	// 9. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if cfg.IsProduction() {
		_ = router.SetTrustedProxies([]string{"10.0.0.0/8", "172.16.0.0/12"})
	} else {
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(middleware.Recovery())
	router.Use(middleware.HealthCheck("chatlink"))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.Prometheus())

	router.GET("/metrics", middleware.MetricsHandler())
	if cfg.MinIOEndpoint == "" {
		router.Static("/uploads", filepath.Join(cfg.DataDir, "uploads"))
	}

	v1 := router.Group("/v1")

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", authHdlr.Register)
		authRoutes.POST("/login", authHdlr.Login)
		authRoutes.POST("/refresh", authHdlr.Refresh)
	}

	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(jwtManager))
	{
		authed.GET("/users", userHdlr.List)
		authed.GET("/users/online", userHdlr.Online)
		authed.PUT("/users/me", userHdlr.Update)
		authed.GET("/users/:id", userHdlr.Get)

		authed.POST("/groups", groupHdlr.Create)
		authed.GET("/groups", groupHdlr.List)
		authed.GET("/groups/:id", groupHdlr.Get)
		authed.PUT("/groups/:id", groupHdlr.Update)
		authed.DELETE("/groups/:id", groupHdlr.Delete)
		authed.POST("/groups/:id/members", groupHdlr.AddMember)
		authed.DELETE("/groups/:id/members/:userID", groupHdlr.RemoveMember)

		authed.GET("/conversations/:key/messages", chatHdlr.History)
		authed.POST("/conversations/:key/read", chatHdlr.MarkRead)
		authed.GET("/unread", chatHdlr.Unread)
		authed.GET("/calls", chatHdlr.Calls)

		authed.POST("/uploads", storageHdlr.Upload)

		authed.POST("/push/tokens", pushHdlr.Register)
		authed.DELETE("/push/tokens/:token", pushHdlr.Unregister)

		authed.GET("/ws", wsHdlr.ServeWS)
	}

	// 10. Start server
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 11. Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := st.Close(); err != nil {
		logger.Error("Failed to flush data store", zap.Error(err))
	}
	logger.Info("Server exited")
}
