package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/session-auth-api/api/swagger"
	"github.com/noah-isme/session-auth-api/internal/handler"
	"github.com/noah-isme/session-auth-api/internal/middleware"
	"github.com/noah-isme/session-auth-api/internal/repository"
	"github.com/noah-isme/session-auth-api/internal/service"
	"github.com/noah-isme/session-auth-api/pkg/cache"
	"github.com/noah-isme/session-auth-api/pkg/config"
	"github.com/noah-isme/session-auth-api/pkg/database"
	"github.com/noah-isme/session-auth-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/session-auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/session-auth-api/pkg/middleware/requestid"
)

// @title Session Auth API
// @version 1.0.0
// @description Registration, login and refresh token lifecycle
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	deps := map[string]handler.Pinger{"postgres": db}
	var tokenStore service.RefreshTokenStore
	switch cfg.RefreshTokens.Store {
	case config.StoreRedis:
		rdb, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		tokenStore = repository.NewRedisRefreshTokenRepository(rdb, cfg.Redis.KeyPrefix, logr)
	default:
		tokenStore = repository.NewRefreshTokenRepository(db)
	}

	issuer, err := service.NewTokenIssuer(service.TokenConfig{
		Secret:          cfg.JWT.Secret,
		AccessTokenTTL:  cfg.JWT.Expiration,
		RefreshTokenTTL: cfg.JWT.RefreshExpiration,
		Issuer:          cfg.JWT.Issuer,
	})
	if err != nil {
		logr.Fatal("failed to init token issuer", zap.Error(err))
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	validate := validator.New()
	credentials := service.NewCredentialService(
		repository.NewUserRepository(db),
		service.NewPasswordHasher(cfg.Password.BcryptCost),
		validate,
		logr.Named("credentials"),
	)
	sessions := service.NewSessionService(credentials, issuer, tokenStore, metrics, logr.Named("sessions"))

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, deps)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metrics != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterAuthRoutes(r.Group(cfg.APIPrefix), handler.NewAuthHandler(sessions), middleware.JWT(sessions))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "refresh_store", cfg.RefreshTokens.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
