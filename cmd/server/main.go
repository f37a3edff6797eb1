package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"bookbase/docs"
	"bookbase/internal/auth"
	"bookbase/internal/cache"
	"bookbase/internal/config"
	"bookbase/internal/db"
	"bookbase/internal/handler"
	"bookbase/internal/jobs"
	"bookbase/internal/logger"
	"bookbase/internal/repository"
	"bookbase/internal/router"
	"bookbase/internal/service"
	"bookbase/internal/storage"
)

// @title Bookbase Library API
// @version 1.0
// @description Library management API for books, loans and users with JWT authentication.
// @host localhost:8080
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Connect(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBConnectRetries, cfg.DBRetryInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("Database init failed")
	}

	// Drop tables if RESET_DB environment variable is set
	if cfg.ResetDB {
		log.Warn().Msg("RESET_DB=true detected, dropping all tables")
		if err := db.Reset(gormDB); err != nil {
			log.Fatal().Err(err).Msg("Reset failed")
		}
	}

	if err := db.Migrate(gormDB); err != nil {
		log.Fatal().Err(err).Msg("Auto-migrate failed")
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	if cacheClient == nil {
		log.Warn().Msg("REDIS_ADDR not set; caching and logout revocation are disabled")
	} else if err := cacheClient.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable; continuing without cache")
	}

	covers, err := storage.NewCoverStore(cfg.UploadDir, cfg.AllowedExtensions, cfg.MaxUploadSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload dir init failed")
	}

	store := repository.NewStore(gormDB)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	tokenStore := auth.NewTokenStore(cacheClient)

	// Initialize services
	authService := service.NewAuthService(store.Users, jwtService, tokenStore)
	userService := service.NewUserService(store.Users, cacheClient)
	bookService := service.NewBookService(store, covers, cacheClient)
	loanService := service.NewLoanService(store, cfg.LateFeePerDay)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(
		e,
		cfg,
		jwtService,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewBookHandler(bookService, covers),
		handler.NewLoanHandler(loanService),
		handler.NewUserHandler(userService),
	)

	report := jobs.NewOverdueReport(loanService)
	if err := report.Start(cfg.OverdueReportSchedule); err != nil {
		log.Fatal().Err(err).Msg("Overdue report init failed")
	}

	go func() {
		addr := ":" + cfg.ServerPort
		log.Info().Str("addr", addr).Msg("Server starting; swagger at /swagger/index.html")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server")

	report.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("Server exiting")
}
