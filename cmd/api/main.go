package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"user-directory/internal/api"
	"user-directory/internal/config"
	"user-directory/internal/db"
	"user-directory/internal/logging"
	"user-directory/internal/redis"
	"user-directory/internal/registration"
	"user-directory/internal/security"
	"user-directory/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_api", "service", "user-directory", "http_addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConn, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := store.EnsureSchema(ctx, dbConn); err != nil {
		logger.Error("schema_failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	flake, err := security.NewSnowflake(cfg.SnowflakeNode)
	if err != nil {
		logger.Error("snowflake_init_failed", "error", err)
		os.Exit(1)
	}

	var origin registration.OriginClassifier
	if cfg.Register.BlockProxies {
		origin = security.NewProxyDetector(logger, redisClient, cfg.Register.ProxyCheckURL)
	}

	var captcha registration.CaptchaChecker
	if cfg.Register.Captcha.Enabled {
		verifier, err := security.NewCaptchaVerifier(cfg.Register.Captcha.Service, cfg.Register.Captcha.SiteKey, cfg.Register.Captcha.Secret)
		if err != nil {
			logger.Error("captcha_init_failed", "error", err)
			os.Exit(1)
		}
		captcha = verifier
	}

	accounts := store.NewAccounts(logger, dbConn)
	guard := registration.NewGuard(logger, cfg.Register, accounts, origin, captcha)

	tasks := registration.NewTaskRunner(logger, 256)
	tasks.Start(4)

	factory, err := registration.NewFactory(logger, cfg.Register, accounts, guard, flake, tasks)
	if err != nil {
		logger.Error("factory_init_failed", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(logger, dbConn, redisClient, cfg, factory, accounts)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("api_started", "addr", cfg.HTTPAddr)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	// drain detached tasks before closing their stores
	tasks.Stop()
	logger.Info("tasks_drained")

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	dbConn.Close()
	logger.Info("db_closed")

	logger.Info("api_stopped")
}
