package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tunnelbot/internal/backend"
	"tunnelbot/internal/bootstrap"
	"tunnelbot/internal/bot"
	"tunnelbot/internal/config"
	cronpkg "tunnelbot/internal/cron"
	"tunnelbot/internal/middleware"
	"tunnelbot/internal/policy"
	"tunnelbot/internal/provision"
	"tunnelbot/internal/repository"
	"tunnelbot/internal/router"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfgStore, err := config.NewStore()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	cfg := cfgStore.Snapshot()

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}
	if hasArg("--bootstrap-db") {
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Repositories ---
	accounts := repository.NewAccountRepository(db)
	servers := repository.NewServerRepository(db)
	trials := repository.NewTrialRepository(db)
	resellers := repository.NewResellerRepository(db)
	settings := repository.NewSettingRepository(db)

	// --- Policy ---
	membership := policy.NewMembershipChecker(resellers, accounts, func() config.ResellerTerms {
		return cfgStore.Snapshot().Reseller
	})
	access := policy.NewAccessPolicy(servers, membership, logger.Named("policy"))
	trialLimiter := policy.NewTrialRateLimiter(trials, logger.Named("trial"))

	// --- Provisioning ---
	panelBackend := backend.NewHTTPBackend(cfg.Backend.Timeout, cfg.Backend.Insecure, logger.Named("backend"))
	svc := provision.NewService(servers, accounts, settings, access, trialLimiter, panelBackend, cfgStore, logger.Named("provision"))

	// --- Janitor ---
	janitor := cronpkg.NewJanitor(accounts, servers, cfgStore, logger.Named("janitor"))
	scheduler := cronpkg.New(cfgStore, janitor, logger.Named("janitor"))
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start janitor scheduler", zap.Error(err))
	}

	// --- Request Deduper (Redis with in-memory fallback) ---
	deduper, dedupeErr := middleware.NewRequestDeduper(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		10*time.Minute,
	)
	if dedupeErr != nil {
		logger.Warn("Redis unavailable for request dedup, using in-memory fallback", zap.Error(dedupeErr))
	}

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true
	router.Setup(e, cfgStore, svc, servers, janitor, deduper, logger.Named("api"))

	// --- Bot ---
	var teleBot *bot.Bot
	if cfg.Bot.Token != "" {
		teleBot, err = bot.New(cfgStore, svc, janitor, logger.Named("bot"))
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}
		go teleBot.Start()
	} else {
		logger.Warn("BOT_TOKEN not set, Telegram bot disabled")
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting tunnelbot server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	if teleBot != nil {
		teleBot.Stop()
	}

	// Wait for any in-flight janitor sweep.
	ctx := scheduler.Stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}
