package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-fitness-planner/internal/app"
	"ai-fitness-planner/internal/config"
	"ai-fitness-planner/internal/database"
	"ai-fitness-planner/internal/logging"
	"ai-fitness-planner/internal/telegram"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		log.Fatalf("Invalid Telegram config: %v", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if len(cfg.TelegramAllowedUserIDs) == 0 {
		logger.Warn("TELEGRAM_ALLOWED_USER_IDS is empty; every message will be ignored")
	}

	ctx := context.Background()

	// 2. Initialize Infrastructure
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	model, closeModel, err := app.NewModel(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize model: %v", err)
	}
	defer closeModel()

	// 3. Initialize the application; alerts go to the admin once the bot exists.
	var bot *telegram.Bot
	application, err := app.NewApp(cfg, model, db,
		app.WithLogger(logger),
		app.WithAlertHandler(func(text string) {
			if bot != nil {
				bot.SendAdminAlert(text)
			}
		}),
	)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	// 4. Initialize Telegram Bot
	bot, err = telegram.NewBot(cfg, application, logger)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram Bot: %v", err)
	}

	// 5. Start Server with Graceful Shutdown
	mux := http.NewServeMux()
	bot.RegisterHandlers(mux)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Telegram Bot Server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exiting")
}
