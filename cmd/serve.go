package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rpsledger/internal/admin"
	"rpsledger/internal/auth"
	"rpsledger/internal/bot"
	"rpsledger/internal/config"
	"rpsledger/internal/handlers"
	"rpsledger/internal/logger"
	"rpsledger/internal/service"
	"rpsledger/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Telegram bot and the expiry worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logFile := logger.Setup(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	defer logFile.Close()

	log.Printf("Initializing database at: %s", cfg.DatabasePath)
	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	sw := admin.NewSwitch(cfg.AdminTelegramID, cfg.Running)
	engine, err := service.NewGameEngine(store, sw, service.Options{
		ArenaID:           cfg.ArenaID,
		PenaltyRatio:      cfg.PenaltyRatio,
		WithdrawTimeout:   cfg.WithdrawTimeout,
		TerminalCacheSize: cfg.TerminalGameCacheSize,
	})
	if err != nil {
		return err
	}
	if cfg.PayoutWebhookURL != "" {
		engine.SetTransferer(service.NewWebhookTransferer(cfg.PayoutWebhookURL, cfg.WithdrawMaxResponseBytes))
	}

	if cfg.TelegramBotToken != "" {
		chat, err := bot.New(bot.Settings{
			Token:        cfg.TelegramBotToken,
			WebAppURL:    cfg.WebAppURL,
			WelcomeBonus: cfg.WelcomeBonus,
		}, engine, sw)
		if err != nil {
			return err
		}
		engine.SetNotifier(service.NewNotificationServiceWithBot(chat.Telebot()))
		go chat.Start()
		defer chat.Stop()
	} else {
		log.Println("TELEGRAM_BOT_TOKEN not set: bot and notifications disabled, API requests will be rejected")
	}

	worker := service.NewExpiryWorker(engine, cfg.ExpiryScanInterval)
	worker.Start()
	defer worker.Stop()

	mux := http.NewServeMux()
	handlers.New(engine, sw).Register(mux)
	mux.Handle("/", http.FileServer(http.Dir("./web")))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           auth.Middleware(cfg.TelegramBotToken)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
