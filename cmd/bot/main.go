package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/joho/godotenv/autoload"

	"github.com/amiren/resonance-bot/internal/config"
	"github.com/amiren/resonance-bot/internal/notify"
	"github.com/amiren/resonance-bot/internal/scheduler"
	"github.com/amiren/resonance-bot/internal/session"
	"github.com/amiren/resonance-bot/internal/sheets"
	"github.com/amiren/resonance-bot/internal/storage"
	"github.com/amiren/resonance-bot/internal/subscription"
	"github.com/amiren/resonance-bot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %s", err.Error())
	}

	repo, err := storage.NewRepository(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to create repository: %s", err.Error())
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("failed to run migrations: %s", err.Error())
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("failed to create telegram client: %s", err.Error())
	}

	gateway := notify.NewGateway(api, cfg.AdminIDs, cfg.ChannelID)
	mirror := sheets.New(ctx, cfg.GoogleCredsJSON, cfg.SheetID)
	subs := subscription.NewService(repo, mirror, gateway, gateway, cfg.ChannelInviteLink, cfg.SubscriptionDurationDays)
	sessions := session.NewStore()

	bot, err := telegram.NewBot(api, gateway, repo, subs, sessions, mirror, cfg)
	if err != nil {
		log.Fatalf("failed to create telegram bot: %s", err.Error())
	}

	sweeper := scheduler.NewService(repo, gateway, gateway, cfg.ReminderBeforeDays)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := bot.Run(ctx); err != nil {
			log.Fatalf("failed to run telegram bot: %s", err.Error())
		}
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		log.Printf("graceful shutdown with signal %v", sig)
		sweeper.Stop()
		cancel()
		<-done
	}()
	<-done
}
