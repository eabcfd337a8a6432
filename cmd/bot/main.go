package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/dodohq/dodobot/internal/agent"
	"github.com/dodohq/dodobot/internal/bot"
	"github.com/dodohq/dodobot/internal/config"
	"github.com/dodohq/dodobot/internal/neural"
	"github.com/dodohq/dodobot/internal/oauthserver"
	"github.com/dodohq/dodobot/internal/plugins"
	"github.com/dodohq/dodobot/internal/services"
	"github.com/dodohq/dodobot/internal/tokens"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "dodobot",
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load configuration", "err", err)
	}

	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		logger.Fatal("could not create scratch directory", "dir", cfg.ScratchDir, "err", err)
	}

	store, err := tokens.NewStore(cfg.TokenDBPath)
	if err != nil {
		logger.Fatal("could not open token store", "path", cfg.TokenDBPath, "err", err)
	}
	defer store.Close()

	key, err := tokens.LoadOrGenerateKey(cfg.EncryptionKey, logger)
	if err != nil {
		logger.Fatal("could not load encryption key", "err", err)
	}

	box := services.NewBox(cfg.Box, store, key, logger)
	dropbox := services.NewDropbox(cfg.Dropbox, store, key, logger)
	drive := services.NewDrive(cfg.GoogleID, cfg.GoogleSecret, cfg.GDriveRedirectURI, store, key, logger)
	gmail := services.NewGmail(cfg.GoogleID, cfg.GoogleSecret, cfg.GmailRedirectURI, store, key, logger)
	calendar := services.NewCalendar(cfg.GoogleID, cfg.GoogleSecret, cfg.GCalendarRedirectURI, store, key, logger)

	manager := plugins.NewManager(logger)
	plugins.RegisterBox(manager, box)
	plugins.RegisterDropbox(manager, dropbox)
	plugins.RegisterDrive(manager, drive)
	plugins.RegisterGmail(manager, gmail, cfg.ScratchDir)
	plugins.RegisterCalendar(manager, calendar)

	llm := neural.NewClient(cfg.MistralAPIKey, cfg.MistralModel)
	assistant := agent.New(llm, manager, logger)

	callbackProviders := map[string]oauthserver.Provider{
		"box":       box,
		"dropbox":   dropbox,
		"gdrive":    drive,
		"gmail":     gmail,
		"gcalendar": calendar,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TelegramToken == "" {
		// Callback server only. Useful for finishing OAuth flows while
		// the chat side is offline.
		logger.Warn("TELEGRAM_TOKEN is not set, running in callback-only mode")
		srv := oauthserver.New(cfg.OAuthListenAddr, callbackProviders, nil, logger)
		if err := srv.Run(ctx); err != nil {
			logger.Fatal("callback server failed", "err", err)
		}
		return
	}

	chat, err := bot.New(bot.Config{
		Token:      cfg.TelegramToken,
		ScratchDir: cfg.ScratchDir,
	}, assistant, map[string]bot.Provider{
		"box":       box,
		"dropbox":   dropbox,
		"gdrive":    drive,
		"gmail":     gmail,
		"gcalendar": calendar,
	}, logger)
	if err != nil {
		logger.Fatal("could not start bot", "err", err)
	}

	srv := oauthserver.New(cfg.OAuthListenAddr, callbackProviders, chat, logger)
	go func() {
		if err := srv.Run(ctx); err != nil {
			logger.Error("callback server failed", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		chat.Stop()
	}()

	chat.Start()
}
