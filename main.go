package main

import (
	"context"
	"cuchimail/backend"
	"cuchimail/backend/local"
	"cuchimail/backend/supabase"
	"cuchimail/config"
	"cuchimail/handlers/api"
	"cuchimail/mail"
	"cuchimail/middleware"
	"cuchimail/models"
	"cuchimail/server"
	"cuchimail/storage"
	"cuchimail/ui"
	"cuchimail/utils"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"go.etcd.io/bbolt"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	flag.Parse()

	utils.Log.Info("Initializing CuchiMail...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		utils.Log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	level, err := utils.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		utils.Log.Warn("%v, keeping INFO", err)
	} else {
		utils.Log.SetLevel(level)
	}

	if err := utils.InitI18n(ui.Locales(), ".", cfg.Preferences.DefaultLanguage); err != nil {
		utils.Log.Error("Failed to initialize i18n: %v", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		utils.Log.Error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// Device sessions always live in the local bbolt file, whatever the driver
	db, err := storage.InitDB(cfg.Local.DataDir)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer db.Close()

	collaborator, err := newCollaborator(cfg, db)
	if err != nil {
		return fmt.Errorf("initialize %s collaborator: %w", cfg.Backend.Driver, err)
	}
	defer collaborator.Close()

	store := session.New(session.Config{
		Storage:        storage.NewSessionStorage(db),
		Expiration:     cfg.Session.Expiration,
		CookieSecure:   cfg.Session.CookieSecure,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})

	messages := collaborator.From(models.MessagesTable)
	service := mail.NewService(messages)
	mailboxes := mail.NewMailboxes(service, messages, cfg.Mailbox.CacheTTL)
	mailboxes.Start()
	defer mailboxes.Close()

	gate := middleware.NewSessionGate(collaborator.Auth(), store, cfg.Backend.Timeout, cfg.Session.CacheTTL)
	gate.Start()
	defer gate.Close()

	notifications := api.NewNotificationHandler()
	stopNotifications := notifications.Follow(mailboxes, gate)
	defer stopNotifications()

	app := server.New(server.Deps{
		Config:        cfg,
		Collaborator:  collaborator,
		Gate:          gate,
		Service:       service,
		Mailboxes:     mailboxes,
		Notifications: notifications,
		AccessLog:     true,
	})

	errCh := make(chan error, 1)
	go func() {
		utils.Log.Info("Starting server on port %d (driver=%s)...", cfg.Server.Port, cfg.Backend.Driver)
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	utils.Log.Info("Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		utils.Log.Warn("Shutdown: %v", err)
	}
	// deferred: notifications, gate, mailboxes, collaborator, database
	return nil
}

func newCollaborator(cfg *config.Config, db *bbolt.DB) (backend.Collaborator, error) {
	switch cfg.Backend.Driver {
	case config.DriverSupabase:
		return supabase.New(supabase.Options{
			URL:     cfg.Supabase.URL,
			AnonKey: cfg.Supabase.AnonKey,
			Timeout: cfg.Backend.Timeout,
		})
	default:
		return local.New(db, local.Options{
			DataDir:       cfg.Local.DataDir,
			MessageEngine: cfg.Local.MessageEngine,
			JWTSecret:     cfg.Local.JWTSecret,
			TokenTTL:      cfg.Local.TokenTTL,
		})
	}
}
