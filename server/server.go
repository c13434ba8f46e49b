// Package server assembles the Fiber application: views, middleware and routes.
package server

import (
	"cuchimail/backend"
	"cuchimail/config"
	"cuchimail/handlers/api"
	"cuchimail/handlers/web"
	"cuchimail/mail"
	"cuchimail/middleware"
	"cuchimail/ui"
	"cuchimail/utils"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// Deps are the long-lived services the routes use
type Deps struct {
	Config        *config.Config
	Collaborator  backend.Collaborator
	Gate          *middleware.SessionGate
	Service       *mail.Service
	Mailboxes     *mail.Mailboxes
	Notifications *api.NotificationHandler
	// AccessLog disables the request logger when false
	AccessLog bool
}

// NewEngine creates the template engine over the embedded templates
func NewEngine() *html.Engine {
	engine := html.NewFileSystem(http.FS(ui.Templates()), ".html")

	engine.AddFunc("lower", strings.ToLower)
	engine.AddFunc("upper", strings.ToUpper)
	engine.AddFunc("trim", strings.TrimSpace)

	engine.AddFunc("t", func(localizer *i18n.Localizer, messageID string) string {
		return utils.T(localizer, messageID)
	})
	engine.AddFunc("tData", func(localizer *i18n.Localizer, messageID string, pairs ...interface{}) string {
		data := make(map[string]interface{}, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			data[fmt.Sprint(pairs[i])] = pairs[i+1]
		}
		return utils.TWithData(localizer, messageID, data)
	})
	engine.AddFunc("tPlural", func(localizer *i18n.Localizer, messageID string, count int) string {
		return utils.TPlural(localizer, messageID, count)
	})

	engine.AddFunc("formatDate", func(t time.Time) string {
		return t.Local().Format("Jan 02, 2006 15:04")
	})
	engine.AddFunc("isoDate", func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	})
	engine.AddFunc("excerpt", excerpt)
	engine.AddFunc("mailBody", utils.RenderPlainText)

	return engine
}

// New builds the application with every route registered
func New(deps Deps) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		AppName:      cfg.Organization.Name,
		Views:        NewEngine(),
		ViewsLayout:  "layouts/main",
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: errorHandler(cfg),
	})

	app.Use(recover.New())
	if deps.AccessLog {
		app.Use(logger.New())
	}
	app.Use(compress.New())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'self'; script-src 'self'; style-src 'self'; connect-src 'self'",
	}))

	app.Use("/assets", filesystem.New(filesystem.Config{
		Root:   http.FS(ui.Assets()),
		MaxAge: int((24 * time.Hour).Seconds()),
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	app.Use(middleware.Preferences(middleware.PreferencesConfig{
		DefaultLanguage: cfg.Preferences.DefaultLanguage,
		DefaultTheme:    cfg.Preferences.DefaultTheme,
	}))
	app.Use(middleware.RateLimiter(middleware.RateLimitConfig{
		Requests: cfg.Server.RateLimit,
		Window:   cfg.Server.RateWindow,
		Skipper: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/events" || c.Path() == "/ws"
		},
	}))
	csrf := middleware.DefaultCSRFConfig()
	csrf.CookieSecure = cfg.Session.CookieSecure
	app.Use(middleware.CSRFProtection(csrf))

	authHandler := web.NewAuthHandler(deps.Gate, deps.Collaborator.Auth(), cfg)
	mailboxHandler := web.NewMailboxHandler(deps.Gate, deps.Service, deps.Mailboxes, cfg)
	settingsHandler := web.NewSettingsHandler(mailboxHandler, cfg)

	messagesHandler := api.NewMessagesHandler(deps.Gate, deps.Service, deps.Mailboxes, cfg)
	preferencesHandler := api.NewPreferencesHandler(cfg.Session.CookieSecure)
	i18nHandler := &api.I18nHandler{DefaultLanguage: cfg.Preferences.DefaultLanguage}

	// Public routes
	app.Get("/login", authHandler.ShowLogin)
	app.Post("/login", authHandler.HandleLogin)
	app.Get("/api/i18n/:lang", i18nHandler.GetTranslations)
	app.Get("/api/preferences", preferencesHandler.Get)
	app.Put("/api/preferences", preferencesHandler.Put)

	// Protected routes group
	protected := app.Group("", deps.Gate.Middleware())

	protected.Post("/logout", authHandler.HandleLogout)

	protected.Get("/", mailboxHandler.HandleInbox)
	protected.Get("/inbox", mailboxHandler.HandleInbox)
	protected.Get("/sent", mailboxHandler.HandleSent)
	protected.Get("/compose", mailboxHandler.HandleCompose)
	protected.Post("/compose", mailboxHandler.HandleSend)
	protected.Get("/message/:id", mailboxHandler.HandleMessage)
	protected.Get("/message/:id/reply", mailboxHandler.HandleReply)
	protected.Get("/settings", settingsHandler.ShowSettings)
	protected.Post("/settings", settingsHandler.SaveSettings)

	apiRoutes := protected.Group("/api")
	{
		apiRoutes.Get("/messages", messagesHandler.List)
		apiRoutes.Post("/messages", messagesHandler.Send)
		apiRoutes.Get("/messages/:id", messagesHandler.Get)
		apiRoutes.Get("/messages/:id/reply", messagesHandler.Reply)

		apiRoutes.Get("/events", deps.Notifications.HandleSSE)
	}

	protected.Get("/ws", deps.Notifications.Upgrade, websocket.New(deps.Notifications.HandleWebSocket))

	// 404 Handler for undefined routes
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, utils.T(middleware.Localizer(c), "error_404"))
	})

	return app
}

func errorHandler(cfg *config.Config) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := utils.StatusOf(err)
		message := utils.PublicMessage(err)

		if appErr, ok := err.(*utils.AppError); ok {
			utils.Log.Error("Application error: %v", appErr)
		}

		if middleware.IsAPIRequest(c) {
			return c.Status(code).JSON(fiber.Map{
				"error": message,
			})
		}

		localizer := middleware.Localizer(c)
		if code == fiber.StatusInternalServerError {
			message = utils.T(localizer, "error_500")
		}
		prefs := middleware.CurrentPreferences(c)
		if prefs.Theme == "" {
			prefs.Theme = cfg.Preferences.DefaultTheme
		}
		return c.Status(code).Render("error", fiber.Map{
			"Localizer": localizer,
			"Lang":      prefs.Language,
			"Theme":     prefs.Theme,
			"OrgName":   cfg.Organization.Name,
			"Title":     utils.T(localizer, "error_title"),
			"Error":     message,
			"Code":      code,
		})
	}
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
