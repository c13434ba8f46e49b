package web

import (
	"cuchimail/config"
	"cuchimail/dashboard"
	"cuchimail/middleware"
	"cuchimail/models"
	"cuchimail/utils"

	"github.com/gofiber/fiber/v2"
)

// SettingsHandler serves the language and theme panel
type SettingsHandler struct {
	mailbox *MailboxHandler
	config  *config.Config
}

func NewSettingsHandler(mailbox *MailboxHandler, cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{
		mailbox: mailbox,
		config:  cfg,
	}
}

// ShowSettings renders the settings page
func (h *SettingsHandler) ShowSettings(c *fiber.Ctx) error {
	state := h.mailbox.load(c)
	state.SwitchView(dashboard.Settings)
	return h.mailbox.render(c, fiber.StatusOK, state, nil)
}

// SaveSettings stores both preferences in device cookies. Unknown values are
// rejected and the previous preferences stay in effect.
func (h *SettingsHandler) SaveSettings(c *fiber.Ctx) error {
	prefs := models.Preferences{
		Language: c.FormValue("lang"),
		Theme:    c.FormValue("theme"),
	}

	if !models.IsLanguage(prefs.Language) || !models.IsTheme(prefs.Theme) {
		state := h.mailbox.load(c)
		state.SwitchView(dashboard.Settings)
		message := utils.T(middleware.Localizer(c), "invalid_preferences")
		return c.Status(fiber.StatusBadRequest).Render("dashboard", pageData(c, h.config, &Flash{Kind: "error", Message: message}, fiber.Map{
			"Title":     utils.T(middleware.Localizer(c), "settings"),
			"State":     state,
			"Visible":   state.Visible(),
			"Counts":    state.Counts(),
			"FormError": message,
		}))
	}

	middleware.SavePreferences(c, prefs, h.config.Session.CookieSecure)
	h.mailbox.gate.Flash(c, "success", utils.T(utils.GetLocalizer(prefs.Language), "toast_settings_saved"))
	return c.Redirect("/settings")
}
