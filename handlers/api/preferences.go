package api

import (
	"cuchimail/middleware"
	"cuchimail/models"
	"cuchimail/utils"

	"github.com/gofiber/fiber/v2"
)

// PreferencesHandler reads and writes the device's preference cookies
type PreferencesHandler struct {
	cookieSecure bool
}

func NewPreferencesHandler(cookieSecure bool) *PreferencesHandler {
	return &PreferencesHandler{cookieSecure: cookieSecure}
}

// Get returns the preferences in effect for this request
func (h *PreferencesHandler) Get(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"preferences": middleware.CurrentPreferences(c),
		"languages":   models.Languages,
		"themes":      models.Themes,
	})
}

// Put replaces both preferences; omitted fields keep their current value
func (h *PreferencesHandler) Put(c *fiber.Ctx) error {
	prefs := middleware.CurrentPreferences(c)
	if err := c.BodyParser(&prefs); err != nil {
		return utils.BadRequestError("Invalid request body", err)
	}
	if !models.IsLanguage(prefs.Language) || !models.IsTheme(prefs.Theme) {
		return utils.BadRequestError(utils.T(middleware.Localizer(c), "invalid_preferences"), nil)
	}

	middleware.SavePreferences(c, prefs, h.cookieSecure)
	return c.JSON(fiber.Map{"preferences": prefs})
}
