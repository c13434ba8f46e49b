package api

import (
	"cuchimail/models"
	"cuchimail/utils"

	"github.com/gofiber/fiber/v2"
)

// I18nHandler handles i18n-related requests
type I18nHandler struct {
	DefaultLanguage string
}

// clientKeys are the strings page scripts need
var clientKeys = []string{
	"toast_sent",
	"toast_send_failed",
	"load_error",
	"no_messages",
	"mailbox_updated",
	"error_404",
	"error_500",
	"error_unauthorized",
}

// GetTranslations returns translations for the client-side JavaScript
func (h *I18nHandler) GetTranslations(c *fiber.Ctx) error {
	lang := c.Params("lang")
	if !models.IsLanguage(lang) {
		lang = h.DefaultLanguage
	}

	localizer := utils.GetLocalizer(lang)

	translations := make(map[string]string, len(clientKeys))
	for _, key := range clientKeys {
		translations[key] = utils.T(localizer, key)
	}

	return c.JSON(translations)
}
