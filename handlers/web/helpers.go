package web

import (
	"cuchimail/config"
	"cuchimail/dashboard"
	"cuchimail/middleware"
	"cuchimail/models"
	"cuchimail/utils"

	"github.com/gofiber/fiber/v2"
)

// Flash is a one-shot toast
type Flash struct {
	Kind    string
	Message string
}

// pageData is the data every page template expects, merged with extra
func pageData(c *fiber.Ctx, cfg *config.Config, flash *Flash, extra fiber.Map) fiber.Map {
	prefs := middleware.CurrentPreferences(c)
	data := fiber.Map{
		"Localizer": middleware.Localizer(c),
		"Lang":      prefs.Language,
		"Theme":     prefs.Theme,
		"CSRF":      middleware.CSRFToken(c),
		"OrgName":   cfg.Organization.Name,
		"Suffix":    policyOf(cfg).Suffix(),
		"Identity":  middleware.Identity(c),
		"Languages": models.Languages,
		"Themes":    models.Themes,
	}
	if flash != nil && flash.Message != "" {
		data["Flash"] = flash
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func policyOf(cfg *config.Config) utils.AddressPolicy {
	return utils.AddressPolicy{
		Domain:         cfg.Organization.Domain,
		BlockedDomains: cfg.Organization.BlockedDomains,
	}
}

// validationMessage localizes a form or address-policy error
func validationMessage(c *fiber.Ctx, policy utils.AddressPolicy, err error) string {
	return utils.TWithData(middleware.Localizer(c), dashboard.MessageID(err), map[string]interface{}{
		"Domain": policy.Suffix(),
	})
}
