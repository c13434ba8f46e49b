package middleware

import (
	"cuchimail/models"
	"cuchimail/utils"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Cookies holding the device's preferences
const (
	LangCookie  = "lang"
	ThemeCookie = "theme"

	PreferenceMaxAge = 365 * 24 * time.Hour
)

// PreferencesConfig holds the fallbacks for devices without valid cookies
type PreferencesConfig struct {
	DefaultLanguage string
	DefaultTheme    string
}

var matcher = language.NewMatcher(func() []language.Tag {
	tags := make([]language.Tag, 0, len(models.Languages))
	for _, l := range models.Languages {
		tags = append(tags, language.Make(l))
	}
	return tags
}())

// Preferences re-reads the device's language and theme on every request.
// Language: ?lang, then the lang cookie, then Accept-Language, then the default.
// Absent or unknown values fall back silently.
func Preferences(cfg PreferencesConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lang := resolveLanguage(c, cfg.DefaultLanguage)

		theme := c.Cookies(ThemeCookie)
		if !models.IsTheme(theme) {
			theme = cfg.DefaultTheme
		}

		c.Locals("lang", lang)
		c.Locals("theme", theme)
		c.Locals("localizer", utils.GetLocalizer(lang))

		return c.Next()
	}
}

func resolveLanguage(c *fiber.Ctx, fallback string) string {
	if lang := c.Query("lang"); models.IsLanguage(lang) {
		return lang
	}
	if lang := c.Cookies(LangCookie); models.IsLanguage(lang) {
		return lang
	}
	if accept := c.Get(fiber.HeaderAcceptLanguage); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, idx, conf := matcher.Match(tags...)
			if conf != language.No {
				return models.Languages[idx]
			}
		}
	}
	return fallback
}

// SavePreferences writes both preference cookies for a year
func SavePreferences(c *fiber.Ctx, prefs models.Preferences, secure bool) {
	expires := time.Now().Add(PreferenceMaxAge)
	for name, value := range map[string]string{LangCookie: prefs.Language, ThemeCookie: prefs.Theme} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Expires:  expires,
			MaxAge:   int(PreferenceMaxAge.Seconds()),
			Secure:   secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
}

// CurrentPreferences returns what Preferences resolved for this request
func CurrentPreferences(c *fiber.Ctx) models.Preferences {
	lang, _ := c.Locals("lang").(string)
	theme, _ := c.Locals("theme").(string)
	return models.Preferences{Language: lang, Theme: theme}
}

// Localizer returns the request's localizer, nil when none was set
func Localizer(c *fiber.Ctx) *i18n.Localizer {
	l, _ := c.Locals("localizer").(*i18n.Localizer)
	return l
}
