package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"cuchimail/utils"
	"encoding/base64"

	"github.com/gofiber/fiber/v2"
)

// CSRFConfig holds CSRF protection configuration
type CSRFConfig struct {
	TokenLength  int
	CookieName   string
	HeaderName   string
	FormField    string
	ContextKey   string
	CookieMaxAge int
	CookieSecure bool
	Skipper      func(*fiber.Ctx) bool
}

// DefaultCSRFConfig returns default CSRF configuration
func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		TokenLength:  32,
		CookieName:   "csrf_token",
		HeaderName:   "X-CSRF-Token",
		FormField:    "_csrf",
		ContextKey:   "csrf",
		CookieMaxAge: 12 * 3600,
		// bearer clients carry no cookies to forge
		Skipper: func(c *fiber.Ctx) bool { return BearerToken(c) != "" },
	}
}

// CSRFProtection is a double-submit-cookie check. Safe requests get a token
// cookie (and c.Locals(ContextKey) for forms); unsafe requests must echo it
// in the header or the form field.
func CSRFProtection(config ...CSRFConfig) fiber.Handler {
	cfg := DefaultCSRFConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return func(c *fiber.Ctx) error {
		if cfg.Skipper != nil && cfg.Skipper(c) {
			return c.Next()
		}

		cookieToken := c.Cookies(cfg.CookieName)

		if c.Method() == fiber.MethodGet ||
			c.Method() == fiber.MethodHead ||
			c.Method() == fiber.MethodOptions {
			if cookieToken == "" {
				cookieToken = issueCSRFToken(c, cfg)
			}
			c.Locals(cfg.ContextKey, cookieToken)
			return c.Next()
		}

		sent := c.Get(cfg.HeaderName)
		if sent == "" {
			sent = c.FormValue(cfg.FormField)
		}

		if cookieToken == "" || sent == "" {
			utils.Log.Warn("CSRF token missing on %s %s", c.Method(), c.Path())
			return fiber.NewError(fiber.StatusForbidden, "CSRF token missing")
		}
		if !tokensEqual(cookieToken, sent) {
			utils.Log.Warn("CSRF token mismatch on %s %s", c.Method(), c.Path())
			return fiber.NewError(fiber.StatusForbidden, "CSRF token mismatch")
		}

		c.Locals(cfg.ContextKey, cookieToken)
		return c.Next()
	}
}

// CSRFToken returns the token forms must echo back
func CSRFToken(c *fiber.Ctx) string {
	token, _ := c.Locals(DefaultCSRFConfig().ContextKey).(string)
	return token
}

func issueCSRFToken(c *fiber.Ctx, cfg CSRFConfig) string {
	token := generateToken(cfg.TokenLength)

	c.Cookie(&fiber.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   cfg.CookieMaxAge,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
		Secure:   cfg.CookieSecure,
	})
	return token
}

// generateToken generates a random token
func generateToken(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// tokensEqual performs constant-time comparison of tokens
func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
