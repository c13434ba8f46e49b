package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// IsAPIRequest reports whether c expects JSON rather than a page
func IsAPIRequest(c *fiber.Ctx) bool {
	if c == nil {
		return false
	}
	if c.Get("HX-Request") != "" {
		return true
	}
	return strings.HasPrefix(c.Path(), "/api")
}

// BearerToken returns the token of an "Authorization: Bearer" header
func BearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
