package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-IP limiter
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Skipper  func(*fiber.Ctx) bool
}

// RateLimiter allows cfg.Requests per cfg.Window per client IP, with a burst
// of the same size. Idle clients are forgotten after ten minutes.
func RateLimiter(cfg RateLimitConfig) fiber.Handler {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		clients = make(map[string]*client)
		mu      sync.Mutex
	)

	if cfg.Requests <= 0 {
		cfg.Requests = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	every := rate.Every(cfg.Window / time.Duration(cfg.Requests))

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for ip, c := range clients {
				if time.Since(c.lastSeen) > 10*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *fiber.Ctx) error {
		if cfg.Skipper != nil && cfg.Skipper(c) {
			return c.Next()
		}

		ip := c.IP()

		mu.Lock()
		cl, exists := clients[ip]
		if !exists {
			cl = &client{limiter: rate.NewLimiter(every, cfg.Requests)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.limiter.Allow() {
			c.Set(fiber.HeaderRetryAfter, "1")
			return fiber.NewError(fiber.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		}

		return c.Next()
	}
}
