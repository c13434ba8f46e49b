package middleware

import (
	"context"
	"cuchimail/backend"
	"cuchimail/models"
	"cuchimail/utils"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

// Keys of the device session and request locals
const (
	SessionTokenKey = "access_token"
	FlashKey        = "flash"

	LocalSession  = "session"
	LocalIdentity = "identity"
	LocalToken    = "access_token"
)

// SessionGate decides per request whether the device has a session and
// follows the collaborator's auth events for the application lifetime.
type SessionGate struct {
	auth    backend.Auth
	store   *session.Store
	timeout time.Duration
	cache   *utils.MemoryCache[*models.Session]
	changes *backend.Feed[backend.SessionEvent]
	now     func() time.Time

	startOnce   sync.Once
	closeOnce   sync.Once
	unsubscribe func()
}

// NewSessionGate creates a gate. timeout bounds every collaborator call
// made on behalf of a request; cacheTTL bounds how long a resolved session
// is trusted without asking the collaborator again.
func NewSessionGate(auth backend.Auth, store *session.Store, timeout, cacheTTL time.Duration) *SessionGate {
	return &SessionGate{
		auth:    auth,
		store:   store,
		timeout: timeout,
		cache:   utils.NewMemoryCache[*models.Session](cacheTTL),
		changes: backend.NewFeed[backend.SessionEvent](),
		now:     time.Now,
	}
}

// Start subscribes to auth events; later calls do nothing
func (g *SessionGate) Start() {
	g.startOnce.Do(func() {
		g.unsubscribe = g.auth.OnSessionChanged(g.handleEvent)
	})
}

// Close releases the auth subscription. A gate that is closed cannot be started again.
func (g *SessionGate) Close() {
	g.closeOnce.Do(func() {
		g.startOnce.Do(func() {})
		if g.unsubscribe != nil {
			g.unsubscribe()
		}
		g.cache.Close()
	})
}

// OnChanged subscribes fn to the auth events the gate has applied
func (g *SessionGate) OnChanged(fn func(backend.SessionEvent)) func() {
	return g.changes.Subscribe(fn)
}

func (g *SessionGate) handleEvent(ev backend.SessionEvent) {
	switch ev.Type {
	case backend.SignedOut:
		g.cache.Delete(ev.AccessToken)
	case backend.SignedIn, backend.TokenRefreshed:
		if ev.Session != nil {
			g.cache.Set(ev.AccessToken, ev.Session)
		}
	}
	utils.Log.WithField("event", string(ev.Type)).Debug("Session changed for %s", ev.Email)
	g.changes.Publish(ev)
}

// Middleware lets requests with a present session through and sends the
// rest to the auth screen (pages) or answers 401 (API).
func (g *SessionGate) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, token := g.Resolve(c)
		if sess == nil {
			if IsAPIRequest(c) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": utils.T(Localizer(c), "error_unauthorized"),
				})
			}
			return c.Redirect("/login")
		}

		c.Locals(LocalSession, sess)
		c.Locals(LocalIdentity, sess.Email)
		c.Locals(LocalToken, token)
		return c.Next()
	}
}

// Resolve returns the device's present session and its token, or nil.
// A failed lookup is treated the same as no session.
func (g *SessionGate) Resolve(c *fiber.Ctx) (*models.Session, string) {
	token := BearerToken(c)
	if token == "" {
		token = g.deviceToken(c)
	}
	if token == "" {
		return nil, ""
	}

	if sess, ok := g.cache.Get(token); ok && sess.Present(g.now()) {
		return sess, token
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), g.timeout)
	defer cancel()

	sess, err := g.auth.GetSession(ctx, token)
	if err != nil {
		if !errors.Is(err, backend.ErrNoSession) {
			utils.Log.Warn("Session lookup failed: %v", err)
		}
		g.cache.Delete(token)
		return nil, ""
	}
	if !sess.Present(g.now()) {
		return nil, ""
	}

	g.cache.Set(token, sess)
	return sess, token
}

// Remember stores sess as the device's session
func (g *SessionGate) Remember(c *fiber.Ctx, sess *models.Session) error {
	s, err := g.store.Get(c)
	if err != nil {
		return err
	}
	if err := s.Regenerate(); err != nil {
		return err
	}
	s.Set(SessionTokenKey, sess.AccessToken)
	g.cache.Set(sess.AccessToken, sess)
	return s.Save()
}

// Forget drops the device's session
func (g *SessionGate) Forget(c *fiber.Ctx, token string) error {
	if token != "" {
		g.cache.Delete(token)
	}
	s, err := g.store.Get(c)
	if err != nil {
		return err
	}
	return s.Destroy()
}

// Context derives a collaborator call context from the request, bounded by
// the gate's timeout and carrying the caller's access token.
func (g *SessionGate) Context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.UserContext(), g.timeout)
	if token, ok := c.Locals(LocalToken).(string); ok && token != "" {
		ctx = backend.WithAccessToken(ctx, token)
	}
	return ctx, cancel
}

// Flash stores a one-shot message shown on the next page
func (g *SessionGate) Flash(c *fiber.Ctx, kind, message string) {
	s, err := g.store.Get(c)
	if err != nil {
		utils.Log.Warn("Failed to load session for flash: %v", err)
		return
	}
	s.Set(FlashKey, kind+"|"+message)
	if err := s.Save(); err != nil {
		utils.Log.Warn("Failed to save flash: %v", err)
	}
}

// TakeFlash returns and clears the pending flash message
func (g *SessionGate) TakeFlash(c *fiber.Ctx) (kind, message string) {
	s, err := g.store.Get(c)
	if err != nil {
		return "", ""
	}
	v, ok := s.Get(FlashKey).(string)
	if !ok || v == "" {
		return "", ""
	}
	s.Delete(FlashKey)
	if err := s.Save(); err != nil {
		utils.Log.Warn("Failed to clear flash: %v", err)
	}
	if kind, message, ok := strings.Cut(v, "|"); ok {
		return kind, message
	}
	return "info", v
}

// Identity returns the identity set by Middleware
func Identity(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalIdentity).(string)
	return id
}

func (g *SessionGate) deviceToken(c *fiber.Ctx) string {
	s, err := g.store.Get(c)
	if err != nil {
		utils.Log.Warn("Failed to load device session: %v", err)
		return ""
	}
	token, _ := s.Get(SessionTokenKey).(string)
	return token
}
