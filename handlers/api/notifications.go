package api

import (
	"bufio"
	"cuchimail/backend"
	"cuchimail/mail"
	"cuchimail/middleware"
	"cuchimail/utils"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// Notification types pushed to open pages
const (
	MailboxChanged = "mailbox_changed"
	SessionChanged = "session_changed"
)

// Notification represents a real-time notification
type Notification struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Time time.Time `json:"time"`
}

type subscriber struct {
	identity string
	token    string
	ch       chan Notification
}

// NotificationHandler pushes notifications to the pages of one identity
// over SSE or WebSocket.
type NotificationHandler struct {
	subscribers map[string]*subscriber
	mu          sync.RWMutex
	keepAlive   time.Duration
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{
		subscribers: make(map[string]*subscriber),
		keepAlive:   30 * time.Second,
	}
}

// Follow forwards mailbox and session changes until the returned function is called
func (h *NotificationHandler) Follow(mailboxes *mail.Mailboxes, gate *middleware.SessionGate) func() {
	stopMail := mailboxes.OnChanged(func(ch mail.MailboxChange) {
		h.broadcast(MailboxChanged, func(s *subscriber) bool {
			return ch.Affects(s.identity)
		})
	})
	stopSession := gate.OnChanged(func(ev backend.SessionEvent) {
		h.broadcast(SessionChanged, func(s *subscriber) bool {
			return s.token == ev.AccessToken || (ev.Email != "" && s.identity == ev.Email)
		})
	})
	return func() {
		stopMail()
		stopSession()
	}
}

// HandleSSE streams Server-Sent Events to the signed-in identity
func (h *NotificationHandler) HandleSSE(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	identity := middleware.Identity(c)
	token, _ := c.Locals(middleware.LocalToken).(string)
	if identity == "" {
		return utils.UnauthorizedError("Invalid session", nil)
	}

	// the stream writer runs after this handler returns, so the subscription
	// lives and dies inside it
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		id, sub := h.subscribe(identity, token)
		defer h.unsubscribe(id, "SSE")

		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()

		w.WriteString("retry: 5000\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case n := <-sub.ch:
				data, _ := json.Marshal(n)
				w.WriteString("data: " + string(data) + "\n\n")
			case <-ticker.C:
				w.WriteString(": keepalive\n\n")
			}
			// a failed flush means the client went away
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))

	return nil
}

// Upgrade lets only websocket handshakes through to HandleWebSocket
func (h *NotificationHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket pushes notifications over a websocket
func (h *NotificationHandler) HandleWebSocket(c *websocket.Conn) {
	identity, _ := c.Locals(middleware.LocalIdentity).(string)
	token, _ := c.Locals(middleware.LocalToken).(string)

	id, sub := h.subscribe(identity, token)
	defer func() {
		h.unsubscribe(id, "WebSocket")
		c.Close()
	}()

	// the reader only notices the peer closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case n := <-sub.ch:
			if err := c.WriteJSON(n); err != nil {
				utils.Log.Error("Failed to send WebSocket notification: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}

// Subscribers returns how many pages are listening
func (h *NotificationHandler) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *NotificationHandler) subscribe(identity, token string) (string, *subscriber) {
	id := uuid.New().String()
	sub := &subscriber{identity: identity, token: token, ch: make(chan Notification, 10)}

	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()

	utils.Log.WithField("identity", identity).Info("Subscriber connected: %s", id)
	return id, sub
}

func (h *NotificationHandler) unsubscribe(id, kind string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	h.mu.Unlock()

	utils.Log.Info("%s subscriber disconnected: %s", kind, id)
}

// broadcast enqueues a notification for every matching subscriber without blocking
func (h *NotificationHandler) broadcast(kind string, match func(*subscriber) bool) {
	n := Notification{ID: uuid.New().String(), Type: kind, Time: time.Now()}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subscribers {
		if !match(sub) {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			utils.Log.Warn("Notification channel full for subscriber %s", id)
		}
	}
}
