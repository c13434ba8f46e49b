package supabase

import (
	"context"
	"cuchimail/backend"
	"cuchimail/utils"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
)

const (
	heartbeatInterval = 25 * time.Second
	minBackoff        = time.Second
	maxBackoff        = 30 * time.Second
)

// phxMessage is a Phoenix channel frame
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type changeData struct {
	Type      string         `json:"type"`
	Table     string         `json:"table"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

// Realtime keeps one websocket to the project's Realtime service and fans
// postgres changes out to per-table feeds. The connection is opened on the
// first subscription and re-established with exponential backoff.
type Realtime struct {
	endpoint string
	apiKey   string
	dialer   *websocket.Dialer

	mu      sync.Mutex
	feeds   map[string]*backend.Feed[backend.Change]
	joins   chan string
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	ref atomic.Int64
}

// NewRealtime creates an idle realtime client for the project at baseURL
func NewRealtime(baseURL, apiKey string) *Realtime {
	return &Realtime{
		endpoint: RealtimeURL(baseURL, apiKey),
		apiKey:   apiKey,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		feeds:    make(map[string]*backend.Feed[backend.Change]),
		joins:    make(chan string, 8),
		done:     make(chan struct{}),
	}
}

// RealtimeURL turns a project URL into its websocket endpoint
func RealtimeURL(baseURL, apiKey string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/realtime/v1/websocket?apikey=" + url.QueryEscape(apiKey) + "&vsn=1.0.0"
}

// Subscribe registers fn for changes of table until the returned function is called
func (r *Realtime) Subscribe(table string, fn func(backend.Change)) func() {
	r.mu.Lock()
	feed, ok := r.feeds[table]
	if !ok {
		feed = backend.NewFeed[backend.Change]()
		r.feeds[table] = feed
	}
	if !r.started {
		r.started = true
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		go r.run(ctx)
	} else if !ok {
		select {
		case r.joins <- table:
		default:
			utils.Log.Warn("Realtime join queue full, %s joins on reconnect", table)
		}
	}
	r.mu.Unlock()

	return feed.Subscribe(fn)
}

// Close stops the connection loop and waits for it to exit
func (r *Realtime) Close() {
	r.mu.Lock()
	started := r.started
	cancel := r.cancel
	r.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-r.done
}

func (r *Realtime) run(ctx context.Context) {
	defer close(r.done)

	backoff := minBackoff
	for {
		connected, err := r.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = minBackoff
		}
		utils.Log.WithField("retry_in", backoff.String()).Warn("Realtime connection lost: %v", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// session runs one connection until it fails or ctx ends. connected reports
// whether the handshake succeeded.
func (r *Realtime) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := r.dialer.DialContext(ctx, r.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial realtime: %w", err)
	}
	defer conn.Close()

	for _, table := range r.tables() {
		if err := r.join(conn, table); err != nil {
			return true, err
		}
	}
	utils.Log.Info("Realtime connected")

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			r.dispatch(data)
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return true, ctx.Err()
		case err := <-readErr:
			return true, err
		case table := <-r.joins:
			if err := r.join(conn, table); err != nil {
				return true, err
			}
		case <-ticker.C:
			if err := r.send(conn, "phoenix", "heartbeat", map[string]any{}); err != nil {
				return true, err
			}
		}
	}
}

func (r *Realtime) tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tables := make([]string, 0, len(r.feeds))
	for t := range r.feeds {
		tables = append(tables, t)
	}
	return tables
}

func (r *Realtime) join(conn *websocket.Conn, table string) error {
	return r.send(conn, topicFor(table), "phx_join", map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{
				{"event": "*", "schema": "public", "table": table},
			},
		},
		"access_token": r.apiKey,
	})
}

func (r *Realtime) send(conn *websocket.Conn, topic, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(phxMessage{
		Topic:   topic,
		Event:   event,
		Payload: raw,
		Ref:     strconv.FormatInt(r.ref.Add(1), 10),
	})
}

func (r *Realtime) dispatch(data []byte) {
	change, ok, err := ParseChange(data)
	if err != nil {
		utils.Log.Warn("Dropping realtime frame: %v", err)
		return
	}
	if !ok {
		return
	}

	r.mu.Lock()
	feed := r.feeds[change.Table]
	r.mu.Unlock()
	if feed != nil {
		feed.Publish(change)
	}
}

func topicFor(table string) string {
	return "realtime:public:" + table
}

// ParseChange decodes a Realtime frame. ok is false for frames that are not
// row changes (join replies, heartbeats, presence).
func ParseChange(data []byte) (change backend.Change, ok bool, err error) {
	var msg phxMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return backend.Change{}, false, fmt.Errorf("decode frame: %w", err)
	}

	var cd changeData
	switch msg.Event {
	case "postgres_changes":
		var payload struct {
			Data changeData `json:"data"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return backend.Change{}, false, fmt.Errorf("decode postgres_changes: %w", err)
		}
		cd = payload.Data
	case "INSERT", "UPDATE", "DELETE":
		if err := json.Unmarshal(msg.Payload, &cd); err != nil {
			return backend.Change{}, false, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		if cd.Type == "" {
			cd.Type = msg.Event
		}
	default:
		return backend.Change{}, false, nil
	}

	change = backend.Change{Type: backend.ChangeType(strings.ToUpper(cd.Type)), Table: cd.Table}
	if change.Table == "" {
		change.Table = strings.TrimPrefix(msg.Topic, "realtime:public:")
	}
	switch change.Type {
	case backend.ChangeInsert, backend.ChangeUpdate:
		change.Row = cd.Record
	case backend.ChangeDelete:
		change.Row = cd.OldRecord
	default:
		return backend.Change{}, false, fmt.Errorf("unknown change type %q", cd.Type)
	}
	return change, true, nil
}
