// Package supabase is the hosted collaborator: GoTrue for auth, PostgREST for
// rows and Realtime for the change feed.
package supabase

import (
	"context"
	"cuchimail/backend"
	"cuchimail/models"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// Options configures the hosted collaborator
type Options struct {
	URL     string
	AnonKey string
	Timeout time.Duration
}

// Client implements backend.Collaborator against a Supabase project
type Client struct {
	baseURL string
	anonKey string
	timeout time.Duration
	http    *fasthttp.Client

	auth     *Auth
	realtime *Realtime

	mu     sync.Mutex
	tables map[string]*Table
}

// New creates a client for the project at opts.URL
func New(opts Options) (*Client, error) {
	if opts.URL == "" || opts.AnonKey == "" {
		return nil, errors.New("supabase url and anon key are required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.URL, "/"),
		anonKey: opts.AnonKey,
		timeout: opts.Timeout,
		http: &fasthttp.Client{
			Name:                "cuchimail",
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		tables: make(map[string]*Table),
	}
	c.auth = &Auth{client: c, events: backend.NewFeed[backend.SessionEvent]()}
	c.realtime = NewRealtime(c.baseURL, c.anonKey)
	return c, nil
}

// Auth returns the GoTrue client
func (c *Client) Auth() backend.Auth {
	return c.auth
}

// From returns a PostgREST table handle
func (c *Client) From(table string) backend.Table {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tables[table]; ok {
		return t
	}
	t := &Table{client: c, name: table}
	c.tables[table] = t
	return t
}

// Close stops the realtime connection
func (c *Client) Close() error {
	c.realtime.Close()
	return nil
}

// request describes one REST call
type request struct {
	method  string
	path    string
	token   string
	query   [][2]string
	headers map[string]string
	body    any
}

// do performs r and decodes a successful JSON response into out (when non-nil).
// Non-2xx responses become *backend.Error carrying the server's message.
func (c *Client) do(ctx context.Context, r request, out any) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + r.path)
	for _, kv := range r.query {
		req.URI().QueryArgs().Add(kv[0], kv[1])
	}
	req.Header.SetMethod(r.method)
	req.Header.Set("apikey", c.anonKey)
	token := r.token
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(payload)
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}

	status := resp.StatusCode()
	body := resp.Body()
	if status < 200 || status >= 300 {
		return status, &backend.Error{Status: status, Message: errorMessage(status, body)}
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return status, fmt.Errorf("decode %s response: %w", r.path, err)
		}
	}
	return status, nil
}

// errorMessage extracts the human readable message from a GoTrue or PostgREST error body
func errorMessage(status int, body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error_description", "msg", "message", "error"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}

// sessionPayload is GoTrue's token response
type sessionPayload struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         userPayload `json:"user"`
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (p sessionPayload) session(now time.Time) *models.Session {
	sess := &models.Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		UserID:       p.User.ID,
		Email:        p.User.Email,
	}
	switch {
	case p.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(p.ExpiresAt, 0).UTC()
	case p.ExpiresIn > 0:
		sess.ExpiresAt = now.Add(time.Duration(p.ExpiresIn) * time.Second).UTC()
	}
	return sess
}
