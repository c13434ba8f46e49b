package server_test

import (
	"context"
	"cuchimail/backend/local"
	"cuchimail/config"
	"cuchimail/handlers/api"
	"cuchimail/mail"
	"cuchimail/middleware"
	"cuchimail/models"
	"cuchimail/server"
	"cuchimail/storage"
	"cuchimail/ui"
	"cuchimail/utils"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app  *fiber.App
	auth *local.Auth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	req := require.New(t)
	req.NoError(utils.InitI18n(ui.Locales(), ".", "vi"))

	cfg := config.Default()
	cfg.Local.DataDir = t.TempDir()
	cfg.Local.JWTSecret = "test-secret"
	cfg.Organization.Domain = "org.vn"

	db, err := storage.InitDB(cfg.Local.DataDir)
	req.NoError(err)
	t.Cleanup(func() { db.Close() })

	collaborator, err := local.New(db, local.Options{DataDir: cfg.Local.DataDir, JWTSecret: cfg.Local.JWTSecret, TokenTTL: time.Hour})
	req.NoError(err)
	t.Cleanup(func() { collaborator.Close() })

	messages := collaborator.From(models.MessagesTable)
	service := mail.NewService(messages)
	mailboxes := mail.NewMailboxes(service, messages, time.Minute)
	mailboxes.Start()
	t.Cleanup(mailboxes.Close)

	store := session.New(session.Config{Storage: storage.NewSessionStorage(db)})
	gate := middleware.NewSessionGate(collaborator.Auth(), store, time.Second, time.Minute)
	gate.Start()
	t.Cleanup(gate.Close)

	notifications := api.NewNotificationHandler()
	t.Cleanup(notifications.Follow(mailboxes, gate))

	app := server.New(server.Deps{
		Config:        cfg,
		Collaborator:  collaborator,
		Gate:          gate,
		Service:       service,
		Mailboxes:     mailboxes,
		Notifications: notifications,
	})
	return &testServer{app: app, auth: collaborator.Auth().(*local.Auth)}
}

func (s *testServer) signUp(t *testing.T, email string) string {
	t.Helper()
	sess, err := s.auth.SignUp(context.Background(), models.Credentials{Email: email, Password: "secret1"})
	require.NoError(t, err)
	return sess.AccessToken
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func Test_Health(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)
}

func Test_Unauthenticated_Access(t *testing.T) {
	s := newTestServer(t)

	t.Run("should redirect pages to the auth screen", func(t *testing.T) {
		req := require.New(t)
		resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/inbox", nil))
		req.NoError(err)
		req.Equal(fiber.StatusFound, resp.StatusCode)
		req.Equal("/login", resp.Header.Get(fiber.HeaderLocation))
	})

	t.Run("should answer 401 on the API", func(t *testing.T) {
		req := require.New(t)
		resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/messages", nil))
		req.NoError(err)
		req.Equal(fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("should render the auth screen", func(t *testing.T) {
		req := require.New(t)
		resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/login", nil))
		req.NoError(err)
		req.Equal(fiber.StatusOK, resp.StatusCode)
	})
}

func Test_Theme_Persists_Across_Reload(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	put := httptest.NewRequest(fiber.MethodPut, "/api/preferences", strings.NewReader(`{"theme":"dark"}`))
	put.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	put.Header.Set("X-CSRF-Token", "abc")
	put.AddCookie(&http.Cookie{Name: "csrf_token", Value: "abc"})
	resp, err := s.app.Test(put)
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)

	// A new page load carries only what the browser kept
	get := httptest.NewRequest(fiber.MethodGet, "/api/preferences", nil)
	for _, c := range resp.Cookies() {
		get.AddCookie(c)
	}
	resp, err = s.app.Test(get)
	req.NoError(err)

	var body struct {
		Preferences models.Preferences `json:"preferences"`
	}
	decode(t, resp, &body)
	req.Equal(models.ThemeDark, body.Preferences.Theme)
	req.Equal("vi", body.Preferences.Language)
}

func Test_Preferences_Require_CSRF(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	put := httptest.NewRequest(fiber.MethodPut, "/api/preferences", strings.NewReader(`{"theme":"dark"}`))
	put.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := s.app.Test(put)
	req.NoError(err)
	req.Equal(fiber.StatusForbidden, resp.StatusCode)
}

func Test_Send_Then_Recipient_Inbox(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	alice := s.signUp(t, "a@org.vn")
	bob := s.signUp(t, "b@org.vn")

	send := httptest.NewRequest(fiber.MethodPost, "/api/messages", strings.NewReader(`{"to":"b@org.vn","subject":"Hi","body":"hello"}`))
	send.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	send.Header.Set(fiber.HeaderAuthorization, "Bearer "+alice)
	resp, err := s.app.Test(send)
	req.NoError(err)
	req.Equal(fiber.StatusCreated, resp.StatusCode)

	list := httptest.NewRequest(fiber.MethodGet, "/api/messages?view=inbox", nil)
	list.Header.Set(fiber.HeaderAuthorization, "Bearer "+bob)
	resp, err = s.app.Test(list)
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)

	var inbox struct {
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
	}
	decode(t, resp, &inbox)
	req.Equal(1, inbox.Count)
	req.Equal("a@org.vn", inbox.Messages[0].SenderEmail)
	req.Equal("Hi", inbox.Messages[0].Subject)
	req.Equal("hello", inbox.Messages[0].Body)

	// The reply form quotes the original
	reply := httptest.NewRequest(fiber.MethodGet, "/api/messages/"+inbox.Messages[0].ID+"/reply", nil)
	reply.Header.Set(fiber.HeaderAuthorization, "Bearer "+bob)
	resp, err = s.app.Test(reply)
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)

	var form struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	decode(t, resp, &form)
	req.Equal("a@org.vn", form.To)
	req.Equal("Re: Hi", form.Subject)
	req.Contains(form.Body, "hello")
}

func Test_Send_Outside_Organization_Is_Rejected(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	alice := s.signUp(t, "a@org.vn")

	send := httptest.NewRequest(fiber.MethodPost, "/api/messages", strings.NewReader(`{"to":"x@example.com","subject":"Hi"}`))
	send.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	send.Header.Set(fiber.HeaderAuthorization, "Bearer "+alice)
	resp, err := s.app.Test(send)
	req.NoError(err)
	req.Equal(fiber.StatusBadRequest, resp.StatusCode)
}

func Test_Browser_Sign_Up_Then_Sign_Out(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	jar := map[string]*http.Cookie{"csrf_token": {Name: "csrf_token", Value: "abc"}}
	do := func(r *http.Request) *http.Response {
		for _, c := range jar {
			r.AddCookie(c)
		}
		resp, err := s.app.Test(r)
		req.NoError(err)
		for _, c := range resp.Cookies() {
			jar[c.Name] = c
		}
		return resp
	}

	form := strings.NewReader("_csrf=abc&mode=signup&email=a%40org.vn&password=secret1")
	login := httptest.NewRequest(fiber.MethodPost, "/login", form)
	login.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp := do(login)
	req.Equal(fiber.StatusFound, resp.StatusCode)
	req.Equal("/", resp.Header.Get(fiber.HeaderLocation))

	resp = do(httptest.NewRequest(fiber.MethodGet, "/inbox", nil))
	req.Equal(fiber.StatusOK, resp.StatusCode)

	logout := httptest.NewRequest(fiber.MethodPost, "/logout", strings.NewReader("_csrf=abc"))
	logout.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp = do(logout)
	req.Equal(fiber.StatusFound, resp.StatusCode)
	req.Equal("/login", resp.Header.Get(fiber.HeaderLocation))

	resp = do(httptest.NewRequest(fiber.MethodGet, "/inbox", nil))
	req.Equal(fiber.StatusFound, resp.StatusCode)
}

func Test_Sign_In_Error_Is_Shown_Verbatim(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	s.signUp(t, "a@org.vn")

	form := strings.NewReader("_csrf=abc&email=a%40org.vn&password=wrong12")
	login := httptest.NewRequest(fiber.MethodPost, "/login", form)
	login.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	login.AddCookie(&http.Cookie{Name: "csrf_token", Value: "abc"})
	resp, err := s.app.Test(login)
	req.NoError(err)
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)

	page, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Contains(string(page), "Invalid login credentials")
}

func Test_Settings_Form_Persists_Theme(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	alice := s.signUp(t, "a@org.vn")

	save := httptest.NewRequest(fiber.MethodPost, "/settings", strings.NewReader("lang=en&theme=dark"))
	save.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	save.Header.Set(fiber.HeaderAuthorization, "Bearer "+alice)
	resp, err := s.app.Test(save)
	req.NoError(err)
	req.Equal(fiber.StatusFound, resp.StatusCode)
	req.Equal("/settings", resp.Header.Get(fiber.HeaderLocation))

	reload := httptest.NewRequest(fiber.MethodGet, "/api/preferences", nil)
	for _, c := range resp.Cookies() {
		reload.AddCookie(c)
	}
	resp, err = s.app.Test(reload)
	req.NoError(err)

	var body struct {
		Preferences models.Preferences `json:"preferences"`
	}
	decode(t, resp, &body)
	req.Equal(models.Preferences{Language: "en", Theme: models.ThemeDark}, body.Preferences)

	bad := httptest.NewRequest(fiber.MethodPost, "/settings", strings.NewReader("lang=fr&theme=neon"))
	bad.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	bad.Header.Set(fiber.HeaderAuthorization, "Bearer "+alice)
	resp, err = s.app.Test(bad)
	req.NoError(err)
	req.Equal(fiber.StatusBadRequest, resp.StatusCode)
	req.Empty(resp.Cookies())
}

func Test_Message_Body_Is_Stored_And_Shown_As_Typed(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	alice := s.signUp(t, "a@org.vn")
	bob := s.signUp(t, "b@org.vn")

	// Given a body with text in angle brackets
	send := httptest.NewRequest(fiber.MethodPost, "/api/messages", strings.NewReader(`{"to":"b@org.vn","subject":"Vec<String>","body":"ping <alice@org.vn> if a<b then c>d"}`))
	send.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	send.Header.Set(fiber.HeaderAuthorization, "Bearer "+alice)
	resp, err := s.app.Test(send)
	req.NoError(err)
	req.Equal(fiber.StatusCreated, resp.StatusCode)

	list := httptest.NewRequest(fiber.MethodGet, "/api/messages?view=inbox", nil)
	list.Header.Set(fiber.HeaderAuthorization, "Bearer "+bob)
	resp, err = s.app.Test(list)
	req.NoError(err)

	var inbox struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, resp, &inbox)
	req.Len(inbox.Messages, 1)

	// Then it is stored unchanged
	req.Equal("Vec<String>", inbox.Messages[0].Subject)
	req.Equal("ping <alice@org.vn> if a<b then c>d", inbox.Messages[0].Body)

	// And the detail page shows it escaped
	detail := httptest.NewRequest(fiber.MethodGet, "/message/"+inbox.Messages[0].ID, nil)
	detail.Header.Set(fiber.HeaderAuthorization, "Bearer "+bob)
	resp, err = s.app.Test(detail)
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Contains(string(page), "ping &lt;alice@org.vn&gt; if a&lt;b then c&gt;d")
}

func Test_Compose_Toolbar_Appends_Markers_Without_Sending(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	alice := s.signUp(t, "a@org.vn")

	// Given a half-written message and the bold button
	form := url.Values{"to": {""}, "subject": {"Hi"}, "body": {"hello"}, "format": {"bold"}}
	r := httptest.NewRequest(fiber.MethodPost, "/compose", strings.NewReader(form.Encode()))
	r.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	r.Header.Set(fiber.HeaderAuthorization, "Bearer "+alice)

	// When the form is submitted
	resp, err := s.app.Test(r)
	req.NoError(err)

	// Then the form comes back with the marker and nothing is sent
	req.Equal(fiber.StatusOK, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Contains(string(page), "hello **IN ĐẬM**")

	list := httptest.NewRequest(fiber.MethodGet, "/api/messages?view=sent", nil)
	list.Header.Set(fiber.HeaderAuthorization, "Bearer "+alice)
	resp, err = s.app.Test(list)
	req.NoError(err)
	var sent struct {
		Count int `json:"count"`
	}
	decode(t, resp, &sent)
	req.Zero(sent.Count)
}
