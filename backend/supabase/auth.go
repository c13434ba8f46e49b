package supabase

import (
	"context"
	"cuchimail/backend"
	"cuchimail/models"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth is a GoTrue client
type Auth struct {
	client *Client
	events *backend.Feed[backend.SessionEvent]
}

// SignUp registers the address. Projects with email confirmation enabled
// return no session; the caller then tells the user to check their inbox.
func (a *Auth) SignUp(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	var payload sessionPayload
	_, err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   map[string]string{"email": creds.Email, "password": creds.Password},
	}, &payload)
	if err != nil {
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, nil
	}

	sess := payload.session(time.Now())
	a.publish(backend.SignedIn, sess)
	return sess, nil
}

// SignInWithPassword exchanges credentials for a session
func (a *Auth) SignInWithPassword(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	var payload sessionPayload
	_, err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  [][2]string{{"grant_type", "password"}},
		body:   map[string]string{"email": creds.Email, "password": creds.Password},
	}, &payload)
	if err != nil {
		var be *backend.Error
		if errors.As(err, &be) && be.Status == http.StatusBadRequest {
			be.Err = backend.ErrInvalidCredentials
		}
		return nil, err
	}

	sess := payload.session(time.Now())
	a.publish(backend.SignedIn, sess)
	return sess, nil
}

// GetSession asks GoTrue who the token belongs to
func (a *Auth) GetSession(ctx context.Context, accessToken string) (*models.Session, error) {
	if accessToken == "" {
		return nil, backend.ErrNoSession
	}

	var user userPayload
	_, err := a.client.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  accessToken,
	}, &user)
	if err != nil {
		var be *backend.Error
		if errors.As(err, &be) && (be.Status == http.StatusUnauthorized || be.Status == http.StatusForbidden) {
			return nil, backend.ErrNoSession
		}
		return nil, err
	}

	return &models.Session{
		AccessToken: accessToken,
		UserID:      user.ID,
		Email:       user.Email,
		ExpiresAt:   tokenExpiry(accessToken),
	}, nil
}

// SignOut revokes the token on the server
func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	_, err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  accessToken,
	}, nil)
	if err != nil {
		return err
	}

	a.events.Publish(backend.SessionEvent{Type: backend.SignedOut, AccessToken: accessToken})
	return nil
}

// OnSessionChanged subscribes fn to sign-in and sign-out events issued by this client
func (a *Auth) OnSessionChanged(fn func(backend.SessionEvent)) func() {
	return a.events.Subscribe(fn)
}

func (a *Auth) publish(t backend.SessionEventType, sess *models.Session) {
	a.events.Publish(backend.SessionEvent{
		Type:        t,
		AccessToken: sess.AccessToken,
		Email:       sess.Email,
		Session:     sess,
	})
}

// tokenExpiry reads exp from a GoTrue JWT. The signature is checked by the
// server on every call, so the claims are only parsed here.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
