package models

import "time"

// Session is an authenticated identity handed out by the collaborator
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Present reports whether the session exists and has not expired at now
func (s *Session) Present(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// Credentials is what the auth screen submits
type Credentials struct {
	Email    string `json:"email" validate:"required,address"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Validate checks the shape of the credentials before they reach the collaborator
func (c Credentials) Validate() error {
	return validate.Struct(c)
}
