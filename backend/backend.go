//go:generate go run go.uber.org/mock/mockgen -source=backend.go -destination=../mocks/mock_backend.go -package=mocks

// Package backend describes the external collaborator the mail client depends on:
// hosted authentication, table storage and change-feed subscriptions.
package backend

import (
	"context"
	"cuchimail/models"
	"errors"
	"fmt"
)

var (
	ErrNoSession          = errors.New("no session")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrUserExists         = errors.New("user already registered")
	ErrUnknownTable       = errors.New("unknown table")
)

// Error is an error reported by the collaborator itself. Message is shown to
// users verbatim.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the collaborator's own wording for err, or err.Error()
func Message(err error) string {
	var be *Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return err.Error()
}

// Row is an untyped table row as the collaborator returns it
type Row map[string]any

// Eq is an equality filter on one column
type Eq struct {
	Column string
	Value  string
}

// Query selects rows matching every filter, ordered by OrderBy
type Query struct {
	Filters   []Eq
	OrderBy   string
	Ascending bool
	Limit     int
}

// Where returns a query with an extra equality filter
func (q Query) Where(column, value string) Query {
	q.Filters = append(append([]Eq(nil), q.Filters...), Eq{Column: column, Value: value})
	return q
}

// Matches reports whether row satisfies every filter of q
func (q Query) Matches(row Row) bool {
	for _, f := range q.Filters {
		v, ok := row[f.Column]
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok || s != f.Value {
			return false
		}
	}
	return true
}

// ChangeType is the kind of table mutation a change-feed event reports
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one change-feed notification. Row is nil when the collaborator
// did not include the record.
type Change struct {
	Type  ChangeType
	Table string
	Row   Row
}

// SessionEventType names an auth state transition
type SessionEventType string

const (
	SignedIn       SessionEventType = "SIGNED_IN"
	SignedOut      SessionEventType = "SIGNED_OUT"
	TokenRefreshed SessionEventType = "TOKEN_REFRESHED"
)

// SessionEvent is delivered to OnSessionChanged subscribers.
// Session is nil for SignedOut; AccessToken always names the affected token.
type SessionEvent struct {
	Type        SessionEventType
	AccessToken string
	Email       string
	Session     *models.Session
}

// Auth is the hosted authentication half of the collaborator
type Auth interface {
	GetSession(ctx context.Context, accessToken string) (*models.Session, error)
	SignUp(ctx context.Context, creds models.Credentials) (*models.Session, error)
	SignInWithPassword(ctx context.Context, creds models.Credentials) (*models.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	OnSessionChanged(fn func(SessionEvent)) (unsubscribe func())
}

// Table is one table of the hosted store
type Table interface {
	Insert(ctx context.Context, row Row) error
	Select(ctx context.Context, q Query) ([]Row, error)
	OnChange(fn func(Change)) (unsubscribe func())
}

// Collaborator bundles auth and tables behind one client
type Collaborator interface {
	Auth() Auth
	From(table string) Table
	Close() error
}

type accessTokenKey struct{}

// WithAccessToken attaches the caller's access token to ctx so table calls run
// with the caller's identity.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the token attached by WithAccessToken
func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(string)
	return token, ok && token != ""
}
