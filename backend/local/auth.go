package local

import (
	"context"
	"cuchimail/backend"
	"cuchimail/models"
	"cuchimail/storage"
	"cuchimail/utils"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "cuchimail"

// Claims is the payload of a local access token
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Auth implements backend.Auth on the bbolt user store with HS256 access tokens.
// A token is only honoured while its sign-in record exists, so SignOut revokes it.
type Auth struct {
	users  *storage.UserStorage
	secret []byte
	ttl    time.Duration
	events *backend.Feed[backend.SessionEvent]
	now    func() time.Time
}

// NewAuth creates the local auth service
func NewAuth(users *storage.UserStorage, secret string, ttl time.Duration) *Auth {
	return &Auth{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		events: backend.NewFeed[backend.SessionEvent](),
		now:    time.Now,
	}
}

// SignUp registers the address and signs it in right away
func (a *Auth) SignUp(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, &backend.Error{Status: http.StatusBadRequest, Message: "Unable to validate email address or password", Err: err}
	}

	user, err := a.users.CreateUser(creds.Email, creds.Password)
	if errors.Is(err, storage.ErrUserExists) {
		return nil, &backend.Error{Status: http.StatusUnprocessableEntity, Message: "User already registered", Err: backend.ErrUserExists}
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	utils.Log.WithField("email", user.Email).Info("User registered")
	return a.startSession(user)
}

// SignInWithPassword checks the password and issues a fresh access token
func (a *Auth) SignInWithPassword(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	invalid := &backend.Error{Status: http.StatusBadRequest, Message: "Invalid login credentials", Err: backend.ErrInvalidCredentials}

	user, err := a.users.GetUserByEmail(creds.Email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := a.users.VerifyPassword(user, creds.Password); err != nil {
		return nil, invalid
	}

	if err := a.users.TouchLogin(user.ID); err != nil {
		utils.Log.Warn("Failed to record login for %s: %v", user.Email, err)
	}
	return a.startSession(user)
}

// GetSession resolves an access token into the session it stands for
func (a *Auth) GetSession(ctx context.Context, accessToken string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims, err := a.parse(accessToken)
	if err != nil {
		return nil, backend.ErrNoSession
	}
	record, err := a.users.GetAuthSession(claims.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, backend.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load auth session: %w", err)
	}

	return &models.Session{
		AccessToken: accessToken,
		UserID:      record.UserID,
		Email:       record.Email,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// SignOut revokes the token's sign-in record
func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	claims, err := a.parse(accessToken)
	if err != nil {
		return backend.ErrNoSession
	}
	if err := a.users.DeleteAuthSession(claims.SessionID); err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}

	a.events.Publish(backend.SessionEvent{
		Type:        backend.SignedOut,
		AccessToken: accessToken,
		Email:       claims.Email,
	})
	return nil
}

// OnSessionChanged subscribes fn to sign-in and sign-out events
func (a *Auth) OnSessionChanged(fn func(backend.SessionEvent)) func() {
	return a.events.Subscribe(fn)
}

func (a *Auth) startSession(user *models.User) (*models.Session, error) {
	record, err := a.users.CreateAuthSession(user, a.ttl)
	if err != nil {
		return nil, fmt.Errorf("create auth session: %w", err)
	}

	token, err := a.issue(user, record)
	if err != nil {
		return nil, err
	}

	sess := &models.Session{
		AccessToken: token,
		UserID:      user.ID,
		Email:       user.Email,
		ExpiresAt:   record.ExpiresAt,
	}
	a.events.Publish(backend.SessionEvent{
		Type:        backend.SignedIn,
		AccessToken: token,
		Email:       user.Email,
		Session:     sess,
	})
	return sess, nil
}

func (a *Auth) issue(user *models.User, record *models.AuthSession) (string, error) {
	claims := &Claims{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: record.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(record.CreatedAt),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (a *Auth) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, backend.ErrNoSession
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
