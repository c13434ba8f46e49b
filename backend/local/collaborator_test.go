package local

import (
	"context"
	"cuchimail/backend"
	"cuchimail/models"
	"cuchimail/storage"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCollaborator(t *testing.T, engine string) *Collaborator {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.InitDB(dir)
	require.NoError(t, err)

	c, err := New(db, Options{DataDir: dir, MessageEngine: engine, JWTSecret: "test-secret", TokenTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		db.Close()
	})
	return c
}

func Test_SignUp_Then_SignIn_Yields_Same_Identity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	auth := newCollaborator(t, EngineBolt).Auth()
	creds := models.Credentials{Email: "alice@cuchi.vn", Password: "secret1"}

	signedUp, err := auth.SignUp(ctx, creds)
	req.NoError(err)
	req.NotNil(signedUp)
	req.Equal("alice@cuchi.vn", signedUp.Email)

	signedIn, err := auth.SignInWithPassword(ctx, creds)
	req.NoError(err)
	req.Equal(signedUp.Email, signedIn.Email)
	req.Equal(signedUp.UserID, signedIn.UserID)

	current, err := auth.GetSession(ctx, signedIn.AccessToken)
	req.NoError(err)
	req.Equal("alice@cuchi.vn", current.Email)
}

func Test_Auth_Errors(t *testing.T) {
	ctx := context.Background()
	auth := newCollaborator(t, EngineBolt).Auth()
	creds := models.Credentials{Email: "alice@cuchi.vn", Password: "secret1"}
	_, err := auth.SignUp(ctx, creds)
	require.NoError(t, err)

	t.Run("should refuse a second registration", func(t *testing.T) {
		req := require.New(t)
		_, err := auth.SignUp(ctx, creds)
		req.ErrorIs(err, backend.ErrUserExists)
		req.Equal("User already registered", backend.Message(err))
	})

	t.Run("should refuse a wrong password", func(t *testing.T) {
		req := require.New(t)
		_, err := auth.SignInWithPassword(ctx, models.Credentials{Email: creds.Email, Password: "nope123"})
		req.ErrorIs(err, backend.ErrInvalidCredentials)
		req.Equal("Invalid login credentials", backend.Message(err))
	})

	t.Run("should refuse an unknown user the same way", func(t *testing.T) {
		req := require.New(t)
		_, err := auth.SignInWithPassword(ctx, models.Credentials{Email: "ghost@cuchi.vn", Password: "secret1"})
		req.ErrorIs(err, backend.ErrInvalidCredentials)
	})

	t.Run("should report no session for garbage tokens", func(t *testing.T) {
		req := require.New(t)
		_, err := auth.GetSession(ctx, "not.a.jwt")
		req.ErrorIs(err, backend.ErrNoSession)
		_, err = auth.GetSession(ctx, "")
		req.ErrorIs(err, backend.ErrNoSession)
	})

	t.Run("should refuse a malformed address", func(t *testing.T) {
		req := require.New(t)
		_, err := auth.SignUp(ctx, models.Credentials{Email: "alice", Password: "secret1"})
		var be *backend.Error
		req.True(errors.As(err, &be))
		req.Equal(400, be.Status)
	})
}

func Test_SignOut_Revokes_Token_And_Notifies(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	auth := newCollaborator(t, EngineBolt).Auth()

	var (
		mu     sync.Mutex
		events []backend.SessionEvent
	)
	unsubscribe := auth.OnSessionChanged(func(ev backend.SessionEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer unsubscribe()

	sess, err := auth.SignUp(ctx, models.Credentials{Email: "alice@cuchi.vn", Password: "secret1"})
	req.NoError(err)

	req.NoError(auth.SignOut(ctx, sess.AccessToken))

	_, err = auth.GetSession(ctx, sess.AccessToken)
	req.ErrorIs(err, backend.ErrNoSession)

	mu.Lock()
	defer mu.Unlock()
	req.Len(events, 2)
	req.Equal(backend.SignedIn, events[0].Type)
	req.Equal(backend.SignedOut, events[1].Type)
	req.Equal(sess.AccessToken, events[1].AccessToken)
	req.Nil(events[1].Session)
}

func Test_Expired_Token_Has_No_Session(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newCollaborator(t, EngineBolt)

	sess, err := c.auth.SignUp(ctx, models.Credentials{Email: "alice@cuchi.vn", Password: "secret1"})
	req.NoError(err)

	c.auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = c.auth.GetSession(ctx, sess.AccessToken)
	req.ErrorIs(err, backend.ErrNoSession)
}

func Test_MessagesTable(t *testing.T) {
	for _, engine := range []string{EngineBolt, EngineSQLite} {
		t.Run(engine, func(t *testing.T) {
			ctx := context.Background()
			c := newCollaborator(t, engine)
			table := c.From(models.MessagesTable)

			alice, err := c.Auth().SignUp(ctx, models.Credentials{Email: "alice@cuchi.vn", Password: "secret1"})
			require.NoError(t, err)

			t.Run("should insert and announce a row", func(t *testing.T) {
				req := require.New(t)
				changes := make(chan backend.Change, 1)
				unsubscribe := table.OnChange(func(ch backend.Change) { changes <- ch })
				defer unsubscribe()

				row := models.NewMessage{SenderEmail: "alice@cuchi.vn", RecipientEmail: "bob@cuchi.vn", Subject: "Hi", Body: "Hello"}.Row()
				req.NoError(table.Insert(backend.WithAccessToken(ctx, alice.AccessToken), row))

				select {
				case ch := <-changes:
					req.Equal(backend.ChangeInsert, ch.Type)
					req.Equal(models.MessagesTable, ch.Table)
					req.Equal("bob@cuchi.vn", ch.Row[models.ColumnRecipientEmail])
				case <-time.After(time.Second):
					req.Fail("no change published")
				}

				rows, err := table.Select(ctx, backend.Query{}.Where(models.ColumnRecipientEmail, "bob@cuchi.vn"))
				req.NoError(err)
				req.Len(rows, 1)
				msg, err := models.DecodeMessage(rows[0])
				req.NoError(err)
				req.Equal("Hi", msg.Subject)
			})

			t.Run("should refuse to send as someone else", func(t *testing.T) {
				req := require.New(t)
				row := models.NewMessage{SenderEmail: "carol@cuchi.vn", RecipientEmail: "bob@cuchi.vn"}.Row()
				err := table.Insert(backend.WithAccessToken(ctx, alice.AccessToken), row)
				var be *backend.Error
				req.True(errors.As(err, &be))
				req.Equal(403, be.Status)
			})

			t.Run("should reject unknown filter columns", func(t *testing.T) {
				req := require.New(t)
				_, err := table.Select(ctx, backend.Query{}.Where("password", "x"))
				var be *backend.Error
				req.True(errors.As(err, &be))
				req.Equal(400, be.Status)
			})
		})
	}
}

func Test_Unknown_Table(t *testing.T) {
	req := require.New(t)
	c := newCollaborator(t, EngineBolt)

	_, err := c.From("contacts").Select(context.Background(), backend.Query{})
	req.ErrorIs(err, backend.ErrUnknownTable)
}
