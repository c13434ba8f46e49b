// Package local is a self-hosted collaborator: accounts and messages live in
// the application's own bbolt database (or SQLite for messages).
package local

import (
	"context"
	"cuchimail/backend"
	"cuchimail/models"
	"cuchimail/storage"
	"cuchimail/utils"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// Message engines
const (
	EngineBolt   = "bolt"
	EngineSQLite = "sqlite"
)

// Options configures the local collaborator
type Options struct {
	DataDir       string
	MessageEngine string
	JWTSecret     string
	TokenTTL      time.Duration
}

// Collaborator implements backend.Collaborator on local storage
type Collaborator struct {
	auth     *Auth
	messages *MessagesTable
	store    storage.MessageStore
}

// New builds the local collaborator on an opened database
func New(db *bbolt.DB, opts Options) (*Collaborator, error) {
	var store storage.MessageStore
	switch opts.MessageEngine {
	case "", EngineBolt:
		store = storage.NewBoltMessageStorage(db)
	case EngineSQLite:
		s, err := storage.NewSQLiteMessageStorage(filepath.Join(opts.DataDir, storage.SQLiteFile))
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown message engine %q", opts.MessageEngine)
	}

	users := storage.NewUserStorage(db)
	if n, err := users.PurgeExpiredAuthSessions(); err != nil {
		utils.Log.Warn("Failed to purge expired auth sessions: %v", err)
	} else if n > 0 {
		utils.Log.Info("Purged %d expired auth sessions", n)
	}

	auth := NewAuth(users, opts.JWTSecret, opts.TokenTTL)
	return &Collaborator{
		auth:     auth,
		messages: NewMessagesTable(store, auth),
		store:    store,
	}, nil
}

// Auth returns the auth service
func (c *Collaborator) Auth() backend.Auth {
	return c.auth
}

// From returns the named table; only messages exists
func (c *Collaborator) From(table string) backend.Table {
	if table == models.MessagesTable {
		return c.messages
	}
	return unknownTable(table)
}

// Close releases the message engine
func (c *Collaborator) Close() error {
	return c.store.Close()
}

type unknownTable string

func (t unknownTable) Insert(context.Context, backend.Row) error {
	return fmt.Errorf("%w: %s", backend.ErrUnknownTable, string(t))
}

func (t unknownTable) Select(context.Context, backend.Query) ([]backend.Row, error) {
	return nil, fmt.Errorf("%w: %s", backend.ErrUnknownTable, string(t))
}

func (t unknownTable) OnChange(func(backend.Change)) func() {
	return func() {}
}
