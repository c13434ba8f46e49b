package storage

import (
	"context"
	"cuchimail/models"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so created_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteFile is the SQLite message database name inside the data directory
const SQLiteFile = "messages.sqlite"

// SQLiteMessageStorage stores messages in a SQLite database
type SQLiteMessageStorage struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteMessageStorage opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteMessageStorage(dbPath string) (*SQLiteMessageStorage, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteMessageStorage{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteMessageStorage) Close() error {
	return s.db.Close()
}

// runMigrations applies outstanding migrations in order.
func (s *SQLiteMessageStorage) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// InsertMessage stores m under a fresh id
func (s *SQLiteMessageStorage) InsertMessage(ctx context.Context, m *models.Message) error {
	m.ID = uuid.New().String()
	m.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_email, recipient_email, subject, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderEmail, m.RecipientEmail, m.Subject, m.Body, m.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// FindMessages lists matching messages newest first
func (s *SQLiteMessageStorage) FindMessages(ctx context.Context, f MessageFilter) ([]models.Message, error) {
	var conditions []string
	var args []interface{}

	if f.SenderEmail != "" {
		conditions = append(conditions, "sender_email = ?")
		args = append(args, f.SenderEmail)
	}
	if f.RecipientEmail != "" {
		conditions = append(conditions, "recipient_email = ?")
		args = append(args, f.RecipientEmail)
	}

	query := "SELECT id, sender_email, recipient_email, subject, body, created_at FROM messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			m         models.Message
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.SenderEmail, &m.RecipientEmail, &m.Subject, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		if m.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at of %s: %w", m.ID, err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
