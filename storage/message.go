package storage

import (
	"context"
	"cuchimail/models"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// MessageFilter narrows a message listing. Empty fields match everything.
type MessageFilter struct {
	SenderEmail    string
	RecipientEmail string
	Limit          int
}

func (f MessageFilter) match(m *models.Message) bool {
	if f.SenderEmail != "" && m.SenderEmail != f.SenderEmail {
		return false
	}
	if f.RecipientEmail != "" && m.RecipientEmail != f.RecipientEmail {
		return false
	}
	return true
}

// MessageStore is a storage engine for the local messages table
type MessageStore interface {
	// InsertMessage assigns the id and created_at of m and stores it
	InsertMessage(ctx context.Context, m *models.Message) error
	// FindMessages lists matching messages newest first, ties broken by id descending
	FindMessages(ctx context.Context, f MessageFilter) ([]models.Message, error)
	Close() error
}

// BoltMessageStorage keeps messages as JSON values in the Messages bucket
type BoltMessageStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltMessageStorage creates a message store on an opened database.
// The database is owned by the caller.
func NewBoltMessageStorage(db *bbolt.DB) *BoltMessageStorage {
	return &BoltMessageStorage{db: db, now: time.Now}
}

// InsertMessage stores m under a fresh id
func (s *BoltMessageStorage) InsertMessage(ctx context.Context, m *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.ID = uuid.New().String()
	m.CreatedAt = s.now().UTC()

	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(messagesBucket), m.ID, m)
	})
}

// FindMessages scans the bucket and returns matching messages newest first
func (s *BoltMessageStorage) FindMessages(ctx context.Context, f MessageFilter) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(messagesBucket).ForEach(func(k, v []byte) error {
			var m models.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("failed to decode message %s: %w", k, err)
			}
			if f.match(&m) {
				messages = append(messages, m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	models.SortNewestFirst(messages)
	if f.Limit > 0 && len(messages) > f.Limit {
		messages = messages[:f.Limit]
	}
	return messages, nil
}

// Close is a no-op; the database belongs to whoever opened it
func (s *BoltMessageStorage) Close() error {
	return nil
}
