package storage

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

type sessionEntry struct {
	Value     []byte    `json:"v"`
	ExpiresAt time.Time `json:"e,omitempty"`
}

// SessionStorage implements fiber.Storage on the Sessions bucket so device
// sessions survive restarts.
type SessionStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewSessionStorage creates a session storage on an opened database
func NewSessionStorage(db *bbolt.DB) *SessionStorage {
	return &SessionStorage{db: db, now: time.Now}
}

// Get returns the value for key, or nil when absent or expired
func (s *SessionStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}

	var entry sessionEntry
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil || !found {
		return nil, err
	}
	if !entry.ExpiresAt.IsZero() && !s.now().Before(entry.ExpiresAt) {
		return nil, s.Delete(key)
	}
	return entry.Value, nil
}

// Set stores val for key; exp of 0 means no expiry
func (s *SessionStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}

	entry := sessionEntry{Value: val}
	if exp > 0 {
		entry.ExpiresAt = s.now().Add(exp)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(sessionsBucket), key, &entry)
	})
}

// Delete removes key
func (s *SessionStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(key))
	})
}

// Reset removes every session
func (s *SessionStorage) Reset() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(sessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(sessionsBucket)
		return err
	})
}

// Close is a no-op; the database is closed by its owner
func (s *SessionStorage) Close() error {
	return nil
}
