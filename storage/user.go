package storage

import (
	"cuchimail/models"
	"cuchimail/utils"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"
)

// UserStorage manages local collaborator accounts and their sign-in records
type UserStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewUserStorage creates a user storage on an opened database
func NewUserStorage(db *bbolt.DB) *UserStorage {
	return &UserStorage{db: db, now: time.Now}
}

// CreateUser stores a new user with a bcrypt hash of password.
// The email must not be registered yet.
func (s *UserStorage) CreateUser(email, password string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        utils.NormalizeAddress(email),
		PasswordHash: string(hashedPassword),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(userEmailsBucket)
		if emails.Get([]byte(user.Email)) != nil {
			return ErrUserExists
		}
		if err := putJSON(tx.Bucket(usersBucket), user.ID, user); err != nil {
			return err
		}
		return emails.Put([]byte(user.Email), []byte(user.ID))
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID
func (s *UserStorage) GetUser(userID string) (*models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(usersBucket), userID, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user through the email index
func (s *UserStorage) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(userEmailsBucket).Get([]byte(utils.NormalizeAddress(email)))
		if id == nil {
			return ErrNotFound
		}
		return getJSON(tx.Bucket(usersBucket), string(id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyPassword checks password against the stored hash of the user
func (s *UserStorage) VerifyPassword(user *models.User, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
}

// TouchLogin records a successful sign-in
func (s *UserStorage) TouchLogin(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		var user models.User
		if err := getJSON(b, userID, &user); err != nil {
			return err
		}
		user.LastLoginAt = s.now().UTC()
		return putJSON(b, user.ID, &user)
	})
}

// ListUsers returns every user ordered by email
func (s *UserStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		users = make([]models.User, 0, tx.Bucket(userEmailsBucket).Stats().KeyN)
		// the email index is kept sorted by bbolt
		return tx.Bucket(userEmailsBucket).ForEach(func(_, id []byte) error {
			var user models.User
			if err := getJSON(tx.Bucket(usersBucket), string(id), &user); err != nil {
				return err
			}
			users = append(users, user)
			return nil
		})
	})
	return users, err
}

// CreateAuthSession records a sign-in valid for ttl
func (s *UserStorage) CreateAuthSession(user *models.User, ttl time.Duration) (*models.AuthSession, error) {
	now := s.now().UTC()
	sess := &models.AuthSession{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(authSessionsBucket), sess.ID, sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetAuthSession returns a sign-in record that has not expired
func (s *UserStorage) GetAuthSession(id string) (*models.AuthSession, error) {
	var sess models.AuthSession
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(authSessionsBucket), id, &sess)
	})
	if err != nil {
		return nil, err
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// DeleteAuthSession removes a sign-in record. Missing records are not an error.
func (s *UserStorage) DeleteAuthSession(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(authSessionsBucket).Delete([]byte(id))
	})
}

// PurgeExpiredAuthSessions drops sign-in records past their expiry
func (s *UserStorage) PurgeExpiredAuthSessions() (int, error) {
	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(authSessionsBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var sess models.AuthSession
			if err := json.Unmarshal(v, &sess); err != nil || !now.Before(sess.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	return removed, err
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return b.Put([]byte(key), encoded)
}

func getJSON(b *bbolt.Bucket, key string, v any) error {
	data := b.Get([]byte(key))
	if data == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
