// Package mail wraps the messages table: sending, per-identity listings and
// the cache the change feed keeps honest.
package mail

import (
	"context"
	"cuchimail/backend"
	"cuchimail/models"
	"cuchimail/utils"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

var (
	ErrWrite = errors.New("could not send message")
	ErrRead  = errors.New("could not load messages")
)

// Service is the data-access layer over the collaborator's messages table
type Service struct {
	table backend.Table
	log   *utils.Logger
}

// NewService creates a service on the messages table
func NewService(table backend.Table) *Service {
	return &Service{
		table: table,
		log:   utils.Log.WithField("component", "mail"),
	}
}

// SendInternalEmail inserts one message row. There is no retry.
func (s *Service) SendInternalEmail(ctx context.Context, msg models.NewMessage) error {
	log := s.log.WithFields(map[string]interface{}{
		"sender":    msg.SenderEmail,
		"recipient": msg.RecipientEmail,
	})

	if err := msg.Validate(); err != nil {
		log.Error("Rejected message: %v", err)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := s.table.Insert(ctx, backend.Row(msg.Row())); err != nil {
		log.Error("Failed to send message: %v", err)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	log.Debug("Message sent")
	return nil
}

// GetInbox lists messages addressed to identity, newest first.
// An empty inbox is an empty slice with a nil error.
func (s *Service) GetInbox(ctx context.Context, identity string) ([]models.Message, error) {
	return s.list(ctx, models.ColumnRecipientEmail, identity)
}

// GetSent lists messages sent by identity, newest first
func (s *Service) GetSent(ctx context.Context, identity string) ([]models.Message, error) {
	return s.list(ctx, models.ColumnSenderEmail, identity)
}

// GetMailbox is the union of inbox and sent without duplicates, newest first
func (s *Service) GetMailbox(ctx context.Context, identity string) ([]models.Message, error) {
	inbox, err := s.GetInbox(ctx, identity)
	if err != nil {
		return nil, err
	}
	sent, err := s.GetSent(ctx, identity)
	if err != nil {
		return nil, err
	}

	messages := lo.UniqBy(append(inbox, sent...), func(m models.Message) string {
		return m.ID
	})
	models.SortNewestFirst(messages)
	return messages, nil
}

func (s *Service) list(ctx context.Context, column, identity string) ([]models.Message, error) {
	q := backend.Query{OrderBy: models.ColumnCreatedAt}.Where(column, identity)

	rows, err := s.table.Select(ctx, q)
	if err != nil {
		s.log.WithFields(map[string]interface{}{
			"identity": identity,
			"column":   column,
		}).Error("Failed to load messages: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := models.DecodeMessage(row)
		if err != nil {
			s.log.WithField("id", models.RowID(row)).Warn("Quarantined row: %v", err)
			continue
		}
		messages = append(messages, msg)
	}

	models.SortNewestFirst(messages)
	return messages, nil
}
