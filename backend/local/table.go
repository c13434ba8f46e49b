package local

import (
	"context"
	"cuchimail/backend"
	"cuchimail/models"
	"cuchimail/storage"
	"fmt"
	"net/http"
	"slices"

	"github.com/samber/lo"
)

// MessagesTable implements backend.Table for the messages table on a storage engine
type MessagesTable struct {
	store   storage.MessageStore
	auth    *Auth
	changes *backend.Feed[backend.Change]
}

// NewMessagesTable wraps store. When auth is set, inserts that carry an
// access token must be sent as the token's own address.
func NewMessagesTable(store storage.MessageStore, auth *Auth) *MessagesTable {
	return &MessagesTable{
		store:   store,
		auth:    auth,
		changes: backend.NewFeed[backend.Change](),
	}
}

// Insert stores one message row and announces it on the change feed
func (t *MessagesTable) Insert(ctx context.Context, row backend.Row) error {
	payload := models.NewMessage{
		SenderEmail:    stringOf(row, models.ColumnSenderEmail),
		RecipientEmail: stringOf(row, models.ColumnRecipientEmail),
		Subject:        stringOf(row, models.ColumnSubject),
		Body:           stringOf(row, models.ColumnBody),
	}
	if err := payload.Validate(); err != nil {
		return &backend.Error{Status: http.StatusBadRequest, Message: "invalid message row", Err: err}
	}

	if token, ok := backend.AccessToken(ctx); ok && t.auth != nil {
		sess, err := t.auth.GetSession(ctx, token)
		if err != nil {
			return &backend.Error{Status: http.StatusUnauthorized, Message: "JWT expired or revoked", Err: err}
		}
		if sess.Email != payload.SenderEmail {
			return &backend.Error{Status: http.StatusForbidden, Message: "new row violates row-level security policy for table \"messages\""}
		}
	}

	msg := models.Message{
		SenderEmail:    payload.SenderEmail,
		RecipientEmail: payload.RecipientEmail,
		Subject:        payload.Subject,
		Body:           payload.Body,
	}
	if err := t.store.InsertMessage(ctx, &msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	t.changes.Publish(backend.Change{
		Type:  backend.ChangeInsert,
		Table: models.MessagesTable,
		Row:   msg.Row(),
	})
	return nil
}

// Select returns rows matching q, newest first unless q asks for ascending order
func (t *MessagesTable) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	var filter storage.MessageFilter
	for _, f := range q.Filters {
		switch f.Column {
		case models.ColumnSenderEmail:
			filter.SenderEmail = f.Value
		case models.ColumnRecipientEmail:
			filter.RecipientEmail = f.Value
		case models.ColumnID:
		default:
			return nil, &backend.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("column messages.%s does not exist", f.Column)}
		}
	}
	if q.OrderBy != "" && q.OrderBy != models.ColumnCreatedAt {
		return nil, &backend.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("cannot order messages by %s", q.OrderBy)}
	}

	messages, err := t.store.FindMessages(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	rows := lo.Filter(lo.Map(messages, func(m models.Message, _ int) backend.Row {
		return backend.Row(m.Row())
	}), func(r backend.Row, _ int) bool {
		return q.Matches(r)
	})

	if q.Ascending {
		slices.Reverse(rows)
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// OnChange subscribes fn to inserts on this table
func (t *MessagesTable) OnChange(fn func(backend.Change)) func() {
	return t.changes.Subscribe(fn)
}

func stringOf(row backend.Row, col string) string {
	s, _ := row[col].(string)
	return s
}
