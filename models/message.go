package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		return IsAddress(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// IsAddress reports whether s looks like local@domain. Domains need no dot,
// so "a@org" is an address.
func IsAddress(s string) bool {
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	i := strings.LastIndexByte(s, '@')
	return i > 0 && i < len(s)-1
}

// ValidateAddress checks a single address with the "address" rule
func ValidateAddress(s string) error {
	return validate.Var(s, "required,address")
}

// Columns of the messages table
const (
	ColumnID             = "id"
	ColumnSenderEmail    = "sender_email"
	ColumnRecipientEmail = "recipient_email"
	ColumnSubject        = "subject"
	ColumnBody           = "body"
	ColumnCreatedAt      = "created_at"
)

// MessagesTable is the collaborator table holding mail rows
const MessagesTable = "messages"

// ErrMalformedRow is returned for rows that fail the Message schema
var ErrMalformedRow = errors.New("malformed message row")

// Message is one persisted mail entry. Messages are never updated or deleted.
type Message struct {
	ID             string    `json:"id" validate:"required"`
	SenderEmail    string    `json:"sender_email" validate:"required,address"`
	RecipientEmail string    `json:"recipient_email" validate:"required,address"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at" validate:"required"`
}

// NewMessage is the insert payload; id and created_at come from the collaborator
type NewMessage struct {
	SenderEmail    string `json:"sender_email" validate:"required,address"`
	RecipientEmail string `json:"recipient_email" validate:"required,address"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

// Validate checks the payload before it is sent to the collaborator
func (m NewMessage) Validate() error {
	return validate.Struct(m)
}

// Row converts the payload into a collaborator row
func (m NewMessage) Row() map[string]any {
	return map[string]any{
		ColumnSenderEmail:    m.SenderEmail,
		ColumnRecipientEmail: m.RecipientEmail,
		ColumnSubject:        m.Subject,
		ColumnBody:           m.Body,
	}
}

// Row converts a stored message back into a collaborator row
func (m Message) Row() map[string]any {
	return map[string]any{
		ColumnID:             m.ID,
		ColumnSenderEmail:    m.SenderEmail,
		ColumnRecipientEmail: m.RecipientEmail,
		ColumnSubject:        m.Subject,
		ColumnBody:           m.Body,
		ColumnCreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// DecodeMessage converts an untyped collaborator row into a Message.
// Every column must be present; addresses must parse as email and
// created_at must be a timestamp.
func DecodeMessage(row map[string]any) (Message, error) {
	var msg Message
	var err error

	for _, col := range []string{ColumnID, ColumnSenderEmail, ColumnRecipientEmail, ColumnSubject, ColumnBody, ColumnCreatedAt} {
		if v, ok := row[col]; !ok || v == nil {
			return Message{}, fmt.Errorf("%w: missing %s", ErrMalformedRow, col)
		}
	}

	if msg.ID, err = idString(row[ColumnID]); err != nil {
		return Message{}, err
	}
	if msg.SenderEmail, err = stringColumn(row, ColumnSenderEmail); err != nil {
		return Message{}, err
	}
	if msg.RecipientEmail, err = stringColumn(row, ColumnRecipientEmail); err != nil {
		return Message{}, err
	}
	if msg.Subject, err = stringColumn(row, ColumnSubject); err != nil {
		return Message{}, err
	}
	if msg.Body, err = stringColumn(row, ColumnBody); err != nil {
		return Message{}, err
	}
	if msg.CreatedAt, err = parseTimestamp(row[ColumnCreatedAt]); err != nil {
		return Message{}, err
	}

	if err := validate.Struct(msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	return msg, nil
}

// RowID extracts a printable id from a row, or "" when it has none
func RowID(row map[string]any) string {
	id, err := idString(row[ColumnID])
	if err != nil {
		return ""
	}
	return id
}

func stringColumn(row map[string]any, col string) (string, error) {
	s, ok := row[col].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrMalformedRow, col, row[col])
	}
	return s, nil
}

func idString(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if strings.TrimSpace(id) == "" {
			return "", fmt.Errorf("%w: empty id", ErrMalformedRow)
		}
		return id, nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case int:
		return strconv.Itoa(id), nil
	}
	return "", fmt.Errorf("%w: id is %T", ErrMalformedRow, v)
}

func parseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC(), nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, ts); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: created_at %q is not a timestamp", ErrMalformedRow, ts)
	case float64:
		return time.Unix(int64(ts), 0).UTC(), nil
	case int64:
		return time.Unix(ts, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: created_at is %T", ErrMalformedRow, v)
}

// SortNewestFirst orders messages by created_at descending, then id descending
func SortNewestFirst(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
