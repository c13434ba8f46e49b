package mail_test

import (
	"context"
	"cuchimail/backend"
	"cuchimail/backend/local"
	"cuchimail/mail"
	"cuchimail/mocks"
	"cuchimail/models"
	"cuchimail/storage"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newLocalTable(t *testing.T) *local.MessagesTable {
	t.Helper()
	db, err := storage.InitDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return local.NewMessagesTable(storage.NewBoltMessageStorage(db), nil)
}

func Test_Send_Then_Inbox_Contains_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := mail.NewService(newLocalTable(t))

	before := time.Now().UTC().Add(-time.Millisecond)
	err := service.SendInternalEmail(ctx, models.NewMessage{
		SenderEmail:    "a@org.vn",
		RecipientEmail: "b@org.vn",
		Subject:        "Hi",
		Body:           "hello",
	})
	req.NoError(err)

	inbox, err := service.GetInbox(ctx, "b@org.vn")
	req.NoError(err)
	req.Len(inbox, 1)
	req.Equal("a@org.vn", inbox[0].SenderEmail)
	req.Equal("Hi", inbox[0].Subject)
	req.Equal("hello", inbox[0].Body)
	req.False(inbox[0].CreatedAt.Before(before))
}

func Test_Send_Between_Short_Domain_Addresses(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := mail.NewService(newLocalTable(t))

	// Given a@org sends to b@org
	err := service.SendInternalEmail(ctx, models.NewMessage{
		SenderEmail:    "a@org",
		RecipientEmail: "b@org",
		Subject:        "Hi",
		Body:           "hello",
	})
	req.NoError(err)

	// When b@org reads the inbox
	inbox, err := service.GetInbox(ctx, "b@org")

	// Then the message is there
	req.NoError(err)
	req.Len(inbox, 1)
	req.Equal("a@org", inbox[0].SenderEmail)
	req.Equal("hello", inbox[0].Body)
}

func Test_Inbox_And_Sent_Partition(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := mail.NewService(newLocalTable(t))

	send := func(from, to string) {
		req.NoError(service.SendInternalEmail(ctx, models.NewMessage{SenderEmail: from, RecipientEmail: to, Subject: from + "->" + to}))
	}
	send("a@org.vn", "b@org.vn")
	send("b@org.vn", "a@org.vn")
	send("c@org.vn", "a@org.vn")
	send("b@org.vn", "c@org.vn")
	send("a@org.vn", "a@org.vn")

	inbox, err := service.GetInbox(ctx, "a@org.vn")
	req.NoError(err)
	req.Len(inbox, 3)
	for _, m := range inbox {
		req.Equal("a@org.vn", m.RecipientEmail)
	}

	sent, err := service.GetSent(ctx, "a@org.vn")
	req.NoError(err)
	req.Len(sent, 2)
	for _, m := range sent {
		req.Equal("a@org.vn", m.SenderEmail)
	}

	// The self-addressed message shows up in both views but once in the mailbox
	all, err := service.GetMailbox(ctx, "a@org.vn")
	req.NoError(err)
	req.Len(all, 4)
	for i := 1; i < len(all); i++ {
		req.False(all[i].CreatedAt.After(all[i-1].CreatedAt))
	}
}

func Test_Read_Failure_Is_Not_An_Empty_Inbox(t *testing.T) {
	ctx := context.Background()

	t.Run("should return an empty slice for an empty inbox", func(t *testing.T) {
		req := require.New(t)
		service := mail.NewService(newLocalTable(t))

		inbox, err := service.GetInbox(ctx, "nobody@org.vn")
		req.NoError(err)
		req.NotNil(inbox)
		req.Empty(inbox)
	})

	t.Run("should return ErrRead when the select fails", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		table := mocks.NewMockTable(ctrl)
		table.EXPECT().Select(gomock.Any(), gomock.Any()).Return(nil, &backend.Error{Status: 503, Message: "unavailable"})

		inbox, err := mail.NewService(table).GetInbox(ctx, "a@org.vn")
		req.ErrorIs(err, mail.ErrRead)
		req.Nil(inbox)
		req.Equal("unavailable", backend.Message(err))
	})
}

func Test_Malformed_Rows_Are_Quarantined(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	table := mocks.NewMockTable(ctrl)

	good := models.Message{
		ID:             "1",
		SenderEmail:    "a@org.vn",
		RecipientEmail: "b@org.vn",
		Subject:        "ok",
		CreatedAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	table.EXPECT().Select(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, q backend.Query) ([]backend.Row, error) {
		req.Equal([]backend.Eq{{Column: models.ColumnRecipientEmail, Value: "b@org.vn"}}, q.Filters)
		req.Equal(models.ColumnCreatedAt, q.OrderBy)
		return []backend.Row{
			good.Row(),
			{"id": "2", "sender_email": "a@org.vn"},
			{"id": "3", "sender_email": "a@org.vn", "recipient_email": "b@org.vn", "subject": "x", "body": "y", "created_at": "soon"},
		}, nil
	})

	inbox, err := mail.NewService(table).GetInbox(context.Background(), "b@org.vn")
	req.NoError(err)
	req.Equal([]models.Message{good}, inbox)
}

func Test_Send_Failure_Wraps_ErrWrite(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	table := mocks.NewMockTable(ctrl)
	table.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	err := mail.NewService(table).SendInternalEmail(context.Background(), models.NewMessage{SenderEmail: "a@org.vn", RecipientEmail: "b@org.vn"})
	req.ErrorIs(err, mail.ErrWrite)

	// Invalid payloads never reach the table
	err = mail.NewService(table).SendInternalEmail(context.Background(), models.NewMessage{SenderEmail: "a@org.vn", RecipientEmail: "not-an-address"})
	req.ErrorIs(err, mail.ErrWrite)
}
