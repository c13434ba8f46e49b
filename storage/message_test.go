package storage

import (
	"context"
	"cuchimail/models"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func messageStores(t *testing.T) map[string]func(now func() time.Time) MessageStore {
	return map[string]func(now func() time.Time) MessageStore{
		"bolt": func(now func() time.Time) MessageStore {
			s := NewBoltMessageStorage(setupDB(t))
			s.now = now
			return s
		},
		"sqlite": func(now func() time.Time) MessageStore {
			s, err := NewSQLiteMessageStorage(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			s.now = now
			return s
		},
	}
}

func Test_MessageStore_Insert_And_Find(t *testing.T) {
	for name, open := range messageStores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()

			at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
			clock := at
			store := open(func() time.Time { return clock })

			send := func(from, to, subject string) models.Message {
				m := models.Message{SenderEmail: from, RecipientEmail: to, Subject: subject, Body: "body"}
				req.NoError(store.InsertMessage(ctx, &m))
				req.NotEmpty(m.ID)
				clock = clock.Add(time.Minute)
				return m
			}

			first := send("alice@cuchi.vn", "bob@cuchi.vn", "one")
			second := send("bob@cuchi.vn", "alice@cuchi.vn", "two")
			third := send("alice@cuchi.vn", "bob@cuchi.vn", "three")

			// When listing everything
			all, err := store.FindMessages(ctx, MessageFilter{})
			req.NoError(err)

			// Then the newest comes first
			req.Len(all, 3)
			req.Equal(third.ID, all[0].ID)
			req.Equal(second.ID, all[1].ID)
			req.Equal(first.ID, all[2].ID)
			req.True(all[2].CreatedAt.Equal(at))

			inbox, err := store.FindMessages(ctx, MessageFilter{RecipientEmail: "bob@cuchi.vn"})
			req.NoError(err)
			req.Len(inbox, 2)
			req.Equal("three", inbox[0].Subject)

			limited, err := store.FindMessages(ctx, MessageFilter{SenderEmail: "alice@cuchi.vn", Limit: 1})
			req.NoError(err)
			req.Len(limited, 1)
			req.Equal(third.ID, limited[0].ID)

			none, err := store.FindMessages(ctx, MessageFilter{RecipientEmail: "nobody@cuchi.vn"})
			req.NoError(err)
			req.NotNil(none)
			req.Empty(none)
		})
	}
}

func Test_MessageStore_Cancelled_Context(t *testing.T) {
	for name, open := range messageStores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			store := open(time.Now)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := store.FindMessages(ctx, MessageFilter{})
			req.ErrorIs(err, context.Canceled)
		})
	}
}
