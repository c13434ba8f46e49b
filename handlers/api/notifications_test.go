package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Broadcast_Targets_Matching_Subscribers(t *testing.T) {
	req := require.New(t)
	h := NewNotificationHandler()

	aliceID, alice := h.subscribe("alice@org.vn", "tok-a")
	_, bob := h.subscribe("bob@org.vn", "tok-b")
	req.Equal(2, h.Subscribers())

	h.broadcast(MailboxChanged, func(s *subscriber) bool { return s.identity == "alice@org.vn" })

	select {
	case n := <-alice.ch:
		req.Equal(MailboxChanged, n.Type)
	case <-time.After(time.Second):
		req.Fail("alice got nothing")
	}
	req.Empty(bob.ch)

	h.unsubscribe(aliceID, "SSE")
	req.Equal(1, h.Subscribers())
}

func Test_Broadcast_Never_Blocks(t *testing.T) {
	req := require.New(t)
	h := NewNotificationHandler()
	_, sub := h.subscribe("alice@org.vn", "tok-a")

	for i := 0; i < cap(sub.ch)+5; i++ {
		h.broadcast(SessionChanged, func(*subscriber) bool { return true })
	}
	req.Len(sub.ch, cap(sub.ch))
}
