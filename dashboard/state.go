// Package dashboard holds the mail dashboard's view state and the pure
// computations over it. Nothing here performs I/O.
package dashboard

import (
	"cuchimail/models"
	"strings"

	"github.com/samber/lo"
)

// View is one screen of the dashboard
type View string

const (
	Inbox    View = "inbox"
	Sent     View = "sent"
	Compose  View = "compose"
	Settings View = "settings"
	Detail   View = "detail"
)

// Views lists every view in sidebar order
var Views = []View{Inbox, Sent, Compose, Settings}

// ParseView maps a route or query value to a view, defaulting to inbox
func ParseView(s string) View {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case Inbox, Sent, Compose, Settings, Detail:
		return v
	}
	return Inbox
}

// Counts are the sidebar totals
type Counts struct {
	Inbox int
	Sent  int
}

// State is the dashboard of one identity
type State struct {
	Identity   string
	View       View
	List       View // inbox or sent; the list the detail view returns to
	Messages   []models.Message
	SearchText string
	Selected   *models.Message
	Compose    ComposeForm
	LoadErr    error
}

// New creates an inbox state for identity over its loaded messages
func New(identity string, messages []models.Message) *State {
	return &State{
		Identity: identity,
		View:     Inbox,
		List:     Inbox,
		Messages: messages,
	}
}

// SwitchView changes the current view; list views also become the return target of detail
func (s *State) SwitchView(v View) {
	v = ParseView(string(v))
	if v == Inbox || v == Sent {
		s.List = v
	}
	if v != Detail {
		s.Selected = nil
	}
	s.View = v
}

// OpenDetail selects the loaded message with id. It reports false and
// leaves the state unchanged when no such message is loaded.
func (s *State) OpenDetail(id string) bool {
	msg, ok := lo.Find(s.Messages, func(m models.Message) bool {
		return m.ID == id
	})
	if !ok {
		return false
	}
	s.Selected = &msg
	s.View = Detail
	return true
}

// Reply prefills the compose form from msg and switches to compose.
// header is the localized attribution line placed above the quote.
func (s *State) Reply(msg models.Message, header string) {
	s.Compose = ReplyTo(msg, header)
	s.Selected = nil
	s.View = Compose
}

// Visible is the current list after the view and search filters
func (s *State) Visible() []models.Message {
	return Filter(s.Messages, s.Identity, s.List, s.SearchText)
}

// Counts returns inbox and sent totals, ignoring search
func (s *State) Counts() Counts {
	return Counts{
		Inbox: lo.CountBy(s.Messages, func(m models.Message) bool { return m.RecipientEmail == s.Identity }),
		Sent:  lo.CountBy(s.Messages, func(m models.Message) bool { return m.SenderEmail == s.Identity }),
	}
}

// Filter keeps the messages of identity's list view whose subject or body
// contains search, ignoring case. Views other than sent filter as inbox.
func Filter(messages []models.Message, identity string, view View, search string) []models.Message {
	needle := strings.ToLower(strings.TrimSpace(search))

	return lo.Filter(messages, func(m models.Message, _ int) bool {
		if view == Sent {
			if m.SenderEmail != identity {
				return false
			}
		} else if m.RecipientEmail != identity {
			return false
		}
		return Matches(m, needle)
	})
}

// Matches reports whether the lowercased needle occurs in subject or body
func Matches(m models.Message, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(m.Subject), needle) ||
		strings.Contains(strings.ToLower(m.Body), needle)
}
