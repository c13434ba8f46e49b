package mail

import (
	"context"
	"cuchimail/backend"
	"cuchimail/models"
	"cuchimail/utils"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MailboxChange tells listeners whose mailboxes went stale.
// All is set when the change could not be attributed to identities.
type MailboxChange struct {
	Identities []string
	All        bool
}

// Affects reports whether identity's mailbox is part of the change
func (c MailboxChange) Affects(identity string) bool {
	return c.All || lo.Contains(c.Identities, identity)
}

// Mailboxes caches each identity's message list and drops entries when the
// change feed reports a row touching that identity. Reloads are full
// re-fetches; nothing is merged.
type Mailboxes struct {
	service   *Service
	table     backend.Table
	cache     *utils.MemoryCache[[]models.Message]
	listeners *backend.Feed[MailboxChange]

	// mu guards generation and every cache write tied to it.
	// generation is bumped on every invalidation so an in-flight load cannot store stale data.
	mu         sync.Mutex
	generation uint64

	startOnce   sync.Once
	closeOnce   sync.Once
	unsubscribe func()
}

// NewMailboxes creates the cache. Call Start to follow the change feed.
func NewMailboxes(service *Service, table backend.Table, ttl time.Duration) *Mailboxes {
	return &Mailboxes{
		service:   service,
		table:     table,
		cache:     utils.NewMemoryCache[[]models.Message](ttl),
		listeners: backend.NewFeed[MailboxChange](),
	}
}

// Start subscribes to the table's change feed; later calls do nothing
func (m *Mailboxes) Start() {
	m.startOnce.Do(func() {
		m.unsubscribe = m.table.OnChange(m.handleChange)
	})
}

// Close releases the change-feed subscription and the cache janitor.
// Closed mailboxes cannot be started again.
func (m *Mailboxes) Close() {
	m.closeOnce.Do(func() {
		m.startOnce.Do(func() {})
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.cache.Close()
	})
}

// OnChanged subscribes fn to mailbox invalidations
func (m *Mailboxes) OnChanged(fn func(MailboxChange)) func() {
	return m.listeners.Subscribe(fn)
}

// Load returns identity's inbox and sent messages, from cache when fresh
func (m *Mailboxes) Load(ctx context.Context, identity string) ([]models.Message, error) {
	if messages, ok := m.cache.Get(identity); ok {
		return append([]models.Message(nil), messages...), nil
	}

	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	messages, err := m.service.GetMailbox(ctx, identity)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.generation == gen {
		m.cache.Set(identity, append([]models.Message(nil), messages...))
	}
	m.mu.Unlock()
	return messages, nil
}

// Invalidate drops the cached list of each identity
func (m *Mailboxes) Invalidate(identities ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	for _, id := range identities {
		m.cache.Delete(id)
	}
}

func (m *Mailboxes) invalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.cache.Clear()
}

func (m *Mailboxes) handleChange(ch backend.Change) {
	if ch.Table != "" && ch.Table != models.MessagesTable {
		return
	}

	identities := lo.Uniq(lo.FilterMap([]string{models.ColumnSenderEmail, models.ColumnRecipientEmail}, func(col string, _ int) (string, bool) {
		s, ok := ch.Row[col].(string)
		s = utils.NormalizeAddress(s)
		return s, ok && s != ""
	}))

	change := MailboxChange{Identities: identities}
	if len(identities) == 0 {
		m.invalidateAll()
		change.All = true
	} else {
		m.Invalidate(identities...)
	}

	utils.Log.WithField("type", string(ch.Type)).Debug("Mailbox change for %v (all=%t)", identities, change.All)
	m.listeners.Publish(change)
}
