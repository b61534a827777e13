package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"claudeview/internal/types"
)

// Inbox applies notification mutations to the store and announces every
// change with a notifications:changed event, so clients can drop their
// optimistic copy and reload.
type Inbox struct {
	store  *Store
	emit   func(types.EventEnvelope)
	logger *zap.Logger
	now    func() time.Time
}

// NewInbox wraps store. emit and logger may be nil.
func NewInbox(store *Store, emit func(types.EventEnvelope), logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{store: store, emit: emit, logger: logger, now: time.Now}
}

// Add assigns an id and timestamp, persists n and returns the stored value.
func (i *Inbox) Add(n Notification) (Notification, error) {
	if strings.TrimSpace(n.Event) == "" {
		return Notification{}, fmt.Errorf("notification event is required")
	}
	n.ID = uuid.New().String()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = i.now()
	}
	if n.Source == "" {
		n.Source = SourceHook
	}
	n.Read = false

	if err := i.store.Add(n); err != nil {
		return Notification{}, err
	}
	i.logger.Info("notification added",
		zap.String("id", n.ID),
		zap.String("event", n.Event),
		zap.String("source", n.Source),
		zap.String("session", n.SessionID))
	i.changed(n.SessionID)
	return n, nil
}

// AddHook parses a hook body and adds it.
func (i *Inbox) AddHook(body []byte) (Notification, error) {
	n, err := ParseHook(body)
	if err != nil {
		return Notification{}, err
	}
	return i.Add(n)
}

// List returns notifications newest first.
func (i *Inbox) List(filter Filter) ([]Notification, error) {
	return i.store.List(filter)
}

// Get returns one notification.
func (i *Inbox) Get(id string) (Notification, error) {
	return i.store.Get(id)
}

// MarkRead marks one notification as read.
func (i *Inbox) MarkRead(id string) error {
	if err := i.store.MarkRead(id); err != nil {
		return err
	}
	i.changed("")
	return nil
}

// MarkAllRead marks everything read and returns how many changed.
func (i *Inbox) MarkAllRead() (int, error) {
	n, err := i.store.MarkAllRead()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		i.changed("")
	}
	return n, nil
}

// Delete removes one notification.
func (i *Inbox) Delete(id string) error {
	if err := i.store.Delete(id); err != nil {
		return err
	}
	i.changed("")
	return nil
}

// Stats summarizes the inbox.
func (i *Inbox) Stats() (Stats, error) {
	return i.store.Stats()
}

// UnreadCount is Stats().Unread, 0 on error.
func (i *Inbox) UnreadCount() int {
	stats, err := i.store.Stats()
	if err != nil {
		i.logger.Warn("count unread notifications", zap.Error(err))
		return 0
	}
	return stats.Unread
}

func (i *Inbox) changed(sessionID string) {
	if i.emit == nil {
		return
	}
	i.emit(types.EventEnvelope{
		EventType: types.EventNotificationsChanged,
		SessionID: sessionID,
	})
}
