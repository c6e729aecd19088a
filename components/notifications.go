package components

import (
	"sync"
	"time"

	"github.com/envdesk/envdesk/component"
)

// Notification is a single message surfaced in the notification tray
type Notification struct {
	ID      string
	Title   string
	Message string
	URL     string
}

// Notifications buffers tray messages from the payload and tracks which ones
// the user has dismissed. Dismissals survive refreshes within a session.
type Notifications struct {
	base

	stateMu   sync.RWMutex
	items     []Notification
	dismissed map[string]bool
}

// NewNotificationsFactory returns the factory for the notifications component
func NewNotificationsFactory() component.Factory {
	return component.NewFactory(AliasNotifications, func(deps component.Deps) (component.Component, error) {
		n := &Notifications{
			base:      newBase(AliasNotifications, deps, 10*time.Minute),
			dismissed: make(map[string]bool),
		}
		n.onTick = n.refreshTick
		return n, nil
	})
}

// Setup replaces the tray contents from the payload, keeping dismissal state
func (n *Notifications) Setup(data component.Data) error {
	if !data.Succeeded() {
		n.logger.Debug("refresh failed, keeping notifications", "error", data.Err)
		return nil
	}

	var items []Notification
	for _, entry := range mapSlice(data.Output["notifications"]) {
		item := Notification{
			ID:      asString(entry["id"]),
			Title:   asString(entry["title"]),
			Message: asString(entry["message"]),
			URL:     asString(entry["url"]),
		}
		if item.ID == "" {
			continue
		}
		items = append(items, item)
	}

	n.stateMu.Lock()
	n.items = items
	n.stateMu.Unlock()

	n.logger.Debug("notifications configured", "count", len(items), "initial", data.Initial)
	return nil
}

// Unread returns the notifications the user has not dismissed
func (n *Notifications) Unread() []Notification {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	var out []Notification
	for _, item := range n.items {
		if !n.dismissed[item.ID] {
			out = append(out, item)
		}
	}
	return out
}

// Dismiss marks a notification as read
func (n *Notifications) Dismiss(id string) {
	n.stateMu.Lock()
	n.dismissed[id] = true
	n.stateMu.Unlock()
}

func (n *Notifications) refreshTick() {
	if unread := len(n.Unread()); unread > 0 {
		n.logger.Debug("unread notifications", "count", unread)
	}
}

var _ component.Component = (*Notifications)(nil)
