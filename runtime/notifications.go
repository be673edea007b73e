package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abadojack/whatlanggo"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/moderation"
)

const requestsFetchTimeout = 5 * time.Second

// NotificationFeed maintains the per-user notification list and the
// friend-request list. Notifications append in arrival order from channel
// inserts; friend requests are re-fetched as a whole on any channel change
// because the list is small and the events carry no payload worth merging.
type NotificationFeed struct {
	mu        sync.Mutex
	log       *slog.Logger
	bus       contract.EventBus
	backend   contract.Backend
	moderator *moderation.Moderator

	notifications []domain.Notification
	requests      []domain.FriendRequest
	notifSub      contract.Subscription
	requestSub    contract.Subscription
	closed        bool
}

func NewNotificationFeed(log *slog.Logger, bus contract.EventBus, backend contract.Backend) *NotificationFeed {
	return &NotificationFeed{log: log, bus: bus, backend: backend}
}

// UseModerator masks flagged words in notification bodies before they are
// stored.
func (f *NotificationFeed) UseModerator(m *moderation.Moderator) {
	f.moderator = m
}

// Open subscribes both per-user channels and loads the initial
// friend-request list. Call once per session.
func (f *NotificationFeed) Open(ctx context.Context, userID string) error {
	notifSub, err := f.bus.Subscribe(event.Notifications(userID), f.onNotification)
	if err != nil {
		return fmt.Errorf("notification channel: %w", err)
	}

	requestSub, err := f.bus.Subscribe(event.FriendRequests(userID), func(event.Change) {
		f.refetchRequests(userID)
	})
	if err != nil {
		notifSub.Unsubscribe()
		return fmt.Errorf("friend request channel: %w", err)
	}

	f.mu.Lock()
	f.notifSub = notifSub
	f.requestSub = requestSub
	f.mu.Unlock()

	requests, err := f.backend.ListFriendRequests(ctx, userID)
	if err != nil {
		return fmt.Errorf("friend request load: %w", err)
	}
	f.mu.Lock()
	f.requests = requests
	f.mu.Unlock()
	return nil
}

func (f *NotificationFeed) onNotification(c event.Change) {
	if c.Kind != event.Insert {
		return
	}
	n := c.Notification
	if f.moderator != nil {
		n.Body = f.moderator.Mask(n.Body)
	}
	if n.Lang == "" && n.Body != "" {
		info := whatlanggo.Detect(n.Body)
		n.Lang = whatlanggo.LangToString(info.Lang)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, existing := range f.notifications {
		if existing.ID == n.ID {
			return
		}
	}
	f.notifications = append(f.notifications, n)
}

// refetchRequests replaces the whole friend-request list. Any change event
// triggers it: an accepted or withdrawn request is just as relevant as a
// new one.
func (f *NotificationFeed) refetchRequests(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestsFetchTimeout)
	defer cancel()

	requests, err := f.backend.ListFriendRequests(ctx, userID)
	if err != nil {
		f.log.Warn("Friend request refetch failed", "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.requests = requests
}

// Notifications returns a copy of the feed, oldest first.
func (f *NotificationFeed) Notifications() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification(nil), f.notifications...)
}

func (f *NotificationFeed) FriendRequests() []domain.FriendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FriendRequest(nil), f.requests...)
}

// Close releases both channels. Idempotent.
func (f *NotificationFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if f.notifSub != nil {
		f.notifSub.Unsubscribe()
		f.notifSub = nil
	}
	if f.requestSub != nil {
		f.requestSub.Unsubscribe()
		f.requestSub = nil
	}
}
