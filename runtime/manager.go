// Package runtime keeps the local chat state synchronized with the
// backend's event channels. It owns subscription lifecycle, room entry,
// the optimistic write pipelines and the quiet-period refresh; domain rules
// stay in domain and projection.
package runtime

import (
	"sync"

	"chat-sync/contract"
	"chat-sync/domain/event"
)

// SubscriptionManager owns the two channel slots of a session: the single
// all-rooms list channel and the single active-room channel. Opening a slot
// always closes the previous occupant first, so old and new channels never
// overlap and double-deliver into the same store.
type SubscriptionManager struct {
	mu   sync.Mutex
	bus  contract.EventBus
	room contract.Subscription
	list contract.Subscription
}

func NewSubscriptionManager(bus contract.EventBus) *SubscriptionManager {
	return &SubscriptionManager{bus: bus}
}

// OpenRoomChannel closes any current room channel and opens a new one
// scoped to roomID.
func (m *SubscriptionManager) OpenRoomChannel(roomID string, handler func(event.Change)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room != nil {
		m.room.Unsubscribe()
		m.room = nil
	}

	sub, err := m.bus.Subscribe(event.RoomMessages(roomID), handler)
	if err != nil {
		return err
	}
	m.room = sub
	return nil
}

// CloseRoomChannel releases the active-room slot. Safe to call when no
// room channel is open.
func (m *SubscriptionManager) CloseRoomChannel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room != nil {
		m.room.Unsubscribe()
		m.room = nil
	}
}

// OpenListChannel opens the global all-rooms feed, closing the previous
// occupant of the slot first.
func (m *SubscriptionManager) OpenListChannel(userID string, handler func(event.Change)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.list != nil {
		m.list.Unsubscribe()
		m.list = nil
	}

	sub, err := m.bus.Subscribe(event.AllRooms(userID), handler)
	if err != nil {
		return err
	}
	m.list = sub
	return nil
}

// CloseAll disposes every open handle. Idempotent; safe on a manager that
// never opened a channel.
func (m *SubscriptionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room != nil {
		m.room.Unsubscribe()
		m.room = nil
	}
	if m.list != nil {
		m.list.Unsubscribe()
		m.list = nil
	}
}

// OpenSlots reports how many slots currently hold a live subscription.
func (m *SubscriptionManager) OpenSlots() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	if m.room != nil {
		n++
	}
	if m.list != nil {
		n++
	}
	return n
}
