// Package e2e exercises the whole client against an in-memory world: a
// scriptable backend with configurable latency and a loopback event bus.
// No network, no external processes; the scenarios cover the same flows a
// user drives through the app.
package e2e

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
)

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

// Step prints a colorized header so the scenario reads as a script in the
// test output.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// memBus is a loopback event bus: publishing delivers synchronously to
// every live handler of the topic.
type memBus struct {
	mu   sync.Mutex
	next int
	subs map[event.Topic]map[int]func(event.Change)
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[event.Topic]map[int]func(event.Change))}
}

func (b *memBus) Subscribe(topic event.Topic, handler func(event.Change)) (contract.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func(event.Change))
	}
	b.next++
	id := b.next
	b.subs[topic][id] = handler
	return &memSub{bus: b, topic: topic, id: id}, nil
}

type memSub struct {
	bus   *memBus
	topic event.Topic
	id    int
	once  sync.Once
}

func (s *memSub) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.topic], s.id)
	})
}

func (b *memBus) Publish(topic event.Topic, c event.Change) {
	b.mu.Lock()
	handlers := make([]func(event.Change), 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(c)
	}
}

func (b *memBus) Live(topic event.Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// memBackend is the scriptable server. It assigns ids, keeps per-room
// histories, bumps previews, and mirrors every accepted write back through
// the bus like the real backend's triggers do.
type memBackend struct {
	mu             sync.Mutex
	bus            *memBus
	historyLatency time.Duration
	rooms          []domain.Room
	history        map[string][]domain.Message
	nextID         int
	listLoads      int
}

func newMemBackend(bus *memBus, historyLatency time.Duration) *memBackend {
	return &memBackend{
		bus:            bus,
		historyLatency: historyLatency,
		history:        make(map[string][]domain.Message),
	}
}

func (m *memBackend) seedRoom(room domain.Room, messages ...domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = append(m.rooms, room)
	m.history[room.ID] = append(m.history[room.ID], messages...)
}

func (m *memBackend) roomListLoads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLoads
}

func (m *memBackend) ListRooms(context.Context, string) ([]domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listLoads++
	out := make([]domain.Room, len(m.rooms))
	copy(out, m.rooms)
	return out, nil
}

func (m *memBackend) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	if m.historyLatency > 0 {
		select {
		case <-time.After(m.historyLatency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.history[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}

// SendMessage persists the row and pushes the insert to the room channel,
// the way the production backend's trigger does.
func (m *memBackend) SendMessage(_ context.Context, roomID, senderID, text string) (domain.Message, error) {
	m.mu.Lock()
	m.nextID++
	msg := domain.Message{
		ID:       domain.ServerID(fmt.Sprintf("srv-%d", m.nextID)),
		RoomID:   roomID,
		SenderID: senderID,
		Kind:     domain.KindText,
		Text:     text,
		SentAt:   time.Now().UTC(),
		Status:   domain.StatusConfirmed,
	}
	m.history[roomID] = append(m.history[roomID], msg)
	m.mu.Unlock()

	m.bus.Publish(event.RoomMessages(roomID), event.Change{Kind: event.Insert, Message: msg})
	return msg, nil
}

func (m *memBackend) EditMessage(_ context.Context, messageID, _, text string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for roomID, msgs := range m.history {
		for i := range msgs {
			if msgs[i].ID.String() == messageID {
				m.history[roomID][i].Text = text
				return m.history[roomID][i], nil
			}
		}
	}
	return domain.Message{}, fmt.Errorf("message %s not found", messageID)
}

func (m *memBackend) DeleteMessage(context.Context, string, string) error {
	return nil
}

func (m *memBackend) MarkRead(context.Context, string, string) error {
	return nil
}

func (m *memBackend) CreateOrFindDirectRoom(_ context.Context, _, partnerID string) (string, bool, error) {
	roomID := "direct-" + partnerID
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.ID == roomID {
			return roomID, false, nil
		}
	}
	m.rooms = append(m.rooms, domain.Room{ID: roomID, Kind: domain.RoomDirect, DisplayName: partnerID})
	return roomID, true, nil
}

func (m *memBackend) LeaveRoom(_ context.Context, roomID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rooms {
		if r.ID == roomID {
			m.rooms = append(m.rooms[:i], m.rooms[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memBackend) ListMembers(context.Context, string) ([]domain.Member, error) {
	return nil, nil
}

func (m *memBackend) ListFriendRequests(context.Context, string) ([]domain.FriendRequest, error) {
	return nil, nil
}
