package runtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
)

// fakeBus is an in-memory EventBus with explicit delivery, used to drive
// channel events into the session without a network.
type fakeBus struct {
	mu   sync.Mutex
	next int
	subs map[event.Topic]map[int]func(event.Change)
	fail map[event.Topic]error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		subs: make(map[event.Topic]map[int]func(event.Change)),
		fail: make(map[event.Topic]error),
	}
}

func (b *fakeBus) Subscribe(topic event.Topic, handler func(event.Change)) (contract.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail[topic]; err != nil {
		return nil, err
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func(event.Change))
	}
	b.next++
	id := b.next
	b.subs[topic][id] = handler
	return &fakeSub{bus: b, topic: topic, id: id}, nil
}

type fakeSub struct {
	bus   *fakeBus
	topic event.Topic
	id    int
	once  sync.Once
}

func (s *fakeSub) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.topic], s.id)
	})
}

func (b *fakeBus) publish(topic event.Topic, c event.Change) {
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

func (b *fakeBus) liveCount(topic event.Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// fakeBackend records calls and lets tests gate history loads to simulate
// slow responses arriving out of order.
type fakeBackend struct {
	mu             sync.Mutex
	rooms          []domain.Room
	history        map[string][]domain.Message
	holdHistory    map[string]chan struct{}
	listRoomsCalls int
	markReadRooms  []string
	sendErr        error
	editErr        error
	deleteErr      error
	leaveErr       error
	friendRequests []domain.FriendRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		history:     make(map[string][]domain.Message),
		holdHistory: make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) ListRooms(context.Context, string) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listRoomsCalls++
	out := make([]domain.Room, len(f.rooms))
	copy(out, f.rooms)
	return out, nil
}

func (f *fakeBackend) ListRoomMessages(_ context.Context, roomID string, _ int) ([]domain.Message, error) {
	f.mu.Lock()
	gate := f.holdHistory[roomID]
	msgs := append([]domain.Message(nil), f.history[roomID]...)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return msgs, nil
}

func (f *fakeBackend) SendMessage(_ context.Context, roomID, senderID, text string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	return domain.Message{
		ID: domain.ServerID("srv-1"), RoomID: roomID, SenderID: senderID,
		Kind: domain.KindText, Text: text, SentAt: time.Now().UTC(),
		Status: domain.StatusConfirmed,
	}, nil
}

func (f *fakeBackend) EditMessage(_ context.Context, messageID, _, text string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return domain.Message{}, f.editErr
	}
	return domain.Message{ID: domain.ServerID(messageID), Text: text, Status: domain.StatusConfirmed}, nil
}

func (f *fakeBackend) DeleteMessage(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

func (f *fakeBackend) MarkRead(_ context.Context, roomID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadRooms = append(f.markReadRooms, roomID)
	return nil
}

func (f *fakeBackend) CreateOrFindDirectRoom(_ context.Context, _, partnerID string) (string, bool, error) {
	return "direct-" + partnerID, true, nil
}

func (f *fakeBackend) LeaveRoom(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaveErr
}

func (f *fakeBackend) ListMembers(context.Context, string) ([]domain.Member, error) {
	return []domain.Member{{ID: "u2", Name: ""}}, nil
}

func (f *fakeBackend) ListFriendRequests(context.Context, string) ([]domain.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FriendRequest(nil), f.friendRequests...), nil
}

func (f *fakeBackend) setFriendRequests(requests []domain.FriendRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friendRequests = requests
}

func (f *fakeBackend) markReads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markReadRooms...)
}

func (f *fakeBackend) roomListLoads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listRoomsCalls
}

// fakeSink counts archived messages.
type fakeSink struct {
	mu     sync.Mutex
	stored []domain.Message
}

func (s *fakeSink) Store(msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, msg)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func confirmed(id, room, sender, text string, at time.Time) domain.Message {
	return domain.Message{
		ID: domain.ServerID(id), RoomID: room, SenderID: sender,
		Kind: domain.KindText, Text: text, SentAt: at,
		Status: domain.StatusConfirmed,
	}
}

func newTestSession(backend *fakeBackend, bus *fakeBus) *Session {
	logger := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewSession(logger, backend, bus, auth.Identity{UserID: "me"}, 50, 30*time.Millisecond)
}

func TestSession_EnterRoomLoadsHistoryAndMarksRead(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	backend.rooms = []domain.Room{{ID: "r1", UnreadCount: 3}}
	backend.history["r1"] = []domain.Message{
		confirmed("m1", "r1", "u2", "hello", time.Now().Add(-time.Minute)),
	}
	session := newTestSession(backend, bus)
	defer session.Close()
	req.NoError(session.Start(context.Background()))

	// When entering the room
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	// Then the timeline holds the history and the room reads as caught up
	req.Len(session.Messages(), 1)
	req.Equal("r1", session.ActiveRoom())
	req.Zero(session.TotalUnread())
	req.Equal(1, bus.liveCount(event.RoomMessages("r1")))
	req.Eventually(func() bool {
		return len(backend.markReads()) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestSession_StaleHistoryLoadIsDiscarded(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	backend.history["r1"] = []domain.Message{confirmed("a1", "r1", "u2", "old room", time.Now())}
	backend.history["r2"] = []domain.Message{confirmed("b1", "r2", "u3", "new room", time.Now())}
	gate := make(chan struct{})
	backend.holdHistory["r1"] = gate
	session := newTestSession(backend, bus)
	defer session.Close()

	// Given a slow entry into r1
	done := make(chan error, 1)
	go func() { done <- session.EnterRoom(context.Background(), "r1") }()

	// When the user switches to r2 before r1's history arrives
	req.Eventually(func() bool { return session.Loading() }, time.Second, time.Millisecond)
	req.NoError(session.EnterRoom(context.Background(), "r2"))
	close(gate)
	req.NoError(<-done)

	// Then r1's late result was discarded and r2 owns the timeline
	req.Equal("r2", session.ActiveRoom())
	messages := session.Messages()
	req.Len(messages, 1)
	req.Equal("new room", messages[0].Text)
	req.Zero(bus.liveCount(event.RoomMessages("r1")))
	req.Equal(1, bus.liveCount(event.RoomMessages("r2")))
}

func TestSession_RoomChannelIsExclusive(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	session := newTestSession(backend, bus)
	defer session.Close()

	req.NoError(session.EnterRoom(context.Background(), "r1"))
	req.NoError(session.EnterRoom(context.Background(), "r2"))

	req.Zero(bus.liveCount(event.RoomMessages("r1")))
	req.Equal(1, bus.liveCount(event.RoomMessages("r2")))
}

func TestSession_DuplicateInsertIsAbsorbed(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	session := newTestSession(backend, bus)
	defer session.Close()
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	// When the channel delivers the same insert twice
	msg := confirmed("m1", "r1", "u2", "hi", time.Now())
	bus.publish(event.RoomMessages("r1"), event.Change{Kind: event.Insert, Message: msg})
	bus.publish(event.RoomMessages("r1"), event.Change{Kind: event.Insert, Message: msg})

	req.Len(session.Messages(), 1)
}

func TestSession_InsertArchivesToSinks(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	session := newTestSession(backend, bus)
	defer session.Close()
	sink := &fakeSink{}
	session.AddSinks(sink)
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	bus.publish(event.RoomMessages("r1"), event.Change{
		Kind:    event.Insert,
		Message: confirmed("m1", "r1", "u2", "archive me", time.Now()),
	})

	req.Equal(1, sink.count())
}

func TestSession_SendSuccessRetiresPlaceholder(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	session := newTestSession(backend, bus)
	defer session.Close()
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	req.NoError(session.SendMessage(context.Background(), "  hello  "))

	// The placeholder is gone; the confirmed row arrives via the channel
	req.Empty(session.Messages())
	bus.publish(event.RoomMessages("r1"), event.Change{
		Kind:    event.Insert,
		Message: confirmed("srv-1", "r1", "me", "hello", time.Now()),
	})
	messages := session.Messages()
	req.Len(messages, 1)
	req.Equal(domain.StatusConfirmed, messages[0].Status)
}

func TestSession_SendFailureRestoresDraft(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	backend.sendErr = context.DeadlineExceeded
	session := newTestSession(backend, bus)
	defer session.Close()
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	err := session.SendMessage(context.Background(), "doomed text")

	req.Error(err)
	req.Empty(session.Messages())
	req.Equal("doomed text", session.Draft())
	req.Empty(session.Draft()) // reading the draft clears it
	req.Error(session.LastError())
}

func TestSession_SendGuards(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	session := newTestSession(backend, bus)
	defer session.Close()

	req.ErrorIs(session.SendMessage(context.Background(), "   "), errors.ErrEmptyMessage)
	req.ErrorIs(session.SendMessage(context.Background(), "hi"), errors.ErrNoActiveRoom)
}

func TestSession_EditFailureRevertsText(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	backend.history["r1"] = []domain.Message{confirmed("m1", "r1", "me", "original", time.Now())}
	backend.editErr = context.DeadlineExceeded
	session := newTestSession(backend, bus)
	defer session.Close()
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	err := session.EditMessage(context.Background(), domain.ServerID("m1"), "changed")

	req.Error(err)
	messages := session.Messages()
	req.Len(messages, 1)
	req.Equal("original", messages[0].Text)
}

func TestSession_DeleteFailureRestoresAtPosition(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	now := time.Now()
	backend.history["r1"] = []domain.Message{
		confirmed("m1", "r1", "me", "first", now.Add(-2*time.Minute)),
		confirmed("m2", "r1", "me", "second", now.Add(-time.Minute)),
		confirmed("m3", "r1", "me", "third", now),
	}
	backend.deleteErr = context.DeadlineExceeded
	session := newTestSession(backend, bus)
	defer session.Close()
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	err := session.DeleteMessage(context.Background(), domain.ServerID("m2"))

	req.Error(err)
	messages := session.Messages()
	req.Len(messages, 3)
	req.Equal("second", messages[1].Text)
}

func TestSession_UnreadResetIsScopedToEnteredRoom(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	backend.rooms = []domain.Room{
		{ID: "r1", UnreadCount: 3},
		{ID: "r2", UnreadCount: 5},
	}
	session := newTestSession(backend, bus)
	defer session.Close()
	req.NoError(session.Start(context.Background()))

	req.NoError(session.EnterRoom(context.Background(), "r1"))

	req.Equal(5, session.TotalUnread())
	r2, ok := sessionRoom(session, "r2")
	req.True(ok)
	req.Equal(5, r2.UnreadCount)
}

func TestSession_ListEventsCoalesceIntoOneReload(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	session := newTestSession(backend, bus)
	defer session.Close()
	req.NoError(session.Start(context.Background()))
	baseline := backend.roomListLoads()

	// When ten list events land inside one quiet window
	for i := 0; i < 10; i++ {
		bus.publish(event.AllRooms("me"), event.Change{Kind: event.Insert})
	}

	// Then exactly one reload fires
	req.Eventually(func() bool {
		return backend.roomListLoads() == baseline+1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	req.Equal(baseline+1, backend.roomListLoads())
}

func TestSession_StartDirectChatRejectsSelf(t *testing.T) {
	req := require.New(t)
	session := newTestSession(newFakeBackend(), newFakeBus())
	defer session.Close()

	_, err := session.StartDirectChat(context.Background(), "me")

	req.ErrorIs(err, errors.ErrSelfChat)
}

func TestSession_StartDirectChatReturnsRoom(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	session := newTestSession(backend, newFakeBus())
	defer session.Close()

	roomID, err := session.StartDirectChat(context.Background(), "u2")

	req.NoError(err)
	req.Equal("direct-u2", roomID)
}

func TestSession_LeaveChatRoomDropsDirectoryEntryAndChannel(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	bus := newFakeBus()
	backend.rooms = []domain.Room{{ID: "r1"}, {ID: "r2"}}
	session := newTestSession(backend, bus)
	defer session.Close()
	req.NoError(session.Start(context.Background()))
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	req.NoError(session.LeaveChatRoom(context.Background(), "r1"))

	req.Empty(session.ActiveRoom())
	req.Zero(bus.liveCount(event.RoomMessages("r1")))
	_, ok := sessionRoom(session, "r1")
	req.False(ok)
}

func TestSession_LoadMembersFillsPlaceholderNames(t *testing.T) {
	req := require.New(t)
	session := newTestSession(newFakeBackend(), newFakeBus())
	defer session.Close()

	members, err := session.LoadMembers(context.Background(), "r1")

	req.NoError(err)
	req.Len(members, 1)
	req.Equal(domain.PlaceholderName, members[0].Name)
}

func TestSession_HideIsLocalOnly(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	backend.history["r1"] = []domain.Message{confirmed("m1", "r1", "u2", "unpleasant", time.Now())}
	session := newTestSession(backend, newFakeBus())
	defer session.Close()
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	session.HideMessage(domain.ServerID("m1"))

	req.Empty(session.Messages())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	req := require.New(t)
	bus := newFakeBus()
	session := newTestSession(newFakeBackend(), bus)
	req.NoError(session.EnterRoom(context.Background(), "r1"))

	session.Close()
	session.Close()

	req.Zero(bus.liveCount(event.RoomMessages("r1")))
	req.ErrorIs(session.EnterRoom(context.Background(), "r1"), errors.ErrBusClosed)
}

func sessionRoom(s *Session, roomID string) (domain.Room, bool) {
	for _, r := range s.Rooms() {
		if r.ID == roomID {
			return r, true
		}
	}
	return domain.Room{}, false
}
