package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/moderation"
	"chat-sync/projection"
	"chat-sync/repositories"
)

const markReadTimeout = 5 * time.Second

// Session synchronizes one user's chat state with the backend. It owns the
// room directory, the active-room timeline, both channel slots and the
// debounced directory refresh.
//
// Cancellation of superseded work is emulated with a generation counter:
// every entry and leave bumps it, and every asynchronous completion
// compares its captured value against the current one before touching
// shared state. A stale completion is discarded silently; the request still
// finishes on the wire.
type Session struct {
	mu           sync.Mutex
	log          *slog.Logger
	backend      contract.Backend
	subs         *SubscriptionManager
	identity     auth.Identity
	historyLimit int

	directory *projection.Directory
	timeline  *projection.Timeline
	refresh   *RefreshTrigger
	cache     repositories.IMessageCache
	sinks     []contract.MessageSink
	moderator *moderation.Moderator

	generation uint64
	activeRoom string // room whose timeline is live; empty while Idle or Entering
	loading    bool
	lastErr    error
	draft      string
	closed     bool
}

func NewSession(log *slog.Logger, backend contract.Backend, bus contract.EventBus,
	identity auth.Identity, historyLimit int, refreshWindow time.Duration) *Session {
	s := &Session{
		log:          log,
		backend:      backend,
		subs:         NewSubscriptionManager(bus),
		identity:     identity,
		historyLimit: historyLimit,
		directory:    projection.NewDirectory(),
		timeline:     projection.NewTimeline(),
	}
	s.refresh = NewRefreshTrigger(refreshWindow, func() {
		if err := s.LoadRoomList(context.Background()); err != nil {
			s.log.Warn("Debounced room list reload failed", "error", err)
		}
	})
	return s
}

// UseCache seeds room entry from the local cache and archives confirmed
// inbound messages into it.
func (s *Session) UseCache(cache repositories.IMessageCache) {
	s.cache = cache
	s.sinks = append(s.sinks, cache)
}

// AddSinks registers extra archival sinks (e.g. the search index).
func (s *Session) AddSinks(sinks ...contract.MessageSink) {
	s.sinks = append(s.sinks, sinks...)
}

// UseModerator masks flagged words in directory previews.
func (s *Session) UseModerator(m *moderation.Moderator) {
	s.moderator = m
}

// Start loads the room directory and opens the all-rooms list channel.
// A failed subscription degrades to non-realtime: the directory stays
// usable through explicit reloads.
func (s *Session) Start(ctx context.Context) error {
	if err := s.LoadRoomList(ctx); err != nil {
		return err
	}

	err := s.subs.OpenListChannel(s.identity.UserID, func(event.Change) {
		s.refresh.Trigger()
	})
	if err != nil {
		s.log.Warn("List channel unavailable, directory is reload-only", "error", err)
	}
	return nil
}

// LoadRoomList fully reloads the room directory. The active room's unread
// counter is forced back to zero: the read marker may still be in flight on
// the server, and an active room is by definition read.
func (s *Session) LoadRoomList(ctx context.Context) error {
	s.setLoading(true)
	rooms, err := s.backend.ListRooms(ctx, s.identity.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		return fmt.Errorf("room list load: %w", err)
	}

	for i := range rooms {
		rooms[i].DisplayName = domain.DisplayNameOrPlaceholder(rooms[i].DisplayName)
		if rooms[i].LastMessage != nil {
			rooms[i].LastMessage.Text = s.maskPreview(rooms[i].LastMessage.Text)
		}
	}
	s.directory.Reset(rooms)
	if s.activeRoom != "" {
		s.directory.ResetUnread(s.activeRoom)
	}
	return nil
}

// EnterRoom switches the session to roomID. Any in-flight entry is
// superseded: its history load still completes but the result is discarded.
// The previous room channel closes immediately, before the load, so no old
// event can reach the stores during the switch.
func (s *Session) EnterRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrBusClosed
	}
	s.generation++
	gen := s.generation
	s.activeRoom = ""
	s.loading = true
	s.mu.Unlock()

	s.subs.CloseRoomChannel()
	s.seedFromCache(gen, roomID)

	messages, err := s.backend.ListRoomMessages(ctx, roomID, s.historyLimit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		// Superseded while loading; another room owns the timeline now.
		return nil
	}
	s.loading = false
	if err != nil {
		s.lastErr = err
		return fmt.Errorf("history load for room %s: %w", roomID, err)
	}

	for i := range messages {
		messages[i].SenderName = domain.DisplayNameOrPlaceholder(messages[i].SenderName)
	}
	s.timeline.Reset(messages)
	s.activeRoom = roomID
	s.directory.ResetUnread(roomID)

	s.markReadAsync(roomID)

	err = s.subs.OpenRoomChannel(roomID, func(c event.Change) {
		s.onRoomEvent(gen, roomID, c)
	})
	if err != nil {
		// Degraded to non-realtime; the room stays usable via re-entry.
		s.log.Warn("Room channel unavailable", "room", roomID, "error", err)
	}
	return nil
}

// LeaveRoom returns the session to the idle state: no room channel, empty
// timeline, sentinel token so stale completions keep missing.
func (s *Session) LeaveRoom() {
	s.mu.Lock()
	s.generation++
	s.activeRoom = ""
	s.timeline.Clear()
	s.mu.Unlock()

	s.subs.CloseRoomChannel()
}

// seedFromCache shows local history instantly while the network load is in
// flight. Best effort; a cache miss or a superseding entry is silent.
func (s *Session) seedFromCache(gen uint64, roomID string) {
	if s.cache == nil {
		return
	}
	cached, _, err := s.cache.Recent(roomID, nil)
	if err != nil {
		s.log.Debug("Cache seed failed", "room", roomID, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || len(cached) == 0 {
		return
	}
	s.timeline.Reset(cached)
}

// onRoomEvent applies one pushed change to the active room. The captured
// generation rejects events from a channel that was superseded between
// delivery and handling.
func (s *Session) onRoomEvent(gen uint64, roomID string, c event.Change) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}

	var archived *domain.Message
	switch c.Kind {
	case event.Insert:
		msg := c.Message
		msg.SenderName = domain.DisplayNameOrPlaceholder(msg.SenderName)
		if s.timeline.ApplyInsert(msg) {
			s.directory.PatchPreview(roomID, s.maskPreview(msg.Text), msg.SentAt)
			s.directory.ResetUnread(roomID)
			if msg.Status == domain.StatusConfirmed {
				archived = &msg
			}
			if msg.SenderID != s.identity.UserID {
				s.markReadAsync(roomID)
			}
		}
	case event.Update:
		if s.timeline.ApplyUpdate(c.Message.ID, c.Message.Text) {
			if updated, i := s.timeline.Get(c.Message.ID); i >= 0 && updated.Status == domain.StatusConfirmed {
				archived = &updated
			}
		}
	case event.Delete:
		s.timeline.ApplyDelete(c.Message.ID)
		s.mu.Unlock()
		s.dropFromSinks(c.Message.ID)
		return
	}
	s.mu.Unlock()

	if archived != nil {
		s.archive(*archived)
	}
}

// SendMessage runs the optimistic send pipeline: placeholder first, remote
// write second, placeholder retired on both outcomes. The authoritative row
// arrives through the room channel; if it already landed, the timeline's
// duplicate guard absorbed it.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.ErrEmptyMessage
	}

	s.mu.Lock()
	if s.identity.IsZero() {
		s.mu.Unlock()
		return errors.ErrNotAuthenticated
	}
	roomID := s.activeRoom
	if roomID == "" {
		s.mu.Unlock()
		return errors.ErrNoActiveRoom
	}
	pending := domain.NewPending(roomID, s.identity.UserID, text)
	s.timeline.ApplyInsert(pending)
	s.mu.Unlock()

	_, err := s.backend.SendMessage(ctx, roomID, s.identity.UserID, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	// The placeholder id is never shared across rooms, so no generation
	// check is needed: after a switch the timeline was reset and this
	// delete is a no-op.
	s.timeline.ApplyDelete(pending.ID)
	if err != nil {
		s.draft = text
		s.lastErr = err
		return fmt.Errorf("send to room %s: %w", roomID, err)
	}
	return nil
}

// EditMessage applies the new text locally, then confirms remotely.
// On failure the previous text is restored; the eventual update event
// re-applies the same change idempotently on success.
func (s *Session) EditMessage(ctx context.Context, id domain.MessageID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.ErrEmptyMessage
	}

	s.mu.Lock()
	if s.identity.IsZero() {
		s.mu.Unlock()
		return errors.ErrNotAuthenticated
	}
	gen := s.generation
	prior, i := s.timeline.Get(id)
	if i < 0 {
		s.mu.Unlock()
		return errors.ErrMessageNotFound
	}
	s.timeline.ApplyUpdate(id, text)
	s.mu.Unlock()

	_, err := s.backend.EditMessage(ctx, id.String(), s.identity.UserID, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if gen == s.generation {
			s.timeline.ApplyUpdate(id, prior.Text)
		}
		s.lastErr = err
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// DeleteMessage removes the message locally, then confirms remotely.
// On failure the message is restored at its previous position.
func (s *Session) DeleteMessage(ctx context.Context, id domain.MessageID) error {
	s.mu.Lock()
	if s.identity.IsZero() {
		s.mu.Unlock()
		return errors.ErrNotAuthenticated
	}
	gen := s.generation
	removed, i := s.timeline.Get(id)
	if i < 0 {
		s.mu.Unlock()
		return errors.ErrMessageNotFound
	}
	s.timeline.ApplyDelete(id)
	s.mu.Unlock()

	err := s.backend.DeleteMessage(ctx, id.String(), s.identity.UserID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if gen == s.generation {
			s.timeline.RestoreAt(i, removed)
		}
		s.lastErr = err
		return fmt.Errorf("delete message: %w", err)
	}
	s.dropFromSinks(id)
	return nil
}

// HideMessage suppresses a message on this device only. Unlike
// DeleteMessage nothing is sent to the backend and other participants
// still see the message.
func (s *Session) HideMessage(id domain.MessageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline.Hide(id)
}

// StartDirectChat finds or creates the 1:1 room with partnerID and
// refreshes the directory so it appears in the list.
func (s *Session) StartDirectChat(ctx context.Context, partnerID string) (string, error) {
	if s.identity.IsZero() {
		return "", errors.ErrNotAuthenticated
	}
	if partnerID == "" || partnerID == s.identity.UserID {
		return "", errors.ErrSelfChat
	}

	roomID, created, err := s.backend.CreateOrFindDirectRoom(ctx, s.identity.UserID, partnerID)
	if err != nil {
		return "", fmt.Errorf("direct room with %s: %w", partnerID, err)
	}
	if created {
		s.log.Info(fmt.Sprintf("Created direct room %s", roomID))
	}
	if err := s.LoadRoomList(ctx); err != nil {
		return roomID, err
	}
	return roomID, nil
}

// LeaveChatRoom exits the room membership for good, unlike LeaveRoom which
// only navigates away.
func (s *Session) LeaveChatRoom(ctx context.Context, roomID string) error {
	if err := s.backend.LeaveRoom(ctx, roomID, s.identity.UserID); err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}

	s.mu.Lock()
	s.directory.Remove(roomID)
	active := s.activeRoom == roomID
	s.mu.Unlock()

	if active {
		s.LeaveRoom()
	}
	return nil
}

// LoadMembers fetches the member list of a room, degrading missing
// profiles to placeholder names.
func (s *Session) LoadMembers(ctx context.Context, roomID string) ([]domain.Member, error) {
	members, err := s.backend.ListMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("members of room %s: %w", roomID, err)
	}
	for i := range members {
		members[i].Name = domain.DisplayNameOrPlaceholder(members[i].Name)
	}
	return members, nil
}

// Close tears the session down: every channel closed, the refresh timer
// cancelled, both stores cleared. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	s.activeRoom = ""
	s.timeline.Clear()
	s.directory.Reset(nil)
	s.mu.Unlock()

	s.refresh.Cancel()
	s.subs.CloseAll()
}

// --- observable state ---

func (s *Session) Rooms() []domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directory.Rooms()
}

func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Messages()
}

func (s *Session) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directory.TotalUnread()
}

func (s *Session) ActiveRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoom
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Draft returns the text of the last failed send so the UI can put it back
// into the compose field, and clears it.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.draft
	s.draft = ""
	return draft
}

// --- helpers ---

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Session) maskPreview(text string) string {
	if s.moderator == nil {
		return text
	}
	return s.moderator.Mask(text)
}

// markReadAsync is fire-and-forget: failure is logged, never retried, and
// the local unread reset stands until the next directory reload.
func (s *Session) markReadAsync(roomID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
		defer cancel()
		if err := s.backend.MarkRead(ctx, roomID, s.identity.UserID); err != nil {
			s.log.Warn("Read marker write failed", "room", roomID, "error", err)
		}
	}()
}

func (s *Session) archive(msg domain.Message) {
	for _, sink := range s.sinks {
		if err := sink.Store(msg); err != nil {
			s.log.Warn("Archive sink failed", "message", msg.ID.String(), "error", err)
		}
	}
}

func (s *Session) dropFromSinks(id domain.MessageID) {
	for _, sink := range s.sinks {
		if deleter, ok := sink.(interface {
			Delete(domain.MessageID) error
		}); ok {
			if err := deleter.Delete(id); err != nil {
				s.log.Warn("Archive delete failed", "message", id.String(), "error", err)
			}
		}
	}
}
