// Package ws implements the event bus over a single multiplexed WebSocket
// connection. Topics are subscribed and unsubscribed with control frames;
// the server pushes one JSON frame per change. The connection reconnects
// automatically with exponential backoff and re-subscribes every live
// topic, so a network drop degrades to a delay, never to a dead session.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
)

const (
	baseReconnectDelay = 1 * time.Second
	maxReconnectDelay  = 30 * time.Second
	writeTimeout       = 5 * time.Second
)

// frame is the wire format, shared by both directions. Outbound frames set
// Action and Topic; inbound frames set Topic, Kind and one payload.
type frame struct {
	Action       string            `json:"action,omitempty"`
	Topic        string            `json:"topic"`
	Kind         string            `json:"kind,omitempty"`
	Message      *wireMessage      `json:"message,omitempty"`
	Notification *wireNotification `json:"notification,omitempty"`
}

type wireMessage struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	SenderPhoto string    `json:"sender_photo,omitempty"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
}

type wireNotification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body,omitempty"`
	Lang      string    `json:"lang,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Bus is a contract.EventBus backed by one WebSocket connection, run as a
// supervised worker. Subscribe works while disconnected: the topic is
// recorded and the subscribe frame goes out on the next (re)connect.
type Bus struct {
	mu     sync.Mutex
	log    *slog.Logger
	url    string
	token  string
	next   int
	subs   map[event.Topic]map[int]func(event.Change)
	conn   *websocket.Conn
	closed bool
}

func NewBus(log *slog.Logger, url, token string) *Bus {
	return &Bus{
		log:   log,
		url:   url,
		token: token,
		subs:  make(map[event.Topic]map[int]func(event.Change)),
	}
}

// Subscribe registers a handler for a topic. The first handler of a topic
// sends the subscribe frame; further handlers share the stream.
func (b *Bus) Subscribe(topic event.Topic, handler func(event.Change)) (contract.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.ErrBusClosed
	}
	first := len(b.subs[topic]) == 0
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func(event.Change))
	}
	b.next++
	id := b.next
	b.subs[topic][id] = handler
	conn := b.conn
	b.mu.Unlock()

	if first && conn != nil {
		if err := b.writeFrame(conn, frame{Action: "subscribe", Topic: string(topic)}); err != nil {
			b.log.Warn("Subscribe frame failed, will retry on reconnect", "topic", topic, "error", err)
		}
	}
	return &subscription{bus: b, topic: topic, id: id}, nil
}

type subscription struct {
	bus   *Bus
	topic event.Topic
	id    int
	once  sync.Once
}

// Unsubscribe removes the handler. The unsubscribe frame goes out only when
// the last handler of the topic is gone. Idempotent.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.dropHandler(s.topic, s.id)
	})
}

func (b *Bus) dropHandler(topic event.Topic, id int) {
	b.mu.Lock()
	delete(b.subs[topic], id)
	last := len(b.subs[topic]) == 0
	if last {
		delete(b.subs, topic)
	}
	conn := b.conn
	b.mu.Unlock()

	if last && conn != nil {
		if err := b.writeFrame(conn, frame{Action: "unsubscribe", Topic: string(topic)}); err != nil {
			b.log.Debug("Unsubscribe frame failed", "topic", topic, "error", err)
		}
	}
}

// Run maintains the connection until the context cancels. Each successful
// dial resets the backoff counter.
func (b *Bus) Run(ctx context.Context) error {
	fails := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		connected, err := b.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			fails = 0
		}
		fails++
		if err != nil {
			b.log.Warn("Event stream disconnected", "error", err, "failures", fails)
		}

		delay := time.Duration(float64(baseReconnectDelay) * math.Pow(2, float64(min(fails-1, 5))))
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connectAndRead dials, replays subscriptions for every live topic and
// reads frames until the connection drops. The bool reports whether the
// dial itself succeeded.
func (b *Bus) connectAndRead(ctx context.Context) (bool, error) {
	opts := &websocket.DialOptions{}
	if b.token != "" {
		opts.HTTPHeader = http.Header{
			"Authorization": []string{"Bearer " + b.token},
		}
	}

	conn, _, err := websocket.Dial(ctx, b.url, opts)
	if err != nil {
		return false, err
	}
	defer conn.CloseNow()

	b.mu.Lock()
	b.conn = conn
	topics := make([]event.Topic, 0, len(b.subs))
	for topic := range b.subs {
		topics = append(topics, topic)
	}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
	}()

	for _, topic := range topics {
		if err := b.writeFrame(conn, frame{Action: "subscribe", Topic: string(topic)}); err != nil {
			return true, err
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "client closing")
			}
			return true, err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			b.log.Debug("Unparseable event frame", "error", err)
			continue
		}
		b.dispatch(f)
	}
}

func (b *Bus) dispatch(f frame) {
	topic := event.Topic(f.Topic)

	b.mu.Lock()
	handlers := make([]func(event.Change), 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	if len(handlers) == 0 {
		return
	}

	change := event.Change{Kind: event.ChangeKind(f.Kind)}
	if f.Message != nil {
		change.Message = f.Message.toDomain()
	}
	if f.Notification != nil {
		change.Notification = f.Notification.toDomain()
	}
	for _, h := range handlers {
		h(change)
	}
}

func (b *Bus) writeFrame(conn *websocket.Conn, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// Close rejects further subscriptions. The connection itself dies with the
// worker context.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (m *wireMessage) toDomain() domain.Message {
	return domain.Message{
		ID:          domain.ServerID(m.ID),
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		SenderPhoto: m.SenderPhoto,
		Kind:        domain.MessageKind(m.Kind),
		Text:        m.Text,
		SentAt:      m.SentAt,
		Status:      domain.StatusConfirmed,
	}
}

func (n *wireNotification) toDomain() domain.Notification {
	return domain.Notification{
		ID:        n.ID,
		Type:      domain.NotificationType(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		Lang:      n.Lang,
		CreatedAt: n.CreatedAt,
	}
}
