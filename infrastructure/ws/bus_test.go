package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chat-sync/domain/event"
)

// fakeServer accepts WebSocket connections and answers every subscribe
// frame with one insert event on the same topic.
type fakeServer struct {
	*httptest.Server
	dials      atomic.Int32
	subscribes atomic.Int32
	dropAfter  int32 // drop connection after this many subscribes (0 = never)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		fs.dials.Add(1)

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			if f.Action != "subscribe" {
				continue
			}
			n := fs.subscribes.Add(1)
			if fs.dropAfter > 0 && n <= fs.dropAfter {
				// Simulate a network drop right after the subscribe.
				return
			}

			push := frame{
				Topic: f.Topic,
				Kind:  string(event.Insert),
				Message: &wireMessage{
					ID: "m1", RoomID: "r1", SenderID: "u2",
					Kind: "text", Text: "pushed", SentAt: time.Now().UTC(),
				},
			}
			out, _ := json.Marshal(push)
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		}
	}))
	t.Cleanup(fs.Server.Close)
	return fs
}

func (fs *fakeServer) wsURL() string {
	return strings.Replace(fs.URL, "http", "ws", 1)
}

func newTestBus(t *testing.T, url string) (*Bus, context.CancelFunc) {
	t.Helper()
	bus := NewBus(logs.GetLoggerFromLevel(slog.LevelDebug), url, "test-token")
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = bus.Run(ctx) }()
	t.Cleanup(cancel)
	return bus, cancel
}

func TestBus_SubscribeDeliversPushedEvents(t *testing.T) {
	req := require.New(t)
	server := newFakeServer(t)
	bus, _ := newTestBus(t, server.wsURL())

	received := make(chan event.Change, 1)
	sub, err := bus.Subscribe(event.RoomMessages("r1"), func(c event.Change) {
		received <- c
	})
	req.NoError(err)
	defer sub.Unsubscribe()

	select {
	case c := <-received:
		req.Equal(event.Insert, c.Kind)
		req.Equal("pushed", c.Message.Text)
		req.Equal("r1", c.Message.RoomID)
		req.False(c.Message.ID.IsLocal())
	case <-time.After(3 * time.Second):
		req.Fail("No event delivered")
	}
}

func TestBus_ReconnectReplaysSubscriptions(t *testing.T) {
	req := require.New(t)
	server := newFakeServer(t)
	server.dropAfter = 1
	bus, _ := newTestBus(t, server.wsURL())

	received := make(chan event.Change, 1)
	sub, err := bus.Subscribe(event.RoomMessages("r1"), func(c event.Change) {
		received <- c
	})
	req.NoError(err)
	defer sub.Unsubscribe()

	// The first connection is dropped by the server; the event arrives
	// only because the bus reconnected and re-subscribed on its own.
	select {
	case c := <-received:
		req.Equal("pushed", c.Message.Text)
	case <-time.After(10 * time.Second):
		req.Fail("No event after reconnect")
	}
	req.GreaterOrEqual(server.dials.Load(), int32(2))
	req.GreaterOrEqual(server.subscribes.Load(), int32(2))
}

func TestBus_UnsubscribedTopicIsSilent(t *testing.T) {
	req := require.New(t)
	server := newFakeServer(t)
	bus, _ := newTestBus(t, server.wsURL())

	received := make(chan event.Change, 4)
	sub, err := bus.Subscribe(event.RoomMessages("r1"), func(c event.Change) {
		received <- c
	})
	req.NoError(err)

	// Drain the event answering the subscribe, then unsubscribe
	select {
	case <-received:
	case <-time.After(3 * time.Second):
		req.Fail("No event delivered")
	}
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	// A frame for a dead topic must not reach the old handler
	bus.dispatch(frame{
		Topic:   string(event.RoomMessages("r1")),
		Kind:    string(event.Insert),
		Message: &wireMessage{ID: "m2", RoomID: "r1", Text: "late"},
	})
	select {
	case <-received:
		req.Fail("Handler called after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SubscribeAfterCloseFails(t *testing.T) {
	req := require.New(t)
	bus := NewBus(logs.GetLoggerFromLevel(slog.LevelDebug), "ws://localhost:0", "")

	bus.Close()

	_, err := bus.Subscribe(event.RoomMessages("r1"), func(event.Change) {})
	req.Error(err)
}
