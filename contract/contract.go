//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-sync/domain"
	"chat-sync/domain/event"
)

// Backend is the request/response surface of the remote collaborator.
// Persistence, authorization and side effects (push, triggers) live behind
// it; the client only consumes these calls and the event channels.
type Backend interface {
	ListRooms(ctx context.Context, userID string) ([]domain.Room, error)
	ListRoomMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
	SendMessage(ctx context.Context, roomID, senderID, text string) (domain.Message, error)
	EditMessage(ctx context.Context, messageID, senderID, text string) (domain.Message, error)
	DeleteMessage(ctx context.Context, messageID, senderID string) error
	MarkRead(ctx context.Context, roomID, userID string) error
	CreateOrFindDirectRoom(ctx context.Context, userID, partnerID string) (roomID string, created bool, err error)
	LeaveRoom(ctx context.Context, roomID, userID string) error
	ListMembers(ctx context.Context, roomID string) ([]domain.Member, error)
	ListFriendRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error)
}

// EventBus opens live subscriptions. Events for a topic are delivered to the
// handler in backend commit order until the subscription is closed.
type EventBus interface {
	Subscribe(topic event.Topic, handler func(event.Change)) (Subscription, error)
}

// Subscription owns one underlying network subscription.
// Unsubscribe is idempotent; calling it twice must not panic.
type Subscription interface {
	Unsubscribe()
}

// MessageSink receives confirmed messages for archival (local cache,
// search index). Errors are logged by the caller, never fatal.
type MessageSink interface {
	Store(msg domain.Message) error
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// ISupervisor runs workers under panic recovery and restart.
type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
