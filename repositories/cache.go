//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=../mocks/mock_cache.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-sync/domain"
)

type IMessageCache interface {
	Store(msg domain.Message) error
	Recent(roomID string, cursor *string) ([]domain.Message, *string, error)
}

// MessageCache keeps confirmed messages on disk so a room opens instantly
// from local history while the network load is in flight. Pending
// placeholders are never written.
type MessageCache struct {
	db    *badger.DB
	log   *slog.Logger
	limit *int
}

func NewMessageCache(db *badger.DB, log *slog.Logger, limit *int) MessageCache {
	return MessageCache{db: db, log: log, limit: limit}
}

// cachedMessage is the JSON shape stored in badger.
type cachedMessage struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	SenderPhoto string    `json:"sender_photo,omitempty"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
}

// Store persists a confirmed message.
// The key is formatted as "msg:{room_id}:{timestamp_padded}:{id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the server id as a collision disconnector
//     if two messages arrive at the same nanosecond.
func (c MessageCache) Store(msg domain.Message) error {
	if msg.Status != domain.StatusConfirmed || msg.ID.IsLocal() {
		return nil
	}
	key := fmt.Sprintf("msg:%s:%019d:%s",
		msg.RoomID,
		msg.SentAt.UnixNano(),
		msg.ID,
	)
	bytes, err := json.Marshal(toCached(msg))
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Recent retrieves the newest messages of a room using a reverse prefix
// scan. Thanks to the padded timestamp in the key, messages are naturally
// sorted by time. It stops once the configured limit is reached and returns
// a cursor for the next older page.
func (c MessageCache) Recent(roomID string, cursor *string) ([]domain.Message, *string, error) {
	var raw [][]byte
	var lastKey string

	err := c.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", roomID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if c.limit != nil && len(raw) == *c.limit {
				c.log.Debug(fmt.Sprintf("Maximum of %d cached messages reached", *c.limit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// The scan walked newest-first; the timeline wants oldest-first.
	messages := make([]domain.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var cached cachedMessage
		if err = json.Unmarshal(raw[i], &cached); err != nil {
			return nil, nil, err
		}
		messages = append(messages, fromCached(cached))
	}
	return messages, &lastKey, nil
}

func toCached(msg domain.Message) cachedMessage {
	return cachedMessage{
		ID:          msg.ID.String(),
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		SenderPhoto: msg.SenderPhoto,
		Kind:        string(msg.Kind),
		Text:        msg.Text,
		SentAt:      msg.SentAt.UTC(),
	}
}

func fromCached(cached cachedMessage) domain.Message {
	return domain.Message{
		ID:          domain.ServerID(cached.ID),
		RoomID:      cached.RoomID,
		SenderID:    cached.SenderID,
		SenderName:  cached.SenderName,
		SenderPhoto: cached.SenderPhoto,
		Kind:        domain.MessageKind(cached.Kind),
		Text:        cached.Text,
		SentAt:      cached.SentAt,
		Status:      domain.StatusConfirmed,
	}
}
