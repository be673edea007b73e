// Package domain contains the core concepts of the chat client.
// Messages, rooms and notifications are plain values; every store that
// mutates them lives in projection or repositories.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindSystem MessageKind = "system"
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusConfirmed MessageStatus = "confirmed"
)

// MessageID identifies a message either by the server-assigned id or, for a
// message that has not been acknowledged yet, by a locally generated id.
// Exactly one of the two halves is set; the zero value identifies nothing.
// Reconciliation matches on the whole value, so a local placeholder can never
// collide with a confirmed row.
type MessageID struct {
	local  string
	server string
}

func NewLocalID() MessageID {
	return MessageID{local: uuid.NewString()}
}

func ServerID(id string) MessageID {
	return MessageID{server: id}
}

func (id MessageID) IsLocal() bool {
	return id.local != ""
}

func (id MessageID) IsZero() bool {
	return id.local == "" && id.server == ""
}

// String returns the server id for confirmed messages and the local id
// otherwise. Used for cache keys and logs only, never for matching.
func (id MessageID) String() string {
	if id.server != "" {
		return id.server
	}
	return id.local
}

// Message represents a single chat message as seen by the client.
// SenderName and SenderPhoto are denormalized from the sender profile and
// may be empty when the profile could not be resolved.
type Message struct {
	ID          MessageID
	RoomID      string
	SenderID    string
	SenderName  string
	SenderPhoto string
	Kind        MessageKind
	Text        string
	SentAt      time.Time
	Status      MessageStatus
}

// NewPending builds the locally visible placeholder for an optimistic send.
func NewPending(roomID, senderID, text string) Message {
	return Message{
		ID:       NewLocalID(),
		RoomID:   roomID,
		SenderID: senderID,
		Kind:     KindText,
		Text:     text,
		SentAt:   time.Now().UTC(),
		Status:   StatusPending,
	}
}
