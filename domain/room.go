package domain

import "time"

type RoomKind string

const (
	RoomDirect RoomKind = "direct"
	RoomGroup  RoomKind = "group"
)

// Preview is the last-message summary shown in the room list.
type Preview struct {
	Text   string
	SentAt time.Time
}

// Room is one entry of the room directory. UnreadCount is maintained by the
// directory store: reset when the room becomes active, incremented only by
// inbound events for rooms that are not active.
type Room struct {
	ID           string
	Kind         RoomKind
	DisplayName  string
	DisplayPhoto string
	MemberCount  int
	LastMessage  *Preview
	UnreadCount  int
}

// Member is a participant of a room, denormalized from the profile table.
type Member struct {
	ID    string
	Name  string
	Photo string
}

// PlaceholderName is shown when a sender or member profile is missing.
// A partial payload degrades to this value instead of failing (a profile
// row can lag behind its first message).
const PlaceholderName = "Unknown"

// DisplayNameOrPlaceholder resolves an empty profile name.
func DisplayNameOrPlaceholder(name string) string {
	if name == "" {
		return PlaceholderName
	}
	return name
}
