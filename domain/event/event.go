// Package event defines the change events delivered by a live channel and
// the topic names channels are scoped to.
package event

import "chat-sync/domain"

type ChangeKind string

const (
	Insert ChangeKind = "insert"
	Update ChangeKind = "update"
	Delete ChangeKind = "delete"
)

// Change is one pushed mutation. For message topics Message is set; Update
// events carry only the id and the new text, Delete events only the id.
// Notification topics set Notification instead.
type Change struct {
	Kind         ChangeKind
	Message      domain.Message
	Notification domain.Notification
}

// Topic scopes a subscription. The names follow the backend's channel
// naming so a transport can pass them through verbatim.
type Topic string

func RoomMessages(roomID string) Topic {
	return Topic("room:" + roomID)
}

func AllRooms(userID string) Topic {
	return Topic("all-messages:" + userID)
}

func Notifications(userID string) Topic {
	return Topic("notifications:" + userID)
}

func FriendRequests(userID string) Topic {
	return Topic("friend_requests:" + userID)
}
