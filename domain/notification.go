package domain

import "time"

type NotificationType string

const (
	NotifFriendRequest  NotificationType = "friend_request"
	NotifFriendAccepted NotificationType = "friend_accepted"
	NotifNewMessage     NotificationType = "new_message"
)

// Notification is one item of the per-user append-only notification feed.
// Lang carries the detected language code of the body so downstream
// consumers can pick a localized template.
type Notification struct {
	ID        string
	Type      NotificationType
	Title     string
	Body      string
	Lang      string
	CreatedAt time.Time
}

// FriendRequest is an entry of the small related list re-fetched whenever
// the friend-request channel reports any change.
type FriendRequest struct {
	ID         string
	FromUserID string
	FromName   string
	FromPhoto  string
	CreatedAt  time.Time
}
