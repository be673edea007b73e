package projection

import (
	"time"

	"chat-sync/domain"
)

// Group is one render block: a run of consecutive messages from the same
// sender. NewDay marks the first group of a calendar day so the UI can
// insert a date separator above it.
type Group struct {
	SenderID string
	Day      time.Time
	NewDay   bool
	Messages []domain.Message
}

// GroupForDisplay is a pure projection over an ordered message list.
// It is recomputed on each render and never persisted. System messages
// always start their own group.
func GroupForDisplay(messages []domain.Message) []Group {
	var groups []Group
	var lastDay time.Time

	for _, m := range messages {
		day := m.SentAt.Truncate(24 * time.Hour)
		newDay := !day.Equal(lastDay)

		last := len(groups) - 1
		sameRun := last >= 0 &&
			!newDay &&
			groups[last].SenderID == m.SenderID &&
			m.Kind != domain.KindSystem &&
			groups[last].Messages[0].Kind != domain.KindSystem

		if sameRun {
			groups[last].Messages = append(groups[last].Messages, m)
		} else {
			groups = append(groups, Group{
				SenderID: m.SenderID,
				Day:      day,
				NewDay:   newDay,
				Messages: []domain.Message{m},
			})
		}
		lastDay = day
	}
	return groups
}
