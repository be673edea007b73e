// Package projection builds local views from loads and observed events.
// Handles ordering, deduplication, and display projections.
// Does not emit events or interact with UI directly.
package projection

import (
	"chat-sync/domain"
)

// Timeline holds the ordered messages of the currently active room.
// Apply functions are idempotent: replaying the same event is a no-op, so
// duplicate delivery from the channel is absorbed here.
//
// The hidden set is a client-only suppression list. Hiding is not a remote
// delete; it only filters rendering for this device.
type Timeline struct {
	messages []domain.Message
	hidden   map[domain.MessageID]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{
		hidden: make(map[domain.MessageID]struct{}),
	}
}

// Reset replaces the whole timeline with a freshly loaded history.
// Entering a room always resets, so no two rooms' messages ever coexist.
func (t *Timeline) Reset(messages []domain.Message) {
	t.messages = append([]domain.Message(nil), messages...)
	t.hidden = make(map[domain.MessageID]struct{})
}

func (t *Timeline) Clear() {
	t.Reset(nil)
}

// ApplyInsert appends a message, preserving arrival order. A message whose
// id is already present is ignored (duplicate-delivery guard).
func (t *Timeline) ApplyInsert(msg domain.Message) bool {
	if t.indexOf(msg.ID) >= 0 {
		return false
	}
	t.messages = append(t.messages, msg)
	return true
}

// ApplyUpdate merges a text change into an existing message. Unknown ids
// are a no-op: the message may have scrolled out or the room changed.
func (t *Timeline) ApplyUpdate(id domain.MessageID, text string) bool {
	i := t.indexOf(id)
	if i < 0 {
		return false
	}
	if t.messages[i].Text == text {
		return false
	}
	t.messages[i].Text = text
	return true
}

// ApplyDelete removes a message by id; absent ids are a no-op.
func (t *Timeline) ApplyDelete(id domain.MessageID) bool {
	i := t.indexOf(id)
	if i < 0 {
		return false
	}
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
	return true
}

// RestoreAt reinserts a message at its previous position after a failed
// optimistic delete. Positions past the end append.
func (t *Timeline) RestoreAt(index int, msg domain.Message) {
	if t.indexOf(msg.ID) >= 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= len(t.messages) {
		t.messages = append(t.messages, msg)
		return
	}
	t.messages = append(t.messages[:index], append([]domain.Message{msg}, t.messages[index:]...)...)
}

// Hide adds the id to the local suppression set.
func (t *Timeline) Hide(id domain.MessageID) {
	t.hidden[id] = struct{}{}
}

// Get returns the message and its position, or -1 when absent.
func (t *Timeline) Get(id domain.MessageID) (domain.Message, int) {
	i := t.indexOf(id)
	if i < 0 {
		return domain.Message{}, -1
	}
	return t.messages[i], i
}

// Messages returns a copy of the visible timeline, hidden ids filtered out.
func (t *Timeline) Messages() []domain.Message {
	out := make([]domain.Message, 0, len(t.messages))
	for _, m := range t.messages {
		if _, ok := t.hidden[m.ID]; ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Len counts every stored message, hidden ones included.
func (t *Timeline) Len() int {
	return len(t.messages)
}

func (t *Timeline) indexOf(id domain.MessageID) int {
	for i, m := range t.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}
