package projection

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"chat-sync/domain"
)

// Directory holds the rooms the user participates in, ordered by most
// recent activity. It is refreshed by full reload or patched incrementally
// from room-channel events.
type Directory struct {
	rooms []domain.Room
}

func NewDirectory() *Directory {
	return &Directory{}
}

// Reset replaces the directory with a freshly loaded room list.
func (d *Directory) Reset(rooms []domain.Room) {
	d.rooms = append([]domain.Room(nil), rooms...)
	d.sortByActivity()
}

// PatchPreview updates a room's last-message preview and re-sorts.
// Unknown rooms are ignored; the next full reload will pick them up.
func (d *Directory) PatchPreview(roomID, text string, at time.Time) {
	for i := range d.rooms {
		if d.rooms[i].ID == roomID {
			d.rooms[i].LastMessage = &domain.Preview{Text: text, SentAt: at}
			d.sortByActivity()
			return
		}
	}
}

// ResetUnread zeroes the unread counter of exactly one room.
func (d *Directory) ResetUnread(roomID string) {
	for i := range d.rooms {
		if d.rooms[i].ID == roomID {
			d.rooms[i].UnreadCount = 0
			return
		}
	}
}

// BumpUnread increments the counter of a room that is not active.
func (d *Directory) BumpUnread(roomID string) {
	for i := range d.rooms {
		if d.rooms[i].ID == roomID {
			d.rooms[i].UnreadCount++
			return
		}
	}
}

// Remove drops a room the user has left.
func (d *Directory) Remove(roomID string) {
	d.rooms = lo.Reject(d.rooms, func(r domain.Room, _ int) bool {
		return r.ID == roomID
	})
}

func (d *Directory) Get(roomID string) (domain.Room, bool) {
	return lo.Find(d.rooms, func(r domain.Room) bool {
		return r.ID == roomID
	})
}

// Rooms returns a copy of the ordered room list.
func (d *Directory) Rooms() []domain.Room {
	return append([]domain.Room(nil), d.rooms...)
}

// TotalUnread is the aggregate counter shown on the chat tab badge.
func (d *Directory) TotalUnread() int {
	return lo.SumBy(d.rooms, func(r domain.Room) int {
		return r.UnreadCount
	})
}

func (d *Directory) sortByActivity() {
	sort.SliceStable(d.rooms, func(i, j int) bool {
		return lastActivity(d.rooms[i]).After(lastActivity(d.rooms[j]))
	})
}

func lastActivity(r domain.Room) time.Time {
	if r.LastMessage == nil {
		return time.Time{}
	}
	return r.LastMessage.SentAt
}
