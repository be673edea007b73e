package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-sync/domain"
)

func room(id string, unread int, lastAt time.Time) domain.Room {
	r := domain.Room{
		ID:          id,
		Kind:        domain.RoomDirect,
		DisplayName: "room " + id,
		UnreadCount: unread,
	}
	if !lastAt.IsZero() {
		r.LastMessage = &domain.Preview{Text: "last", SentAt: lastAt}
	}
	return r
}

func TestDirectory_Reset_OrdersByActivity(t *testing.T) {
	req := require.New(t)
	d := NewDirectory()
	now := time.Now().UTC()

	d.Reset([]domain.Room{
		room("old", 0, now.Add(-time.Hour)),
		room("fresh", 0, now),
		room("silent", 0, time.Time{}),
	})

	rooms := d.Rooms()
	req.Equal("fresh", rooms[0].ID)
	req.Equal("old", rooms[1].ID)
	req.Equal("silent", rooms[2].ID)
}

func TestDirectory_PatchPreview_Resorts(t *testing.T) {
	req := require.New(t)
	d := NewDirectory()
	now := time.Now().UTC()
	d.Reset([]domain.Room{
		room("a", 0, now),
		room("b", 0, now.Add(-time.Hour)),
	})

	// When room b receives a newer message
	d.PatchPreview("b", "ping", now.Add(time.Minute))

	rooms := d.Rooms()
	req.Equal("b", rooms[0].ID)
	req.Equal("ping", rooms[0].LastMessage.Text)
}

func TestDirectory_ResetUnread_OnlyThatRoom(t *testing.T) {
	req := require.New(t)
	d := NewDirectory()
	now := time.Now().UTC()
	d.Reset([]domain.Room{
		room("a", 5, now),
		room("b", 3, now),
	})

	d.ResetUnread("a")

	a, ok := d.Get("a")
	req.True(ok)
	req.Zero(a.UnreadCount)
	b, ok := d.Get("b")
	req.True(ok)
	req.Equal(3, b.UnreadCount)
	req.Equal(3, d.TotalUnread())
}

func TestDirectory_BumpUnread_And_Total(t *testing.T) {
	req := require.New(t)
	d := NewDirectory()
	now := time.Now().UTC()
	d.Reset([]domain.Room{room("a", 0, now), room("b", 1, now)})

	d.BumpUnread("a")
	d.BumpUnread("a")
	d.BumpUnread("missing")

	req.Equal(4, d.TotalUnread())
}

func TestDirectory_Remove(t *testing.T) {
	req := require.New(t)
	d := NewDirectory()
	now := time.Now().UTC()
	d.Reset([]domain.Room{room("a", 0, now), room("b", 0, now)})

	d.Remove("a")

	req.Len(d.Rooms(), 1)
	_, ok := d.Get("a")
	req.False(ok)
}
