package chat

import (
	"slices"
	"sync"
	"time"
)

// Announcement is an independent copy of an announced message. It does not
// reference the Message Store, so unsending the source leaves it intact.
type Announcement struct {
	MessageID string    `json:"id,omitempty"`
	Author    string    `json:"author"`
	Body      string    `json:"message"`
	Time      time.Time `json:"time"`
}

type roomAnnouncements struct {
	current *Announcement
	history []Announcement // most recent first
}

// AnnouncementBoard keeps the current announcement and the announcement
// history of every room.
type AnnouncementBoard struct {
	mu    sync.RWMutex
	rooms map[string]*roomAnnouncements
}

func NewAnnouncementBoard() *AnnouncementBoard {
	return &AnnouncementBoard{rooms: make(map[string]*roomAnnouncements)}
}

// Announce replaces the current announcement of room and moves the previous
// one to the front of the history.
func (b *AnnouncementBoard) Announce(room string, a Announcement) (Announcement, error) {
	if isBlank(a.Body) {
		return Announcement{}, ErrEmptyMessage
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ra, ok := b.rooms[room]
	if !ok {
		ra = &roomAnnouncements{}
		b.rooms[room] = ra
	}
	if ra.current != nil {
		ra.history = slices.Insert(ra.history, 0, *ra.current)
	}
	ra.current = &a
	return a, nil
}

// Clear removes the current announcement and the history of room. It
// reports whether there was anything to remove.
func (b *AnnouncementBoard) Clear(room string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.rooms[room]
	delete(b.rooms, room)
	return ok
}

func (b *AnnouncementBoard) Current(room string) (Announcement, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ra, ok := b.rooms[room]
	if !ok || ra.current == nil {
		return Announcement{}, false
	}
	return *ra.current, true
}

// History returns the earlier announcements of room, most recent first.
func (b *AnnouncementBoard) History(room string) []Announcement {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ra, ok := b.rooms[room]
	if !ok {
		return []Announcement{}
	}
	return append([]Announcement{}, ra.history...)
}
