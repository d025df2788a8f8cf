package chat

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

type room struct {
	name      string
	private   bool
	createdAt time.Time
	members   map[string]struct{}
}

// RoomInfo describes a room without exposing its member set.
type RoomInfo struct {
	Name      string
	Private   bool
	CreatedAt time.Time
}

// RoomSummary is one entry of a room listing.
type RoomSummary struct {
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

// RoomDirectory maps room names to their metadata and member sets. A room is
// created by its first join and is never deleted.
type RoomDirectory struct {
	mu    sync.RWMutex
	rooms map[string]*room
	now   func() time.Time
}

func NewRoomDirectory(now func() time.Time) *RoomDirectory {
	if now == nil {
		now = time.Now
	}
	return &RoomDirectory{
		rooms: make(map[string]*room),
		now:   now,
	}
}

// Ensure returns the named room, creating it with the given privacy flag if it
// does not exist yet. The privacy of an existing room is never changed.
func (d *RoomDirectory) Ensure(name string, private bool) (RoomInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	if !ok {
		r = &room{
			name:      name,
			private:   private,
			createdAt: d.now().UTC(),
			members:   make(map[string]struct{}),
		}
		d.rooms[name] = r
	}
	return RoomInfo{Name: r.name, Private: r.private, CreatedAt: r.createdAt}, !ok
}

// Join adds connID to the room's members and reports whether it was added.
// The room must already exist.
func (d *RoomDirectory) Join(name, connID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	if !ok {
		return false
	}
	if _, member := r.members[connID]; member {
		return false
	}
	r.members[connID] = struct{}{}
	return true
}

// Leave removes connID from the room's members and reports whether it was
// a member.
func (d *RoomDirectory) Leave(name, connID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	if !ok {
		return false
	}
	if _, member := r.members[connID]; !member {
		return false
	}
	delete(r.members, connID)
	return true
}

// Members returns the connection ids currently in the room, sorted.
func (d *RoomDirectory) Members(name string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[name]
	if !ok {
		return nil
	}
	members := lo.Keys(r.members)
	slices.Sort(members)
	return members
}

// Info returns the metadata of an existing room.
func (d *RoomDirectory) Info(name string) (RoomInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[name]
	if !ok {
		return RoomInfo{}, false
	}
	return RoomInfo{Name: r.name, Private: r.private, CreatedAt: r.createdAt}, true
}

// List returns every room sorted by name. Private rooms are left out entirely
// unless includePrivate is set.
func (d *RoomDirectory) List(includePrivate bool) []RoomSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	visible := lo.Filter(lo.Values(d.rooms), func(r *room, _ int) bool {
		return includePrivate || !r.private
	})
	summaries := lo.Map(visible, func(r *room, _ int) RoomSummary {
		return RoomSummary{Name: r.name, MemberCount: len(r.members)}
	})
	slices.SortFunc(summaries, func(a, b RoomSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	return summaries
}
