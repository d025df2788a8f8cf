package chat

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

type set map[string]struct{}

// presence is the record of one live connection.
type presence struct {
	username string
	rooms    set
}

// PresenceTracker maps connection ids to usernames and joined rooms, and
// keeps per-user pin preferences.
//
// Pins are keyed by username and outlive the connections that set them.
type PresenceTracker struct {
	mu    sync.RWMutex
	conns map[string]*presence
	pins  map[string]set
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		conns: make(map[string]*presence),
		pins:  make(map[string]set),
	}
}

// Connect creates an empty record for connID. Connecting twice keeps the
// existing record.
func (p *PresenceTracker) Connect(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.conns[connID]; !ok {
		p.conns[connID] = &presence{rooms: make(set)}
	}
}

// Register binds username to connID, replacing any earlier binding, and
// returns the previous username. Joined rooms stay with the connection.
func (p *PresenceTracker) Register(connID, username string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.record(connID)
	previous := rec.username
	rec.username = username
	return previous
}

// Username returns the username bound to connID, if any.
func (p *PresenceTracker) Username(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.conns[connID]
	if !ok || rec.username == "" {
		return "", false
	}
	return rec.username, true
}

func (p *PresenceTracker) AddRoom(connID, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(connID).rooms[room] = struct{}{}
}

func (p *PresenceTracker) RemoveRoom(connID, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec, ok := p.conns[connID]; ok {
		delete(rec.rooms, room)
	}
}

// InRoom reports whether connID has joined room.
func (p *PresenceTracker) InRoom(connID, room string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.conns[connID]
	if !ok {
		return false
	}
	_, in := rec.rooms[room]
	return in
}

// Rooms returns the rooms joined by connID, sorted.
func (p *PresenceTracker) Rooms(connID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.conns[connID]
	if !ok {
		return nil
	}
	return sortedKeys(rec.rooms)
}

// RoomsForUser returns the union of rooms joined by every live connection
// bound to username, sorted.
func (p *PresenceTracker) RoomsForUser(username string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rooms := make(set)
	for _, rec := range p.conns {
		if rec.username != username {
			continue
		}
		for room := range rec.rooms {
			rooms[room] = struct{}{}
		}
	}
	return sortedKeys(rooms)
}

// AllUsers returns the distinct usernames bound to live connections, sorted.
func (p *PresenceTracker) AllUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := lo.FilterMap(lo.Values(p.conns), func(rec *presence, _ int) (string, bool) {
		return rec.username, rec.username != ""
	})
	names = lo.Uniq(names)
	slices.Sort(names)
	return names
}

// Connections returns the ids of every live connection, sorted.
func (p *PresenceTracker) Connections() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := lo.Keys(p.conns)
	slices.Sort(ids)
	return ids
}

// SetPin records whether username has pinned room. It has no effect on
// delivery.
func (p *PresenceTracker) SetPin(username, room string, pinned bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !pinned {
		delete(p.pins[username], room)
		return
	}
	if p.pins[username] == nil {
		p.pins[username] = make(set)
	}
	p.pins[username][room] = struct{}{}
}

func (p *PresenceTracker) Pinned(username, room string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.pins[username][room]
	return ok
}

// Disconnect drops connID's record and returns the rooms it had joined.
func (p *PresenceTracker) Disconnect(connID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.conns[connID]
	if !ok {
		return nil
	}
	delete(p.conns, connID)
	return sortedKeys(rec.rooms)
}

// record returns connID's record, creating it if needed. Callers hold p.mu.
func (p *PresenceTracker) record(connID string) *presence {
	rec, ok := p.conns[connID]
	if !ok {
		rec = &presence{rooms: make(set)}
		p.conns[connID] = rec
	}
	return rec
}

func sortedKeys(s set) []string {
	keys := lo.Keys(s)
	slices.Sort(keys)
	return keys
}
