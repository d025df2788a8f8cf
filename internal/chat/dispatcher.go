package chat

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// Dispatcher applies client intents to the room, message, presence and
// announcement stores and emits the resulting events through a Sink.
//
// Every operation touching a room runs under that room's lock, and its events
// are emitted before the lock is released, so members of a room observe events
// in commit order. Operations touching a connection's presence take the
// connection lock first and room locks after it, in lexicographic order.
type Dispatcher struct {
	sink     Sink
	log      *slog.Logger
	messages *MessageStore
	rooms    *RoomDirectory
	presence *PresenceTracker
	board    *AnnouncementBoard

	roomLocks *keyedMutex
	connLocks *keyedMutex
	now       func() time.Time
}

// Option configures a Dispatcher.
type Option func(*dispatcherOptions)

type dispatcherOptions struct {
	now   func() time.Time
	newID func() string
}

// WithClock sets the clock used to stamp messages and rooms.
func WithClock(now func() time.Time) Option {
	return func(o *dispatcherOptions) { o.now = now }
}

// WithIDGenerator sets the generator of message ids.
func WithIDGenerator(newID func() string) Option {
	return func(o *dispatcherOptions) { o.newID = newID }
}

// NewDispatcher returns a Dispatcher with empty stores emitting through sink.
func NewDispatcher(sink Sink, log *slog.Logger, opts ...Option) *Dispatcher {
	o := dispatcherOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		sink:      sink,
		log:       log,
		messages:  NewMessageStore(o.now, o.newID),
		rooms:     NewRoomDirectory(o.now),
		presence:  NewPresenceTracker(),
		board:     NewAnnouncementBoard(),
		roomLocks: newKeyedMutex(),
		connLocks: newKeyedMutex(),
		now:       o.now,
	}
}

// Connect records a new connection and sends it its id.
func (d *Dispatcher) Connect(connID string) {
	unlock := d.connLocks.Lock(connID)
	defer unlock()

	d.presence.Connect(connID)
	d.sink.Deliver(Event{Name: EventUserID, Payload: UserIDPayload{ID: connID}}, connID)
}

// Disconnect removes connID from every room it joined and drops its
// presence record. Remaining members of those rooms get a departure notice.
func (d *Dispatcher) Disconnect(connID string) {
	unlockConn := d.connLocks.Lock(connID)
	defer unlockConn()

	username, _ := d.presence.Username(connID)
	joined := d.presence.Rooms(connID)

	unlockRooms := d.roomLocks.LockAll(joined)
	defer unlockRooms()

	for _, room := range joined {
		d.rooms.Leave(room, connID)
	}
	d.presence.Disconnect(connID)

	for _, room := range joined {
		d.notifyLeft(room, username)
	}
	d.log.Debug("connection left", "conn", connID, "rooms", len(joined))
}

// Dispatch applies intent on behalf of connID. A non-nil error means the
// intent was dropped; it is never reported to the client.
func (d *Dispatcher) Dispatch(connID string, intent Intent) error {
	switch in := intent.(type) {
	case Register:
		return d.register(connID, in)
	case JoinRoom:
		return d.joinRoom(connID, in)
	case SendMessage:
		return d.sendMessage(connID, in)
	case UnsendMessage:
		d.unsendMessage(in)
	case AnnounceMessage:
		return d.announceMessage(connID, in)
	case RemoveAnnouncement:
		d.removeAnnouncement(in)
	case GetPastMessages:
		d.pastMessages(connID, in)
	case GetAnnouncement:
		d.announcement(connID, in)
	case GetAllUsers:
		d.sink.Deliver(Event{Name: EventUsers, Payload: UsersPayload{Users: d.presence.AllUsers()}}, connID)
	case GetAllRooms:
		d.sink.Deliver(Event{Name: EventRooms, Payload: RoomsPayload{Rooms: d.rooms.List(in.IncludePrivate)}}, connID)
	case GetUserRooms:
		d.userRooms(connID, in)
	case PinChat:
		d.presence.SetPin(in.Username, in.Room, in.Pinned)
	case LeaveRoom:
		d.leaveRoom(connID, in)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownIntent, intent)
	}
	return nil
}

func (d *Dispatcher) register(connID string, in Register) error {
	unlock := d.connLocks.Lock(connID)
	defer unlock()

	if previous := d.presence.Register(connID, in.Username); previous != "" && previous != in.Username {
		d.log.Info("connection re-registered", "conn", connID, "from", previous, "to", in.Username)
	}
	d.sink.Deliver(Event{Name: EventUserID, Payload: UserIDPayload{ID: connID}}, connID)
	return nil
}

func (d *Dispatcher) joinRoom(connID string, in JoinRoom) error {
	unlockConn := d.connLocks.Lock(connID)
	defer unlockConn()

	if _, ok := d.presence.Username(connID); !ok {
		if in.Username == "" {
			return fmt.Errorf("join %q: %w", in.Room, ErrNotRegistered)
		}
		d.presence.Register(connID, in.Username)
	}

	unlockRoom := d.roomLocks.Lock(in.Room)
	defer unlockRoom()

	info, created := d.rooms.Ensure(in.Room, in.Private)
	if created {
		d.log.Info("room created", "room", info.Name, "private", info.Private)
	}
	d.rooms.Join(in.Room, connID)
	d.presence.AddRoom(connID, in.Room)
	return nil
}

func (d *Dispatcher) sendMessage(connID string, in SendMessage) error {
	author := in.Author
	if author == "" {
		author, _ = d.presence.Username(connID)
	}

	unlock := d.roomLocks.Lock(in.Room)
	defer unlock()

	msg, err := d.messages.Append(in.Room, Message{Author: author, Body: in.Body})
	if err != nil {
		return fmt.Errorf("send to %q: %w", in.Room, err)
	}
	d.sink.Deliver(Event{Name: EventMessage, Payload: msg}, d.rooms.Members(in.Room)...)
	return nil
}

func (d *Dispatcher) unsendMessage(in UnsendMessage) {
	unlock := d.roomLocks.Lock(in.Room)
	defer unlock()

	removed, ok := d.messages.RemoveByID(in.Room, in.ID)
	if !ok {
		return
	}
	d.sink.Deliver(Event{Name: EventRemoveMessage, Payload: removed}, d.rooms.Members(in.Room)...)
}

func (d *Dispatcher) announceMessage(connID string, in AnnounceMessage) error {
	unlock := d.roomLocks.Lock(in.Room)
	defer unlock()

	author := in.Author
	if author == "" {
		author, _ = d.presence.Username(connID)
	}
	announced, err := d.board.Announce(in.Room, Announcement{
		MessageID: in.ID,
		Author:    author,
		Body:      in.Body,
		Time:      d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("announce in %q: %w", in.Room, err)
	}
	d.messages.MarkAnnounced(in.Room, in.ID)

	msg := Message{
		ID:       announced.MessageID,
		Author:   announced.Author,
		Body:     announced.Body,
		Time:     announced.Time,
		Room:     in.Room,
		Announce: true,
	}
	d.sink.Deliver(Event{Name: EventNewAnnounce, Payload: msg}, d.rooms.Members(in.Room)...)
	return nil
}

func (d *Dispatcher) removeAnnouncement(in RemoveAnnouncement) {
	unlock := d.roomLocks.Lock(in.Room)
	defer unlock()

	d.board.Clear(in.Room)
	d.sink.Deliver(Event{Name: EventAnnounceRemoved, Payload: AnnounceRemovedPayload{Room: in.Room}}, d.rooms.Members(in.Room)...)
}

// pastMessages replies to the requesting connection only.
func (d *Dispatcher) pastMessages(connID string, in GetPastMessages) {
	unlock := d.roomLocks.Lock(in.Room)
	defer unlock()

	d.sink.Deliver(Event{
		Name:    EventPastMessages,
		Payload: PastMessagesPayload{Room: in.Room, Messages: d.messages.List(in.Room)},
	}, connID)
}

func (d *Dispatcher) announcement(connID string, in GetAnnouncement) {
	unlock := d.roomLocks.Lock(in.Room)
	defer unlock()

	payload := AnnouncementPayload{Room: in.Room, History: d.board.History(in.Room)}
	if current, ok := d.board.Current(in.Room); ok {
		payload.Current = &current
	}
	d.sink.Deliver(Event{Name: EventAnnouncement, Payload: payload}, connID)
}

// userRooms lists the rooms of a user, pinned rooms first.
func (d *Dispatcher) userRooms(connID string, in GetUserRooms) {
	names := d.presence.RoomsForUser(in.Username)
	rooms := make([]UserRoom, 0, len(names))
	for _, name := range names {
		rooms = append(rooms, UserRoom{Name: name, Pinned: d.presence.Pinned(in.Username, name)})
	}
	slices.SortStableFunc(rooms, func(a, b UserRoom) int {
		switch {
		case a.Pinned == b.Pinned:
			return strings.Compare(a.Name, b.Name)
		case a.Pinned:
			return -1
		default:
			return 1
		}
	})
	d.sink.Deliver(Event{Name: EventUserRooms, Payload: UserRoomsPayload{Username: in.Username, Rooms: rooms}}, connID)
}

func (d *Dispatcher) leaveRoom(connID string, in LeaveRoom) {
	unlockConn := d.connLocks.Lock(connID)
	defer unlockConn()

	if !d.presence.InRoom(connID, in.Room) {
		return
	}

	unlockRoom := d.roomLocks.Lock(in.Room)
	defer unlockRoom()

	d.rooms.Leave(in.Room, connID)
	d.presence.RemoveRoom(connID, in.Room)

	username, _ := d.presence.Username(connID)
	d.notifyLeft(in.Room, username)
}

// notifyLeft tells the remaining members of room that username left. Callers
// hold the room lock.
func (d *Dispatcher) notifyLeft(room, username string) {
	members := d.rooms.Members(room)
	if len(members) == 0 || username == "" {
		return
	}
	d.sink.Deliver(Event{Name: EventUserLeft, Payload: UserLeftPayload{Room: room, Username: username}}, members...)
}

// Snapshot accessors used by the transport and tests.

// Rooms returns the room listing, including private rooms when asked.
func (d *Dispatcher) Rooms(includePrivate bool) []RoomSummary {
	return d.rooms.List(includePrivate)
}

// History returns the message history of room.
func (d *Dispatcher) History(room string) []Message {
	return d.messages.List(room)
}

// CurrentAnnouncement returns the current announcement of room.
func (d *Dispatcher) CurrentAnnouncement(room string) (Announcement, bool) {
	return d.board.Current(room)
}

// RoomsOf returns the rooms joined by connID.
func (d *Dispatcher) RoomsOf(connID string) []string {
	return d.presence.Rooms(connID)
}

// Members returns the connections currently in room.
func (d *Dispatcher) Members(room string) []string {
	return d.rooms.Members(room)
}
