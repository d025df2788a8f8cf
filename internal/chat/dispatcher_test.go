package chat

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type delivery struct {
	ev Event
	to []string
}

// recordingSink keeps every delivery in emission order.
type recordingSink struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (s *recordingSink) Deliver(ev Event, connIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, delivery{ev: ev, to: slices.Clone(connIDs)})
}

// received returns the events delivered to connID with one of the given
// names, in delivery order. No names means every event.
func (s *recordingSink) received(connID string, names ...EventName) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, d := range s.deliveries {
		if !slices.Contains(d.to, connID) {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, d.ev.Name) {
			continue
		}
		out = append(out, d.ev)
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	d := NewDispatcher(sink, nil, WithClock(fixedClock(at)), WithIDGenerator(sequentialIDs()))
	return d, sink
}

func connectAs(t *testing.T, d *Dispatcher, connID, username string, rooms ...string) {
	t.Helper()
	d.Connect(connID)
	require.NoError(t, d.Dispatch(connID, Register{Username: username}))
	for _, room := range rooms {
		require.NoError(t, d.Dispatch(connID, JoinRoom{Room: room}))
	}
}

func TestDispatcher_Connect_SendsConnectionID(t *testing.T) {
	d, sink := newTestDispatcher(t)

	d.Connect("A")

	require.Equal(t, []Event{{Name: EventUserID, Payload: UserIDPayload{ID: "A"}}}, sink.received("A"))
}

func TestDispatcher_Register_AcksWithConnectionID(t *testing.T) {
	d, sink := newTestDispatcher(t)
	d.Connect("A")
	sink.reset()

	require.NoError(t, d.Dispatch("A", Register{Username: "alice"}))

	require.Equal(t, []Event{{Name: EventUserID, Payload: UserIDPayload{ID: "A"}}}, sink.received("A"))
}

func TestDispatcher_SendAndHistory(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general")
	connectAs(t, d, "B", "bob", "general")

	// When A sends "hi"
	req.NoError(d.Dispatch("A", SendMessage{Author: "alice", Body: "hi", Room: "general"}))

	// Then both members receive it
	for _, conn := range []string{"A", "B"} {
		events := sink.received(conn, EventMessage)
		req.Len(events, 1, conn)
		msg := events[0].Payload.(Message)
		req.Equal("alice", msg.Author)
		req.Equal("hi", msg.Body)
		req.Equal("general", msg.Room)
	}

	// And the history holds exactly that message, for the requester only
	req.NoError(d.Dispatch("A", GetPastMessages{Room: "general"}))
	past := sink.received("A", EventPastMessages)
	req.Len(past, 1)
	payload := past[0].Payload.(PastMessagesPayload)
	req.Equal("general", payload.Room)
	req.Len(payload.Messages, 1)
	req.Equal("hi", payload.Messages[0].Body)
	req.Empty(sink.received("B", EventPastMessages))
}

func TestDispatcher_Unsend_BroadcastsRemovalOnce(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general")
	connectAs(t, d, "B", "bob", "general")

	req.NoError(d.Dispatch("A", SendMessage{Author: "alice", Body: "oops", Room: "general"}))
	sent := sink.received("A", EventMessage)[0].Payload.(Message)

	unsend := UnsendMessage{MessageRef{ID: sent.ID, Room: "general"}}
	req.NoError(d.Dispatch("A", unsend))
	req.NoError(d.Dispatch("A", unsend))

	for _, conn := range []string{"A", "B"} {
		removals := sink.received(conn, EventRemoveMessage)
		req.Len(removals, 1, conn)
		req.Equal(sent.ID, removals[0].Payload.(Message).ID)
	}
	req.Empty(d.History("general"))
}

func TestDispatcher_Send_EmptyBodyIsDropped(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general")

	for _, body := range []string{"", "   "} {
		err := d.Dispatch("A", SendMessage{Author: "alice", Body: body, Room: "general"})
		req.ErrorIs(err, ErrEmptyMessage)
	}

	req.Empty(sink.received("A", EventMessage))
	req.Empty(d.History("general"))
}

func TestDispatcher_Send_ToRoomWithoutMembers(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice")

	req.NoError(d.Dispatch("A", SendMessage{Author: "alice", Body: "anyone?", Room: "empty"}))

	req.Empty(sink.received("A", EventMessage))
	req.Len(d.History("empty"), 1)
}

func TestDispatcher_Send_DefaultsAuthorToRegisteredName(t *testing.T) {
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general")

	require.NoError(t, d.Dispatch("A", SendMessage{Body: "hello", Room: "general"}))

	msg := sink.received("A", EventMessage)[0].Payload.(Message)
	require.Equal(t, "alice", msg.Author)
}

func TestDispatcher_RoomIsolation(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general", "random")
	connectAs(t, d, "B", "bob", "general")
	connectAs(t, d, "C", "carol", "random")

	req.NoError(d.Dispatch("A", SendMessage{Author: "alice", Body: "to general", Room: "general"}))
	req.NoError(d.Dispatch("A", SendMessage{Author: "alice", Body: "to random", Room: "random"}))

	bodies := func(conn string) []string {
		var out []string
		for _, ev := range sink.received(conn, EventMessage) {
			out = append(out, ev.Payload.(Message).Body)
		}
		return out
	}
	req.Equal([]string{"to general", "to random"}, bodies("A"))
	req.Equal([]string{"to general"}, bodies("B"))
	req.Equal([]string{"to random"}, bodies("C"))
}

func TestDispatcher_OrderPreservedAcrossMembers(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general")
	connectAs(t, d, "B", "bob", "general")
	connectAs(t, d, "C", "carol", "general")

	var wg sync.WaitGroup
	for i, conn := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 30; j++ {
				_ = d.Dispatch(conn, SendMessage{Body: fmt.Sprintf("%d-%d", i, j), Room: "general"})
				if j%3 == 0 {
					history := d.History("general")
					if len(history) > 0 {
						_ = d.Dispatch(conn, UnsendMessage{MessageRef{ID: history[0].ID, Room: "general"}})
					}
				}
			}
		}()
	}
	wg.Wait()

	sequence := func(conn string) []string {
		var out []string
		for _, ev := range sink.received(conn, EventMessage, EventRemoveMessage) {
			out = append(out, string(ev.Name)+":"+ev.Payload.(Message).ID)
		}
		return out
	}
	a := sequence("A")
	req.Len(sink.received("A", EventMessage), 90)
	req.Equal(a, sequence("B"))
	req.Equal(a, sequence("C"))
}

func TestDispatcher_Join_RequiresUsername(t *testing.T) {
	req := require.New(t)
	d, _ := newTestDispatcher(t)
	d.Connect("A")

	err := d.Dispatch("A", JoinRoom{Room: "general"})
	req.ErrorIs(err, ErrNotRegistered)
	req.Empty(d.Rooms(true))

	// A username in the join binds the connection
	req.NoError(d.Dispatch("A", JoinRoom{Username: "alice", Room: "general"}))
	req.Equal([]string{"general"}, d.RoomsOf("A"))
	req.Equal([]string{"A"}, d.Members("general"))
}

func TestDispatcher_Join_IsIdempotent(t *testing.T) {
	d, _ := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general", "general")

	require.Equal(t, []RoomSummary{{Name: "general", MemberCount: 1}}, d.Rooms(false))
}

func TestDispatcher_PrivacyFiltering(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice")
	req.NoError(d.Dispatch("A", JoinRoom{Room: "secret", Private: true}))
	req.NoError(d.Dispatch("A", JoinRoom{Room: "general"}))
	d.Connect("C")

	req.NoError(d.Dispatch("C", GetAllRooms{}))
	req.NoError(d.Dispatch("A", GetAllRooms{IncludePrivate: true}))

	public := sink.received("C", EventRooms)[0].Payload.(RoomsPayload)
	req.Equal([]RoomSummary{{Name: "general", MemberCount: 1}}, public.Rooms)

	all := sink.received("A", EventRooms)[0].Payload.(RoomsPayload)
	req.Equal([]RoomSummary{{Name: "general", MemberCount: 1}, {Name: "secret", MemberCount: 1}}, all.Rooms)
}

func TestDispatcher_Privacy_FirstJoinWins(t *testing.T) {
	d, _ := newTestDispatcher(t)
	connectAs(t, d, "A", "alice")
	connectAs(t, d, "B", "bob")

	require.NoError(t, d.Dispatch("A", JoinRoom{Room: "secret", Private: true}))
	require.NoError(t, d.Dispatch("B", JoinRoom{Room: "secret", Private: false}))

	require.Empty(t, d.Rooms(false))
}

func TestDispatcher_AnnouncementSurvivesUnsend(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general")
	connectAs(t, d, "B", "bob", "general")

	req.NoError(d.Dispatch("A", SendMessage{Author: "alice", Body: "meeting at noon", Room: "general"}))
	msg := sink.received("A", EventMessage)[0].Payload.(Message)
	ref := MessageRef{ID: msg.ID, Author: msg.Author, Body: msg.Body, Room: msg.Room}

	req.NoError(d.Dispatch("B", AnnounceMessage{ref}))
	req.True(d.History("general")[0].Announce)

	announced := sink.received("B", EventNewAnnounce)
	req.Len(announced, 1)
	req.True(announced[0].Payload.(Message).Announce)
	req.Len(sink.received("A", EventNewAnnounce), 1)

	req.NoError(d.Dispatch("A", UnsendMessage{ref}))
	req.Empty(d.History("general"))

	current, ok := d.CurrentAnnouncement("general")
	req.True(ok)
	req.Equal("meeting at noon", current.Body)
	req.Equal("alice", current.Author)

	req.NoError(d.Dispatch("B", GetAnnouncement{Room: "general"}))
	payload := sink.received("B", EventAnnouncement)[0].Payload.(AnnouncementPayload)
	req.NotNil(payload.Current)
	req.Equal("meeting at noon", payload.Current.Body)
}

func TestDispatcher_Announce_HistoryAndRemoval(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general")

	req.NoError(d.Dispatch("A", AnnounceMessage{MessageRef{ID: "x1", Author: "alice", Body: "first", Room: "general"}}))
	req.NoError(d.Dispatch("A", AnnounceMessage{MessageRef{ID: "x2", Author: "alice", Body: "second", Room: "general"}}))

	err := d.Dispatch("A", AnnounceMessage{MessageRef{ID: "x3", Author: "alice", Body: " ", Room: "general"}})
	req.ErrorIs(err, ErrEmptyMessage)

	req.NoError(d.Dispatch("A", GetAnnouncement{Room: "general"}))
	payload := sink.received("A", EventAnnouncement)[0].Payload.(AnnouncementPayload)
	req.Equal("second", payload.Current.Body)
	req.Len(payload.History, 1)
	req.Equal("first", payload.History[0].Body)

	req.NoError(d.Dispatch("A", RemoveAnnouncement{Room: "general"}))
	req.Equal([]Event{{Name: EventAnnounceRemoved, Payload: AnnounceRemovedPayload{Room: "general"}}},
		sink.received("A", EventAnnounceRemoved))
	_, ok := d.CurrentAnnouncement("general")
	req.False(ok)
}

func TestDispatcher_Leave_IsIdempotentAndNotifies(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general")
	connectAs(t, d, "B", "bob", "general")

	req.NoError(d.Dispatch("A", LeaveRoom{Room: "general"}))
	req.NoError(d.Dispatch("A", LeaveRoom{Room: "general"}))
	req.NoError(d.Dispatch("A", LeaveRoom{Room: "never-joined"}))

	req.Equal([]string{"B"}, d.Members("general"))
	req.Empty(d.RoomsOf("A"))
	req.Equal([]Event{{Name: EventUserLeft, Payload: UserLeftPayload{Room: "general", Username: "alice"}}},
		sink.received("B", EventUserLeft))

	// A no longer receives room traffic
	req.NoError(d.Dispatch("B", SendMessage{Author: "bob", Body: "bye", Room: "general"}))
	req.Empty(sink.received("A", EventMessage))
}

func TestDispatcher_Disconnect_LeavesEveryRoom(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general", "random")
	connectAs(t, d, "B", "bob", "general")

	d.Disconnect("A")
	d.Disconnect("A")

	req.Equal([]RoomSummary{{Name: "general", MemberCount: 1}, {Name: "random", MemberCount: 0}}, d.Rooms(true))
	req.Equal([]Event{{Name: EventUserLeft, Payload: UserLeftPayload{Room: "general", Username: "alice"}}},
		sink.received("B", EventUserLeft))

	req.NoError(d.Dispatch("B", GetAllUsers{}))
	req.Equal(UsersPayload{Users: []string{"bob"}}, sink.received("B", EventUsers)[0].Payload)
}

func TestDispatcher_Reregistration_KeepsMemberships(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "general")

	req.NoError(d.Dispatch("A", Register{Username: "alicia"}))
	req.NoError(d.Dispatch("A", GetUserRooms{Username: "alicia"}))
	req.NoError(d.Dispatch("A", GetUserRooms{Username: "alice"}))

	rooms := sink.received("A", EventUserRooms)
	req.Len(rooms, 2)
	req.Equal([]UserRoom{{Name: "general"}}, rooms[0].Payload.(UserRoomsPayload).Rooms)
	req.Empty(rooms[1].Payload.(UserRoomsPayload).Rooms)
}

func TestDispatcher_UserRooms_PinnedFirst(t *testing.T) {
	req := require.New(t)
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice", "alpha", "beta", "gamma")

	req.NoError(d.Dispatch("A", PinChat{Username: "alice", Room: "gamma", Pinned: true}))
	req.Empty(sink.received("A", EventUserRooms))

	req.NoError(d.Dispatch("A", GetUserRooms{Username: "alice"}))

	payload := sink.received("A", EventUserRooms)[0].Payload.(UserRoomsPayload)
	req.Equal("alice", payload.Username)
	req.Equal([]UserRoom{
		{Name: "gamma", Pinned: true},
		{Name: "alpha"},
		{Name: "beta"},
	}, payload.Rooms)
}

func TestDispatcher_GetAllUsers(t *testing.T) {
	d, sink := newTestDispatcher(t)
	connectAs(t, d, "A", "alice")
	connectAs(t, d, "B", "bob")
	d.Connect("C")

	require.NoError(t, d.Dispatch("C", GetAllUsers{}))

	require.Equal(t, []Event{{Name: EventUsers, Payload: UsersPayload{Users: []string{"alice", "bob"}}}},
		sink.received("C", EventUsers))
	require.Empty(t, sink.received("A", EventUsers))
}

type unknownIntent struct{}

func (unknownIntent) IntentName() string { return "unknown" }

func TestDispatcher_UnknownIntent(t *testing.T) {
	d, _ := newTestDispatcher(t)

	require.ErrorIs(t, d.Dispatch("A", unknownIntent{}), ErrUnknownIntent)
}

func TestDispatcher_ConcurrentJoinsAndDisconnects(t *testing.T) {
	d, _ := newTestDispatcher(t)
	rooms := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		conn := fmt.Sprintf("conn-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Connect(conn)
			_ = d.Dispatch(conn, Register{Username: conn})
			for j := range rooms {
				_ = d.Dispatch(conn, JoinRoom{Room: rooms[(i+j)%len(rooms)]})
			}
			_ = d.Dispatch(conn, SendMessage{Body: "hello", Room: rooms[i%len(rooms)]})
			d.Disconnect(conn)
		}()
	}
	wg.Wait()

	for _, summary := range d.Rooms(true) {
		require.Zero(t, summary.MemberCount, summary.Name)
	}
	require.Zero(t, d.roomLocks.held())
	require.Zero(t, d.connLocks.held())
}
