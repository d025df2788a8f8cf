package chat

import "encoding/json"

// EventName identifies an outbound event on the wire.
type EventName string

const (
	EventUserID          EventName = "userId"
	EventMessage         EventName = "message"
	EventRemoveMessage   EventName = "remove-message"
	EventNewAnnounce     EventName = "new-announce"
	EventAnnounceRemoved EventName = "announce-removed"
	EventAnnouncement    EventName = "announcement"
	EventPastMessages    EventName = "past-messages"
	EventUsers           EventName = "users"
	EventRooms           EventName = "rooms"
	EventUserRooms       EventName = "user-rooms"
	EventUserLeft        EventName = "user-left"
)

// Event is one outbound event. It encodes as {"event": ..., "data": ...}.
type Event struct {
	Name    EventName
	Payload any
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event EventName `json:"event"`
		Data  any       `json:"data"`
	}{e.Name, e.Payload})
}

// Payloads of the outbound events.
type (
	UserIDPayload struct {
		ID string `json:"id"`
	}

	PastMessagesPayload struct {
		Room     string    `json:"room"`
		Messages []Message `json:"messages"`
	}

	AnnounceRemovedPayload struct {
		Room string `json:"room"`
	}

	AnnouncementPayload struct {
		Room    string         `json:"room"`
		Current *Announcement  `json:"current"`
		History []Announcement `json:"history"`
	}

	UsersPayload struct {
		Users []string `json:"users"`
	}

	RoomsPayload struct {
		Rooms []RoomSummary `json:"rooms"`
	}

	UserRoom struct {
		Name   string `json:"name"`
		Pinned bool   `json:"pinned"`
	}

	UserRoomsPayload struct {
		Username string     `json:"username"`
		Rooms    []UserRoom `json:"rooms"`
	}

	UserLeftPayload struct {
		Room     string `json:"room"`
		Username string `json:"username"`
	}
)
