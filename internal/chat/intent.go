package chat

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Intent is an inbound client request routed to the Dispatcher.
type Intent interface {
	IntentName() string
}

// MessageRef identifies a stored message. Clients echo back the message they
// received, so every wire field is accepted; only ID and Room are used to
// locate it.
type MessageRef struct {
	ID     string `json:"id" validate:"required,max=64"`
	Author string `json:"author" validate:"max=50"`
	Body   string `json:"message" validate:"max=5000"`
	Room   string `json:"room" validate:"required,max=100"`
}

type Register struct {
	Username string `json:"username" validate:"required,max=50"`
}

type JoinRoom struct {
	Username string `json:"username" validate:"max=50"`
	Room     string `json:"room" validate:"required,max=100"`
	Private  bool   `json:"private"`
}

// SendMessage carries the client's clock in ClientTime for display only; the
// stored message is stamped by the server.
type SendMessage struct {
	Author     string          `json:"author" validate:"max=50"`
	Body       string          `json:"message" validate:"max=5000"`
	ClientTime json.RawMessage `json:"time,omitempty"`
	Room       string          `json:"room" validate:"required,max=100"`
}

type UnsendMessage struct {
	MessageRef
}

type AnnounceMessage struct {
	MessageRef
}

type RemoveAnnouncement struct {
	Room string `json:"room" validate:"required,max=100"`
}

type GetPastMessages struct {
	Room string `json:"room" validate:"required,max=100"`
}

type GetAnnouncement struct {
	Room string `json:"room" validate:"required,max=100"`
}

type GetAllUsers struct{}

type GetAllRooms struct {
	IncludePrivate bool `json:"private"`
}

type GetUserRooms struct {
	Username string `json:"username" validate:"required,max=50"`
}

type PinChat struct {
	Username string `json:"username" validate:"required,max=50"`
	Room     string `json:"room" validate:"required,max=100"`
	Pinned   bool   `json:"pinStatus"`
}

type LeaveRoom struct {
	Username string `json:"username" validate:"max=50"`
	Room     string `json:"room" validate:"required,max=100"`
}

func (Register) IntentName() string           { return "register" }
func (JoinRoom) IntentName() string           { return "join-room" }
func (SendMessage) IntentName() string        { return "send-message" }
func (UnsendMessage) IntentName() string      { return "unsend-message" }
func (AnnounceMessage) IntentName() string    { return "announce-message" }
func (RemoveAnnouncement) IntentName() string { return "remove-announce" }
func (GetPastMessages) IntentName() string    { return "get-past-messages" }
func (GetAnnouncement) IntentName() string    { return "get-announcement" }
func (GetAllUsers) IntentName() string        { return "get-all-users" }
func (GetAllRooms) IntentName() string        { return "get-all-rooms" }
func (GetUserRooms) IntentName() string       { return "get-user-rooms" }
func (PinChat) IntentName() string            { return "pin-chat" }
func (LeaveRoom) IntentName() string          { return "leave-room" }

var intentDecoders = map[string]func(json.RawMessage) (Intent, error){
	"register":          decodeAs[Register],
	"join-room":         decodeAs[JoinRoom],
	"send-message":      decodeAs[SendMessage],
	"unsend-message":    decodeAs[UnsendMessage],
	"announce-message":  decodeAs[AnnounceMessage],
	"remove-announce":   decodeAs[RemoveAnnouncement],
	"get-past-messages": decodeAs[GetPastMessages],
	"get-announcement":  decodeAs[GetAnnouncement],
	"get-all-users":     decodeAs[GetAllUsers],
	"get-all-rooms":     decodeAs[GetAllRooms],
	"get-user-rooms":    decodeAs[GetUserRooms],
	"pin-chat":          decodeAs[PinChat],
	"leave-room":        decodeAs[LeaveRoom],
}

// DecodeIntent builds the intent named name from its JSON payload and
// validates it. A missing or null payload decodes as the zero intent.
func DecodeIntent(name string, data json.RawMessage) (Intent, error) {
	decode, ok := intentDecoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, name)
	}
	intent, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidIntent, name, err)
	}
	return intent, nil
}

func decodeAs[T Intent](data json.RawMessage) (Intent, error) {
	var intent T
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &intent); err != nil {
			return nil, err
		}
	}
	if err := validate.Struct(intent); err != nil {
		return nil, err
	}
	return intent, nil
}
