package chat

import (
	"strings"
	"time"
)

// Message is a chat message as stored in a room's history and as sent on the
// wire. ID and Time are always assigned by the server.
type Message struct {
	ID       string    `json:"id"`
	Author   string    `json:"author"`
	Body     string    `json:"message"`
	Time     time.Time `json:"time"`
	Room     string    `json:"room"`
	Announce bool      `json:"announce"`
}

func isBlank(body string) bool {
	return strings.TrimSpace(body) == ""
}
