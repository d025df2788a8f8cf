package server

import (
	"encoding/json"
	"fmt"

	"github.com/Tyrowin/roomcast/internal/chat"
)

// frame is the JSON envelope of every inbound WebSocket message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decodeFrame turns one inbound WebSocket message into a chat intent.
func decodeFrame(raw []byte) (chat.Intent, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return chat.DecodeIntent(f.Event, f.Data)
}
