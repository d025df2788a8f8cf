package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageStore holds the ordered message history of every room.
// Messages are ordered by arrival at the store, never by client time.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
	now      func() time.Time
	newID    func() string
}

// NewMessageStore creates an empty store stamping messages with the given
// clock and id generator. Nil arguments fall back to time.Now and uuid.
func NewMessageStore(now func() time.Time, newID func() string) *MessageStore {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &MessageStore{
		messages: make(map[string][]Message),
		now:      now,
		newID:    newID,
	}
}

// Append stores msg at the end of room's history and returns the stored copy
// with its id, timestamp and room filled in.
func (s *MessageStore) Append(room string, msg Message) (Message, error) {
	if isBlank(msg.Body) {
		return Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = s.newID()
	msg.Time = s.now().UTC()
	msg.Room = room
	msg.Announce = false
	s.messages[room] = append(s.messages[room], msg)
	return msg, nil
}

// RemoveByID deletes the message with the given id from room's history.
// Removing an id that is not present is a no-op reporting false.
func (s *MessageStore) RemoveByID(room, id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.messages[room]
	for i, msg := range history {
		if msg.ID != id {
			continue
		}
		s.messages[room] = append(history[:i:i], history[i+1:]...)
		return msg, true
	}
	return Message{}, false
}

// MarkAnnounced flags a stored message as promoted to an announcement.
func (s *MessageStore) MarkAnnounced(room, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.messages[room]
	for i := range history {
		if history[i].ID == id {
			history[i].Announce = true
			return true
		}
	}
	return false
}

// List returns a copy of room's history, oldest first.
func (s *MessageStore) List(room string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.messages[room]
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
