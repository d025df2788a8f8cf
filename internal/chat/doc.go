// Package chat holds the in-memory state of roomcast and the rules for
// changing it: rooms and their members, per-room message history,
// announcements, and which connection is which user. The Dispatcher applies
// client intents to that state and reports the resulting events to a Sink.
package chat
