package chat

import "errors"

// Errors returned by the stores and the Dispatcher. None of them is ever
// reported to a client; the transport logs them and moves on.
var (
	ErrEmptyMessage  = errors.New("message body is empty")
	ErrNotRegistered = errors.New("connection has no registered username")
	ErrInvalidIntent = errors.New("invalid intent")
	ErrUnknownIntent = errors.New("unknown intent")
)
