package chat

//go:generate mockgen -source=sink.go -destination=mocks/mock_sink.go -package=mocks

// Sink delivers an event to a set of connections. Delivery is fire and forget:
// Deliver must not block on the recipients, because the Dispatcher calls it
// while holding room locks.
type Sink interface {
	Deliver(ev Event, connIDs ...string)
}
