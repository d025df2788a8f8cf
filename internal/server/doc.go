// Package server is the WebSocket transport of roomcast.
//
// A Hub owns every live Client and the chat.Dispatcher they talk to. Clients
// decode inbound JSON frames into chat intents and hand them to the
// dispatcher; the hub implements chat.Sink and queues the resulting events on
// the recipients' send buffers. Configuration, origin checks, rate limiting,
// metrics and the HTTP routes live in their own files.
package server
