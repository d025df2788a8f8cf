// Package server coordinates client registration, event delivery, and
// connection cleanup for the roomcast WebSocket system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/roomcast/internal/chat"
)

// Hub manages all WebSocket client connections and delivers the dispatcher's
// events to them. It maintains client registration/unregistration and ensures
// thread-safe operations through mutex protection.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	dispatcher *chat.Dispatcher
	metrics    *Metrics
	log        *slog.Logger
}

// NewHub creates and initializes a new Hub instance with all necessary channels,
// its client map and the dispatcher holding the chat state. A nil logger
// discards output and nil metrics get a private registry.
func NewHub(log *slog.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		metrics:    metrics,
		log:        log,
	}
	h.dispatcher = chat.NewDispatcher(h, log.With("component", "dispatcher"))
	return h
}

// Dispatcher returns the dispatcher fed by this hub's clients.
func (h *Hub) Dispatcher() *chat.Dispatcher {
	return h.dispatcher
}

// Register hands a new client to the run loop. It reports false when the hub
// is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Deliver implements chat.Sink. The event is encoded once and queued on each
// recipient's send buffer without blocking; recipients whose buffer is full
// are dropped. Unknown connection ids are ignored.
func (h *Hub) Deliver(ev chat.Event, connIDs ...string) {
	if len(connIDs) == 0 {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("encoding event", "event", ev.Name, "err", err)
		return
	}

	var failed []*Client
	for _, id := range connIDs {
		client, ok := h.lookup(id)
		if !ok {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

func (h *Hub) lookup(id string) (*Client, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	client, ok := h.clients[id]
	return client, ok
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send operation so the channel cannot be
	// closed underneath us
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.metrics.setConnections(clientCount)
	h.log.Info("client registered", "conn", client.id, "addr", client.addr, "clients", clientCount)

	// The userId greeting is queued before the read pump can dispatch anything.
	h.dispatcher.Connect(client.id)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// removeClient forgets client and runs the dispatcher's disconnect path. It
// runs once per client, even when the client was already dropped for a full
// buffer.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if current, ok := h.clients[client.id]; ok && current == client {
		delete(h.clients, client.id)
		client.closed = true
		close(client.send)
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.metrics.setConnections(clientCount)

	h.dispatcher.Disconnect(client.id)
	h.log.Info("client unregistered", "conn", client.id, "addr", client.addr, "clients", clientCount)
}

// removeFailedClients removes clients that failed to receive messages and closes
// their channels. Their write pumps then close the connections, and the read
// pumps report them through unregister.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if current, exists := h.clients[client.id]; exists && current == client {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.metrics.deliveryDropped()
			h.log.Warn("client removed due to full send buffer", "conn", client.id, "addr", client.addr)
		}
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.metrics.setConnections(clientCount)

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes every client's send buffer and connection.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, id)
		client.closed = true
		close(client.send)
	}
	h.mutex.Unlock()
	h.metrics.setConnections(0)

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("closing client connection", "conn", client.id, "addr", client.addr, "err", err)
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
