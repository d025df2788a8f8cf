package server

import "net/http"

// SetupRoutes returns a ServeMux with the health check, the WebSocket
// endpoint, the test page and the metrics endpoint.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", hub.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)
	mux.Handle("/metrics", hub.metrics.Handler())
	return mux
}
