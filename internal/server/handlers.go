package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades GET requests from allowed origins to WebSocket
// connections and hands the resulting client to the hub.
func (h *Hub) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, h, r.RemoteAddr)
	if !h.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
	}
}

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "roomcast server is running!")
}

// TestPageHandler serves a small HTML client for trying the room protocol by
// hand.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		slog.Warn("writing test page", "err", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>roomcast test client</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log {
            border: 1px solid #ccc;
            height: 320px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
            font-size: 12px;
        }
        input[type="text"] { width: 180px; padding: 5px; margin-right: 6px; }
        button {
            padding: 5px 12px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .row { margin: 6px 0; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>roomcast test client</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div class="row">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
        <input type="text" id="username" placeholder="username">
        <button onclick="emit('register', {username: val('username')})">Register</button>
    </div>
    <div class="row">
        <input type="text" id="room" placeholder="room" value="general">
        <label><input type="checkbox" id="private"> private</label>
        <button onclick="emit('join-room', {username: val('username'), room: val('room'), private: checked('private')})">Join</button>
        <button onclick="emit('leave-room', {username: val('username'), room: val('room')})">Leave</button>
        <button onclick="emit('get-past-messages', {room: val('room')})">History</button>
        <button onclick="emit('get-announcement', {room: val('room')})">Announcement</button>
    </div>
    <div class="row">
        <input type="text" id="message" placeholder="message">
        <button onclick="emit('send-message', {author: val('username'), message: val('message'), time: new Date().toISOString(), room: val('room')})">Send</button>
        <input type="text" id="messageId" placeholder="message id">
        <button onclick="emit('unsend-message', {id: val('messageId'), room: val('room')})">Unsend</button>
        <button onclick="emit('announce-message', {id: val('messageId'), message: val('message'), room: val('room')})">Announce</button>
        <button onclick="emit('remove-announce', {room: val('room')})">Clear announcement</button>
    </div>
    <div class="row">
        <button onclick="emit('get-all-users', {})">Users</button>
        <button onclick="emit('get-all-rooms', {private: checked('private')})">Rooms</button>
        <button onclick="emit('get-user-rooms', {username: val('username')})">My rooms</button>
        <button onclick="emit('pin-chat', {username: val('username'), room: val('room'), pinStatus: true})">Pin</button>
        <button onclick="emit('pin-chat', {username: val('username'), room: val('room'), pinStatus: false})">Unpin</button>
    </div>

    <div id="log"></div>

    <script>
        let ws = null;
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function val(id) { return document.getElementById(id).value.trim(); }
        function checked(id) { return document.getElementById(id).checked; }

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.color = color;
            line.textContent = text;
            logDiv.appendChild(line);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function emit(event, data) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                addLine('not connected', 'gray');
                return;
            }
            const frame = JSON.stringify({event: event, data: data});
            ws.send(frame);
            addLine('> ' + frame, 'blue');
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() { addLine('connected', 'gray'); updateStatus(true); };
            ws.onmessage = function(event) {
                addLine('< ' + event.data, 'green');
                const frame = JSON.parse(event.data);
                if (frame.event === 'message' && frame.data.id) {
                    document.getElementById('messageId').value = frame.data.id;
                }
            };
            ws.onclose = function() { addLine('connection closed', 'gray'); updateStatus(false); ws = null; };
            ws.onerror = function() { addLine('connection error', 'red'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }
    </script>
</body>
</html>`
