package rpc

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadLimit     = 512 * 1024
	wsReadDeadline  = 60 * time.Second
	wsWriteDeadline = 10 * time.Second
	wsPingInterval  = 54 * time.Second

	// StreamAll subscribes a connection to every event kind.
	StreamAll = "events"
)

// WebSocketServer pushes committed engine events to subscribers and
// accepts the same RPC methods over the socket.
type WebSocketServer struct {
	upgrader  websocket.Upgrader
	rpc       *Server
	sendLimit int

	connections      map[string]*wsConnection
	connectionsMutex sync.RWMutex
	nextID           atomic.Uint64
}

type wsConnection struct {
	id   string
	conn *websocket.Conn

	mu      sync.RWMutex
	streams map[string]bool

	sendChannel  chan []byte
	closeChannel chan struct{}
	closeOnce    sync.Once
}

// NewWebSocketServer builds the hub. rpc may be nil at construction and
// attached later with SetHandler, which breaks the wiring cycle between
// the engine's event sink and the service built over the engine.
// sendLimit bounds each connection's outbound queue; a subscriber that
// falls further behind is dropped.
func NewWebSocketServer(rpc *Server, sendLimit int) *WebSocketServer {
	if sendLimit <= 0 {
		sendLimit = 256
	}
	return &WebSocketServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rpc:         rpc,
		sendLimit:   sendLimit,
		connections: make(map[string]*wsConnection),
	}
}

// SetHandler attaches the RPC registry; must be called before serving.
func (ws *WebSocketServer) SetHandler(rpc *Server) {
	ws.rpc = rpc
}

func (ws *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	wsConn := &wsConnection{
		id:           fmt.Sprintf("conn-%d", ws.nextID.Add(1)),
		conn:         conn,
		streams:      make(map[string]bool),
		sendChannel:  make(chan []byte, ws.sendLimit),
		closeChannel: make(chan struct{}),
	}

	ws.connectionsMutex.Lock()
	ws.connections[wsConn.id] = wsConn
	ws.connectionsMutex.Unlock()

	go ws.readLoop(wsConn)
	go ws.writeLoop(wsConn)
}

func (ws *WebSocketServer) readLoop(wsConn *wsConnection) {
	defer ws.closeConnection(wsConn)

	wsConn.conn.SetReadLimit(wsReadLimit)
	wsConn.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	wsConn.conn.SetPongHandler(func(string) error {
		wsConn.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})

	for {
		_, message, err := wsConn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket %s read error: %v", wsConn.id, err)
			}
			return
		}
		ws.handleMessage(wsConn, message)
	}
}

func (ws *WebSocketServer) writeLoop(wsConn *wsConnection) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wsConn.closeChannel:
			return
		case <-ticker.C:
			wsConn.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := wsConn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				ws.closeConnection(wsConn)
				return
			}
		case message := <-wsConn.sendChannel:
			wsConn.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := wsConn.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				ws.closeConnection(wsConn)
				return
			}
		}
	}
}

// handleMessage processes one inbound command: {"command": ..., "id":
// ..., <params...>}. subscribe/unsubscribe manage streams; everything
// else dispatches into the shared RPC registry.
func (ws *WebSocketServer) handleMessage(wsConn *wsConnection, message []byte) {
	var cmdMap map[string]json.RawMessage
	if err := json.Unmarshal(message, &cmdMap); err != nil {
		ws.sendError(wsConn, nil, errInvalidParams("invalid JSON: "+err.Error()))
		return
	}

	var command string
	if raw, ok := cmdMap["command"]; ok {
		json.Unmarshal(raw, &command)
	}
	if command == "" {
		ws.sendError(wsConn, nil, errInvalidParams("missing command field"))
		return
	}

	var id interface{}
	if raw, ok := cmdMap["id"]; ok {
		json.Unmarshal(raw, &id)
	}
	delete(cmdMap, "command")
	delete(cmdMap, "id")

	params, _ := json.Marshal(cmdMap)

	switch command {
	case "subscribe":
		ws.handleSubscribe(wsConn, id, params, true)
	case "unsubscribe":
		ws.handleSubscribe(wsConn, id, params, false)
	default:
		if ws.rpc == nil {
			ws.sendError(wsConn, id, errMethodNotFound(command))
			return
		}
		result, rpcErr := ws.rpc.Handle(command, params)
		if rpcErr != nil {
			ws.sendError(wsConn, id, rpcErr)
			return
		}
		ws.sendResponse(wsConn, map[string]interface{}{
			"type":   "response",
			"id":     id,
			"status": "success",
			"result": result,
		})
	}
}

func (ws *WebSocketServer) handleSubscribe(wsConn *wsConnection, id interface{}, params json.RawMessage, subscribe bool) {
	var request struct {
		Streams []string `json:"streams"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &request); err != nil {
			ws.sendError(wsConn, id, errInvalidParams("invalid subscription parameters"))
			return
		}
	}
	if len(request.Streams) == 0 {
		ws.sendError(wsConn, id, errInvalidParams("streams is required"))
		return
	}

	wsConn.mu.Lock()
	for _, stream := range request.Streams {
		if subscribe {
			wsConn.streams[stream] = true
		} else {
			delete(wsConn.streams, stream)
		}
	}
	wsConn.mu.Unlock()

	key := "subscribed"
	if !subscribe {
		key = "unsubscribed"
	}
	ws.sendResponse(wsConn, map[string]interface{}{
		"type":   "response",
		"id":     id,
		"status": "success",
		"result": map[string]interface{}{key: request.Streams},
	})
}

func (ws *WebSocketServer) sendResponse(wsConn *wsConnection, response interface{}) {
	data, err := json.Marshal(response)
	if err != nil {
		log.Printf("websocket %s: marshal response failed: %v", wsConn.id, err)
		return
	}
	ws.enqueue(wsConn, data)
}

func (ws *WebSocketServer) sendError(wsConn *wsConnection, id interface{}, rpcErr *Error) {
	response := map[string]interface{}{
		"type":          "response",
		"status":        "error",
		"error_code":    rpcErr.Code,
		"error_message": rpcErr.Message,
	}
	if id != nil {
		response["id"] = id
	}
	ws.sendResponse(wsConn, response)
}

// enqueue hands data to the connection's writer; a full queue means the
// subscriber cannot keep up and the connection is closed.
func (ws *WebSocketServer) enqueue(wsConn *wsConnection, data []byte) {
	select {
	case wsConn.sendChannel <- data:
	case <-wsConn.closeChannel:
	default:
		log.Printf("websocket %s send queue full, dropping connection", wsConn.id)
		ws.closeConnection(wsConn)
	}
}

func (ws *WebSocketServer) closeConnection(wsConn *wsConnection) {
	wsConn.closeOnce.Do(func() {
		close(wsConn.closeChannel)

		ws.connectionsMutex.Lock()
		delete(ws.connections, wsConn.id)
		ws.connectionsMutex.Unlock()

		wsConn.conn.Close()
	})
}

// streamCategory maps an event kind to its coarse stream: "account.*"
// events land on "accounts", "rail.*" on "rails", and so on.
func streamCategory(kind string) string {
	dot := strings.IndexByte(kind, '.')
	if dot < 0 {
		return kind
	}
	switch kind[:dot] {
	case "account":
		return "accounts"
	case "operator":
		return "operators"
	case "rail":
		return "rails"
	case "fees":
		return "fees"
	default:
		return kind[:dot]
	}
}

// Broadcast sends an event message to every connection subscribed to
// the kind, its category stream, or the catch-all stream.
func (ws *WebSocketServer) Broadcast(kind string, data []byte) {
	ws.connectionsMutex.RLock()
	conns := make([]*wsConnection, 0, len(ws.connections))
	for _, conn := range ws.connections {
		conns = append(conns, conn)
	}
	ws.connectionsMutex.RUnlock()

	category := streamCategory(kind)
	for _, conn := range conns {
		conn.mu.RLock()
		subscribed := conn.streams[kind] || conn.streams[category] || conn.streams[StreamAll]
		conn.mu.RUnlock()
		if subscribed {
			ws.enqueue(conn, data)
		}
	}
}

// SubscriberCount returns the number of open connections.
func (ws *WebSocketServer) SubscriberCount() int {
	ws.connectionsMutex.RLock()
	defer ws.connectionsMutex.RUnlock()
	return len(ws.connections)
}

// CloseAll drops every connection, for shutdown.
func (ws *WebSocketServer) CloseAll() {
	ws.connectionsMutex.RLock()
	conns := make([]*wsConnection, 0, len(ws.connections))
	for _, conn := range ws.connections {
		conns = append(conns, conn)
	}
	ws.connectionsMutex.RUnlock()

	for _, conn := range conns {
		ws.closeConnection(conn)
	}
}
