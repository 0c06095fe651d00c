// Package telemetryws is the websocket transport for live telemetry
// snapshots and the control channel: a Hub broadcasts every published
// telemetry.Snapshot to connected browsers, and forwards parsed control
// messages from those browsers into the simulation's control.Channel.
package telemetryws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lucaskim/ftsim/pkg/control"
	"github.com/lucaskim/ftsim/pkg/simtime"
	"github.com/lucaskim/ftsim/pkg/telemetry"
)

// Client is one connected websocket browser session.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub fans out snapshots to every connected client and funnels incoming
// control messages into a single control.Channel.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	controlCh *control.Channel
}

// NewHub builds a Hub that forwards parsed control messages to ch.
func NewHub(ch *control.Channel) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		controlCh:  ch,
	}
}

// Run is the hub's single-goroutine event loop; call it once, typically
// via `go hub.Run()`.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("telemetryws: client connected: %s", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("telemetryws: client disconnected: %s", client.id)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.mu.RUnlock()
					h.mu.Lock()
					close(client.send)
					delete(h.clients, client)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// SendSnapshot implements telemetry.Subscriber: it marshals snap to JSON
// and broadcasts it. A marshal failure is logged and the snapshot
// dropped, never propagated back into the simulation loop.
func (h *Hub) SendSnapshot(snap telemetry.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("telemetryws: failed to marshal snapshot: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("telemetryws: broadcast buffer full, dropping snapshot")
	}
}

var _ telemetry.Subscriber = (*Hub)(nil)

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wireMsg is the JSON shape a browser sends for one control message.
type wireMsg struct {
	Type    string              `json:"type"`
	NodeID  *simtime.NodeID     `json:"node_id,omitempty"`
	Sets    [][]simtime.NodeID  `json:"sets,omitempty"`
	Speed   float32             `json:"speed,omitempty"`
}

func (w wireMsg) toControlMsg() (control.Msg, bool) {
	switch w.Type {
	case "pause":
		return control.Msg{Kind: control.Pause}, true
	case "resume":
		return control.Msg{Kind: control.Resume}, true
	case "step":
		return control.Msg{Kind: control.Step}, true
	case "kill_node":
		if w.NodeID == nil {
			return control.Msg{}, false
		}
		return control.Msg{Kind: control.KillNode, NodeID: *w.NodeID}, true
	case "restart_node":
		if w.NodeID == nil {
			return control.Msg{}, false
		}
		return control.Msg{Kind: control.RestartNode, NodeID: *w.NodeID}, true
	case "inject_partition":
		return control.Msg{Kind: control.InjectPartition, Sets: w.Sets}, true
	case "heal_partition":
		return control.Msg{Kind: control.HealPartition}, true
	case "set_speed":
		return control.Msg{Kind: control.SetSpeed, Speed: w.Speed}, true
	default:
		return control.Msg{}, false
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades an HTTP request to a websocket connection managed by
// the hub.
type Handler struct {
	hub *Hub
}

// NewHandler wraps hub as an http.Handler.
func NewHandler(hub *Hub) *Handler { return &Handler{hub: hub} }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("telemetryws: upgrade failed: %v", err)
		return
	}
	client := &Client{hub: h.hub, conn: conn, send: make(chan []byte, 256), id: uuid.New().String()}
	h.hub.register <- client
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("telemetryws: read error: %v", err)
			}
			break
		}
		var msg wireMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("telemetryws: malformed control message: %v", err)
			continue
		}
		ctrl, ok := msg.toControlMsg()
		if !ok {
			continue
		}
		if c.hub.controlCh != nil {
			c.hub.controlCh.TrySend(ctrl)
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		n := len(c.send)
		for i := 0; i < n; i++ {
			w.Write([]byte("\n"))
			w.Write(<-c.send)
		}
		if err := w.Close(); err != nil {
			return
		}
	}
}
