// Package websocket streams live queue updates to display boards. Clients
// connect once and watch one or more rooms; every queue mutation pushes the
// room's refreshed view to its watchers.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/queue"
)

// Event is the frame pushed to display-board clients.
type Event struct {
	Type      string          `json:"type"`
	Room      string          `json:"room"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound frame from a display board, used to change the
// set of rooms it watches.
type ClientMessage struct {
	Action string   `json:"action"`
	Rooms  []string `json:"rooms"`
}

// Client is a single connected display board.
type Client struct {
	ID    string
	Rooms []string
	Send  chan []byte
}

// Hub tracks connected display boards and their room subscriptions. All
// operations are safe for concurrent use.
type Hub struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	watchers map[string]map[*Client]struct{} // room -> watching clients
	all      map[*Client]struct{}
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		watchers: make(map[string]map[*Client]struct{}),
		all:      make(map[*Client]struct{}),
	}
}

// Register adds a client and subscribes it to its initial rooms.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, room := range client.Rooms {
		if h.watchers[room] == nil {
			h.watchers[room] = make(map[*Client]struct{})
		}
		h.watchers[room][client] = struct{}{}
	}
}

// Unregister drops a client from every room and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, room := range client.Rooms {
		if set, ok := h.watchers[room]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.watchers, room)
			}
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// Watch adds rooms to a connected client's subscription.
func (h *Hub) Watch(client *Client, rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, room := range rooms {
		if h.watchers[room] == nil {
			h.watchers[room] = make(map[*Client]struct{})
		}
		h.watchers[room][client] = struct{}{}
	}
	client.Rooms = append(client.Rooms, rooms...)
}

// Unwatch removes rooms from a connected client's subscription.
func (h *Hub) Unwatch(client *Client, rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dropped := make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		dropped[room] = struct{}{}
		if set, ok := h.watchers[room]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.watchers, room)
			}
		}
	}

	remaining := make([]string, 0, len(client.Rooms))
	for _, room := range client.Rooms {
		if _, rm := dropped[room]; !rm {
			remaining = append(remaining, room)
		}
	}
	client.Rooms = remaining
}

// ProcessMessage dispatches an inbound client frame.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "watch":
		h.Watch(client, msg.Rooms)
	case "unwatch":
		h.Unwatch(client, msg.Rooms)
	}
}

// PublishQueueView pushes a room's refreshed queue view to its watchers.
// Slow clients are skipped rather than blocked on.
func (h *Hub) PublishQueueView(room string, view *queue.QueueView) {
	data, err := json.Marshal(view)
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("marshal queue view")
		return
	}
	payload, err := json.Marshal(Event{
		Type:      "queue_updated",
		Room:      room,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("marshal queue event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.watchers[room] {
		select {
		case client.Send <- payload:
		default:
			// Buffer full; drop the frame for this client.
		}
	}
}

// ClientCount returns the total number of connected display boards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// WatcherCount returns how many clients are watching a room.
func (h *Hub) WatcherCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[room])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Display boards connect from kiosk browsers; tighten in production.
	},
}

// Handler upgrades HTTP connections and pumps frames between the hub and the
// underlying gorilla connection.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes mounts the display-board endpoint on the given group.
func (wh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws/queues", wh.HandleConnect)
}

// HandleConnect upgrades the connection, registers the client with any rooms
// named in the "rooms" query parameter, and starts the read/write pumps.
func (wh *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 256),
	}
	if room := c.QueryParam("room"); room != "" {
		client.Rooms = []string{room}
	}

	wh.hub.Register(client)

	go wh.writePump(client, ws)
	go wh.readPump(client, ws)

	return nil
}

func (wh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed frames.
		}
		wh.hub.ProcessMessage(client, msg)
	}
}

func (wh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
