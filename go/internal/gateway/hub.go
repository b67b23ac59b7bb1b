package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub fans flow updates out to the websocket connections watching each flow
type Hub struct {
	flowConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   HubConfig

	broadcastCh chan broadcast
}

// Connection is one websocket client watching a flow
type Connection struct {
	ID     string
	FlowID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
	hub    *Hub

	ConnectedAt time.Time
}

type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcast struct {
	flowID uuid.UUID
	frame  *Frame
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewHub(config HubConfig) *Hub {
	return &Hub{
		flowConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcast, 256),
	}
}

// Start delivers queued frames until ctx is cancelled
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("websocket hub shutting down")
			return
		case msg := <-h.broadcastCh:
			h.deliver(msg)
		}
	}
}

// Upgrade turns the request into a websocket watching flowID
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, flowID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.NewString(),
		FlowID:      flowID,
		Conn:        conn,
		Send:        make(chan []byte, 64),
		hub:         h,
		ConnectedAt: time.Now(),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("flow_id", flowID.String()).
		Msg("websocket connection established")
	return nil
}

// Broadcast queues frame for every connection watching flowID
func (h *Hub) Broadcast(flowID uuid.UUID, frame *Frame) {
	select {
	case h.broadcastCh <- broadcast{flowID: flowID, frame: frame}:
	default:
		log.Warn().Str("flow_id", flowID.String()).Msg("broadcast channel full, dropping frame")
	}
}

// Connections returns the number of clients watching flowID
func (h *Hub) Connections(flowID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.flowConnections[flowID])
}

// Disconnect closes every connection watching flowID
func (h *Hub) Disconnect(flowID uuid.UUID) {
	h.mu.RLock()
	var targets []*Connection
	for c := range h.flowConnections[flowID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.unregister(c)
	}
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.flowConnections[c.FlowID] == nil {
		h.flowConnections[c.FlowID] = make(map[*Connection]bool)
	}
	h.flowConnections[c.FlowID][c] = true
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	connections, ok := h.flowConnections[c.FlowID]
	if !ok || !connections[c] {
		return
	}
	delete(connections, c)
	close(c.Send)
	if len(connections) == 0 {
		delete(h.flowConnections, c.FlowID)
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("flow_id", c.FlowID.String()).
		Msg("websocket connection unregistered")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	var all []*Connection
	for _, connections := range h.flowConnections {
		for c := range connections {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) deliver(msg broadcast) {
	data, err := json.Marshal(msg.frame)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame")
		return
	}

	// sends happen under the read lock so unregister cannot close Send mid-delivery
	var slow []*Connection
	h.mu.RLock()
	for c := range h.flowConnections[msg.flowID] {
		select {
		case c.Send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, closing connection")
		h.unregister(c)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write frame")
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		}
	}
}

// readPump only drains control frames; clients send commands over RPC
func (c *Connection) readPump() {
	defer c.hub.unregister(c)

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
