// Package gateway carries events between players and the game server over
// WebSockets.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

// LivenessHook is told when a user's first connection opens and when their
// last one closes.
type LivenessHook interface {
	Connected(ctx context.Context, userID string)
	Disconnected(ctx context.Context, userID string)
}

// CommandHandler answers one client message with an ack or error event.
type CommandHandler interface {
	Handle(ctx context.Context, client Client, message []byte) *events.Event
}

// Client identifies the sender of a command.
type Client struct {
	User models.User
	IP   string
}

// ConnectionManager tracks every open socket per user.
type ConnectionManager struct {
	mu    sync.RWMutex
	users map[string]map[*Connection]struct{}

	// Per-user locks so connect and disconnect of one user reach the hook in
	// order. Different users never wait on each other.
	livenessMu sync.Mutex
	liveness   map[string]*userLiveness

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clk      clockwork.Clock

	hook    LivenessHook
	handler CommandHandler
}

type userLiveness struct {
	mu   sync.Mutex
	refs int
}

// Connection is one WebSocket of a user.
type Connection struct {
	ID     string
	Client Client
	Conn   *websocket.Conn
	Send   chan []byte

	manager     *ConnectionManager
	ConnectedAt time.Time
	closeOnce   sync.Once
	cancel      context.CancelFunc
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	CommandTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
	// Peers allowed to set X-Forwarded-For and X-Real-IP.
	TrustedProxies []netip.Prefix
}

// ConnectionStats summarizes open sockets.
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	Users            int `json:"users"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  5 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. Hooks are attached
// with Use before the first upgrade.
func NewConnectionManager(config ConnectionConfig, clk clockwork.Clock) *ConnectionManager {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = 5 * time.Second
	}
	return &ConnectionManager{
		users:    make(map[string]map[*Connection]struct{}),
		liveness: make(map[string]*userLiveness),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		clk:    clk,
	}
}

// Use attaches the liveness hook and the command handler.
func (cm *ConnectionManager) Use(liveness LivenessHook, handler CommandHandler) {
	cm.hook = liveness
	cm.handler = handler
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, client Client) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		Client:      client,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		manager:     cm,
		ConnectedAt: cm.clk.Now(),
		cancel:      cancel,
	}

	cm.register(ctx, connection)

	go connection.writePump()
	go connection.readPump(ctx)

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", client.User.ID).
		Str("ip", client.IP).
		Msg("WebSocket connection established")
	return nil
}

// lockUser serializes liveness transitions of userID and returns the unlock.
func (cm *ConnectionManager) lockUser(userID string) func() {
	cm.livenessMu.Lock()
	ul, ok := cm.liveness[userID]
	if !ok {
		ul = &userLiveness{}
		cm.liveness[userID] = ul
	}
	ul.refs++
	cm.livenessMu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		cm.livenessMu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(cm.liveness, userID)
		}
		cm.livenessMu.Unlock()
	}
}

func (cm *ConnectionManager) register(ctx context.Context, conn *Connection) {
	userID := conn.Client.User.ID
	unlock := cm.lockUser(userID)
	defer unlock()

	cm.mu.Lock()
	if cm.users[userID] == nil {
		cm.users[userID] = make(map[*Connection]struct{})
	}
	cm.users[userID][conn] = struct{}{}
	first := len(cm.users[userID]) == 1
	cm.mu.Unlock()

	if first && cm.hook != nil {
		cm.hook.Connected(ctx, userID)
	}
}

// unregister drops conn and closes its send channel. Safe to call twice.
func (cm *ConnectionManager) unregister(conn *Connection) {
	userID := conn.Client.User.ID
	unlock := cm.lockUser(userID)
	defer unlock()

	cm.mu.Lock()
	conns, ok := cm.users[userID]
	if !ok {
		cm.mu.Unlock()
		return
	}
	if _, ok := conns[conn]; !ok {
		cm.mu.Unlock()
		return
	}
	delete(conns, conn)
	close(conn.Send)
	last := len(conns) == 0
	if last {
		delete(cm.users, userID)
	}
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", userID).
		Msg("connection unregistered")

	if last && cm.hook != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cm.config.CommandTimeout)
		defer cancel()
		cm.hook.Disconnected(ctx, userID)
	}
}

// Send delivers ev to every connection of userID. A connection whose buffer
// is full misses the event.
func (cm *ConnectionManager) Send(userID string, ev *events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event")
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for conn := range cm.users[userID] {
		cm.push(conn, data, ev.Type)
	}
}

// reply delivers ev to a single connection.
func (cm *ConnectionManager) reply(conn *Connection, ev *events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal reply")
		return
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if _, ok := cm.users[conn.Client.User.ID][conn]; ok {
		cm.push(conn, data, ev.Type)
	}
}

// push must run under cm.mu so the channel cannot be closed concurrently.
func (cm *ConnectionManager) push(conn *Connection, data []byte, typ events.EventType) {
	select {
	case conn.Send <- data:
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.Client.User.ID).
			Str("event_type", string(typ)).
			Msg("connection send buffer full, dropping event")
	}
}

// Online reports whether userID has at least one open connection.
func (cm *ConnectionManager) Online(userID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.users[userID]) > 0
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	stats := ConnectionStats{Users: len(cm.users)}
	for _, conns := range cm.users {
		stats.TotalConnections += len(conns)
	}
	return stats
}

// CloseAll closes every open socket.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, conns := range cm.users {
		for conn := range conns {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()
	for _, conn := range all {
		conn.close()
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.Conn.Close()
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := c.manager.clk.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.Chan():
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.manager.unregister(c)
		c.close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))

		if c.manager.handler == nil {
			continue
		}
		cmdCtx, cancel := context.WithTimeout(ctx, c.manager.config.CommandTimeout)
		reply := c.manager.handler.Handle(cmdCtx, c.Client, message)
		cancel()
		if reply != nil {
			c.manager.reply(c, reply)
		}
	}
}
