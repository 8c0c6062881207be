package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agent-racer/sessionwatch/internal/monitor"
	"github.com/agent-racer/sessionwatch/internal/session"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// has been reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Broadcaster fans published snapshots out to websocket clients. New
// clients first receive the most recent snapshot, so every client sees
// snapshots in publish order. A client whose send buffer is full is
// disconnected.
type Broadcaster struct {
	mu       sync.Mutex
	clients  map[*client]bool
	maxConns int    // 0 means unlimited
	last     []byte // encoded frame of the latest snapshot
	privacy  atomic.Pointer[session.PrivacyFilter]
	logger   *slog.Logger
}

func NewBroadcaster(maxConns int, privacy *session.PrivacyFilter, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		logger:   logger,
	}
	b.SetPrivacy(privacy)
	return b
}

// SetPrivacy replaces the filter applied to snapshots published from now on.
func (b *Broadcaster) SetPrivacy(f *session.PrivacyFilter) {
	if f == nil {
		f = &session.PrivacyFilter{}
	}
	b.privacy.Store(f)
}

// Privacy returns the current filter.
func (b *Broadcaster) Privacy() *session.PrivacyFilter {
	return b.privacy.Load()
}

// Filter applies the current privacy filter to snap.
func (b *Broadcaster) Filter(snap *session.Snapshot) *session.Snapshot {
	return b.Privacy().FilterSnapshot(snap)
}

// AddClient registers conn and queues the latest snapshot for it.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c := &client{conn: conn, b: b, send: make(chan []byte, sendBuffer)}
	if b.last != nil {
		c.send <- b.last
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

// RemoveClient unregisters c and closes its send channel. Removing a client
// twice is a no-op.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(c)
}

func (b *Broadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// PublishSnapshot sends snap, privacy-filtered, to every client and keeps it
// for clients that connect later.
func (b *Broadcaster) PublishSnapshot(snap *session.Snapshot, seq uint64) {
	data, err := json.Marshal(WSMessage{Type: MsgSnapshot, Seq: seq, Payload: b.Filter(snap)})
	if err != nil {
		b.logger.Error("snapshot marshal failed", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = data
	b.sendLocked(data)
}

// PublishHealth sends a health status change to every client.
func (b *Broadcaster) PublishHealth(report monitor.HealthReport) {
	data, err := json.Marshal(WSMessage{Type: MsgHealth, Payload: report})
	if err != nil {
		b.logger.Error("health marshal failed", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendLocked(data)
}

func (b *Broadcaster) sendLocked(data []byte) {
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			b.logger.Warn("ws client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
			b.removeLocked(c)
		}
	}
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		b.removeLocked(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
