// internal/room/conn.go
package room

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OutboxSize is the number of messages buffered per socket before writes
// start being dropped.
const OutboxSize = 32

// Conn is a single socket bound to a room seat. Messages are queued on
// OutChan and drained by the socket's write pump.
type Conn struct {
	ID       uuid.UUID
	PlayerID string
	Cancel   func()
	OutChan  chan map[string]interface{}

	logger *logrus.Entry
	mu     sync.Mutex
	closed bool
}

// NewConn creates a handle with a buffered outbox. cancel is invoked on
// Close to stop the socket's pumps; it may be nil.
func NewConn(playerID string, cancel func(), logger *logrus.Logger) *Conn {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := uuid.New()
	return &Conn{
		ID:       id,
		PlayerID: playerID,
		Cancel:   cancel,
		OutChan:  make(chan map[string]interface{}, OutboxSize),
		logger: logger.WithFields(logrus.Fields{
			"conn":   id.String(),
			"player": playerID,
		}),
	}
}

// Write queues msg without blocking. Messages to a closed or saturated
// socket are dropped and logged.
func (c *Conn) Write(msg map[string]interface{}) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		c.logger.WithField("type", msgType).Warn("outbox full, dropping message")
	}
}

// WriteError sends an error frame.
func (c *Conn) WriteError(msg string) {
	c.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// Close closes the outbox and cancels the socket. Safe to call repeatedly.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.OutChan)
	c.mu.Unlock()

	if c.Cancel != nil {
		c.Cancel()
	}
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
