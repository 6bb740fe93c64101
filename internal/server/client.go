package server

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/gochat-presence/internal/protocol"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Client is one WebSocket connection. The hub owns its send channel; the
// pumps own the socket.
type Client struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	closed      bool
	hub         *Hub
	addr        string
	limiter     *rateLimiter
	maxReadSize int64
	log         zerolog.Logger
}

func newClient(id string, conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, cfg.SendBufferSize),
		hub:         hub,
		addr:        addr,
		limiter:     newRateLimiter(cfg.RateLimit, nil),
		maxReadSize: cfg.MaxMessageSize,
		log:         hub.log.With().Str("conn", id).Str("addr", addr).Logger(),
	}
}

// Enqueue queues a frame without blocking. It is called only from the hub
// goroutine.
func (c *Client) Enqueue(frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error().Err(err).Msg("set initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Error().Err(err).Msg("set read deadline in pong handler")
		}
		return nil
	})
}

// logReadError reports why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxReadSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("client connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn().Err(err).Msg("unexpected WebSocket close")
	default:
		c.log.Error().Err(err).Msg("WebSocket read error")
	}
}

// processMessage decodes one frame and hands the intent to the hub. Malformed
// frames are dropped without a reply. It returns false once the hub stopped.
func (c *Client) processMessage(raw []byte) bool {
	intent, err := protocol.DecodeIntent(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("dropping invalid frame")
		return true
	}
	return c.hub.submit(c.id, intent)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error().Err(err).Msg("close connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.allow() {
			c.log.Warn().
				Int("burst", c.hub.cfg.RateLimit.Burst).
				Dur("interval", c.hub.cfg.RateLimit.RefillInterval).
				Msg("rate limit exceeded; discarding message")
			continue
		}

		if !c.processMessage(raw) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error().Err(err).Msg("close connection in writePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.handleMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.handlePing() {
				return
			}
		}
	}
}

// handleMessage writes one frame and returns false if the connection should
// be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.log.Error().Err(err).Msg("set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Error().Err(err).Msg("write close message")
		}
		return false
	}

	return c.writeTextMessage(message)
}

// writeTextMessage writes message and every frame already queued behind it
// into one text frame, separated by newlines.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Error().Err(err).Msg("create writer")
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.log.Error().Err(err).Msg("write message")
		return false
	}

	n := len(c.send)
	for range n {
		queued, ok := <-c.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Error().Err(err).Msg("write newline")
			return false
		}
		if _, err := w.Write(queued); err != nil {
			c.log.Error().Err(err).Msg("write queued message")
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Error().Err(err).Msg("close writer")
		return false
	}
	return true
}

func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.log.Error().Err(err).Msg("set write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Error().Err(err).Msg("write ping message")
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
