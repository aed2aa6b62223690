package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ylxai/Hafiportrait-sub001/internal/config"
	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is a WebSocket connection with buffered outbound delivery.
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	config    config.WebSocketConfig
}

func NewClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
		config: cfg,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues a frame without blocking.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// ReadPump reads frames until the socket fails, then calls onClose once.
func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client, string)) {
	reason := "client closed connection"
	defer func() {
		onClose(c, reason)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				l := pkglog.L()
				l.Warn().Err(err).Str(pkglog.FieldClientID, c.id).Msg("websocket read error")
				reason = "transport error"
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				reason = "ping timeout"
			}
			return
		}

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			c.drain()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before Close so a final error frame still lands.
func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
