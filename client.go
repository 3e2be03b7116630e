package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is a websocket connection. It satisfies Conn.
type Client struct {
	ID     string
	Remote string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte

	mu        sync.Mutex
	closed    bool
	readDone  bool
	onMessage func([]byte)
	onClose   func()
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		log.Info().Str("remote", r.RemoteAddr).Msg("rejecting connection")
		http.Error(w, "websocket upgrade required", http.StatusNotImplemented)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("failed to upgrade connection")
		return
	}
	client := &Client{
		ID:     uuid.NewString(),
		Remote: r.RemoteAddr,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	log.Info().
		Str("client_id", client.ID).
		Str("remote", client.Remote).
		Msg("accepting connection")

	hub.Register(client)
	go client.writePump()
	go client.readPump()
}

// Send queues data for the write pump. A full buffer drops the message
// rather than stalling the match.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("client_id", c.ID).Msg("send buffer full, dropping message")
	}
}

// Listen installs the match's handlers. If the read pump has already
// exited, onClose fires at once: a client can be paired after its socket is
// gone but before the hub has seen its unregister.
func (c *Client) Listen(onMessage func([]byte), onClose func()) {
	c.mu.Lock()
	c.onMessage = onMessage
	c.onClose = onClose
	gone := c.readDone
	c.mu.Unlock()

	if gone && onClose != nil {
		// The session's loop is not running yet when Listen is called.
		go onClose()
	}
}

// close stops the write pump. Only the hub calls it.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) handlers() (func([]byte), func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onMessage, c.onClose
}

// finishRead marks the read side closed and returns the close handler
// installed so far. Handlers installed later are fired by Listen.
func (c *Client) finishRead() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDone = true
	return c.onClose
}

func (c *Client) readPump() {
	defer func() {
		if onClose := c.finishRead(); onClose != nil {
			onClose()
		}
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}

		onMessage, _ := c.handlers()
		if onMessage == nil {
			log.Debug().Str("client_id", c.ID).Msg("message before match start, dropping")
			continue
		}
		onMessage(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("client_id", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
