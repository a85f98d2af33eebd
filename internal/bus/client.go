package bus

import (
	"net/http"
	"sync"
	"time"

	"genserver/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The progress stream carries no credentials and browsers connect from
	// arbitrary origins during local use.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan domain.Event

	mu        sync.Mutex
	filter    string
	closeOnce sync.Once
}

// inbound is the message shape observers send: subscribe/unsubscribe/ping.
type inbound struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

// ServeWS upgrades the request and attaches the connection to the hub.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan domain.Event, sendBuffer),
	}
	h.register <- c

	go c.writePump()
	go c.readPump()

	c.trySend(domain.Event{Type: domain.EventConnected})
}

// wants reports whether the client should receive updates for taskID.
// An unfiltered client receives everything.
func (c *Client) wants(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter == "" || c.filter == taskID
}

func (c *Client) setFilter(taskID string) {
	c.mu.Lock()
	c.filter = taskID
	c.mu.Unlock()
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump handles inbound control messages until the transport errors out.
// A missing heartbeat never closes the connection; only read errors do.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			c.setFilter(msg.TaskID)
			c.trySend(domain.Event{Type: domain.EventSubscribed, TaskID: msg.TaskID})
		case "unsubscribe":
			c.setFilter("")
			c.trySend(domain.Event{Type: domain.EventUnsubscribed})
		case "ping":
			c.trySend(domain.Event{Type: domain.EventPong})
		default:
			c.trySend(domain.Event{Type: domain.EventError, Error: "unknown message type: " + msg.Type})
		}
	}
}

func (c *Client) trySend(ev domain.Event) {
	defer func() {
		// send may already be closed by the hub; a reply to a dead observer
		// is droppable.
		_ = recover()
	}()
	select {
	case c.send <- ev:
	default:
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
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
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
