package hub

import (
	"sync"
	"time"

	log "queueserver/cloudlog"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound messages buffered per client before it is dropped.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is a middleman between the websocket connection and the connection's request loop.
type Client struct {
	id string

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Closed by the request loop when it ends.
	send chan *Message

	// Messages read from the peer. Closed by readPump when the connection ends.
	inbound chan *Message

	// Closed when the request loop ends so readPump stops handing messages over.
	stopCh chan struct{}

	closeOnce sync.Once
}

// NewClient returns a newly instantiated client for conn.
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan *Message, sendBufferSize),
		inbound: make(chan *Message),
		stopCh:  make(chan struct{}),
	}
}

// ID identifies the connection in logs.
func (c *Client) ID() string {
	return c.id
}

// readPump pumps messages from the websocket connection to the request loop.
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		close(c.inbound)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var message Message
		err := c.conn.ReadJSON(&message)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("client %s read error: %v", c.id, err)
			}
			return
		}
		select {
		case c.inbound <- &message:
		case <-c.stopCh:
			return
		}
	}
}

// writePump pumps messages from the request loop to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The request loop closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := c.conn.WriteJSON(message)
			if err != nil {
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

// Start begins the read and write goroutines for the connection.
func (c *Client) Start() {
	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go c.writePump()
	go c.readPump()
}

// sendMessage queues message for the peer. A client whose buffer is full is too slow to keep up
// and gets disconnected.
func (c *Client) sendMessage(message *Message) {
	if message == nil {
		return
	}
	select {
	case c.send <- message:
	default:
		log.Printf("client %s is not keeping up, closing", c.id)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// stop ends the outbound side of the client. It must only be called by the request loop, after
// which nothing is sent anymore.
func (c *Client) stop() {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		close(c.send)
	})
}
