package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"bookclub/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	maxMessageSize = 8192
	sendBufferSize = 256
	postTimeout    = 5 * time.Second
)

// Poster persists a chat line before it is fanned out.
type Poster interface {
	Post(ctx context.Context, userID int64, username string, clubID *int64, text string) (*model.ChatMessage, error)
}

// Client is one websocket connection. ReadPump and WritePump run on their
// own goroutines; only WritePump writes to conn.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	poster   Poster
	userID   int64
	username string
	clubID   *int64
	room     string
	send     chan []byte
	mu       sync.Mutex
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("ws unexpected close", "user_id", c.userID, "err", err)
			}
			return
		}

		var ev inEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.hub.log.Warn("ws invalid frame", "user_id", c.userID, "err", err)
			continue
		}
		c.handle(ev)
	}
}

func (c *Client) handle(ev inEvent) {
	switch ev.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpSend:
		var d SendData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			c.sendEvent(Event{Op: OpError, Data: ErrorData{Message: "invalid message"}})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
		defer cancel()
		msg, err := c.poster.Post(ctx, c.userID, c.username, c.clubID, d.Message)
		if err != nil {
			c.hub.log.Warn("ws post rejected", "user_id", c.userID, "room", c.room, "err", err)
			c.sendEvent(Event{Op: OpError, Data: ErrorData{Message: "message rejected"}})
			return
		}
		c.hub.Broadcast(c.room, Event{Op: OpMessageCreate, Data: msg}, nil)

	case OpTyping:
		c.hub.Broadcast(c.room, Event{Op: OpTypingStart, Data: TypingData{UserID: c.userID, Username: c.username}}, c)

	default:
		c.hub.log.Debug("ws unknown op", "user_id", c.userID, "op", ev.Op)
	}
}

// sendEvent queues an event for this connection only.
func (c *Client) sendEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.hub.sendTo(c, data)
}

func (c *Client) WritePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.write(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.write(websocket.CloseMessage, nil)
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
