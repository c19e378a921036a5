package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"wellnest/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	storeTimeout   = 10 * time.Second
)

// Client is one websocket connection. userID is empty for anonymous
// connections; the handshake tolerates missing or invalid tokens.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
}

// enqueue hands data to the write pump without blocking. The mutex serializes
// against closeSend so a drop by the hub can never race a send from the read
// pump onto a closed channel. Returns false when the buffer is full or the
// connection is already being torn down.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("relay read error: %v", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("relay bad envelope from %s: %v", c.id, err)
			continue
		}

		c.handleEvent(env)
	}
}

func (c *Client) handleEvent(env Envelope) {
	switch env.Type {
	case EventJoin:
		c.handleJoin(env.Payload)
	case EventSend:
		c.handleSend(env.Payload)
	case EventRead:
		c.handleRead(env.Payload)
	case EventTypingStart, EventTypingStop:
		c.handleTyping(env.Type, env.Payload)
	}
}

func (c *Client) handleJoin(payload json.RawMessage) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" {
		return
	}

	convID, err := primitive.ObjectIDFromHex(req.ConversationID)
	if err != nil {
		c.sendError("conversation not found")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	conv, err := c.hub.store.GetConversation(ctx, convID)
	if err != nil {
		c.sendError("conversation not found")
		return
	}

	// Authenticated connections must be participants; anonymous ones may
	// still join (the handshake is deliberately permissive).
	if uid, err := primitive.ObjectIDFromHex(c.userID); err == nil {
		if !conv.HasParticipant(uid) {
			c.sendError("not a participant")
			return
		}
	}

	c.hub.Join(c, conv.ID.Hex())
	c.sendEvent(EventJoined, map[string]string{"conversationId": conv.ID.Hex()})
}

func (c *Client) handleSend(payload json.RawMessage) {
	var req struct {
		ConversationID string   `json:"conversationId"`
		Content        string   `json:"content"`
		Attachments    []string `json:"attachments"`
		Role           string   `json:"role"`
	}
	// Missing required fields drop the event without notifying the sender;
	// the log line is the only trace.
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" || req.Content == "" {
		log.Printf("relay dropped malformed send from %s", c.id)
		return
	}

	convID, err := primitive.ObjectIDFromHex(req.ConversationID)
	if err != nil {
		c.sendError("conversation not found")
		return
	}

	var senderID *primitive.ObjectID
	if uid, err := primitive.ObjectIDFromHex(c.userID); err == nil {
		senderID = &uid
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	msg, err := c.hub.store.AppendMessage(ctx, convID, senderID, req.Role, req.Content, req.Attachments)
	if err != nil {
		var verr *store.ValidationError
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.sendError("conversation not found")
		case errors.As(err, &verr):
			log.Printf("relay dropped invalid send from %s: %v", c.id, err)
		default:
			log.Printf("relay send from %s failed: %v", c.id, err)
			c.sendError("failed to send message")
		}
		return
	}

	// Persisted before broadcast, so room delivery order follows
	// persistence order. The sender hears its own message here too.
	c.hub.BroadcastEvent(convID.Hex(), EventReceived, msg)
	c.hub.notifyMessage(msg)
}

func (c *Client) handleRead(payload json.RawMessage) {
	var req struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.MessageID == "" {
		return
	}

	uid, err := primitive.ObjectIDFromHex(c.userID)
	if err != nil {
		// Anonymous connections have no read receipts.
		return
	}
	msgID, err := primitive.ObjectIDFromHex(req.MessageID)
	if err != nil {
		c.sendError("message not found")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	msg, err := c.hub.store.GetMessage(ctx, msgID)
	if err != nil {
		c.sendError("message not found")
		return
	}
	if err := c.hub.store.MarkRead(ctx, msgID, uid); err != nil {
		c.sendError("message not found")
		return
	}

	c.hub.BroadcastEvent(msg.ConversationID.Hex(), EventRead, map[string]interface{}{
		"messageId": msgID.Hex(),
		"userId":    uid.Hex(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (c *Client) handleTyping(eventType string, payload json.RawMessage) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" {
		return
	}

	c.hub.BroadcastEvent(req.ConversationID, eventType, map[string]interface{}{
		"conversationId": req.ConversationID,
		"userId":         c.userID,
		"timestamp":      time.Now().UnixMilli(),
	})
}

func (c *Client) sendEvent(eventType string, payload interface{}) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		log.Printf("relay marshal %s: %v", eventType, err)
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(message string) {
	c.sendEvent(EventError, map[string]string{"message": message})
}

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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
