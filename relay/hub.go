package relay

import (
	"context"
	"log"

	"wellnest/models"
	"wellnest/store"
)

// Bridge fans broadcasts out across instances. Without one, delivery is
// local to this process.
type Bridge interface {
	Publish(ctx context.Context, room string, data []byte) error
	Subscribe(ctx context.Context, handler func(room string, data []byte)) error
}

type joinRequest struct {
	client *Client
	room   string
	done   chan struct{}
}

type roomEvent struct {
	room string
	data []byte
}

// Hub owns the room registry: an explicit mapping from conversation id to
// the set of connections joined to it. All membership mutation and fan-out
// happens on the Run goroutine.
type Hub struct {
	store     store.ChatStore
	bridge    Bridge
	onMessage func(*models.Message)

	rooms      map[string]map[*Client]bool
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	joins      chan joinRequest
	broadcast  chan roomEvent
}

func NewHub(chatStore store.ChatStore, bridge Bridge) *Hub {
	return &Hub{
		store:      chatStore,
		bridge:     bridge,
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		joins:      make(chan joinRequest),
		broadcast:  make(chan roomEvent, 256),
	}
}

// SetMessageHook registers a callback invoked after a relay-sent message is
// persisted and broadcast (push notifications hang off this).
func (h *Hub) SetMessageHook(fn func(*models.Message)) {
	h.onMessage = fn
}

func (h *Hub) Run() {
	if h.bridge != nil {
		go func() {
			err := h.bridge.Subscribe(context.Background(), func(room string, data []byte) {
				h.broadcast <- roomEvent{room: room, data: data}
			})
			if err != nil {
				log.Printf("relay bridge subscribe: %v", err)
			}
		}()
	}

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("relay client %s connected (total %d)", client.id, len(h.clients))

		case client := <-h.unregister:
			h.removeClient(client)
			log.Printf("relay client %s disconnected (total %d)", client.id, len(h.clients))

		case req := <-h.joins:
			if h.rooms[req.room] == nil {
				h.rooms[req.room] = make(map[*Client]bool)
			}
			h.rooms[req.room][req.client] = true
			close(req.done)

		case event := <-h.broadcast:
			h.deliver(event.room, event.data)
		}
	}
}

// Join adds the client to a room and returns once membership is visible, so
// a broadcast issued after Join returns will reach the client.
func (h *Hub) Join(client *Client, room string) {
	done := make(chan struct{})
	h.joins <- joinRequest{client: client, room: room, done: done}
	<-done
}

// BroadcastEvent fans an event out to every connection in the room,
// including the sender's own.
func (h *Hub) BroadcastEvent(room, eventType string, payload interface{}) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		log.Printf("relay marshal %s: %v", eventType, err)
		return
	}
	if h.bridge != nil {
		// The subscription echoes the publish back to every instance,
		// this one included, which then delivers locally.
		err := h.bridge.Publish(context.Background(), room, data)
		if err == nil {
			return
		}
		log.Printf("relay bridge publish: %v, delivering locally", err)
	}
	h.broadcast <- roomEvent{room: room, data: data}
}

func (h *Hub) deliver(room string, data []byte) {
	for client := range h.rooms[room] {
		if !client.enqueue(data) {
			// Slow consumer: drop the connection rather than the room.
			h.removeClient(client)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for room, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.closeSend()
}

func (h *Hub) notifyMessage(msg *models.Message) {
	if h.onMessage != nil {
		h.onMessage(msg)
	}
}
