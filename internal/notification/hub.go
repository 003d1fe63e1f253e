// internal/notification/hub.go

package notifications

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Hub maintains active websocket connections, several per user
type Hub struct {
	clients    map[int64]map[*Client]struct{}
	clientsMux sync.RWMutex

	register   chan *Client
	unregister chan *Client

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	defer h.cleanup()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	set, ok := h.clients[client.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.userID] = set
	}
	set[client] = struct{}{}

	log.Printf("🔌 User %d connected (%d sessions)", client.userID, len(set))
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}

	delete(set, client)
	client.close()
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}

	log.Printf("🔌 User %d disconnected (%d sessions)", client.userID, len(set))
}

func (h *Hub) cleanup() {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	for _, set := range h.clients {
		for client := range set {
			client.close()
		}
	}
	h.clients = make(map[int64]map[*Client]struct{})
}

// SendToUser queues message for every open session of userID.
// It reports whether at least one session accepted it.
func (h *Hub) SendToUser(userID int64, message WSMessage) bool {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling message: %v", err)
		return false
	}

	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	delivered := false
	for client := range h.clients[userID] {
		select {
		case client.send <- data:
			delivered = true
		default:
			// slow consumer, drop the session
			go h.drop(client)
		}
	}
	return delivered
}

func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) IsUserOnline(userID int64) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	return len(h.clients[userID]) > 0
}

func (h *Hub) GetActiveConnections() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Shutdown stops Run and closes every session
func (h *Hub) Shutdown() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		log.Println("⚠️  Notification hub did not stop in time")
	}
}

func mustMarshalJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling: %v", err)
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(data)
}
