package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gavelstr/gavelstr/internal/services"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is bound to localhost for the browser UI
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and pushes reconciled auction
// views to them as the pollers produce updates
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients by auction ID that they're watching
	mu             sync.Mutex
	auctionClients map[string]map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages for all clients
	broadcast chan []byte
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		broadcast:      make(chan []byte),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		clients:        make(map[*Client]bool),
		auctionClients: make(map[string]map[*Client]bool),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.mu.Lock()
				for auctionID, clients := range h.auctionClients {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.auctionClients, auctionID)
					}
				}
				h.mu.Unlock()
				close(client.send)
			}
		case message := <-h.broadcast:
			// Broadcast message to all clients
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// RegisterAuctionClient registers a client to receive updates for a specific auction
func (h *Hub) RegisterAuctionClient(client *Client, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.auctionClients[auctionID]; !ok {
		h.auctionClients[auctionID] = make(map[*Client]bool)
	}
	h.auctionClients[auctionID][client] = true
}

// UnregisterAuctionClient unregisters a client from receiving updates for a specific auction
func (h *Hub) UnregisterAuctionClient(client *Client, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.auctionClients[auctionID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.auctionClients, auctionID)
		}
	}
}

// WatchedAuctions returns the auction IDs that at least one client is
// watching; the bid poller reconciles exactly these
func (h *Hub) WatchedAuctions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.auctionClients))
	for auctionID := range h.auctionClients {
		ids = append(ids, auctionID)
	}
	return ids
}

// BroadcastAuction pushes a reconciled auction view to every client
// watching it
func (h *Hub) BroadcastAuction(auctionID string, view *services.Reconciliation) {
	payload, err := json.Marshal(view)
	if err != nil {
		log.Printf("error marshalling auction view: %v", err)
		return
	}
	message, err := json.Marshal(WebSocketMessage{
		Type:    "auction_update",
		Payload: payload,
	})
	if err != nil {
		log.Printf("error marshalling auction update: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.auctionClients[auctionID]; ok {
		for client := range clients {
			select {
			case client.send <- message:
			default:
				delete(clients, client)
			}
		}
	}
}

// BroadcastRefresh tells every client that a data category changed and
// should be refetched
func (h *Hub) BroadcastRefresh(category string) {
	message, err := json.Marshal(WebSocketMessage{
		Type:    "refresh",
		Payload: json.RawMessage(`{"category":"` + category + `"}`),
	})
	if err != nil {
		log.Printf("error marshalling refresh: %v", err)
		return
	}
	h.broadcast <- message
}

// readPump pumps messages from the WebSocket connection to the hub
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		// Parse the message
		var wsMessage WebSocketMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			log.Printf("error parsing message: %v", err)
			continue
		}

		// Handle different message types
		switch wsMessage.Type {
		case "subscribe":
			// Subscribe to auction updates
			var auctionID string
			if err := json.Unmarshal(wsMessage.Payload, &auctionID); err != nil {
				log.Printf("error parsing subscribe payload: %v", err)
				continue
			}
			c.hub.RegisterAuctionClient(c, auctionID)

		case "unsubscribe":
			// Unsubscribe from auction updates
			var auctionID string
			if err := json.Unmarshal(wsMessage.Payload, &auctionID); err != nil {
				log.Printf("error parsing unsubscribe payload: %v", err)
				continue
			}
			c.hub.UnregisterAuctionClient(c, auctionID)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// ServeWs handles WebSocket requests from clients
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println(err)
			return
		}

		client := &Client{
			hub:  hub,
			conn: conn,
			send: make(chan []byte, 256),
		}
		client.hub.register <- client

		// Send welcome message
		welcomeMsg := WebSocketMessage{
			Type:    "welcome",
			Payload: json.RawMessage(`{"message":"Connected to gavelstr"}`),
		}
		welcomeBytes, _ := json.Marshal(welcomeMsg)
		client.send <- welcomeBytes

		// Allow collection of memory referenced by the caller by doing all work in
		// new goroutines
		go client.writePump()
		go client.readPump()
	}
}
