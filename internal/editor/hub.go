// internal/editor/hub.go
package editor

import (
	"encoding/json"

	"infinote-editor/pkg/infinote"

	"go.uber.org/zap"
)

// Hub maintains active client connections and routes messages between the
// clients of each document.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to fan out
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Document-specific client tracking
	documentClients map[string]map[*Client]bool

	log *zap.Logger
}

// Message is the envelope for everything that travels over a client
// connection.
type Message struct {
	Type       string          `json:"type"`
	DocumentID string          `json:"documentId,omitempty"`
	ClientID   string          `json:"clientId,omitempty"`
	UserID     infinote.UserID `json:"userId,omitempty"`

	// Request carries an OT request in its wire form.
	Request json.RawMessage `json:"request,omitempty"`

	// Document state for init and sync messages.
	Content  string             `json:"content,omitempty"`
	Segments []infinote.Segment `json:"segments,omitempty"`
	Vector   string             `json:"vector,omitempty"`

	// Cursor and selection updates.
	Position int `json:"position,omitempty"`
	Start    int `json:"start,omitempty"`
	End      int `json:"end,omitempty"`

	Error string `json:"error,omitempty"`
}

// newHub creates a new Hub.
func newHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		broadcast:       make(chan []byte, 256),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		documentClients: make(map[string]map[*Client]bool),
		log:             logger.Named("hub"),
	}
}

// run starts the hub's main loop.
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case message := <-h.broadcast:
			h.handleBroadcast(message)
		}
	}
}

// handleRegister handles client registration.
func (h *Hub) handleRegister(client *Client) {
	h.clients[client] = true

	if client.documentID != "" {
		if h.documentClients[client.documentID] == nil {
			h.documentClients[client.documentID] = make(map[*Client]bool)
		}
		h.documentClients[client.documentID][client] = true
		h.notifyUserJoined(client)
	}

	h.log.Info("client connected",
		zap.String("client", client.id),
		zap.String("document", client.documentID),
		zap.Int("total", len(h.clients)))
}

// handleUnregister handles client disconnection.
func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	if client.documentID != "" && h.documentClients[client.documentID] != nil {
		delete(h.documentClients[client.documentID], client)
		if len(h.documentClients[client.documentID]) == 0 {
			delete(h.documentClients, client.documentID)
		}
		h.notifyUserLeft(client)
	}

	if client.service != nil {
		client.service.RemoveClientFromDocument(client)
	}

	h.log.Info("client disconnected",
		zap.String("client", client.id),
		zap.Int("total", len(h.clients)))
}

// handleBroadcast routes a message to the clients of its document.
func (h *Hub) handleBroadcast(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.log.Error("unmarshal broadcast", zap.Error(err))
		return
	}
	if msg.DocumentID == "" {
		return
	}
	h.broadcastToDocument(msg.DocumentID, message, msg.ClientID)
}

// broadcastToDocument sends a message to all clients in a document, except
// the originating one.
func (h *Hub) broadcastToDocument(docID string, message []byte, excludeClientID string) {
	clients := h.documentClients[docID]
	for client := range clients {
		if client.id == excludeClientID {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.log.Warn("client buffer full, dropping connection", zap.String("client", client.id))
			close(client.send)
			delete(h.clients, client)
			delete(clients, client)
		}
	}
}

// notifyUserJoined notifies other users in a document that a new user
// joined.
func (h *Hub) notifyUserJoined(client *Client) {
	h.notifyPeers(client, "user_joined")
}

// notifyUserLeft notifies other users in a document that a user left.
func (h *Hub) notifyUserLeft(client *Client) {
	h.notifyPeers(client, "user_left")
}

func (h *Hub) notifyPeers(client *Client, event string) {
	notification := Message{
		Type:       event,
		DocumentID: client.documentID,
		ClientID:   client.id,
		UserID:     client.userID,
	}
	data, err := json.Marshal(notification)
	if err != nil {
		h.log.Error("marshal peer notification", zap.Error(err))
		return
	}
	h.broadcastToDocument(client.documentID, data, client.id)
}

// shutdown closes all client connections.
func (h *Hub) shutdown() {
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.log.Info("hub shutdown complete")
}

// Stats returns per-hub connection counts.
func (h *Hub) Stats() (clients int, documents int) {
	return len(h.clients), len(h.documentClients)
}
