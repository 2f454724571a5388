// internal/editor/client.go
package editor

import (
	"bytes"
	"encoding/json"
	"time"

	"infinote-editor/pkg/infinote"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client represents a connected editor.
type Client struct {
	// Unique identifier
	id string

	// Numeric user id within the document's OT state
	userID infinote.UserID

	// The hub that manages this client
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Document this client is editing
	documentID string

	// Reference to the service
	service *Service

	log *zap.Logger
}

// readPump pumps messages from the websocket connection to the service.
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
				c.log.Warn("websocket error", zap.Error(err))
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
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

// processMessage processes incoming messages from the client.
func (c *Client) processMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Warn("invalid message", zap.Error(err))
		c.sendError("Invalid message format")
		return
	}

	// Stamp the message with connection metadata; clients cannot speak for
	// each other.
	msg.ClientID = c.id
	msg.UserID = c.userID
	msg.DocumentID = c.documentID

	c.service.countReceived()

	switch msg.Type {
	case "request":
		c.handleRequest(msg)

	case "cursor_position", "selection":
		c.handlePresence(msg)

	case "request_document":
		c.handleDocumentRequest()

	case "save_document":
		c.handleSaveDocument()

	case "ping":
		// Just a keepalive, no action needed

	default:
		c.log.Warn("unknown message type", zap.String("type", msg.Type))
		c.sendError("Unknown message type: " + msg.Type)
	}
}

// handleRequest feeds an OT request into the document engine and broadcasts
// every request that executed as a result.
func (c *Client) handleRequest(msg Message) {
	if len(msg.Request) == 0 {
		c.sendError("Missing request payload")
		return
	}

	doc, err := c.service.GetDocument(c.documentID)
	if err != nil {
		c.sendError("Unknown document")
		return
	}

	executed, err := doc.Engine.Submit(msg.Request)
	if err != nil {
		c.log.Warn("request rejected", zap.Error(err))
		c.sendError(err.Error())
		return
	}
	doc.markDirty()

	for _, raw := range executed {
		out := Message{
			Type:       "request_executed",
			DocumentID: c.documentID,
			ClientID:   c.id,
			Request:    raw,
		}
		data, err := json.Marshal(out)
		if err != nil {
			c.log.Error("marshal executed request", zap.Error(err))
			continue
		}
		c.service.BroadcastToDocument(c.documentID, data, nil)
	}
}

// handlePresence forwards cursor and selection updates to the document's
// other clients and records them in the document's cursor manager. The
// recorded positions are not sent to clients that join later.
func (c *Client) handlePresence(msg Message) {
	doc, err := c.service.GetDocument(c.documentID)
	if err != nil {
		return
	}

	switch msg.Type {
	case "cursor_position":
		doc.Cursors.UpdateCursorPosition(c.id, c.userID, msg.Position)
	case "selection":
		doc.Cursors.UpdateSelection(c.id, c.userID, msg.Start, msg.End)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.broadcast <- data
}

// handleDocumentRequest sends the current document state to this client.
func (c *Client) handleDocumentRequest() {
	c.service.sendDocumentState(c, c.documentID)
}

// handleSaveDocument forces a snapshot save.
func (c *Client) handleSaveDocument() {
	if err := c.service.SaveDocument(c.documentID); err != nil {
		c.log.Error("save failed", zap.Error(err))
		c.sendError("Save failed")
		return
	}
	data, _ := json.Marshal(Message{Type: "document_saved", DocumentID: c.documentID})
	select {
	case c.send <- data:
	default:
	}
}

// sendError sends an error message to this client.
func (c *Client) sendError(text string) {
	data, err := json.Marshal(Message{Type: "error", Error: text})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
