// internal/editor/service.go
package editor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"infinote-editor/internal/database"
	"infinote-editor/pkg/infinote"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Service is the collaboration service: it owns the hub, the document map
// and the optional snapshot store.
type Service struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   *Config
	mu       sync.RWMutex
	db       *database.DB
	log      *zap.Logger

	// Document storage (in-memory, with optional PostgreSQL backing)
	documents map[string]*Document

	// Metrics
	metrics *Metrics

	stopAutoSave chan struct{}
}

// Config holds service configuration.
type Config struct {
	MaxClients       int
	AutoSaveInterval time.Duration
	CacheSize        int
}

// Document represents a collaborative document: its OT engine plus
// presence and persistence bookkeeping.
type Document struct {
	ID        string
	Engine    *DocumentEngine
	Cursors   *CursorManager
	CreatedAt time.Time
	UpdatedAt time.Time

	// Track active editors
	ActiveClients map[string]*Client
	mu            sync.RWMutex

	dirty     bool
	lastSaved time.Time
}

func (d *Document) markDirty() {
	d.mu.Lock()
	d.dirty = true
	d.UpdatedAt = time.Now()
	d.mu.Unlock()
}

// Metrics tracks service counters, exposed on the metrics endpoint.
type Metrics struct {
	ActiveConnections int64
	MessagesSent      int64
	MessagesReceived  int64
	DocumentsActive   int64
	DocumentsSaved    int64

	mu sync.RWMutex
}

// NewService creates a new editor service. db may be nil for memory-only
// operation.
func NewService(cfg *Config, db *database.DB, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = &Config{
			MaxClients:       1000,
			AutoSaveInterval: 30 * time.Second,
			CacheSize:        infinote.DefaultCacheSize,
		}
	}
	return &Service{
		hub: newHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origins once the frontend host is fixed
				return true
			},
		},
		config:       cfg,
		db:           db,
		log:          logger.Named("service"),
		documents:    make(map[string]*Document),
		metrics:      &Metrics{},
		stopAutoSave: make(chan struct{}),
	}
}

// Start launches the hub and the auto-save loop.
func (s *Service) Start() error {
	go s.hub.run()
	go s.autoSaveLoop()
	s.log.Info("editor service started")
	return nil
}

// Shutdown closes all connections and saves pending documents.
func (s *Service) Shutdown() {
	close(s.stopAutoSave)
	s.hub.shutdown()
	s.savePendingDocuments()
	if s.db != nil {
		s.db.Close()
	}
	s.log.Info("editor service shut down")
}

// HandleWebSocket handles WebSocket upgrade requests.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("doc")
	if docID == "" {
		http.Error(w, "Missing document ID", http.StatusBadRequest)
		return
	}

	doc, err := s.GetDocument(docID)
	if err != nil {
		http.Error(w, "Could not open document", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := &Client{
		id:         clientID[:8],
		hub:        s.hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		documentID: docID,
		service:    s,
	}
	client.userID = doc.Engine.JoinUser(client.id)
	client.log = s.log.Named("client").With(
		zap.String("client", client.id),
		zap.String("document", docID))

	doc.mu.Lock()
	doc.ActiveClients[client.id] = client
	doc.mu.Unlock()

	s.hub.register <- client

	s.metrics.mu.Lock()
	s.metrics.ActiveConnections++
	s.metrics.mu.Unlock()

	go client.writePump()
	go client.readPump()

	// Tell the client who it is, then hand it the document state.
	init, _ := json.Marshal(Message{
		Type:     "init",
		ClientID: client.id,
		UserID:   client.userID,
	})
	client.send <- init
	s.sendDocumentState(client, docID)
}

// GetDocument retrieves a document by ID, loading a snapshot from the
// database or creating a fresh one.
func (s *Service) GetDocument(id string) (*Document, error) {
	s.mu.RLock()
	doc, exists := s.documents[id]
	s.mu.RUnlock()
	if exists {
		return doc, nil
	}

	buffer := infinote.NewBuffer()
	vector := infinote.NewVector()
	created := time.Now()

	if s.db != nil {
		if snapshot, err := s.db.GetDocument(id); err == nil && snapshot != nil {
			buffer, err = infinote.DecodeBuffer(snapshot.Content)
			if err != nil {
				return nil, err
			}
			vector, err = infinote.ParseVector(snapshot.Vector)
			if err != nil {
				return nil, err
			}
			created = snapshot.CreatedAt
			s.log.Info("loaded document snapshot",
				zap.String("document", id),
				zap.String("vector", snapshot.Vector))
		}
	}

	engine := NewDocumentEngine(id, buffer, vector, s.log)
	if s.config.CacheSize > 0 {
		engine.ResizeCache(s.config.CacheSize)
	}
	doc = &Document{
		ID:            id,
		Engine:        engine,
		Cursors:       NewCursorManager(),
		CreatedAt:     created,
		UpdatedAt:     time.Now(),
		ActiveClients: make(map[string]*Client),
		lastSaved:     time.Now(),
	}

	s.mu.Lock()
	if existing, raced := s.documents[id]; raced {
		doc = existing
	} else {
		s.documents[id] = doc
	}
	s.mu.Unlock()

	s.metrics.mu.Lock()
	s.metrics.DocumentsActive++
	s.metrics.mu.Unlock()

	return doc, nil
}

// SaveDocument writes a document snapshot to the database.
func (s *Service) SaveDocument(id string) error {
	s.mu.RLock()
	doc, exists := s.documents[id]
	s.mu.RUnlock()
	if !exists || s.db == nil {
		return nil
	}

	content, vector, err := doc.Engine.SnapshotWire()
	if err != nil {
		return err
	}
	if err := s.db.SaveDocument(id, content, vector); err != nil {
		return err
	}

	doc.mu.Lock()
	doc.dirty = false
	doc.lastSaved = time.Now()
	doc.mu.Unlock()

	s.metrics.mu.Lock()
	s.metrics.DocumentsSaved++
	s.metrics.mu.Unlock()

	s.log.Info("saved document", zap.String("document", id), zap.String("vector", vector))
	return nil
}

// autoSaveLoop periodically saves dirty documents.
func (s *Service) autoSaveLoop() {
	ticker := time.NewTicker(s.config.AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.autoSave()
		case <-s.stopAutoSave:
			return
		}
	}
}

func (s *Service) autoSave() {
	s.mu.RLock()
	ids := make([]string, 0)
	for id, doc := range s.documents {
		doc.mu.RLock()
		needsSave := doc.dirty
		doc.mu.RUnlock()
		if needsSave {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.SaveDocument(id); err != nil {
			s.log.Error("auto-save failed", zap.String("document", id), zap.Error(err))
		}
	}
}

// savePendingDocuments saves any documents with pending changes.
func (s *Service) savePendingDocuments() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.documents))
	for id, doc := range s.documents {
		doc.mu.RLock()
		if doc.dirty {
			ids = append(ids, id)
		}
		doc.mu.RUnlock()
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.SaveDocument(id); err != nil {
			s.log.Error("shutdown save failed", zap.String("document", id), zap.Error(err))
		}
	}
	s.log.Info("saved pending documents", zap.Int("count", len(ids)))
}

// BroadcastToDocument sends a message to all clients editing a document.
func (s *Service) BroadcastToDocument(docID string, message []byte, exclude *Client) {
	s.mu.RLock()
	doc, exists := s.documents[docID]
	s.mu.RUnlock()
	if !exists {
		return
	}

	doc.mu.RLock()
	defer doc.mu.RUnlock()
	for _, client := range doc.ActiveClients {
		if client == exclude {
			continue
		}
		select {
		case client.send <- message:
		default:
		}
	}

	s.metrics.mu.Lock()
	s.metrics.MessagesSent++
	s.metrics.mu.Unlock()
}

// sendDocumentState sends the current document state to a client.
func (s *Service) sendDocumentState(client *Client, docID string) {
	doc, err := s.GetDocument(docID)
	if err != nil {
		s.log.Error("get document", zap.String("document", docID), zap.Error(err))
		return
	}

	content, segments, vector := doc.Engine.Snapshot()
	data, err := json.Marshal(Message{
		Type:       "document_state",
		DocumentID: docID,
		Content:    content,
		Segments:   segments,
		Vector:     vector,
	})
	if err != nil {
		s.log.Error("marshal document state", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
	default:
	}
}

// RemoveClientFromDocument removes a client from a document's active set.
func (s *Service) RemoveClientFromDocument(client *Client) {
	if client.documentID == "" {
		return
	}
	s.mu.RLock()
	doc, exists := s.documents[client.documentID]
	s.mu.RUnlock()
	if !exists {
		return
	}

	doc.mu.Lock()
	delete(doc.ActiveClients, client.id)
	active := len(doc.ActiveClients)
	doc.mu.Unlock()

	doc.Cursors.RemoveClient(client.id)

	s.metrics.mu.Lock()
	s.metrics.ActiveConnections--
	s.metrics.mu.Unlock()

	// Last editor gone: persist the snapshot.
	if active == 0 {
		if err := s.SaveDocument(client.documentID); err != nil {
			s.log.Error("save on last disconnect failed", zap.Error(err))
		}
	}
}

func (s *Service) countReceived() {
	s.metrics.mu.Lock()
	s.metrics.MessagesReceived++
	s.metrics.mu.Unlock()
}

// GetMetrics returns current service metrics.
func (s *Service) GetMetrics() map[string]interface{} {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	clients, docs := s.hub.Stats()
	return map[string]interface{}{
		"active_connections": s.metrics.ActiveConnections,
		"messages_sent":      s.metrics.MessagesSent,
		"messages_received":  s.metrics.MessagesReceived,
		"documents_active":   s.metrics.DocumentsActive,
		"documents_saved":    s.metrics.DocumentsSaved,
		"hub_clients":        clients,
		"hub_documents":      docs,
	}
}
