// internal/editor/engine.go
package editor

import (
	"fmt"
	"sync"

	"infinote-editor/pkg/infinote"

	"go.uber.org/zap"
)

// DocumentEngine owns the OT state of a single document. All access to the
// underlying state is serialized here; the engine core itself is
// single-threaded by design.
type DocumentEngine struct {
	mu         sync.Mutex
	state      *infinote.State
	documentID string

	// Numeric user ids handed out to joining clients. Ids are never reused
	// within a document's lifetime so log attribution stays stable.
	users    map[string]infinote.UserID
	nextUser infinote.UserID

	executed []*infinote.DoRequest
	log      *zap.Logger
}

// NewDocumentEngine creates an engine for the given document, starting from
// the given buffer and vector (both may be zero for a fresh document).
func NewDocumentEngine(documentID string, buffer *infinote.Buffer, vector infinote.Vector, logger *zap.Logger) *DocumentEngine {
	e := &DocumentEngine{
		state:      infinote.NewState(buffer, vector),
		documentID: documentID,
		users:      make(map[string]infinote.UserID),
		nextUser:   1,
		log:        logger.Named("engine").With(zap.String("document", documentID)),
	}
	e.state.OnExecute = func(r *infinote.DoRequest) {
		e.executed = append(e.executed, r)
	}
	return e
}

// ResizeCache bounds the engine's translation cache.
func (e *DocumentEngine) ResizeCache(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.ResizeTranslationCache(n)
}

// JoinUser assigns a numeric user id to a client, or returns the one it
// already has.
func (e *DocumentEngine) JoinUser(clientID string) infinote.UserID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.users[clientID]; ok {
		return id
	}
	id := e.nextUser
	e.nextUser++
	e.users[clientID] = id
	e.log.Info("user joined", zap.String("client", clientID), zap.Int("user", int(id)))
	return id
}

// Submit decodes a request from its wire form, queues it and drains every
// request that became executable. It returns the executed requests in wire
// form, ready to broadcast.
func (e *DocumentEngine) Submit(raw []byte) ([][]byte, error) {
	request, err := infinote.DecodeRequest(raw)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.executed = e.executed[:0]
	e.state.Queue(request)
	if err := e.state.ExecuteAll(); err != nil {
		e.log.Error("execute failed", zap.Error(err))
		return nil, fmt.Errorf("execute request: %w", err)
	}

	out := make([][]byte, 0, len(e.executed))
	for _, r := range e.executed {
		data, err := infinote.EncodeRequest(r)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	e.log.Debug("requests executed",
		zap.Int("count", len(out)),
		zap.Int("pending", e.state.PendingRequests()))
	return out, nil
}

// Snapshot returns the current document content, its attributed segments
// and the state vector in string form.
func (e *DocumentEngine) Snapshot() (string, []infinote.Segment, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Buffer.String(), e.state.Buffer.Segments(), e.state.Vector.String()
}

// SnapshotWire returns the buffer in wire form plus the vector string, for
// persistence.
func (e *DocumentEngine) SnapshotWire() ([]byte, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, err := infinote.EncodeBuffer(e.state.Buffer)
	if err != nil {
		return nil, "", err
	}
	return data, e.state.Vector.String(), nil
}

// Pending returns the number of queued, not yet executable requests.
func (e *DocumentEngine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.PendingRequests()
}
