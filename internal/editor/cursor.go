// internal/editor/cursor.go
package editor

import (
	"sync"
	"time"

	"infinote-editor/pkg/infinote"
)

// CursorPosition represents a user's cursor position in a document.
// Positions use the same byte offsets as the OT buffer.
type CursorPosition struct {
	ClientID  string          `json:"clientId"`
	UserID    infinote.UserID `json:"userId"`
	Position  int             `json:"position"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// SelectionRange represents a text selection.
type SelectionRange struct {
	ClientID string          `json:"clientId"`
	UserID   infinote.UserID `json:"userId"`
	Start    int             `json:"start"`
	End      int             `json:"end"`
}

// CursorManager manages cursor positions for a document.
type CursorManager struct {
	mu         sync.RWMutex
	cursors    map[string]*CursorPosition
	selections map[string]*SelectionRange
}

// NewCursorManager creates a new cursor manager.
func NewCursorManager() *CursorManager {
	return &CursorManager{
		cursors:    make(map[string]*CursorPosition),
		selections: make(map[string]*SelectionRange),
	}
}

// UpdateCursorPosition updates a client's cursor position.
func (cm *CursorManager) UpdateCursorPosition(clientID string, userID infinote.UserID, position int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cursors[clientID] = &CursorPosition{
		ClientID:  clientID,
		UserID:    userID,
		Position:  position,
		UpdatedAt: time.Now(),
	}
}

// UpdateSelection updates a client's text selection.
func (cm *CursorManager) UpdateSelection(clientID string, userID infinote.UserID, start, end int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if start == end {
		// No selection, remove it
		delete(cm.selections, clientID)
		return
	}
	cm.selections[clientID] = &SelectionRange{
		ClientID: clientID,
		UserID:   userID,
		Start:    start,
		End:      end,
	}
}

// RemoveClient removes a client's cursor and selection.
func (cm *CursorManager) RemoveClient(clientID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	delete(cm.cursors, clientID)
	delete(cm.selections, clientID)
}

// Cursors returns all cursor positions except the requesting client's.
func (cm *CursorManager) Cursors(excludeClientID string) []CursorPosition {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var positions []CursorPosition
	for id, cursor := range cm.cursors {
		if id != excludeClientID {
			positions = append(positions, *cursor)
		}
	}
	return positions
}

// Selections returns all selections except the requesting client's.
func (cm *CursorManager) Selections(excludeClientID string) []SelectionRange {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var selections []SelectionRange
	for id, selection := range cm.selections {
		if id != excludeClientID {
			selections = append(selections, *selection)
		}
	}
	return selections
}

// CleanupStale removes cursor positions that have not been updated
// recently.
func (cm *CursorManager) CleanupStale(timeout time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	for id, cursor := range cm.cursors {
		if now.Sub(cursor.UpdatedAt) > timeout {
			delete(cm.cursors, id)
			delete(cm.selections, id)
		}
	}
}
