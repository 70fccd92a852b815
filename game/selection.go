package game

import (
	"strconv"
	"sync"
)

// SelectionKey identifies one pending first click: a game and the session
// that clicked.
type SelectionKey struct {
	GameID    int64
	SessionID string
}

// Selections buffers first clicks until the second tile arrives. Entries do
// not expire; they are cleared on resolution, on an invalid selection, and
// when the game completes or is deleted.
type Selections interface {
	Pending(key SelectionKey) (tileID int64, ok bool)
	Set(key SelectionKey, tileID int64)
	Clear(key SelectionKey)
	ClearGame(gameID int64)
}

// MemorySelections is a process-local Selections.
type MemorySelections struct {
	mu      sync.Mutex
	pending map[SelectionKey]int64
}

// NewMemorySelections returns an empty buffer.
func NewMemorySelections() *MemorySelections {
	return &MemorySelections{pending: make(map[SelectionKey]int64)}
}

func (s *MemorySelections) Pending(key SelectionKey) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pending[key]
	return id, ok
}

func (s *MemorySelections) Set(key SelectionKey, tileID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = tileID
}

func (s *MemorySelections) Clear(key SelectionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
}

func (s *MemorySelections) ClearGame(gameID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.pending {
		if k.GameID == gameID {
			delete(s.pending, k)
		}
	}
}

// Actor is the authenticated user behind a request and the session it came from.
type Actor struct {
	UserID    int64
	SessionID string
}

// selectionKey falls back to a per-user key when the request carries no session.
func (a Actor) selectionKey(gameID int64) SelectionKey {
	sid := a.SessionID
	if sid == "" {
		sid = "user:" + strconv.FormatInt(a.UserID, 10)
	}
	return SelectionKey{GameID: gameID, SessionID: sid}
}
