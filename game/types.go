package game

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a game. Values only move forward.
type Status int

const (
	StatusWaiting Status = iota + 1
	StatusInProgress
	StatusCompleted
)

// String returns the persisted text for a Status.
func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "Waiting"
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its persisted text.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseStatus converts persisted text back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "Waiting":
		return StatusWaiting, nil
	case "InProgress":
		return StatusInProgress, nil
	case "Completed":
		return StatusCompleted, nil
	default:
		return 0, fmt.Errorf("unknown game status %q", s)
	}
}

// CanTransition reports whether a game may move from one status to another.
// Waiting may complete directly when a single player clears the board.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusWaiting:
		return to == StatusInProgress || to == StatusCompleted
	case StatusInProgress:
		return to == StatusCompleted
	case StatusCompleted:
		return false
	default:
		return false
	}
}

// MaxPlayers is the seat count of every game.
const MaxPlayers = 2

// Game is the aggregate root row.
type Game struct {
	ID                 int64
	CreatedAt          time.Time
	EndedAt            *time.Time
	Status             Status
	WinnerGamePlayerID *int64
}

// Player is a GamePlayer membership row. Username is filled by joins for display.
type Player struct {
	ID          int64
	GameID      int64
	UserID      int64
	PlayerOrder int
	Username    string
}

// Card is a template card. Cards sharing a PairKey match each other.
type Card struct {
	ID        int64
	Name      string
	ImagePath *string
	PairKey   string
}

// Tile is one board cell. CardName, ImagePath and PairKey come from the card
// join and are read-only.
type Tile struct {
	ID        int64
	GameID    int64
	CardID    int64
	Position  int
	IsMatched bool

	CardName  string
	ImagePath *string
	PairKey   string
}

// Move is an append-only log entry of one completed two-tile flip.
type Move struct {
	ID           int64     `json:"id"`
	GameID       int64     `json:"gameId"`
	UserID       int64     `json:"userId"`
	FirstTileID  int64     `json:"firstTileId"`
	SecondTileID int64     `json:"secondTileId"`
	IsMatch      bool      `json:"isMatch"`
	CreatedAt    time.Time `json:"createdAt"`
	TurnNumber   int       `json:"turnNumber"`
}

// LobbyGame is a game row with its seat list, used by the lobby listing.
type LobbyGame struct {
	Game    Game
	Players []Player
}
