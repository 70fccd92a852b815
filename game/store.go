package game

import (
	"context"
	"time"
)

// Store is the persistence the game core depends on. storage.Postgres and
// storage.Memory implement it.
type Store interface {
	// CreateGame inserts a Waiting game together with its owner seat
	// (PlayerOrder 1) in one atomic write.
	CreateGame(ctx context.Context, ownerUserID int64) (Game, error)

	// ListGames returns games newest first with their seats, at most limit rows.
	ListGames(ctx context.Context, limit int) ([]LobbyGame, error)

	// WithGame runs fn while holding the lock for gameID. Writes made through
	// tx commit when fn returns nil and roll back otherwise. A missing game
	// yields gameerrors.ErrNotFound without calling fn.
	WithGame(ctx context.Context, gameID int64, fn func(tx Tx) error) error
}

// Tx is a unit of work scoped to one locked game.
type Tx interface {
	// Game returns the locked row, reflecting writes made through this Tx.
	Game() Game

	// Players returns seats ordered by PlayerOrder, with usernames.
	Players(ctx context.Context) ([]Player, error)
	AddPlayer(ctx context.Context, userID int64, order int) (Player, error)
	UpdateStatus(ctx context.Context, status Status, winnerGamePlayerID *int64, endedAt *time.Time) error

	// Tiles returns the board ordered by Position, joined with card data.
	Tiles(ctx context.Context) ([]Tile, error)
	InsertTiles(ctx context.Context, tiles []Tile) error
	MarkMatched(ctx context.Context, tileIDs ...int64) error

	// Moves returns the log ordered by TurnNumber ascending.
	Moves(ctx context.Context) ([]Move, error)
	// AppendMove stores m with TurnNumber = current max + 1 and returns the
	// stored row. ID, CreatedAt and TurnNumber of m are ignored.
	AppendMove(ctx context.Context, m Move) (Move, error)

	// CardPool returns every card ordered by ID.
	CardPool(ctx context.Context) ([]Card, error)
	// SeedCards inserts cards only when the pool is empty. It reports whether
	// anything was inserted.
	SeedCards(ctx context.Context, cards []Card) (bool, error)

	// DeleteGame removes moves, tiles and seats, then the game row.
	DeleteGame(ctx context.Context) error
}
