package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"memory-duel-server/gameerrors"
)

// Options configures a Manager. Zero values pick defaults.
type Options struct {
	TileCount    int
	HistoryLimit int
	Rand         *rand.Rand
	Selections   Selections
	Now          func() time.Time
}

// Manager owns game status transitions and orchestrates the seeder, turn
// resolver, match engine and projector. Every entry point that touches a game
// runs under that game's lock.
type Manager struct {
	store        Store
	seeder       *Seeder
	engine       *Engine
	selections   Selections
	historyLimit int
	now          func() time.Time
}

// NewManager wires a Manager over store.
func NewManager(store Store, opts Options) *Manager {
	if opts.TileCount == 0 {
		opts.TileCount = DefaultTileCount
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = 10
	}
	if opts.Selections == nil {
		opts.Selections = NewMemorySelections()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:        store,
		seeder:       NewSeeder(opts.TileCount, opts.Rand),
		engine:       NewEngine(opts.Selections),
		selections:   opts.Selections,
		historyLimit: opts.HistoryLimit,
		now:          opts.Now,
	}
}

// Create starts a Waiting game owned by the actor.
func (m *Manager) Create(ctx context.Context, actor Actor) (Game, error) {
	if actor.UserID <= 0 {
		return Game{}, gameerrors.ErrUnauthenticated
	}
	g, err := m.store.CreateGame(ctx, actor.UserID)
	if err != nil {
		return Game{}, err
	}
	slog.Info("game created", "tag", "game", "game_id", g.ID, "owner", actor.UserID)
	return g, nil
}

// Join seats the actor as the second player and starts the game.
func (m *Manager) Join(ctx context.Context, gameID int64, actor Actor) error {
	if actor.UserID <= 0 {
		return gameerrors.ErrUnauthenticated
	}
	return m.store.WithGame(ctx, gameID, func(tx Tx) error {
		g := tx.Game()
		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		order := 0
		for _, p := range players {
			if p.UserID == actor.UserID {
				return fmt.Errorf("%w: game %d", gameerrors.ErrAlreadyJoined, gameID)
			}
			if p.PlayerOrder > order {
				order = p.PlayerOrder
			}
		}
		if g.Status == StatusCompleted {
			return fmt.Errorf("%w: game %d", gameerrors.ErrGameCompleted, gameID)
		}
		if len(players) >= MaxPlayers || !CanTransition(g.Status, StatusInProgress) {
			return fmt.Errorf("%w: game %d", gameerrors.ErrGameFull, gameID)
		}

		if _, err := tx.AddPlayer(ctx, actor.UserID, order+1); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, StatusInProgress, nil, nil); err != nil {
			return err
		}
		slog.Info("player joined", "tag", "game", "game_id", gameID, "user_id", actor.UserID, "order", order+1)
		return nil
	})
}

// Open prepares the play view: it seeds the board on first use, reconciles
// completion and projects the state for the actor.
func (m *Manager) Open(ctx context.Context, gameID int64, actor Actor) (GameView, error) {
	var view GameView
	err := m.store.WithGame(ctx, gameID, func(tx Tx) error {
		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		if !isPlayer(players, actor.UserID) {
			return notAPlayer(gameID, actor.UserID)
		}
		if _, err := m.seeder.CreateBoard(ctx, tx); err != nil {
			return err
		}
		if err := m.reconcile(ctx, tx); err != nil {
			return err
		}
		view, err = m.project(ctx, tx, actor)
		return err
	})
	return view, err
}

// Flip applies one tile click for the actor. It enforces turn ownership and
// rejects completed games before the match engine sees the click.
func (m *Manager) Flip(ctx context.Context, gameID int64, actor Actor, tileID int64) (FlipResult, error) {
	var res FlipResult
	err := m.store.WithGame(ctx, gameID, func(tx Tx) error {
		g := tx.Game()
		if g.Status == StatusCompleted {
			return fmt.Errorf("%w: game %d", gameerrors.ErrGameCompleted, gameID)
		}
		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		moves, err := tx.Moves(ctx)
		if err != nil {
			return err
		}
		turn, ok := CurrentTurn(g.Status, players, lastMove(moves))
		if !ok || turn != actor.UserID {
			return fmt.Errorf("%w: game %d", gameerrors.ErrNotYourTurn, gameID)
		}

		res, err = m.engine.Flip(ctx, tx, actor.selectionKey(gameID), actor.UserID, tileID)
		if err != nil {
			return err
		}
		if res.State != FlipResolved {
			return nil
		}
		slog.Debug("move recorded", "tag", "game", "game_id", gameID, "user_id", actor.UserID,
			"turn", res.Move.TurnNumber, "match", res.IsMatch)
		if err := m.reconcile(ctx, tx); err != nil {
			return err
		}
		res.Completed = tx.Game().Status == StatusCompleted
		return nil
	})
	return res, err
}

// Delete removes a game and everything that depends on it. Only the owner
// (PlayerOrder 1) may delete.
func (m *Manager) Delete(ctx context.Context, gameID int64, actor Actor) error {
	err := m.store.WithGame(ctx, gameID, func(tx Tx) error {
		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		if owner, ok := ownerOf(players); !ok || owner.UserID != actor.UserID {
			return fmt.Errorf("%w: game %d", gameerrors.ErrNotOwner, gameID)
		}
		return tx.DeleteGame(ctx)
	})
	if err != nil {
		return err
	}
	m.selections.ClearGame(gameID)
	slog.Info("game deleted", "tag", "game", "game_id", gameID, "user_id", actor.UserID)
	return nil
}

// Reconcile applies the completion transition if the board is cleared. It is
// idempotent and safe to call from any entry point.
func (m *Manager) Reconcile(ctx context.Context, gameID int64) (Game, error) {
	var g Game
	err := m.store.WithGame(ctx, gameID, func(tx Tx) error {
		if err := m.reconcile(ctx, tx); err != nil {
			return err
		}
		g = tx.Game()
		return nil
	})
	return g, err
}

// reconcile completes the locked game once every tile is matched. A completed
// game is left untouched, so the winner is computed exactly once.
func (m *Manager) reconcile(ctx context.Context, tx Tx) error {
	g := tx.Game()
	if g.Status == StatusCompleted {
		return nil
	}
	tiles, err := tx.Tiles(ctx)
	if err != nil {
		return err
	}
	if len(tiles) == 0 {
		return nil
	}
	for _, t := range tiles {
		if !t.IsMatched {
			return nil
		}
	}
	if !CanTransition(g.Status, StatusCompleted) {
		return fmt.Errorf("illegal transition %s -> %s for game %d", g.Status, StatusCompleted, g.ID)
	}

	players, err := tx.Players(ctx)
	if err != nil {
		return err
	}
	moves, err := tx.Moves(ctx)
	if err != nil {
		return err
	}
	winner := DetermineWinner(players, moves)
	ended := m.now().UTC()
	if err := tx.UpdateStatus(ctx, StatusCompleted, winner, &ended); err != nil {
		return err
	}
	m.selections.ClearGame(g.ID)
	if winner != nil {
		slog.Info("game completed", "tag", "game", "game_id", g.ID, "winner_game_player_id", *winner)
	} else {
		slog.Info("game completed", "tag", "game", "game_id", g.ID, "winner", "tie")
	}
	return nil
}

// DetermineWinner returns the GamePlayer id of the player with strictly the
// most matches, or nil on a tie. A lone player wins by default.
func DetermineWinner(players []Player, moves []Move) *int64 {
	if len(players) == 0 {
		return nil
	}
	counts := matchCounts(moves)
	best := players[0]
	tie := false
	for _, p := range players[1:] {
		switch {
		case counts[p.UserID] > counts[best.UserID]:
			best, tie = p, false
		case counts[p.UserID] == counts[best.UserID]:
			tie = true
		}
	}
	if tie {
		return nil
	}
	id := best.ID
	return &id
}

// matchCounts tallies matching moves per user.
func matchCounts(moves []Move) map[int64]int {
	counts := make(map[int64]int)
	for _, mv := range moves {
		if mv.IsMatch {
			counts[mv.UserID]++
		}
	}
	return counts
}

func isPlayer(players []Player, userID int64) bool {
	for _, p := range players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func ownerOf(players []Player) (Player, bool) {
	for _, p := range players {
		if p.PlayerOrder == 1 {
			return p, true
		}
	}
	return Player{}, false
}

func notAPlayer(gameID, userID int64) error {
	return fmt.Errorf("%w: user %d is not a player of game %d", gameerrors.ErrNotFound, userID, gameID)
}
