package game

import (
	"context"
	"fmt"

	"memory-duel-server/gameerrors"
)

// FlipState tells the caller which half of a selection a click completed.
type FlipState int

const (
	FlipAwaitingSecond FlipState = iota + 1
	FlipResolved
)

// String returns the protocol string for a FlipState.
func (s FlipState) String() string {
	switch s {
	case FlipAwaitingSecond:
		return "awaiting_second"
	case FlipResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its protocol string.
func (s FlipState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// FlipResult is the outcome of one click.
type FlipResult struct {
	State          FlipState `json:"state"`
	FirstTileID    int64     `json:"firstTileId"`
	FirstCardName  string    `json:"firstCardName"`
	SecondTileID   int64     `json:"secondTileId,omitempty"`
	SecondCardName string    `json:"secondCardName,omitempty"`
	IsMatch        bool      `json:"isMatch"`
	Move           *Move     `json:"move,omitempty"`
	Completed      bool      `json:"completed"`
}

// Engine resolves two-tile selections against a locked game.
type Engine struct {
	selections Selections
}

// NewEngine returns an Engine buffering first clicks in selections.
func NewEngine(selections Selections) *Engine {
	return &Engine{selections: selections}
}

// Flip applies one click by userID on tileID. The caller holds the game lock
// and has already checked turn ownership and that the game is not completed.
//
// A first click only records the pending tile. A second click validates both
// tiles, marks them matched when their PairKeys agree, and appends exactly one
// Move. The pending tile is cleared on every second click, valid or not.
// Already-matched tiles and flipping the same tile twice are rejected.
func (e *Engine) Flip(ctx context.Context, tx Tx, key SelectionKey, userID, tileID int64) (FlipResult, error) {
	tiles, err := tx.Tiles(ctx)
	if err != nil {
		return FlipResult{}, err
	}
	byID := make(map[int64]Tile, len(tiles))
	for _, t := range tiles {
		byID[t.ID] = t
	}

	firstID, pending := e.selections.Pending(key)
	if !pending {
		t, ok := byID[tileID]
		if !ok {
			return FlipResult{}, fmt.Errorf("%w: tile %d is not on this board", gameerrors.ErrInvalidSelection, tileID)
		}
		if t.IsMatched {
			return FlipResult{}, fmt.Errorf("%w: tile %d is already matched", gameerrors.ErrInvalidSelection, tileID)
		}
		e.selections.Set(key, tileID)
		return FlipResult{State: FlipAwaitingSecond, FirstTileID: t.ID, FirstCardName: t.CardName}, nil
	}

	e.selections.Clear(key)

	first, okFirst := byID[firstID]
	second, okSecond := byID[tileID]
	switch {
	case !okFirst || !okSecond:
		return FlipResult{}, fmt.Errorf("%w: tiles %d and %d must both be on this board", gameerrors.ErrInvalidSelection, firstID, tileID)
	case first.ID == second.ID:
		return FlipResult{}, fmt.Errorf("%w: tile %d selected twice", gameerrors.ErrInvalidSelection, tileID)
	case first.IsMatched || second.IsMatched:
		return FlipResult{}, fmt.Errorf("%w: tiles %d and %d are already matched", gameerrors.ErrInvalidSelection, firstID, tileID)
	}

	isMatch := first.PairKey != "" && first.PairKey == second.PairKey
	if isMatch {
		if err := tx.MarkMatched(ctx, first.ID, second.ID); err != nil {
			return FlipResult{}, err
		}
	}
	mv, err := tx.AppendMove(ctx, Move{
		GameID:       tx.Game().ID,
		UserID:       userID,
		FirstTileID:  first.ID,
		SecondTileID: second.ID,
		IsMatch:      isMatch,
	})
	if err != nil {
		return FlipResult{}, err
	}

	return FlipResult{
		State:          FlipResolved,
		FirstTileID:    first.ID,
		FirstCardName:  first.CardName,
		SecondTileID:   second.ID,
		SecondCardName: second.CardName,
		IsMatch:        isMatch,
		Move:           &mv,
	}, nil
}
