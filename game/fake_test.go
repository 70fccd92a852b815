package game

import (
	"context"
	"sort"
	"time"
)

// fakeTx is a single-game Tx backed by plain slices.
type fakeTx struct {
	game    Game
	players []Player
	tiles   []Tile
	moves   []Move
	cards   []Card
	deleted bool
	nextID  int64
}

func newFakeTx(gameID int64) *fakeTx {
	return &fakeTx{game: Game{ID: gameID, Status: StatusWaiting, CreatedAt: time.Now()}, nextID: 100}
}

func (f *fakeTx) id() int64 { f.nextID++; return f.nextID }

func (f *fakeTx) Game() Game { return f.game }

func (f *fakeTx) Players(context.Context) ([]Player, error) {
	out := append([]Player(nil), f.players...)
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerOrder < out[j].PlayerOrder })
	return out, nil
}

func (f *fakeTx) AddPlayer(_ context.Context, userID int64, order int) (Player, error) {
	p := Player{ID: f.id(), GameID: f.game.ID, UserID: userID, PlayerOrder: order}
	f.players = append(f.players, p)
	return p, nil
}

func (f *fakeTx) UpdateStatus(_ context.Context, s Status, winner *int64, ended *time.Time) error {
	f.game.Status, f.game.WinnerGamePlayerID, f.game.EndedAt = s, winner, ended
	return nil
}

func (f *fakeTx) Tiles(context.Context) ([]Tile, error) {
	return append([]Tile(nil), f.tiles...), nil
}

func (f *fakeTx) InsertTiles(_ context.Context, tiles []Tile) error {
	for _, t := range tiles {
		t.ID = f.id()
		f.tiles = append(f.tiles, t)
	}
	return nil
}

func (f *fakeTx) MarkMatched(_ context.Context, ids ...int64) error {
	for _, id := range ids {
		for i := range f.tiles {
			if f.tiles[i].ID == id {
				f.tiles[i].IsMatched = true
			}
		}
	}
	return nil
}

func (f *fakeTx) Moves(context.Context) ([]Move, error) {
	return append([]Move(nil), f.moves...), nil
}

func (f *fakeTx) AppendMove(_ context.Context, m Move) (Move, error) {
	m.ID = f.id()
	m.TurnNumber = len(f.moves) + 1
	m.CreatedAt = time.Now()
	f.moves = append(f.moves, m)
	return m, nil
}

func (f *fakeTx) CardPool(context.Context) ([]Card, error) {
	return append([]Card(nil), f.cards...), nil
}

func (f *fakeTx) SeedCards(_ context.Context, cards []Card) (bool, error) {
	if len(f.cards) > 0 {
		return false, nil
	}
	for _, c := range cards {
		c.ID = f.id()
		f.cards = append(f.cards, c)
	}
	return true, nil
}

func (f *fakeTx) DeleteGame(context.Context) error {
	f.deleted = true
	return nil
}

// tilePair returns two unmatched tiles sharing a PairKey.
func (f *fakeTx) tilePair() (Tile, Tile) {
	byKey := map[string]Tile{}
	for _, t := range f.tiles {
		if t.IsMatched {
			continue
		}
		if o, ok := byKey[t.PairKey]; ok {
			return o, t
		}
		byKey[t.PairKey] = t
	}
	panic("no unmatched pair")
}

// tileMiss returns two unmatched tiles with different PairKeys.
func (f *fakeTx) tileMiss() (Tile, Tile) {
	for _, a := range f.tiles {
		for _, b := range f.tiles {
			if !a.IsMatched && !b.IsMatched && a.PairKey != b.PairKey {
				return a, b
			}
		}
	}
	panic("no unmatched miss")
}
