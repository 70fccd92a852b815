package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"memory-duel-server/gameerrors"
)

// DefaultTileCount is the 4x4 board.
const DefaultTileCount = 16

var defaultPairs = []struct{ name, pairKey string }{
	{"Apple", "FRUIT_A"},
	{"Banana", "FRUIT_B"},
	{"Cat", "ANIMAL_C"},
	{"Dog", "ANIMAL_D"},
	{"Eagle", "ANIMAL_E"},
	{"Fish", "ANIMAL_F"},
	{"Grape", "FRUIT_G"},
	{"Horse", "ANIMAL_H"},
}

// DefaultCards returns the fallback card pool: two instances of each default pair.
func DefaultCards() []Card {
	cards := make([]Card, 0, 2*len(defaultPairs))
	for _, p := range defaultPairs {
		cards = append(cards,
			Card{Name: p.name, PairKey: p.pairKey},
			Card{Name: p.name, PairKey: p.pairKey},
		)
	}
	return cards
}

// Seeder lays out new boards. It is safe for concurrent use.
type Seeder struct {
	tileCount int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSeeder returns a Seeder producing tileCount tiles per board. A nil rnd
// gets a time-seeded source.
func NewSeeder(tileCount int, rnd *rand.Rand) *Seeder {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Seeder{tileCount: tileCount, rnd: rnd}
}

// CreateBoard returns the tiles of the locked game, creating them first if the
// game has none. The card pool is seeded with DefaultCards when empty.
func (s *Seeder) CreateBoard(ctx context.Context, tx Tx) ([]Tile, error) {
	tiles, err := tx.Tiles(ctx)
	if err != nil {
		return nil, err
	}
	if len(tiles) > 0 {
		return tiles, nil
	}

	pool, err := tx.CardPool(ctx)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		seeded, err := tx.SeedCards(ctx, DefaultCards())
		if err != nil {
			return nil, err
		}
		if seeded {
			slog.Info("seeded default card pool", "tag", "game", "cards", len(defaultPairs)*2)
		}
		if pool, err = tx.CardPool(ctx); err != nil {
			return nil, err
		}
	}

	gameID := tx.Game().ID
	s.mu.Lock()
	layout, err := LayoutBoard(gameID, pool, s.tileCount, s.rnd)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ValidateBoard(layout, s.tileCount); err != nil {
		return nil, err
	}
	if err := tx.InsertTiles(ctx, layout); err != nil {
		return nil, err
	}
	slog.Info("board created", "tag", "game", "game_id", gameID, "tiles", len(layout))
	return tx.Tiles(ctx)
}

// LayoutBoard picks tileCount/2 random pairs from pool and assigns every
// position 0..tileCount-1 exactly once. A pair is two distinct card instances
// sharing a non-empty PairKey. The result is ordered by Position.
func LayoutBoard(gameID int64, pool []Card, tileCount int, rnd *rand.Rand) ([]Tile, error) {
	if tileCount <= 0 || tileCount%2 != 0 {
		return nil, gameerrors.Validation(fmt.Sprintf("tile count must be a positive even number, got %d", tileCount))
	}

	byKey := make(map[string][]Card)
	var keys []string
	for _, c := range pool {
		if c.PairKey == "" {
			continue
		}
		if _, seen := byKey[c.PairKey]; !seen {
			keys = append(keys, c.PairKey)
		}
		byKey[c.PairKey] = append(byKey[c.PairKey], c)
	}

	var pairs [][2]Card
	for _, k := range keys {
		group := byKey[k]
		for i := 0; i+1 < len(group); i += 2 {
			pairs = append(pairs, [2]Card{group[i], group[i+1]})
		}
	}
	need := tileCount / 2
	if len(pairs) < need {
		return nil, fmt.Errorf("%w: need %d pairs, pool has %d", gameerrors.ErrSeeding, need, len(pairs))
	}

	rnd.Shuffle(len(pairs), func(i, j int) {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	})
	positions := rnd.Perm(tileCount)

	tiles := make([]Tile, 0, tileCount)
	for i, p := range pairs[:need] {
		for j, c := range p {
			tiles = append(tiles, Tile{
				GameID:    gameID,
				CardID:    c.ID,
				Position:  positions[2*i+j],
				CardName:  c.Name,
				ImagePath: c.ImagePath,
				PairKey:   c.PairKey,
			})
		}
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Position < tiles[j].Position })
	return tiles, nil
}

// ValidateBoard checks that positions are exactly {0..tileCount-1} and every
// PairKey appears an even number of times.
func ValidateBoard(tiles []Tile, tileCount int) error {
	if len(tiles) != tileCount {
		return fmt.Errorf("%w: board has %d tiles, want %d", gameerrors.ErrSeeding, len(tiles), tileCount)
	}
	seen := make([]bool, tileCount)
	keys := make(map[string]int)
	for _, t := range tiles {
		if t.Position < 0 || t.Position >= tileCount || seen[t.Position] {
			return fmt.Errorf("%w: bad or duplicate position %d", gameerrors.ErrSeeding, t.Position)
		}
		seen[t.Position] = true
		keys[t.PairKey]++
	}
	for k, n := range keys {
		if n%2 != 0 {
			return fmt.Errorf("%w: pair key %q appears %d times", gameerrors.ErrSeeding, k, n)
		}
	}
	return nil
}
