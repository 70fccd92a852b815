package game

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"memory-duel-server/gameerrors"
)

func seededPool() []Card {
	cards := DefaultCards()
	for i := range cards {
		cards[i].ID = int64(i + 1)
	}
	return cards
}

func TestLayoutBoard(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	tiles, err := LayoutBoard(7, seededPool(), 16, rnd)
	if err != nil {
		t.Fatalf("LayoutBoard: %v", err)
	}
	if len(tiles) != 16 {
		t.Fatalf("expected 16 tiles, got %d", len(tiles))
	}
	for i, tile := range tiles {
		if tile.Position != i {
			t.Errorf("expected tile[%d].Position=%d, got %d", i, i, tile.Position)
		}
		if tile.GameID != 7 {
			t.Errorf("expected GameID=7, got %d", tile.GameID)
		}
	}

	pairCount := make(map[string]int)
	cardUse := make(map[int64]int)
	for _, tile := range tiles {
		pairCount[tile.PairKey]++
		cardUse[tile.CardID]++
	}
	if len(pairCount) != 8 {
		t.Errorf("expected 8 distinct pairs, got %d", len(pairCount))
	}
	for key, n := range pairCount {
		if n != 2 {
			t.Errorf("pair %q has %d tiles, expected 2", key, n)
		}
	}
	for id, n := range cardUse {
		if n != 1 {
			t.Errorf("card %d used %d times", id, n)
		}
	}
	if err := ValidateBoard(tiles, 16); err != nil {
		t.Errorf("ValidateBoard: %v", err)
	}
}

func TestLayoutBoardSmall(t *testing.T) {
	tiles, err := LayoutBoard(1, seededPool(), 4, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("LayoutBoard: %v", err)
	}
	if len(tiles) != 4 {
		t.Fatalf("expected 4 tiles, got %d", len(tiles))
	}
}

func TestLayoutBoardShuffles(t *testing.T) {
	a, _ := LayoutBoard(1, seededPool(), 16, rand.New(rand.NewSource(1)))
	b, _ := LayoutBoard(1, seededPool(), 16, rand.New(rand.NewSource(99)))
	same := true
	for i := range a {
		if a[i].CardID != b[i].CardID {
			same = false
		}
	}
	if same {
		t.Error("expected different seeds to produce different layouts")
	}
}

func TestLayoutBoardErrors(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	if _, err := LayoutBoard(1, seededPool(), 15, rnd); !errors.Is(err, gameerrors.ErrValidation) {
		t.Errorf("odd tile count: expected ErrValidation, got %v", err)
	}
	if _, err := LayoutBoard(1, seededPool(), 0, rnd); !errors.Is(err, gameerrors.ErrValidation) {
		t.Errorf("zero tile count: expected ErrValidation, got %v", err)
	}
	if _, err := LayoutBoard(1, seededPool(), 18, rnd); !errors.Is(err, gameerrors.ErrSeeding) {
		t.Errorf("pool too small: expected ErrSeeding, got %v", err)
	}

	// Cards without a partner never form a pair.
	lonely := []Card{{ID: 1, Name: "A", PairKey: "A"}, {ID: 2, Name: "B", PairKey: "B"}, {ID: 3, Name: "C"}}
	if _, err := LayoutBoard(1, lonely, 2, rnd); !errors.Is(err, gameerrors.ErrSeeding) {
		t.Errorf("unpaired pool: expected ErrSeeding, got %v", err)
	}
}

func TestValidateBoard(t *testing.T) {
	good := []Tile{{Position: 0, PairKey: "A"}, {Position: 1, PairKey: "A"}}
	if err := ValidateBoard(good, 2); err != nil {
		t.Errorf("expected valid board, got %v", err)
	}
	dup := []Tile{{Position: 0, PairKey: "A"}, {Position: 0, PairKey: "A"}}
	if err := ValidateBoard(dup, 2); !errors.Is(err, gameerrors.ErrSeeding) {
		t.Errorf("duplicate position: expected ErrSeeding, got %v", err)
	}
	odd := []Tile{{Position: 0, PairKey: "A"}, {Position: 1, PairKey: "B"}}
	if err := ValidateBoard(odd, 2); !errors.Is(err, gameerrors.ErrSeeding) {
		t.Errorf("odd pair key: expected ErrSeeding, got %v", err)
	}
	if err := ValidateBoard(good, 4); !errors.Is(err, gameerrors.ErrSeeding) {
		t.Errorf("short board: expected ErrSeeding, got %v", err)
	}
}

func TestCreateBoardSeedsPoolOnce(t *testing.T) {
	ctx := context.Background()
	tx := newFakeTx(3)
	s := NewSeeder(16, rand.New(rand.NewSource(5)))

	tiles, err := s.CreateBoard(ctx, tx)
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	if len(tiles) != 16 {
		t.Fatalf("expected 16 tiles, got %d", len(tiles))
	}
	if len(tx.cards) != 16 {
		t.Errorf("expected default pool of 16 cards, got %d", len(tx.cards))
	}
	for _, tile := range tiles {
		if tile.ID == 0 {
			t.Error("expected stored tiles to carry ids")
		}
	}

	again, err := s.CreateBoard(ctx, tx)
	if err != nil {
		t.Fatalf("second CreateBoard: %v", err)
	}
	if len(tx.tiles) != 16 || len(again) != 16 {
		t.Errorf("expected board to be created once, have %d tiles", len(tx.tiles))
	}
}

func TestCreateBoardFailsWithoutTiles(t *testing.T) {
	tx := newFakeTx(3)
	tx.cards = []Card{{ID: 1, Name: "Only", PairKey: "X"}, {ID: 2, Name: "Only", PairKey: "X"}}
	s := NewSeeder(16, rand.New(rand.NewSource(5)))

	if _, err := s.CreateBoard(context.Background(), tx); !errors.Is(err, gameerrors.ErrSeeding) {
		t.Fatalf("expected ErrSeeding, got %v", err)
	}
	if len(tx.tiles) != 0 {
		t.Errorf("expected no tiles after failed seeding, got %d", len(tx.tiles))
	}
}
