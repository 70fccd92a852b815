package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"memory-duel-server/auth"
	"memory-duel-server/game"
	"memory-duel-server/gameerrors"
)

// Memory is a process-local store with the same contract as Postgres. Each
// WithGame call works on a copy of the game that is written back only when
// the callback succeeds.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	games  map[int64]*memGame
	locks  map[int64]*sync.Mutex
	cards  []game.Card
	users  map[int64]auth.User
	now    func() time.Time
}

type memGame struct {
	game    game.Game
	players []game.Player
	tiles   []game.Tile
	moves   []game.Move
}

func (g *memGame) clone() *memGame {
	c := &memGame{game: g.game}
	c.players = append([]game.Player(nil), g.players...)
	c.tiles = append([]game.Tile(nil), g.tiles...)
	c.moves = append([]game.Move(nil), g.moves...)
	return c
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		games: make(map[int64]*memGame),
		locks: make(map[int64]*sync.Mutex),
		users: make(map[int64]auth.User),
		now:   time.Now,
	}
}

// Close is a no-op.
func (m *Memory) Close() {}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// CreateGame implements game.Store.
func (m *Memory) CreateGame(_ context.Context, ownerUserID int64) (game.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[ownerUserID]; !ok {
		return game.Game{}, gameerrors.NotFound("user", ownerUserID)
	}
	g := game.Game{ID: m.id(), CreatedAt: m.now().UTC(), Status: game.StatusWaiting}
	owner := game.Player{ID: m.id(), GameID: g.ID, UserID: ownerUserID, PlayerOrder: 1}
	m.games[g.ID] = &memGame{game: g, players: []game.Player{owner}}
	m.locks[g.ID] = &sync.Mutex{}
	return g, nil
}

// ListGames implements game.Store.
func (m *Memory) ListGames(_ context.Context, limit int) ([]game.LobbyGame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]game.LobbyGame, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, game.LobbyGame{Game: g.game, Players: m.withNames(g.players)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Game, out[j].Game
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// withNames returns players ordered by PlayerOrder with usernames filled.
// Caller holds m.mu.
func (m *Memory) withNames(players []game.Player) []game.Player {
	out := make([]game.Player, len(players))
	for i, p := range players {
		p.Username = m.users[p.UserID].Username
		out[i] = p
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerOrder < out[j].PlayerOrder })
	return out
}

// WithGame implements game.Store.
func (m *Memory) WithGame(ctx context.Context, gameID int64, fn func(tx game.Tx) error) error {
	m.mu.Lock()
	lock, ok := m.locks[gameID]
	m.mu.Unlock()
	if !ok {
		return gameerrors.NotFound("game", gameID)
	}
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return gameerrors.Persistence("lock game", err)
	}
	m.mu.Lock()
	cur, ok := m.games[gameID]
	if !ok {
		m.mu.Unlock()
		return gameerrors.NotFound("game", gameID)
	}
	tx := &memTx{store: m, data: cur.clone()}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.seeded != nil && len(m.cards) == 0 {
		m.cards = tx.seeded
	}
	if tx.deleted {
		delete(m.games, gameID)
		delete(m.locks, gameID)
		return nil
	}
	m.games[gameID] = tx.data
	return nil
}

// memTx is the unit of work handed to WithGame callbacks.
type memTx struct {
	store   *Memory
	data    *memGame
	seeded  []game.Card
	deleted bool
}

func (t *memTx) Game() game.Game { return t.data.game }

func (t *memTx) Players(context.Context) ([]game.Player, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.withNames(t.data.players), nil
}

func (t *memTx) AddPlayer(_ context.Context, userID int64, order int) (game.Player, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	u, ok := t.store.users[userID]
	if !ok {
		return game.Player{}, gameerrors.NotFound("user", userID)
	}
	for _, p := range t.data.players {
		if p.UserID == userID || p.PlayerOrder == order {
			return game.Player{}, fmt.Errorf("%w: game %d", gameerrors.ErrAlreadyJoined, t.data.game.ID)
		}
	}
	p := game.Player{ID: t.store.id(), GameID: t.data.game.ID, UserID: userID, PlayerOrder: order}
	t.data.players = append(t.data.players, p)
	p.Username = u.Username
	return p, nil
}

func (t *memTx) UpdateStatus(_ context.Context, status game.Status, winner *int64, endedAt *time.Time) error {
	if (status == game.StatusCompleted) != (endedAt != nil) {
		return gameerrors.Persistence("update status", fmt.Errorf("ended_at must be set exactly when completed"))
	}
	t.data.game.Status = status
	t.data.game.WinnerGamePlayerID = winner
	t.data.game.EndedAt = endedAt
	return nil
}

func (t *memTx) Tiles(context.Context) ([]game.Tile, error) {
	out := append([]game.Tile(nil), t.data.tiles...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *memTx) InsertTiles(_ context.Context, tiles []game.Tile) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cards := make(map[int64]game.Card)
	for _, c := range t.cardPool() {
		cards[c.ID] = c
	}
	used := make(map[int]bool, len(t.data.tiles))
	for _, existing := range t.data.tiles {
		used[existing.Position] = true
	}
	for _, tile := range tiles {
		c, ok := cards[tile.CardID]
		if !ok {
			return gameerrors.Persistence("insert tiles", fmt.Errorf("card %d does not exist", tile.CardID))
		}
		if used[tile.Position] {
			return gameerrors.Persistence("insert tiles", fmt.Errorf("position %d already used", tile.Position))
		}
		used[tile.Position] = true
		tile.ID = t.store.id()
		tile.GameID = t.data.game.ID
		tile.IsMatched = false
		tile.CardName, tile.ImagePath, tile.PairKey = c.Name, c.ImagePath, c.PairKey
		t.data.tiles = append(t.data.tiles, tile)
	}
	return nil
}

func (t *memTx) MarkMatched(_ context.Context, ids ...int64) error {
	for _, id := range ids {
		found := false
		for i := range t.data.tiles {
			if t.data.tiles[i].ID == id {
				t.data.tiles[i].IsMatched = true
				found = true
			}
		}
		if !found {
			return gameerrors.NotFound("tile", id)
		}
	}
	return nil
}

func (t *memTx) Moves(context.Context) ([]game.Move, error) {
	out := append([]game.Move(nil), t.data.moves...)
	sort.Slice(out, func(i, j int) bool { return out[i].TurnNumber < out[j].TurnNumber })
	return out, nil
}

func (t *memTx) AppendMove(_ context.Context, mv game.Move) (game.Move, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	turn := 0
	for _, existing := range t.data.moves {
		if existing.TurnNumber > turn {
			turn = existing.TurnNumber
		}
	}
	mv.ID = t.store.id()
	mv.GameID = t.data.game.ID
	mv.TurnNumber = turn + 1
	mv.CreatedAt = t.store.now().UTC()
	t.data.moves = append(t.data.moves, mv)
	return mv, nil
}

// cardPool returns staged cards if this Tx seeded, else the shared pool.
// Caller holds store.mu.
func (t *memTx) cardPool() []game.Card {
	if t.seeded != nil {
		return t.seeded
	}
	return t.store.cards
}

func (t *memTx) CardPool(context.Context) ([]game.Card, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return append([]game.Card(nil), t.cardPool()...), nil
}

func (t *memTx) SeedCards(_ context.Context, cards []game.Card) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if len(t.cardPool()) > 0 {
		return false, nil
	}
	staged := make([]game.Card, len(cards))
	for i, c := range cards {
		c.ID = t.store.id()
		staged[i] = c
	}
	t.seeded = staged
	return true, nil
}

func (t *memTx) DeleteGame(context.Context) error {
	t.deleted = true
	return nil
}

// CreateUser implements auth.UserStore.
func (m *Memory) CreateUser(_ context.Context, username string, email *string, passwordHash string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usernameTaken(username) {
		return auth.User{}, auth.ErrUsernameTaken
	}
	u := auth.User{ID: m.id(), Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: m.now().UTC()}
	m.users[u.ID] = u
	return u, nil
}

// UserByUsername implements auth.UserStore.
func (m *Memory) UserByUsername(_ context.Context, username string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return auth.User{}, fmt.Errorf("%w: user %q", gameerrors.ErrNotFound, username)
}

// UserByID implements auth.UserStore.
func (m *Memory) UserByID(_ context.Context, id int64) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, gameerrors.NotFound("user", id)
	}
	return u, nil
}

// LinkExternalUser implements auth.UserStore.
func (m *Memory) LinkExternalUser(_ context.Context, subject, username string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ExternalSubject != nil && *u.ExternalSubject == subject {
			return u, nil
		}
	}
	name := username
	for n := 2; m.usernameTaken(name); n++ {
		name = suffixUsername(username, n)
	}
	sub := subject
	u := auth.User{ID: m.id(), Username: name, ExternalSubject: &sub, CreatedAt: m.now().UTC()}
	m.users[u.ID] = u
	return u, nil
}

// usernameTaken reports a case-insensitive clash. Caller holds m.mu.
func (m *Memory) usernameTaken(username string) bool {
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}

// suffixUsername appends _n while keeping the name within 24 characters.
func suffixUsername(base string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	if len(base)+len(suffix) > 24 {
		base = base[:24-len(suffix)]
	}
	return base + suffix
}
