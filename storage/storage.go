package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"memory-duel-server/auth"
	"memory-duel-server/game"
	"memory-duel-server/gameerrors"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS app_user (
	id               BIGSERIAL PRIMARY KEY,
	username         TEXT NOT NULL,
	email            TEXT,
	password_hash    TEXT NOT NULL DEFAULT '',
	external_subject TEXT UNIQUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_app_user_username ON app_user (lower(username));
CREATE TABLE IF NOT EXISTS card (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	image_path TEXT,
	pair_key   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS game (
	id                    BIGSERIAL PRIMARY KEY,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at              TIMESTAMPTZ,
	status                TEXT NOT NULL CHECK (status IN ('Waiting', 'InProgress', 'Completed')),
	winner_game_player_id BIGINT,
	CHECK ((status = 'Completed') = (ended_at IS NOT NULL))
);
CREATE INDEX IF NOT EXISTS idx_game_created_at ON game (created_at DESC);
CREATE TABLE IF NOT EXISTS game_player (
	id           BIGSERIAL PRIMARY KEY,
	game_id      BIGINT NOT NULL REFERENCES game(id),
	user_id      BIGINT NOT NULL REFERENCES app_user(id),
	player_order SMALLINT NOT NULL CHECK (player_order IN (1, 2)),
	CONSTRAINT game_player_game_user_key UNIQUE (game_id, user_id),
	CONSTRAINT game_player_game_order_key UNIQUE (game_id, player_order)
);
CREATE TABLE IF NOT EXISTS tile (
	id         BIGSERIAL PRIMARY KEY,
	game_id    BIGINT NOT NULL REFERENCES game(id),
	card_id    BIGINT NOT NULL REFERENCES card(id),
	position   INT NOT NULL CHECK (position >= 0),
	is_matched BOOLEAN NOT NULL DEFAULT false,
	UNIQUE (game_id, position)
);
CREATE TABLE IF NOT EXISTS move (
	id             BIGSERIAL PRIMARY KEY,
	game_id        BIGINT NOT NULL REFERENCES game(id),
	user_id        BIGINT NOT NULL REFERENCES app_user(id),
	first_tile_id  BIGINT NOT NULL REFERENCES tile(id),
	second_tile_id BIGINT NOT NULL REFERENCES tile(id),
	is_match       BOOLEAN NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	turn_number    INT NOT NULL CHECK (turn_number >= 1),
	UNIQUE (game_id, turn_number),
	CHECK (first_tile_id <> second_tile_id)
);
`

// addWinnerFK links game.winner_game_player_id once game_player exists
// (no-op if already present).
const addWinnerFK = `
DO $$ BEGIN
	ALTER TABLE game ADD CONSTRAINT game_winner_fk
		FOREIGN KEY (winner_game_player_id) REFERENCES game_player(id);
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;
`

// cardSeedLock serializes default card seeding across games.
const cardSeedLock = 0x6d656d6f

// Postgres implements game.Store and auth.UserStore on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to Postgres and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	for _, q := range []string{createTablesSQL, addWinnerFK} {
		if _, err := pool.Exec(ctx, q); err != nil {
			pool.Close()
			return nil, err
		}
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Postgres) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the connection.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateGame implements game.Store.
func (s *Postgres) CreateGame(ctx context.Context, ownerUserID int64) (game.Game, error) {
	var g game.Game
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx,
			`INSERT INTO game (status) VALUES ($1) RETURNING id, created_at, status`,
			game.StatusWaiting.String()).Scan(&g.ID, &g.CreatedAt, &status)
		if err != nil {
			return err
		}
		if g.Status, err = game.ParseStatus(status); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO game_player (game_id, user_id, player_order) VALUES ($1, $2, 1)`,
			g.ID, ownerUserID)
		return err
	})
	if err != nil {
		return game.Game{}, mapErr("create game", err)
	}
	return g, nil
}

// ListGames implements game.Store. A non-positive limit lists every game.
func (s *Postgres) ListGames(ctx context.Context, limit int) ([]game.LobbyGame, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at, ended_at, status, winner_game_player_id
		FROM game
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, lim)
	if err != nil {
		return nil, mapErr("list games", err)
	}
	games, err := collect(rows, scanGame)
	if err != nil {
		return nil, mapErr("list games", err)
	}
	if len(games) == 0 {
		return []game.LobbyGame{}, nil
	}

	ids := make([]int64, len(games))
	for i, g := range games {
		ids[i] = g.ID
	}
	rows, err = s.pool.Query(ctx, selectPlayersSQL+` WHERE gp.game_id = ANY($1) ORDER BY gp.game_id, gp.player_order`, ids)
	if err != nil {
		return nil, mapErr("list players", err)
	}
	players, err := collect(rows, scanPlayer)
	if err != nil {
		return nil, mapErr("list players", err)
	}
	byGame := make(map[int64][]game.Player)
	for _, p := range players {
		byGame[p.GameID] = append(byGame[p.GameID], p)
	}

	out := make([]game.LobbyGame, len(games))
	for i, g := range games {
		out[i] = game.LobbyGame{Game: g, Players: byGame[g.ID]}
	}
	return out, nil
}

// WithGame implements game.Store. The game row is locked with FOR UPDATE for
// the duration of fn.
func (s *Postgres) WithGame(ctx context.Context, gameID int64, fn func(tx game.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr("begin", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, created_at, ended_at, status, winner_game_player_id
		FROM game WHERE id = $1 FOR UPDATE`, gameID)
	g, err := scanGame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return gameerrors.NotFound("game", gameID)
	}
	if err != nil {
		return mapErr("lock game", err)
	}

	if err := fn(&pgTx{tx: tx, game: g}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

// pgTx is the unit of work handed to WithGame callbacks.
type pgTx struct {
	tx   pgx.Tx
	game game.Game
}

const selectPlayersSQL = `
	SELECT gp.id, gp.game_id, gp.user_id, gp.player_order, u.username
	FROM game_player gp
	JOIN app_user u ON u.id = gp.user_id`

func (t *pgTx) Game() game.Game { return t.game }

func (t *pgTx) Players(ctx context.Context) ([]game.Player, error) {
	rows, err := t.tx.Query(ctx, selectPlayersSQL+` WHERE gp.game_id = $1 ORDER BY gp.player_order`, t.game.ID)
	if err != nil {
		return nil, mapErr("list players", err)
	}
	players, err := collect(rows, scanPlayer)
	return players, mapErr("list players", err)
}

func (t *pgTx) AddPlayer(ctx context.Context, userID int64, order int) (game.Player, error) {
	p := game.Player{GameID: t.game.ID, UserID: userID, PlayerOrder: order}
	err := t.tx.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO game_player (game_id, user_id, player_order) VALUES ($1, $2, $3)
			RETURNING id, user_id
		)
		SELECT ins.id, u.username FROM ins JOIN app_user u ON u.id = ins.user_id`,
		t.game.ID, userID, order).Scan(&p.ID, &p.Username)
	if err != nil {
		return game.Player{}, mapErr("add player", err)
	}
	return p, nil
}

func (t *pgTx) UpdateStatus(ctx context.Context, status game.Status, winner *int64, endedAt *time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE game SET status = $2, winner_game_player_id = $3, ended_at = $4 WHERE id = $1`,
		t.game.ID, status.String(), winner, endedAt)
	if err != nil {
		return mapErr("update status", err)
	}
	t.game.Status, t.game.WinnerGamePlayerID, t.game.EndedAt = status, winner, endedAt
	return nil
}

func (t *pgTx) Tiles(ctx context.Context) ([]game.Tile, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT t.id, t.game_id, t.card_id, t.position, t.is_matched, c.name, c.image_path, c.pair_key
		FROM tile t
		JOIN card c ON c.id = t.card_id
		WHERE t.game_id = $1
		ORDER BY t.position`, t.game.ID)
	if err != nil {
		return nil, mapErr("list tiles", err)
	}
	tiles, err := collect(rows, func(row pgx.Row) (game.Tile, error) {
		var tl game.Tile
		err := row.Scan(&tl.ID, &tl.GameID, &tl.CardID, &tl.Position, &tl.IsMatched, &tl.CardName, &tl.ImagePath, &tl.PairKey)
		return tl, err
	})
	return tiles, mapErr("list tiles", err)
}

func (t *pgTx) InsertTiles(ctx context.Context, tiles []game.Tile) error {
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"tile"},
		[]string{"game_id", "card_id", "position", "is_matched"},
		pgx.CopyFromSlice(len(tiles), func(i int) ([]any, error) {
			return []any{t.game.ID, tiles[i].CardID, tiles[i].Position, false}, nil
		}))
	return mapErr("insert tiles", err)
}

func (t *pgTx) MarkMatched(ctx context.Context, ids ...int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE tile SET is_matched = true WHERE game_id = $1 AND id = ANY($2)`, t.game.ID, ids)
	if err != nil {
		return mapErr("mark matched", err)
	}
	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("%w: tiles %v in game %d", gameerrors.ErrNotFound, ids, t.game.ID)
	}
	return nil
}

func (t *pgTx) Moves(ctx context.Context) ([]game.Move, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, game_id, user_id, first_tile_id, second_tile_id, is_match, created_at, turn_number
		FROM move WHERE game_id = $1
		ORDER BY turn_number`, t.game.ID)
	if err != nil {
		return nil, mapErr("list moves", err)
	}
	moves, err := collect(rows, scanMove)
	return moves, mapErr("list moves", err)
}

func (t *pgTx) AppendMove(ctx context.Context, m game.Move) (game.Move, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO move (game_id, user_id, first_tile_id, second_tile_id, is_match, turn_number)
		SELECT $1, $2, $3, $4, $5, COALESCE(MAX(turn_number), 0) + 1
		FROM move WHERE game_id = $1
		RETURNING id, game_id, user_id, first_tile_id, second_tile_id, is_match, created_at, turn_number`,
		t.game.ID, m.UserID, m.FirstTileID, m.SecondTileID, m.IsMatch)
	out, err := scanMove(row)
	if err != nil {
		return game.Move{}, mapErr("append move", err)
	}
	return out, nil
}

func (t *pgTx) CardPool(ctx context.Context) ([]game.Card, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, name, image_path, pair_key FROM card ORDER BY id`)
	if err != nil {
		return nil, mapErr("list cards", err)
	}
	cards, err := collect(rows, func(row pgx.Row) (game.Card, error) {
		var c game.Card
		err := row.Scan(&c.ID, &c.Name, &c.ImagePath, &c.PairKey)
		return c, err
	})
	return cards, mapErr("list cards", err)
}

func (t *pgTx) SeedCards(ctx context.Context, cards []game.Card) (bool, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, cardSeedLock); err != nil {
		return false, mapErr("seed cards", err)
	}
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM card`).Scan(&n); err != nil {
		return false, mapErr("seed cards", err)
	}
	if n > 0 {
		return false, nil
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"card"},
		[]string{"name", "image_path", "pair_key"},
		pgx.CopyFromSlice(len(cards), func(i int) ([]any, error) {
			return []any{cards[i].Name, cards[i].ImagePath, cards[i].PairKey}, nil
		}))
	if err != nil {
		return false, mapErr("seed cards", err)
	}
	return true, nil
}

func (t *pgTx) DeleteGame(ctx context.Context) error {
	for _, q := range []string{
		`UPDATE game SET winner_game_player_id = NULL WHERE id = $1`,
		`DELETE FROM move WHERE game_id = $1`,
		`DELETE FROM tile WHERE game_id = $1`,
		`DELETE FROM game_player WHERE game_id = $1`,
		`DELETE FROM game WHERE id = $1`,
	} {
		if _, err := t.tx.Exec(ctx, q, t.game.ID); err != nil {
			return mapErr("delete game", err)
		}
	}
	return nil
}

// CreateUser implements auth.UserStore.
func (s *Postgres) CreateUser(ctx context.Context, username string, email *string, passwordHash string) (auth.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO app_user (username, email, password_hash) VALUES ($1, $2, $3)
		RETURNING `+userColumns, username, email, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		return auth.User{}, mapUserErr("create user", err)
	}
	return u, nil
}

// UserByUsername implements auth.UserStore.
func (s *Postgres) UserByUsername(ctx context.Context, username string) (auth.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE lower(username) = lower($1)`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, fmt.Errorf("%w: user %q", gameerrors.ErrNotFound, username)
	}
	return u, mapErr("find user", err)
}

// UserByID implements auth.UserStore.
func (s *Postgres) UserByID(ctx context.Context, id int64) (auth.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, gameerrors.NotFound("user", id)
	}
	return u, mapErr("find user", err)
}

// LinkExternalUser implements auth.UserStore. On a username clash a numeric
// suffix is appended.
func (s *Postgres) LinkExternalUser(ctx context.Context, subject, username string) (auth.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE external_subject = $1`, subject))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, mapErr("find external user", err)
	}

	name := username
	for n := 2; n < 100; n++ {
		row := s.pool.QueryRow(ctx, `
			INSERT INTO app_user (username, external_subject) VALUES ($1, $2)
			ON CONFLICT (external_subject) DO UPDATE SET external_subject = EXCLUDED.external_subject
			RETURNING `+userColumns, name, subject)
		u, err = scanUser(row)
		if err == nil {
			slog.Info("linked external identity", "tag", "storage", "user_id", u.ID)
			return u, nil
		}
		if !isUniqueViolation(err) {
			return auth.User{}, mapErr("link external user", err)
		}
		name = suffixUsername(username, n)
	}
	return auth.User{}, auth.ErrUsernameTaken
}

const userColumns = `id, username, email, password_hash, external_subject, created_at`

func scanUser(row pgx.Row) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ExternalSubject, &u.CreatedAt)
	return u, err
}

func scanGame(row pgx.Row) (game.Game, error) {
	var g game.Game
	var status string
	if err := row.Scan(&g.ID, &g.CreatedAt, &g.EndedAt, &status, &g.WinnerGamePlayerID); err != nil {
		return game.Game{}, err
	}
	st, err := game.ParseStatus(status)
	if err != nil {
		return game.Game{}, err
	}
	g.Status = st
	return g, nil
}

func scanPlayer(row pgx.Row) (game.Player, error) {
	var p game.Player
	err := row.Scan(&p.ID, &p.GameID, &p.UserID, &p.PlayerOrder, &p.Username)
	return p, err
}

func scanMove(row pgx.Row) (game.Move, error) {
	var m game.Move
	err := row.Scan(&m.ID, &m.GameID, &m.UserID, &m.FirstTileID, &m.SecondTileID, &m.IsMatch, &m.CreatedAt, &m.TurnNumber)
	return m, err
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) { return scan(row) })
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// mapErr translates driver errors into the game error taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && strings.HasPrefix(pgErr.ConstraintName, "game_player_"):
			return fmt.Errorf("%w: %s", gameerrors.ErrAlreadyJoined, pgErr.ConstraintName)
		case pgErr.Code == "23503":
			return fmt.Errorf("%w: %s violates %s", gameerrors.ErrNotFound, op, pgErr.ConstraintName)
		}
	}
	return gameerrors.Persistence(op, err)
}

func mapUserErr(op string, err error) error {
	if isUniqueViolation(err) {
		return auth.ErrUsernameTaken
	}
	return mapErr(op, err)
}
