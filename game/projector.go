package game

import (
	"context"
	"sort"
	"time"
)

// TieName is shown as the winner of a completed game without a winner.
const TieName = "Tie"

// PlayerView is the client-facing representation of a seat.
type PlayerView struct {
	GamePlayerID  int64  `json:"gamePlayerId"`
	UserID        int64  `json:"userId"`
	Username      string `json:"username"`
	PlayerOrder   int    `json:"playerOrder"`
	Score         int    `json:"score"`
	IsCurrentTurn bool   `json:"isCurrentTurn"`
}

// TileView is the client-facing representation of a tile. CardName and
// ImagePath are only included once the tile is matched or is the viewer's
// own pending pick.
type TileView struct {
	TileID    int64   `json:"tileId"`
	Position  int     `json:"position"`
	IsMatched bool    `json:"isMatched"`
	Revealed  bool    `json:"revealed"`
	CardName  string  `json:"cardName,omitempty"`
	ImagePath *string `json:"imagePath,omitempty"`
}

// MoveView is one line of the move history.
type MoveView struct {
	TurnNumber int       `json:"turnNumber"`
	UserID     int64     `json:"userId"`
	Username   string    `json:"username"`
	IsMatch    bool      `json:"isMatch"`
	CreatedAt  time.Time `json:"createdAt"`
}

// GameView is the read model behind the play page and the state endpoint.
type GameView struct {
	GameID            int64        `json:"gameId"`
	Status            Status       `json:"status"`
	CreatedAt         time.Time    `json:"createdAt"`
	EndedAt           *time.Time   `json:"endedAt,omitempty"`
	Players           []PlayerView `json:"players"`
	Tiles             []TileView   `json:"tiles"`
	CurrentTurnUserID *int64       `json:"currentTurnUserId"`
	IsYourTurn        bool         `json:"isYourTurn"`
	IsOwner           bool         `json:"isOwner"`
	LastTurnNumber    int          `json:"lastTurnNumber"`
	WinnerName        string       `json:"winnerName"`
	PendingTileID     *int64       `json:"pendingTileId,omitempty"`
	Moves             []MoveView   `json:"moves"`
}

// Completed reports whether the game is over.
func (v GameView) Completed() bool { return v.Status == StatusCompleted }

// PollView is the minimal change-detection payload for polling clients.
type PollView struct {
	Status            Status `json:"status"`
	CurrentTurnUserID *int64 `json:"currentTurnUserId"`
	LastTurnNumber    int    `json:"lastTurnNumber"`
	WinnerName        string `json:"winnerName"`
}

// Poll reduces a GameView to its PollView.
func (v GameView) Poll() PollView {
	return PollView{
		Status:            v.Status,
		CurrentTurnUserID: v.CurrentTurnUserID,
		LastTurnNumber:    v.LastTurnNumber,
		WinnerName:        v.WinnerName,
	}
}

// Project returns the current state of a game for the actor. The only write
// it may cause is the completion transition.
func (m *Manager) Project(ctx context.Context, gameID int64, actor Actor) (GameView, error) {
	var view GameView
	err := m.store.WithGame(ctx, gameID, func(tx Tx) error {
		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		if !isPlayer(players, actor.UserID) {
			return notAPlayer(gameID, actor.UserID)
		}
		if err := m.reconcile(ctx, tx); err != nil {
			return err
		}
		view, err = m.project(ctx, tx, actor)
		return err
	})
	return view, err
}

// Poll returns the change-detection subset of Project.
func (m *Manager) Poll(ctx context.Context, gameID int64, actor Actor) (PollView, error) {
	view, err := m.Project(ctx, gameID, actor)
	if err != nil {
		return PollView{}, err
	}
	return view.Poll(), nil
}

func (m *Manager) project(ctx context.Context, tx Tx, actor Actor) (GameView, error) {
	g := tx.Game()
	players, err := tx.Players(ctx)
	if err != nil {
		return GameView{}, err
	}
	tiles, err := tx.Tiles(ctx)
	if err != nil {
		return GameView{}, err
	}
	moves, err := tx.Moves(ctx)
	if err != nil {
		return GameView{}, err
	}

	view := GameView{
		GameID:    g.ID,
		Status:    g.Status,
		CreatedAt: g.CreatedAt,
		EndedAt:   g.EndedAt,
		Players:   make([]PlayerView, 0, len(players)),
		Tiles:     make([]TileView, 0, len(tiles)),
		Moves:     []MoveView{},
	}

	last := lastMove(moves)
	if last != nil {
		view.LastTurnNumber = last.TurnNumber
	}
	if turn, ok := CurrentTurn(g.Status, players, last); ok {
		view.CurrentTurnUserID = &turn
		view.IsYourTurn = turn == actor.UserID
	}

	counts := matchCounts(moves)
	names := make(map[int64]string, len(players))
	for _, p := range players {
		names[p.UserID] = p.Username
		view.Players = append(view.Players, PlayerView{
			GamePlayerID:  p.ID,
			UserID:        p.UserID,
			Username:      p.Username,
			PlayerOrder:   p.PlayerOrder,
			Score:         counts[p.UserID],
			IsCurrentTurn: view.CurrentTurnUserID != nil && *view.CurrentTurnUserID == p.UserID,
		})
		if p.PlayerOrder == 1 && p.UserID == actor.UserID {
			view.IsOwner = true
		}
	}
	sort.Slice(view.Players, func(i, j int) bool { return view.Players[i].PlayerOrder < view.Players[j].PlayerOrder })

	if g.Status != StatusCompleted {
		if id, ok := m.selections.Pending(actor.selectionKey(g.ID)); ok {
			view.PendingTileID = &id
		}
	}
	for _, t := range tiles {
		tv := TileView{TileID: t.ID, Position: t.Position, IsMatched: t.IsMatched}
		if t.IsMatched || (view.PendingTileID != nil && *view.PendingTileID == t.ID) {
			tv.Revealed = true
			tv.CardName = t.CardName
			tv.ImagePath = t.ImagePath
		}
		view.Tiles = append(view.Tiles, tv)
	}

	for i := len(moves) - 1; i >= 0 && len(view.Moves) < m.historyLimit; i-- {
		mv := moves[i]
		view.Moves = append(view.Moves, MoveView{
			TurnNumber: mv.TurnNumber,
			UserID:     mv.UserID,
			Username:   names[mv.UserID],
			IsMatch:    mv.IsMatch,
			CreatedAt:  mv.CreatedAt,
		})
	}

	if g.Status == StatusCompleted {
		view.WinnerName = TieName
		if g.WinnerGamePlayerID != nil {
			for _, p := range players {
				if p.ID == *g.WinnerGamePlayerID {
					view.WinnerName = p.Username
				}
			}
		}
	}
	return view, nil
}

// LobbyRow is one game in the lobby as seen by a viewer.
type LobbyRow struct {
	GameID        int64
	Status        Status
	CreatedAt     time.Time
	PlayerCount   int
	PlayerNames   []string
	IsParticipant bool
	IsOwner       bool
}

// CanJoin reports whether the viewer may take the open seat.
func (r LobbyRow) CanJoin() bool {
	return r.Status != StatusCompleted && r.PlayerCount < MaxPlayers && !r.IsParticipant
}

// CanPlay reports whether the viewer may open the board.
func (r LobbyRow) CanPlay() bool { return r.IsParticipant }

// CanDelete reports whether the viewer owns the game.
func (r LobbyRow) CanDelete() bool { return r.IsOwner }

// Lobby lists games newest first with per-viewer flags.
func (m *Manager) Lobby(ctx context.Context, viewerUserID int64, limit int) ([]LobbyRow, error) {
	games, err := m.store.ListGames(ctx, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]LobbyRow, 0, len(games))
	for _, lg := range games {
		row := LobbyRow{
			GameID:      lg.Game.ID,
			Status:      lg.Game.Status,
			CreatedAt:   lg.Game.CreatedAt,
			PlayerCount: len(lg.Players),
		}
		for _, p := range lg.Players {
			row.PlayerNames = append(row.PlayerNames, p.Username)
			if p.UserID == viewerUserID {
				row.IsParticipant = true
				row.IsOwner = p.PlayerOrder == 1
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
