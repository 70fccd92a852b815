package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"memory-duel-server/game"
	"memory-duel-server/gameerrors"
)

func (s *Server) handleLobby(w http.ResponseWriter, r *http.Request) {
	p, _ := currentUser(r)
	rows, err := s.deps.Games.Lobby(r.Context(), p.UserID, s.opts.LobbyLimit)
	if err != nil {
		logFailure(r, err)
		s.views.render(w, statusFor(err), "lobby", page{Title: "Lobby", User: &p, Error: message(err)})
		return
	}
	s.views.render(w, http.StatusOK, "lobby", page{Title: "Lobby", User: &p, Flash: takeFlash(w, r), Data: rows})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := currentUser(r)
	g, err := s.deps.Games.Create(r.Context(), p.actor())
	if err != nil {
		if wantsJSON(r) {
			writeError(w, r, err)
			return
		}
		redirectError(w, r, "/game/lobby", err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, map[string]any{"gameId": g.ID, "status": g.Status})
		return
	}
	http.Redirect(w, r, playPath(g.ID), http.StatusSeeOther)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	p, _ := currentUser(r)
	id, err := gameIDParam(r)
	if err == nil {
		err = s.deps.Games.Join(r.Context(), id, p.actor())
	}
	if wantsJSON(r) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"gameId": id, "joined": true})
		return
	}
	if err != nil {
		redirectError(w, r, "/game/lobby", err)
		return
	}
	http.Redirect(w, r, playPath(id), http.StatusSeeOther)
}

type playData struct {
	View   game.GameView
	Cols   int
	PollMS int64
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	p, _ := currentUser(r)
	id, err := gameIDParam(r)
	if err != nil {
		redirectError(w, r, "/game/lobby", err)
		return
	}
	view, err := s.deps.Games.Open(r.Context(), id, p.actor())
	if err != nil {
		redirectError(w, r, "/game/lobby", err)
		return
	}
	s.views.render(w, http.StatusOK, "play", page{
		Title: fmt.Sprintf("Game #%d", id),
		User:  &p,
		Flash: takeFlash(w, r),
		Data:  playData{View: view, Cols: s.opts.BoardCols, PollMS: s.opts.PollInterval.Milliseconds()},
	})
}

type flipRequest struct {
	TileID int64 `json:"tileId"`
}

func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request) {
	p, _ := currentUser(r)
	asJSON := wantsJSON(r)
	id, err := gameIDParam(r)
	if err != nil {
		if asJSON {
			writeError(w, r, err)
		} else {
			redirectError(w, r, "/game/lobby", err)
		}
		return
	}

	tileID, err := readTileID(w, r)
	var res game.FlipResult
	if err == nil {
		res, err = s.deps.Games.Flip(r.Context(), id, p.actor(), tileID)
	}
	if asJSON {
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	if err != nil {
		redirectError(w, r, playPath(id), err)
		return
	}
	if res.State == game.FlipResolved {
		redirectWithFlash(w, r, playPath(id), flipSummary(res))
		return
	}
	http.Redirect(w, r, playPath(id), http.StatusSeeOther)
}

// readTileID accepts a JSON body {"tileId": n} or a form field tile_id.
func readTileID(w http.ResponseWriter, r *http.Request) (int64, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req flipRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			return 0, gameerrors.Validation("request body must be JSON with a tileId")
		}
		if req.TileID <= 0 {
			return 0, gameerrors.Validation("tileId must be a positive number")
		}
		return req.TileID, nil
	}
	id, err := strconv.ParseInt(r.PostFormValue("tile_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, gameerrors.Validation("tile_id must be a positive number")
	}
	return id, nil
}

func flipSummary(res game.FlipResult) string {
	switch {
	case res.Completed:
		return fmt.Sprintf("%s and %s: a pair! The game is over.", res.FirstCardName, res.SecondCardName)
	case res.IsMatch:
		return fmt.Sprintf("%s and %s: a pair! Go again.", res.FirstCardName, res.SecondCardName)
	default:
		return fmt.Sprintf("%s and %s: no match.", res.FirstCardName, res.SecondCardName)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	p, _ := currentUser(r)
	id, err := gameIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.deps.Games.Project(r.Context(), id, p.actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	p, _ := currentUser(r)
	id, err := gameIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	poll, err := s.deps.Games.Poll(r.Context(), id, p.actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, poll)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, _ := currentUser(r)
	id, err := gameIDParam(r)
	if err == nil {
		err = s.deps.Games.Delete(r.Context(), id, p.actor())
	}
	if wantsJSON(r) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		redirectError(w, r, "/game/lobby", err)
		return
	}
	redirectWithFlash(w, r, "/game/lobby", fmt.Sprintf("Game #%d deleted.", id))
}
