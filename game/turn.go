package game

// CurrentTurn returns the user who may flip next. ok is false when nobody
// may: the game is completed or has no players.
//
// A lone player always has the turn. Otherwise the lowest PlayerOrder moves
// first, a match keeps the turn with the same user and a miss passes it on.
// Only the most recent move is consulted.
func CurrentTurn(status Status, players []Player, last *Move) (userID int64, ok bool) {
	if status == StatusCompleted || len(players) == 0 {
		return 0, false
	}
	first := players[0]
	for _, p := range players[1:] {
		if p.PlayerOrder < first.PlayerOrder {
			first = p
		}
	}
	if len(players) == 1 || last == nil {
		return first.UserID, true
	}

	if last.IsMatch {
		for _, p := range players {
			if p.UserID == last.UserID {
				return p.UserID, true
			}
		}
		return first.UserID, true
	}
	for _, p := range players {
		if p.UserID != last.UserID {
			return p.UserID, true
		}
	}
	return first.UserID, true
}

// lastMove returns the move with the highest TurnNumber, or nil.
func lastMove(moves []Move) *Move {
	var last *Move
	for i := range moves {
		if last == nil || moves[i].TurnNumber > last.TurnNumber {
			last = &moves[i]
		}
	}
	return last
}
