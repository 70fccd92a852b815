package game

import "testing"

func twoPlayers() []Player {
	return []Player{
		{ID: 11, UserID: 1, PlayerOrder: 1},
		{ID: 12, UserID: 2, PlayerOrder: 2},
	}
}

func TestCurrentTurn(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		players []Player
		last    *Move
		want    int64
		wantOK  bool
	}{
		{"no players", StatusWaiting, nil, nil, 0, false},
		{"completed", StatusCompleted, twoPlayers(), nil, 0, false},
		{"first move goes to order 1", StatusInProgress, twoPlayers(), nil, 1, true},
		{"lone player", StatusWaiting, twoPlayers()[:1], &Move{UserID: 1}, 1, true},
		{"match keeps turn", StatusInProgress, twoPlayers(), &Move{UserID: 2, IsMatch: true}, 2, true},
		{"miss passes turn", StatusInProgress, twoPlayers(), &Move{UserID: 1}, 2, true},
		{"miss by second passes back", StatusInProgress, twoPlayers(), &Move{UserID: 2}, 1, true},
		{"order beats slice position", StatusInProgress, []Player{{UserID: 9, PlayerOrder: 2}, {UserID: 8, PlayerOrder: 1}}, nil, 8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CurrentTurn(tt.status, tt.players, tt.last)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("CurrentTurn = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLastMove(t *testing.T) {
	if lastMove(nil) != nil {
		t.Error("expected nil for empty log")
	}
	moves := []Move{{TurnNumber: 2, UserID: 2}, {TurnNumber: 3, UserID: 1}, {TurnNumber: 1, UserID: 1}}
	if got := lastMove(moves); got.TurnNumber != 3 {
		t.Errorf("expected turn 3, got %d", got.TurnNumber)
	}
}

func TestDetermineWinner(t *testing.T) {
	players := twoPlayers()
	moves := []Move{
		{UserID: 1, IsMatch: true},
		{UserID: 1, IsMatch: true},
		{UserID: 1},
		{UserID: 2, IsMatch: true},
	}
	if w := DetermineWinner(players, moves); w == nil || *w != 11 {
		t.Errorf("expected winner 11, got %v", w)
	}

	moves = append(moves, Move{UserID: 2, IsMatch: true})
	if w := DetermineWinner(players, moves); w != nil {
		t.Errorf("expected tie, got %d", *w)
	}

	if w := DetermineWinner(players[:1], nil); w == nil || *w != 11 {
		t.Errorf("expected lone player to win, got %v", w)
	}
	if w := DetermineWinner(nil, nil); w != nil {
		t.Errorf("expected nil without players, got %d", *w)
	}
}

func TestCanTransition(t *testing.T) {
	legal := [][2]Status{
		{StatusWaiting, StatusInProgress},
		{StatusWaiting, StatusCompleted},
		{StatusInProgress, StatusCompleted},
	}
	for _, p := range legal {
		if !CanTransition(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be legal", p[0], p[1])
		}
	}
	illegal := [][2]Status{
		{StatusInProgress, StatusWaiting},
		{StatusCompleted, StatusWaiting},
		{StatusCompleted, StatusInProgress},
		{StatusWaiting, StatusWaiting},
	}
	for _, p := range illegal {
		if CanTransition(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be illegal", p[0], p[1])
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusWaiting, StatusInProgress, StatusCompleted} {
		got, err := ParseStatus(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStatus("Paused"); err == nil {
		t.Error("expected error for unknown status")
	}
}
