// internal/game/ranking_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetermineWinner(t *testing.T) {
	tests := []struct {
		name       string
		players    []*Contestant
		wantWinner string
		wantTie    bool
	}{
		{
			name: "exact tie",
			players: []*Contestant{
				{ID: "a", BestScore: 4, Attempts: 3},
				{ID: "b", BestScore: 4, Attempts: 3},
			},
			wantTie: true,
		},
		{
			name: "fewer attempts wins at equal score",
			players: []*Contestant{
				{ID: "a", BestScore: 3, Attempts: 2},
				{ID: "b", BestScore: 3, Attempts: 5},
			},
			wantWinner: "a",
		},
		{
			name: "score beats attempts",
			players: []*Contestant{
				{ID: "a", BestScore: 2, Attempts: 1},
				{ID: "b", BestScore: 3, Attempts: 9},
			},
			wantWinner: "b",
		},
		{
			name: "tie below the top does not matter",
			players: []*Contestant{
				{ID: "a", BestScore: 1, Attempts: 4},
				{ID: "b", BestScore: 1, Attempts: 4},
				{ID: "c", BestScore: 2, Attempts: 8},
			},
			wantWinner: "c",
		},
		{
			name:       "single player",
			players:    []*Contestant{{ID: "solo"}},
			wantWinner: "solo",
		},
		{
			name: "empty room",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			winner, tie := DetermineWinner(tc.players)
			assert.Equal(t, tc.wantWinner, winner)
			assert.Equal(t, tc.wantTie, tie)
		})
	}
}

func TestRankSharesRanksOnEqualStanding(t *testing.T) {
	players := []*Contestant{
		{ID: "a", BestScore: 1, Attempts: 2},
		{ID: "b", BestScore: 3, Attempts: 4},
		{ID: "c", BestScore: 3, Attempts: 4},
		{ID: "d", BestScore: 3, Attempts: 1},
	}
	ranking := Rank(players)

	ids := make([]string, len(ranking))
	ranks := make([]int, len(ranking))
	for i, e := range ranking {
		ids[i] = e.ID
		ranks[i] = e.Rank
	}
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids)
	assert.Equal(t, []int{1, 2, 2, 4}, ranks)

	// input order untouched
	assert.Equal(t, "a", players[0].ID)
}

func TestRecordAttemptAndElimination(t *testing.T) {
	c := &Contestant{ID: "a"}
	RecordAttempt(c, Result{A: 2, B: 1})
	RecordAttempt(c, Result{A: 1, B: 3})
	assert.Equal(t, 2, c.Attempts)
	assert.Equal(t, 2, c.BestScore)

	other := &Contestant{ID: "b"}
	assert.False(t, AllEliminated(nil))
	assert.False(t, AllEliminated([]*Contestant{c, other}))

	c.Eliminated = true
	other.Eliminated = true
	assert.True(t, AllEliminated([]*Contestant{c, other}))

	c.Reset()
	assert.Equal(t, Contestant{ID: "a"}, *c)
}
