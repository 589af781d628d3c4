package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNewMatchFinishedSummarizes(t *testing.T) {
	id := uuid.New()
	ended := time.Unix(1_700_000_000, 0)
	rec := models.MatchRecord{
		ID:       id,
		RoomID:   "abc",
		Kind:     "duel",
		Rule:     "unique",
		WinnerID: "p1",
		Reason:   "solved",
		EndedAt:  ended,
		Participants: []models.MatchParticipant{
			{PlayerID: "p1", Code: "1234"},
			{PlayerID: "p2", Code: "5678"},
		},
		Guesses: []models.MatchGuess{{PlayerID: "p1", Guess: "5678", A: 4}},
	}

	ev := NewMatchFinished(rec)
	assert.Equal(t, id.String(), ev.MatchID)
	assert.Equal(t, []string{"p1", "p2"}, ev.Players)
	assert.Equal(t, 1, ev.Guesses)
	assert.Equal(t, ended, ev.EndedAt)
}
