// internal/models/match.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MatchRecord is the archived result of one finished duel or free-room
// round. It is what ghost matches are replayed from.
type MatchRecord struct {
	ID           uuid.UUID          `json:"id"`
	RoomID       string             `json:"roomId"`
	Kind         string             `json:"kind"`
	Rule         string             `json:"rule"`
	Round        int                `json:"round,omitempty"`
	StartedAt    time.Time          `json:"startedAt"`
	EndedAt      time.Time          `json:"endedAt"`
	WinnerID     string             `json:"winnerId,omitempty"`
	Reason       string             `json:"reason"`
	Participants []MatchParticipant `json:"participants"`
	Guesses      []MatchGuess       `json:"guesses"`
}

// Validate checks the invariants the match tables enforce.
func (r MatchRecord) Validate() error {
	seen := make(map[string]bool, len(r.Participants))
	for _, p := range r.Participants {
		if seen[p.PlayerID] {
			return fmt.Errorf("%w: player %q appears twice in match %s", ErrRecordRejected, p.PlayerID, r.ID)
		}
		seen[p.PlayerID] = true
	}
	return nil
}

// MatchParticipant is one player's line in a MatchRecord.
type MatchParticipant struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
	Code      string `json:"code,omitempty"`
	Attempts  int    `json:"attempts"`
	BestScore int    `json:"bestScore"`
	Rank      int    `json:"rank,omitempty"`
	ItemUsed  string `json:"itemUsed,omitempty"`
}

// MatchGuess is a single scored guess, in submission order.
type MatchGuess struct {
	PlayerID string `json:"playerId"`
	Guess    string `json:"guess"`
	A        int    `json:"a"`
	B        int    `json:"b"`
	At       int64  `json:"at"`
}
