// internal/session/trivia.go
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/room"
)

// ErrCoolingDown is returned while a role must wait after a wrong name.
var ErrCoolingDown = errors.New("wrong guess cooldown")

func (h *Handler) pickQuestionUnsafe(seat *DuelSeat, questionID string, now time.Time) error {
	r := seat.Room
	if r.State != room.StatePlaying {
		return room.ErrNotPlaying
	}
	if r.Rule != game.RuleTrivia || r.Trivia == nil {
		return ErrWrongVariant
	}
	if !r.Turn.Holds(seat.Role) {
		return ErrNotYourTurn
	}
	qa, err := r.Trivia.Pick(seat.Role, questionID, now, r.Rng)
	if err != nil {
		return err
	}
	r.Turn.Advance(now)

	msg := turnFields(map[string]interface{}{
		"type":     "gp_question_answered",
		"role":     seat.Role,
		"question": qa,
	}, "nextTurn", r.Turn.Snapshot())
	msg["trivia"] = room.TriviaPayloadUnsafe(r.Trivia)
	r.BroadcastAllUnsafe(msg)
	return nil
}

// guessNameUnsafe may be sent at any point of the game, turn or not. A wrong
// name starts the role's cooldown.
func (h *Handler) guessNameUnsafe(seat *DuelSeat, name string, now time.Time) (*duelOutcome, error) {
	r := seat.Room
	if r.State != room.StatePlaying {
		return nil, room.ErrNotPlaying
	}
	if r.Rule != game.RuleTrivia || r.Trivia == nil {
		return nil, ErrWrongVariant
	}
	name = strings.TrimSpace(name)
	if game.NormalizeName(name) == "" {
		return nil, ErrNameRequired
	}
	if left := r.Trivia.CoolingDown(seat.Role, now, h.settings.TriviaCooldown); left > 0 {
		return nil, fmt.Errorf("%w: wait %.0fs before guessing again", ErrCoolingDown, left.Seconds()+0.5)
	}

	if r.Trivia.Set.Matches(name) {
		return h.finishDuelUnsafe(r, seat.Role, "solved", now), nil
	}

	w := r.Trivia.RecordWrong(seat.Role, name, now)
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":          "gp_wrong_guess",
		"role":          w.Role,
		"name":          w.Name,
		"at":            w.At,
		"cooldownUntil": now.Add(h.settings.TriviaCooldown).UnixMilli(),
	})
	return nil, nil
}
