// internal/session/duel.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/sirupsen/logrus"
)

// DuelJoin is what a client supplies when opening a duel socket. Identity
// is the device-persisted token used to reclaim a seat; PlayerID is the
// authenticated player, if any.
type DuelJoin struct {
	RoomID   string
	Role     string
	Identity string
	PlayerID string
	Name     string
}

// DuelSeat binds one socket to one role of a duel room.
type DuelSeat struct {
	Room     *room.DuelRoom
	Role     game.Role
	Identity string
	Conn     *room.Conn
}

// currentUnsafe reports whether the seat still owns its role. A seat whose
// socket was replaced by a reconnection is stale.
func (s *DuelSeat) currentUnsafe() bool {
	p := s.Room.Slots[s.Role]
	return p != nil && p.Conn == s.Conn
}

type duelOutcome struct {
	room     *room.DuelRoom
	record   models.MatchRecord
	winnerID string
	loserID  string
}

// JoinDuel seats conn in the requested role, or swaps it in for the
// previous socket when the identity matches the seat's owner.
func (h *Handler) JoinDuel(req DuelJoin, conn *room.Conn) (*DuelSeat, error) {
	r, ok := h.registry.Duel(req.RoomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	role, err := game.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	now := h.now()
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.State == room.StateFinished {
		return nil, ErrRoomNotFound
	}

	log := h.logger.WithFields(logrus.Fields{"roomId": r.ID, "role": role})

	if existing := r.Slots[role]; existing != nil {
		if req.Identity == "" || existing.Identity != req.Identity {
			return nil, ErrRoleTaken
		}
		old := existing.Conn
		existing.Conn = conn
		existing.LastActive = now
		if req.Name != "" {
			existing.Name = req.Name
		}
		r.TouchUnsafe(now)
		old.Close()

		seat := &DuelSeat{Room: r, Role: role, Identity: existing.Identity, Conn: conn}
		payload := r.StatePayloadUnsafe(role)
		payload["type"] = "room_joined"
		payload["identity"] = existing.Identity
		payload["reconnected"] = true
		conn.Write(payload)
		r.SendUnsafe(role.Opponent(), map[string]interface{}{
			"type": "peer_reconnected",
			"role": role,
		})
		if r.BothConnectedUnsafe() {
			r.BroadcastAllUnsafe(map[string]interface{}{"type": "both_connected"})
		}
		log.Info("duel participant reconnected")
		return seat, nil
	}

	identity := req.Identity
	if identity == "" {
		identity = uuid.NewString()
	}
	playerID := req.PlayerID
	if playerID == "" {
		playerID = identity
	}
	if other := r.Slots[role.Opponent()]; other != nil && other.PlayerID == playerID {
		return nil, ErrAlreadySeated
	}
	name := req.Name
	if name == "" {
		name = string(role)
	}

	r.Slots[role] = &room.DuelParticipant{
		Role:       role,
		PlayerID:   playerID,
		Identity:   identity,
		Name:       name,
		Conn:       conn,
		LastActive: now,
	}
	r.TouchUnsafe(now)

	seat := &DuelSeat{Room: r, Role: role, Identity: identity, Conn: conn}
	payload := r.StatePayloadUnsafe(role)
	payload["type"] = "room_joined"
	payload["identity"] = identity
	conn.Write(payload)
	r.SendUnsafe(role.Opponent(), map[string]interface{}{
		"type": "peer_joined",
		"role": role,
		"name": name,
	})

	if r.BothConnectedUnsafe() {
		r.BroadcastAllUnsafe(map[string]interface{}{"type": "both_connected"})
		if r.Rule == game.RuleTrivia && r.State == room.StateWaiting {
			info := r.StartUnsafe(now)
			msg := turnFields(map[string]interface{}{"type": "game_start"}, "turn", info)
			msg["trivia"] = room.TriviaPayloadUnsafe(r.Trivia)
			r.BroadcastAllUnsafe(msg)
		}
	}
	log.WithField("player", playerID).Info("duel participant joined")
	return seat, nil
}

// HandleDuelMessage applies one inbound message from seat.
func (h *Handler) HandleDuelMessage(ctx context.Context, seat *DuelSeat, packet map[string]interface{}) {
	msgType := messageType(packet)
	if msgType == "use_item" {
		h.useDuelItem(ctx, seat, stringField(packet, "itemId"))
		return
	}

	r := seat.Room
	r.Mu.Lock()
	if !seat.currentUnsafe() {
		r.Mu.Unlock()
		h.logger.WithFields(logrus.Fields{"roomId": r.ID, "role": seat.Role}).Debug("ignoring message from replaced socket")
		return
	}
	now := h.now()
	r.TouchUnsafe(now)
	r.Slots[seat.Role].LastActive = now

	var out *duelOutcome
	var err error
	switch msgType {
	case "set_code":
		err = h.setCodeUnsafe(seat, stringField(packet, "code"), now)
	case "guess":
		out, err = h.guessUnsafe(seat, stringField(packet, "guess"), now)
	case "turn_timeout":
		err = h.turnTimeoutUnsafe(seat, false, now)
	case "gp_pick_question":
		err = h.pickQuestionUnsafe(seat, stringField(packet, "questionId"), now)
	case "gp_guess_name":
		out, err = h.guessNameUnsafe(seat, stringField(packet, "name"), now)
	case "gp_turn_timeout":
		err = h.turnTimeoutUnsafe(seat, true, now)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownMessage, msgType)
	}
	if err != nil {
		seat.Conn.WriteError(Describe(err))
	}
	r.Mu.Unlock()

	if out != nil {
		h.afterDuel(out)
	}
}

func (h *Handler) setCodeUnsafe(seat *DuelSeat, code string, now time.Time) error {
	r := seat.Room
	if !r.Rule.UsesDigits() {
		return ErrWrongVariant
	}
	if err := r.SetCodeUnsafe(seat.Role, code); err != nil {
		return err
	}
	seat.Conn.Write(map[string]interface{}{
		"type": "code_set",
		"role": seat.Role,
		"code": code,
	})
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":      "code_state",
		"codeState": r.CodeStateUnsafe(),
	})

	if r.BothCodesSetUnsafe() {
		info := r.StartUnsafe(now)
		r.BroadcastAllUnsafe(turnFields(map[string]interface{}{"type": "game_start"}, "turn", info))
		h.logger.WithField("roomId", r.ID).Info("duel started")
	}
	return nil
}

func (h *Handler) guessUnsafe(seat *DuelSeat, guess string, now time.Time) (*duelOutcome, error) {
	r := seat.Room
	if r.State != room.StatePlaying {
		return nil, room.ErrNotPlaying
	}
	if !r.Rule.UsesDigits() {
		return nil, ErrWrongVariant
	}
	if !r.Turn.Holds(seat.Role) {
		return nil, ErrNotYourTurn
	}
	if err := game.ValidateCode(guess, r.Rule); err != nil {
		return nil, err
	}

	res := game.Score(r.Rule, r.Codes[seat.Role.Opponent()], guess)
	entry := r.AppendGuessUnsafe(seat.Role, guess, res, now)
	msg := map[string]interface{}{
		"type":   "guess_result",
		"role":   seat.Role,
		"guess":  guess,
		"result": res,
		"at":     entry.At,
	}
	if res.Solved() {
		r.BroadcastAllUnsafe(msg)
		return h.finishDuelUnsafe(r, seat.Role, "solved", now), nil
	}

	r.Turn.Advance(now)
	r.BroadcastAllUnsafe(turnFields(msg, "nextTurn", r.Turn.Snapshot()))
	return nil, nil
}

// turnTimeoutUnsafe accepts the turn holder's own report that its clock ran
// out. Elapsed time is not checked.
func (h *Handler) turnTimeoutUnsafe(seat *DuelSeat, trivia bool, now time.Time) error {
	r := seat.Room
	if r.State != room.StatePlaying {
		return room.ErrNotPlaying
	}
	if trivia != (r.Rule == game.RuleTrivia) {
		return ErrWrongVariant
	}
	if !r.Turn.Holds(seat.Role) {
		return ErrNotYourTurn
	}
	r.Turn.Advance(now)

	msgType := "turn_switch"
	if trivia {
		msgType = "gp_turn_switch"
	}
	r.BroadcastAllUnsafe(turnFields(map[string]interface{}{
		"type":   msgType,
		"reason": "timeout",
	}, "nextTurn", r.Turn.Snapshot()))
	return nil
}

// finishDuelUnsafe ends the game in winner's favour and broadcasts the
// result. The caller must pass the outcome to afterDuel once unlocked.
func (h *Handler) finishDuelUnsafe(r *room.DuelRoom, winner game.Role, reason string, now time.Time) *duelOutcome {
	r.State = room.StateFinished
	r.Winner = winner

	msg := map[string]interface{}{
		"type":   "game_over",
		"winner": winner,
		"reason": reason,
	}
	if r.Rule.UsesDigits() {
		codes := map[string]string{}
		for role, code := range r.Codes {
			codes[string(role)] = code
		}
		msg["codes"] = codes
	} else if r.Trivia != nil {
		msg["subject"] = r.Trivia.Set.Subject
	}
	r.BroadcastAllUnsafe(msg)

	out := &duelOutcome{room: r, record: duelRecordUnsafe(r, reason, now)}
	if w := r.Slots[winner]; w != nil {
		out.winnerID = w.PlayerID
	}
	if l := r.Slots[winner.Opponent()]; l != nil {
		out.loserID = l.PlayerID
	}
	h.logger.WithFields(logrus.Fields{
		"roomId": r.ID,
		"winner": winner,
		"reason": reason,
	}).Info("duel finished")
	return out
}

func duelRecordUnsafe(r *room.DuelRoom, reason string, now time.Time) models.MatchRecord {
	rec := models.MatchRecord{
		ID:        uuid.New(),
		RoomID:    r.ID,
		Kind:      string(room.KindDuel),
		Rule:      string(r.Rule),
		StartedAt: r.StartedAt,
		EndedAt:   now,
		Reason:    reason,
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = r.CreatedAt
	}
	if w := r.Slots[r.Winner]; w != nil {
		rec.WinnerID = w.PlayerID
	}

	for _, role := range game.Roles {
		p := r.Slots[role]
		if p == nil {
			continue
		}
		mp := models.MatchParticipant{
			PlayerID: p.PlayerID,
			Name:     p.Name,
			Role:     string(role),
			Code:     r.Codes[role],
			ItemUsed: string(r.ItemUsed[role]),
			Rank:     2,
		}
		if role == r.Winner {
			mp.Rank = 1
		}
		for _, e := range r.History {
			if e.Role != role {
				continue
			}
			mp.Attempts++
			mp.BestScore = max(mp.BestScore, e.Result.A)
		}
		rec.Participants = append(rec.Participants, mp)
	}

	for _, e := range r.History {
		var playerID string
		if p := r.Slots[e.Role]; p != nil {
			playerID = p.PlayerID
		}
		rec.Guesses = append(rec.Guesses, models.MatchGuess{
			PlayerID: playerID,
			Guess:    e.Guess,
			A:        e.Result.A,
			B:        e.Result.B,
			At:       e.At,
		})
	}
	return rec
}

func (h *Handler) afterDuel(out *duelOutcome) {
	h.registry.Remove(out.room)
	h.persist(out.record, h.rateDuel(out.winnerID, out.loserID))
}

// LeaveDuel is called once seat's socket is gone. Leaving a running game
// forfeits it; while waiting, the seat is kept for a reconnection.
func (h *Handler) LeaveDuel(seat *DuelSeat) {
	r := seat.Room
	r.Mu.Lock()
	if !seat.currentUnsafe() {
		r.Mu.Unlock()
		seat.Conn.Close()
		return
	}
	now := h.now()
	r.TouchUnsafe(now)

	var out *duelOutcome
	switch r.State {
	case room.StatePlaying:
		r.SendUnsafe(seat.Role.Opponent(), map[string]interface{}{
			"type": "peer_left",
			"role": seat.Role,
		})
		out = h.finishDuelUnsafe(r, seat.Role.Opponent(), "opponent_left", now)
	case room.StateWaiting:
		r.SendUnsafe(seat.Role.Opponent(), map[string]interface{}{
			"type": "peer_left",
			"role": seat.Role,
		})
	case room.StateFinished:
	}
	r.Mu.Unlock()

	seat.Conn.Close()
	h.logger.WithFields(logrus.Fields{"roomId": r.ID, "role": seat.Role}).Info("duel participant left")
	if out != nil {
		h.afterDuel(out)
	}
}
