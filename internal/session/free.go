// internal/session/free.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/sirupsen/logrus"
)

// FreeJoin is what a client supplies when opening a free-room socket.
type FreeJoin struct {
	RoomID   string
	PlayerID string
	Name     string
	Password string
}

// FreeSeat binds one socket to one free-room participant.
type FreeSeat struct {
	Room     *room.FreeRoom
	PlayerID string
	Conn     *room.Conn
}

func (s *FreeSeat) participantUnsafe() *room.FreeParticipant {
	p := s.Room.ParticipantUnsafe(s.PlayerID)
	if p == nil || p.Conn != s.Conn {
		return nil
	}
	return p
}

type freeOutcome struct {
	record  models.MatchRecord
	ranking []game.RankEntry
	names   map[string]string
}

func (h *Handler) JoinFree(req FreeJoin, conn *room.Conn) (*FreeSeat, error) {
	r, ok := h.registry.Free(req.RoomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if req.PlayerID == "" {
		return nil, ErrPlayerRequired
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	r.Mu.Lock()
	state, hash := r.State, r.PasswordHash
	r.Mu.Unlock()
	if state != room.StateWaiting {
		return nil, room.ErrNotWaiting
	}
	// argon2 runs outside the room lock
	if err := auth.VerifyRoomPassword(req.Password, hash); err != nil {
		if errors.Is(err, auth.ErrWrongPassword) {
			return nil, err
		}
		return nil, fmt.Errorf("verify room password: %w", err)
	}

	now := h.now()
	r.Mu.Lock()
	defer r.Mu.Unlock()

	// the last participant may have closed the room meanwhile
	if cur, ok := h.registry.Free(r.ID); !ok || cur != r {
		return nil, ErrRoomNotFound
	}
	p, err := r.AddParticipantUnsafe(req.PlayerID, name, conn, now)
	if err != nil {
		return nil, err
	}

	conn.Write(map[string]interface{}{
		"type":       "joined",
		"roomId":     r.ID,
		"name":       r.Name,
		"playerId":   p.ID,
		"isHost":     p.ID == r.HostID,
		"hostId":     r.HostID,
		"guessLimit": r.GuessLimit,
		"capacity":   r.Capacity,
		"minPlayers": r.MinPlayers,
		"state":      r.State,
		"players":    r.PlayersPayloadUnsafe(),
	})
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":    "player_list",
		"joined":  map[string]string{"id": p.ID, "name": p.Name},
		"hostId":  r.HostID,
		"players": r.PlayersPayloadUnsafe(),
	})

	h.logger.WithFields(logrus.Fields{"roomId": r.ID, "player": p.ID}).Info("free room participant joined")
	return &FreeSeat{Room: r, PlayerID: p.ID, Conn: conn}, nil
}

// HandleFreeMessage applies one inbound message from seat.
func (h *Handler) HandleFreeMessage(ctx context.Context, seat *FreeSeat, packet map[string]interface{}) {
	msgType := messageType(packet)
	if msgType == "use_item" {
		h.useFreeItem(ctx, seat, stringField(packet, "itemId"))
		return
	}

	r := seat.Room
	r.Mu.Lock()
	p := seat.participantUnsafe()
	if p == nil {
		r.Mu.Unlock()
		return
	}
	now := h.now()
	r.LastActive = now
	p.LastActive = now

	var out *freeOutcome
	var err error
	switch msgType {
	case "start":
		err = h.startRoundUnsafe(r, p, room.StateWaiting, now)
	case "restart":
		err = h.startRoundUnsafe(r, p, room.StateFinished, now)
	case "submit_guess":
		out, err = h.submitGuessUnsafe(r, p, stringField(packet, "guess"), now)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownMessage, msgType)
	}
	if err != nil {
		seat.Conn.WriteError(Describe(err))
	}
	r.Mu.Unlock()

	if out != nil {
		h.afterFree(out)
	}
}

// startRoundUnsafe handles both start (from waiting) and restart (from
// finished). Only the host may do either.
func (h *Handler) startRoundUnsafe(r *room.FreeRoom, p *room.FreeParticipant, from room.State, now time.Time) error {
	if r.HostID != p.ID {
		return room.ErrNotHost
	}
	if r.State != from {
		if from == room.StateFinished {
			return room.ErrNotFinished
		}
		return room.ErrNotWaiting
	}
	if len(r.Participants) < r.MinPlayers {
		return fmt.Errorf("%w: need %d", room.ErrNotEnough, r.MinPlayers)
	}

	r.StartRoundUnsafe(now)
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":       "game_start",
		"round":      r.Round,
		"guessLimit": r.GuessLimit,
		"players":    r.PlayersPayloadUnsafe(),
	})
	h.logger.WithFields(logrus.Fields{"roomId": r.ID, "round": r.Round}).Info("free round started")
	return nil
}

func (h *Handler) submitGuessUnsafe(r *room.FreeRoom, p *room.FreeParticipant, guess string, now time.Time) (*freeOutcome, error) {
	if r.State != room.StatePlaying {
		return nil, room.ErrNotPlaying
	}
	if p.Eliminated {
		return nil, room.ErrEliminated
	}
	if r.Remaining(p) == 0 {
		p.Eliminated = true
		return nil, room.ErrEliminated
	}
	if err := game.ValidateCode(guess, game.RuleRepeat); err != nil {
		return nil, err
	}

	res := game.ScoreWithRepeats(r.Secret, guess)
	game.RecordAttempt(&p.Contestant, res)
	p.History = append(p.History, room.FreeGuess{Guess: guess, Result: res, At: now.UnixMilli()})
	if !res.Solved() && r.Remaining(p) == 0 {
		p.Eliminated = true
	}

	p.Conn.Write(map[string]interface{}{
		"type":        "guess_result",
		"guess":       guess,
		"a":           res.A,
		"b":           res.B,
		"submitCount": p.Attempts,
		"bestScore":   p.BestScore,
		"remaining":   r.Remaining(p),
		"eliminated":  p.Eliminated,
	})
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":    "progress",
		"players": r.PlayersPayloadUnsafe(),
		"ranking": game.Rank(r.ContestantsUnsafe()),
	})

	switch {
	case res.Solved():
		return h.finishFreeUnsafe(r, p.ID, "solved", now), nil
	case game.AllEliminated(r.ContestantsUnsafe()):
		return h.finishFreeUnsafe(r, "", "all_eliminated", now), nil
	}
	return nil, nil
}

// finishFreeUnsafe ends the round. winnerID empty means it is decided from
// the ranking, which may be a tie.
func (h *Handler) finishFreeUnsafe(r *room.FreeRoom, winnerID, reason string, now time.Time) *freeOutcome {
	cs := r.ContestantsUnsafe()
	tie := false
	if winnerID == "" {
		winnerID, tie = game.DetermineWinner(cs)
	}
	r.State = room.StateFinished
	r.WinnerID = winnerID
	r.LastActive = now
	ranking := game.Rank(cs)

	msg := map[string]interface{}{
		"type":    "game_over",
		"reason":  reason,
		"secret":  r.Secret,
		"ranking": ranking,
		"players": r.PlayersPayloadUnsafe(),
		"tie":     tie,
	}
	if winnerID != "" {
		msg["winnerId"] = winnerID
	} else {
		msg["winnerId"] = nil
	}
	r.BroadcastAllUnsafe(msg)

	h.logger.WithFields(logrus.Fields{
		"roomId": r.ID,
		"round":  r.Round,
		"winner": winnerID,
		"reason": reason,
	}).Info("free round finished")

	names := make(map[string]string, len(r.Participants))
	for _, p := range r.Participants {
		names[p.ID] = p.Name
	}
	return &freeOutcome{
		record:  freeRecordUnsafe(r, ranking, reason, now),
		ranking: ranking,
		names:   names,
	}
}

func freeRecordUnsafe(r *room.FreeRoom, ranking []game.RankEntry, reason string, now time.Time) models.MatchRecord {
	rec := models.MatchRecord{
		ID:        uuid.New(),
		RoomID:    r.ID,
		Kind:      string(room.KindFree),
		Rule:      string(game.RuleRepeat),
		Round:     r.Round,
		StartedAt: r.RoundStartedAt,
		EndedAt:   now,
		WinnerID:  r.WinnerID,
		Reason:    reason,
	}
	ranks := make(map[string]int, len(ranking))
	for _, e := range ranking {
		ranks[e.ID] = e.Rank
	}

	for _, p := range r.Participants {
		var used []string
		for kind := range p.ItemsUsed {
			used = append(used, string(kind))
		}
		sort.Strings(used)
		rec.Participants = append(rec.Participants, models.MatchParticipant{
			PlayerID:  p.ID,
			Name:      p.Name,
			Code:      r.Secret,
			Attempts:  p.Attempts,
			BestScore: p.BestScore,
			Rank:      ranks[p.ID],
			ItemUsed:  strings.Join(used, ","),
		})
		for _, g := range p.History {
			rec.Guesses = append(rec.Guesses, models.MatchGuess{
				PlayerID: p.ID,
				Guess:    g.Guess,
				A:        g.Result.A,
				B:        g.Result.B,
				At:       g.At,
			})
		}
	}
	sort.SliceStable(rec.Guesses, func(i, j int) bool { return rec.Guesses[i].At < rec.Guesses[j].At })
	return rec
}

func (h *Handler) afterFree(out *freeOutcome) {
	h.persist(out.record, h.rateFree(out.ranking, out.names))
}

// LeaveFree drops seat's participant. The host role passes to the earliest
// remaining participant; the room is discarded once empty.
func (h *Handler) LeaveFree(seat *FreeSeat) {
	r := seat.Room
	r.Mu.Lock()
	if seat.participantUnsafe() == nil {
		r.Mu.Unlock()
		seat.Conn.Close()
		return
	}
	now := h.now()
	_, hostChanged := r.RemoveParticipantUnsafe(seat.PlayerID)
	r.LastActive = now
	empty := len(r.Participants) == 0

	var out *freeOutcome
	closed := false
	if empty {
		closed = h.registry.Remove(r)
	} else {
		r.BroadcastAllUnsafe(map[string]interface{}{
			"type":        "player_list",
			"left":        seat.PlayerID,
			"hostId":      r.HostID,
			"hostChanged": hostChanged,
			"players":     r.PlayersPayloadUnsafe(),
		})
		if r.State == room.StatePlaying && game.AllEliminated(r.ContestantsUnsafe()) {
			out = h.finishFreeUnsafe(r, "", "all_eliminated", now)
		}
	}
	r.Mu.Unlock()

	seat.Conn.Close()
	h.logger.WithFields(logrus.Fields{"roomId": r.ID, "player": seat.PlayerID}).Info("free room participant left")
	if closed {
		h.logger.WithField("roomId", r.ID).Info("free room closed")
	}
	if out != nil {
		h.afterFree(out)
	}
}
