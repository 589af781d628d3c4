// internal/room/duel.go
package room

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jason-s-yu/codebreak/internal/game"
)

// State is the lifecycle of a room.
type State string

const (
	StateWaiting  State = "waiting"
	StatePlaying  State = "playing"
	StateFinished State = "finished"
)

var (
	ErrCodeAlreadySet = errors.New("code already set")
	ErrNotWaiting     = errors.New("room is not waiting for players")
	ErrNotPlaying     = errors.New("game is not in progress")
)

// DuelParticipant occupies one role of a duel room.
type DuelParticipant struct {
	Role       game.Role
	PlayerID   string
	Identity   string
	Name       string
	Conn       *Conn
	LastActive time.Time
}

// GuessEntry is one line of a duel's append-only history.
type GuessEntry struct {
	Role   game.Role   `json:"role"`
	Guess  string      `json:"guess"`
	Result game.Result `json:"result"`
	At     int64       `json:"at"`
}

// DuelRoom is a two-seat, turn-based room. Every field is guarded by Mu;
// methods suffixed Unsafe expect the caller to hold it.
type DuelRoom struct {
	ID        string
	Rule      game.CodeRule
	State     State
	CreatedAt time.Time
	StartedAt time.Time

	Slots   map[game.Role]*DuelParticipant
	Codes   map[game.Role]string
	Turn    game.TurnScheduler
	History []GuessEntry

	// ItemUsed records the single item a role has applied.
	// ItemPending marks a reservation while the inventory is being debited.
	ItemUsed    map[game.Role]game.ItemKind
	ItemPending map[game.Role]bool
	Reveals     map[game.Role]*game.RevealState

	Trivia *game.TriviaBoard

	Winner     game.Role
	LastActive time.Time
	Rng        *rand.Rand

	Mu sync.Mutex
}

// NewDuelRoom creates a waiting duel room.
func NewDuelRoom(id string, rule game.CodeRule, turn game.TurnScheduler, rng *rand.Rand, now time.Time) *DuelRoom {
	return &DuelRoom{
		ID:          id,
		Rule:        rule,
		State:       StateWaiting,
		CreatedAt:   now,
		Slots:       make(map[game.Role]*DuelParticipant),
		Codes:       make(map[game.Role]string),
		Turn:        turn,
		ItemUsed:    make(map[game.Role]game.ItemKind),
		ItemPending: make(map[game.Role]bool),
		Reveals: map[game.Role]*game.RevealState{
			game.RoleHost:  game.NewRevealState(),
			game.RoleGuest: game.NewRevealState(),
		},
		LastActive: now,
		Rng:        rng,
	}
}

func (r *DuelRoom) RoomID() string { return r.ID }
func (r *DuelRoom) Kind() Kind     { return KindDuel }

// SetCodeUnsafe stores role's secret once. Codes are immutable afterwards.
func (r *DuelRoom) SetCodeUnsafe(role game.Role, code string) error {
	if r.State != StateWaiting {
		return ErrNotWaiting
	}
	if _, ok := r.Codes[role]; ok {
		return ErrCodeAlreadySet
	}
	if err := game.ValidateCode(code, r.Rule); err != nil {
		return err
	}
	r.Codes[role] = code
	return nil
}

// BothCodesSetUnsafe reports whether host and guest have both set a code.
func (r *DuelRoom) BothCodesSetUnsafe() bool {
	return r.Codes[game.RoleHost] != "" && r.Codes[game.RoleGuest] != ""
}

// CodeStateUnsafe maps each role to whether it has set a code.
func (r *DuelRoom) CodeStateUnsafe() map[string]bool {
	return map[string]bool{
		string(game.RoleHost):  r.Codes[game.RoleHost] != "",
		string(game.RoleGuest): r.Codes[game.RoleGuest] != "",
	}
}

// ConnectedUnsafe reports whether role has a live socket.
func (r *DuelRoom) ConnectedUnsafe(role game.Role) bool {
	p := r.Slots[role]
	return p != nil && p.Conn != nil && !p.Conn.Closed()
}

func (r *DuelRoom) BothConnectedUnsafe() bool {
	return r.ConnectedUnsafe(game.RoleHost) && r.ConnectedUnsafe(game.RoleGuest)
}

// AppendGuessUnsafe records a scored guess. Entries are never modified.
func (r *DuelRoom) AppendGuessUnsafe(role game.Role, guess string, res game.Result, now time.Time) GuessEntry {
	e := GuessEntry{Role: role, Guess: guess, Result: res, At: now.UnixMilli()}
	r.History = append(r.History, e)
	return e
}

// StartUnsafe moves the room into play and hands out the first turn.
func (r *DuelRoom) StartUnsafe(now time.Time) game.TurnInfo {
	r.State = StatePlaying
	r.StartedAt = now
	r.Turn.Start(now)
	return r.Turn.Snapshot()
}

// SendUnsafe writes msg to role's socket, if any.
func (r *DuelRoom) SendUnsafe(role game.Role, msg map[string]interface{}) {
	if p := r.Slots[role]; p != nil {
		p.Conn.Write(msg)
	}
}

// BroadcastAllUnsafe writes msg to every connected role.
func (r *DuelRoom) BroadcastAllUnsafe(msg map[string]interface{}) {
	for _, role := range game.Roles {
		r.SendUnsafe(role, msg)
	}
}

// TouchUnsafe marks activity for the idle janitor.
func (r *DuelRoom) TouchUnsafe(now time.Time) {
	r.LastActive = now
}

// StatePayloadUnsafe is the full room snapshot sent to role on join and on
// reconnection. The opponent's code is never included.
func (r *DuelRoom) StatePayloadUnsafe(role game.Role) map[string]interface{} {
	history := make([]GuessEntry, len(r.History))
	copy(history, r.History)

	players := map[string]interface{}{}
	for _, rl := range game.Roles {
		if p := r.Slots[rl]; p != nil {
			players[string(rl)] = map[string]interface{}{
				"name":      p.Name,
				"connected": r.ConnectedUnsafe(rl),
			}
		}
	}

	payload := map[string]interface{}{
		"roomId":    r.ID,
		"rule":      r.Rule,
		"state":     r.State,
		"role":      role,
		"players":   players,
		"codeState": r.CodeStateUnsafe(),
		"history":   history,
		"itemUsed":  r.ItemUsed[role] != "",
	}
	if code, ok := r.Codes[role]; ok {
		payload["myCode"] = code
	}
	if r.State == StatePlaying {
		snap := r.Turn.Snapshot()
		payload["turn"] = snap.Holder
		payload["turnStartAt"] = snap.StartedAt
		payload["turnSeconds"] = snap.Seconds
	}
	if r.Trivia != nil {
		payload["trivia"] = TriviaPayloadUnsafe(r.Trivia)
	}
	return payload
}

// TriviaPayloadUnsafe is the public part of a trivia board.
func TriviaPayloadUnsafe(b *game.TriviaBoard) map[string]interface{} {
	pool := make([]map[string]string, 0, len(b.Pool))
	for _, q := range b.Pool {
		pool = append(pool, map[string]string{"id": q.ID, "text": q.Text})
	}
	log := make([]game.QA, len(b.Log))
	copy(log, b.Log)
	wrong := make([]game.WrongGuess, len(b.WrongGuesses))
	copy(wrong, b.WrongGuesses)
	return map[string]interface{}{
		"pool":         pool,
		"log":          log,
		"wrongGuesses": wrong,
	}
}

// IdleUnsafe reports whether nobody is connected and nothing has happened
// for at least ttl.
func (r *DuelRoom) IdleUnsafe(now time.Time, ttl time.Duration) bool {
	if r.ConnectedUnsafe(game.RoleHost) || r.ConnectedUnsafe(game.RoleGuest) {
		return false
	}
	return now.Sub(r.LastActive) >= ttl
}

func (r *DuelRoom) idle(now time.Time, ttl time.Duration) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.IdleUnsafe(now, ttl)
}

func (r *DuelRoom) shutdown() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.State = StateFinished
	for _, p := range r.Slots {
		p.Conn.Close()
	}
}
