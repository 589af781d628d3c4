// internal/room/free.go
package room

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jason-s-yu/codebreak/internal/game"
)

var (
	ErrRoomFull        = errors.New("room is full")
	ErrDuplicatePlayer = errors.New("player is already in this room")
	ErrNotHost         = errors.New("only the host can do that")
	ErrNotEnough       = errors.New("not enough players to start")
	ErrNotFinished     = errors.New("round has not finished")
	ErrEliminated      = errors.New("you have been eliminated")
	ErrUnknownPlayer   = errors.New("player is not in this room")
)

// FreeGuess is one entry of a participant's personal history.
type FreeGuess struct {
	Guess  string      `json:"guess"`
	Result game.Result `json:"result"`
	At     int64       `json:"at"`
}

// FreeParticipant is a seat in a free-for-all room.
type FreeParticipant struct {
	game.Contestant

	Conn          *Conn
	History       []FreeGuess
	Reveal        *game.RevealState
	ItemsUsed     map[game.ItemKind]bool
	ItemsPending  map[game.ItemKind]bool
	BonusAttempts int
	JoinedAt      time.Time
	LastActive    time.Time
}

func newFreeParticipant(id, name string, conn *Conn, now time.Time) *FreeParticipant {
	return &FreeParticipant{
		Contestant:   game.Contestant{ID: id, Name: name},
		Conn:         conn,
		Reveal:       game.NewRevealState(),
		ItemsUsed:    make(map[game.ItemKind]bool),
		ItemsPending: make(map[game.ItemKind]bool),
		JoinedAt:     now,
		LastActive:   now,
	}
}

// FreeRoom is a multi-player elimination room where everyone guesses the
// same shared secret. Every field is guarded by Mu.
type FreeRoom struct {
	ID           string
	Name         string
	PasswordHash string
	GuessLimit   int
	Capacity     int
	MinPlayers   int

	State          State
	Secret         string
	Participants   []*FreeParticipant
	HostID         string
	WinnerID       string
	Round          int
	RoundStartedAt time.Time

	CreatedAt  time.Time
	LastActive time.Time
	Rng        *rand.Rand

	Mu sync.Mutex
}

func NewFreeRoom(id, name, passwordHash string, guessLimit, capacity, minPlayers int, rng *rand.Rand, now time.Time) *FreeRoom {
	return &FreeRoom{
		ID:           id,
		Name:         name,
		PasswordHash: passwordHash,
		GuessLimit:   guessLimit,
		Capacity:     capacity,
		MinPlayers:   minPlayers,
		State:        StateWaiting,
		CreatedAt:    now,
		LastActive:   now,
		Rng:          rng,
	}
}

func (r *FreeRoom) RoomID() string { return r.ID }
func (r *FreeRoom) Kind() Kind     { return KindFree }

// ParticipantUnsafe finds a participant by player id.
func (r *FreeRoom) ParticipantUnsafe(id string) *FreeParticipant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AddParticipantUnsafe seats a new player. The first player becomes host.
func (r *FreeRoom) AddParticipantUnsafe(id, name string, conn *Conn, now time.Time) (*FreeParticipant, error) {
	if r.State != StateWaiting {
		return nil, ErrNotWaiting
	}
	if r.ParticipantUnsafe(id) != nil {
		return nil, ErrDuplicatePlayer
	}
	if len(r.Participants) >= r.Capacity {
		return nil, ErrRoomFull
	}
	p := newFreeParticipant(id, name, conn, now)
	r.Participants = append(r.Participants, p)
	if r.HostID == "" {
		r.HostID = id
	}
	r.LastActive = now
	return p, nil
}

// RemoveParticipantUnsafe drops a player. If the host left, the earliest
// remaining participant takes over. It reports whether the host changed.
func (r *FreeRoom) RemoveParticipantUnsafe(id string) (removed *FreeParticipant, hostChanged bool) {
	for i, p := range r.Participants {
		if p.ID != id {
			continue
		}
		removed = p
		r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
		break
	}
	if removed == nil {
		return nil, false
	}
	if r.HostID == id {
		r.HostID = ""
		if len(r.Participants) > 0 {
			r.HostID = r.Participants[0].ID
		}
		hostChanged = true
	}
	return removed, hostChanged
}

// StartRoundUnsafe draws a fresh shared secret and resets every
// participant's counters.
func (r *FreeRoom) StartRoundUnsafe(now time.Time) {
	r.Secret = game.RandomCode(r.Rng, game.RuleRepeat)
	r.State = StatePlaying
	r.WinnerID = ""
	r.Round++
	r.RoundStartedAt = now
	r.LastActive = now
	for _, p := range r.Participants {
		p.Contestant.Reset()
		p.History = nil
		p.Reveal = game.NewRevealState()
		p.ItemsUsed = make(map[game.ItemKind]bool)
		p.ItemsPending = make(map[game.ItemKind]bool)
		p.BonusAttempts = 0
	}
}

// AttemptCap is the number of guesses p may submit this round.
func (r *FreeRoom) AttemptCap(p *FreeParticipant) int {
	return r.GuessLimit + p.BonusAttempts
}

// Remaining is the number of guesses p has left this round.
func (r *FreeRoom) Remaining(p *FreeParticipant) int {
	return max(0, r.AttemptCap(p)-p.Attempts)
}

// ContestantsUnsafe returns the ranking view of every participant.
func (r *FreeRoom) ContestantsUnsafe() []*game.Contestant {
	cs := make([]*game.Contestant, len(r.Participants))
	for i, p := range r.Participants {
		cs[i] = &p.Contestant
	}
	return cs
}

// PlayersPayloadUnsafe is the public roster.
func (r *FreeRoom) PlayersPayloadUnsafe() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, map[string]interface{}{
			"id":          p.ID,
			"name":        p.Name,
			"isHost":      p.ID == r.HostID,
			"submitCount": p.Attempts,
			"bestScore":   p.BestScore,
			"eliminated":  p.Eliminated,
			"remaining":   r.Remaining(p),
		})
	}
	return out
}

// BroadcastAllUnsafe writes msg to every participant.
func (r *FreeRoom) BroadcastAllUnsafe(msg map[string]interface{}) {
	for _, p := range r.Participants {
		p.Conn.Write(msg)
	}
}

// Summary is the lobby-browser view of a free room.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HasPassword bool   `json:"hasPassword"`
	Players     int    `json:"players"`
	Capacity    int    `json:"capacity"`
	GuessLimit  int    `json:"guessLimit"`
	State       State  `json:"state"`
}

func (r *FreeRoom) summary() Summary {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return Summary{
		ID:          r.ID,
		Name:        r.Name,
		HasPassword: r.PasswordHash != "",
		Players:     len(r.Participants),
		Capacity:    r.Capacity,
		GuessLimit:  r.GuessLimit,
		State:       r.State,
	}
}

func (r *FreeRoom) idle(now time.Time, ttl time.Duration) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	for _, p := range r.Participants {
		if p.Conn != nil && !p.Conn.Closed() {
			return false
		}
	}
	return now.Sub(r.LastActive) >= ttl
}

func (r *FreeRoom) shutdown() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.State = StateFinished
	for _, p := range r.Participants {
		p.Conn.Close()
	}
}
