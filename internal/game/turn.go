// internal/game/turn.go
package game

import (
	"errors"
	"time"
)

// Role is one of the two seats in a duel room.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// ErrUnknownRole is returned by ParseRole.
var ErrUnknownRole = errors.New("role must be host or guest")

// Roles lists both duel roles in seating order.
var Roles = [2]Role{RoleHost, RoleGuest}

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleHost, RoleGuest:
		return Role(s), nil
	}
	return "", ErrUnknownRole
}

// Opponent returns the other duel role.
func (r Role) Opponent() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

// FirstTurn is the role that always opens a duel.
const FirstTurn = RoleHost

// TurnModifier accumulates item effects waiting for a role's next turn.
type TurnModifier struct {
	DeltaSeconds int
	GuessCap     int
}

// TurnInfo is the broadcastable view of the current turn. StartedAt is sent
// as unix milliseconds so both clients can run the same countdown.
type TurnInfo struct {
	Holder    Role  `json:"turn"`
	StartedAt int64 `json:"turnStartAt"`
	Seconds   int   `json:"turnSeconds"`
	GuessCap  int   `json:"guessCap,omitempty"`
}

// TurnScheduler tracks whose turn it is in a duel. Deadlines are advisory;
// clients count down from StartedAt and report timeouts themselves.
type TurnScheduler struct {
	Holder    Role
	StartedAt time.Time
	Seconds   int
	GuessCap  int

	BaseSeconds int
	MinSeconds  int

	pending map[Role]TurnModifier
}

// NewTurnScheduler returns a scheduler with no holder; Start must be called
// when the room enters play.
func NewTurnScheduler(baseSeconds, minSeconds int) TurnScheduler {
	return TurnScheduler{
		BaseSeconds: baseSeconds,
		MinSeconds:  minSeconds,
		pending:     make(map[Role]TurnModifier),
	}
}

// Start hands the first turn to FirstTurn.
func (t *TurnScheduler) Start(now time.Time) Role {
	t.pending = make(map[Role]TurnModifier)
	t.begin(FirstTurn, now)
	return t.Holder
}

// Advance flips the holder, stamps a new start time and applies any
// modifiers queued for the new holder.
func (t *TurnScheduler) Advance(now time.Time) Role {
	t.begin(t.Holder.Opponent(), now)
	return t.Holder
}

func (t *TurnScheduler) begin(holder Role, now time.Time) {
	mod := t.pending[holder]
	delete(t.pending, holder)

	t.Holder = holder
	t.StartedAt = now
	t.Seconds = t.clamp(t.BaseSeconds + mod.DeltaSeconds)
	t.GuessCap = mod.GuessCap
}

// Holds reports whether role currently has the turn.
func (t *TurnScheduler) Holds(role Role) bool {
	return t.Holder != "" && t.Holder == role
}

// Extend adds delta seconds to role's clock: the running turn if role holds
// it, otherwise role's next turn.
func (t *TurnScheduler) Extend(role Role, delta int) {
	if t.Holds(role) {
		t.Seconds = t.clamp(t.Seconds + delta)
		return
	}
	mod := t.pending[role]
	mod.DeltaSeconds += delta
	t.pending[role] = mod
}

// CapNext limits role's next turn to n guesses.
func (t *TurnScheduler) CapNext(role Role, n int) {
	mod := t.pending[role]
	mod.GuessCap = n
	t.pending[role] = mod
}

// Pending returns the modifier queued for role's next turn.
func (t *TurnScheduler) Pending(role Role) TurnModifier {
	return t.pending[role]
}

func (t *TurnScheduler) Snapshot() TurnInfo {
	info := TurnInfo{
		Holder:   t.Holder,
		Seconds:  t.Seconds,
		GuessCap: t.GuessCap,
	}
	if !t.StartedAt.IsZero() {
		info.StartedAt = t.StartedAt.UnixMilli()
	}
	return info
}

func (t *TurnScheduler) clamp(seconds int) int {
	if seconds < t.MinSeconds {
		return t.MinSeconds
	}
	return seconds
}
