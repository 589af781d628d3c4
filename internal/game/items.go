// internal/game/items.go
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ItemKind is the closed set of consumable items. Every switch over ItemKind
// in this package lists all kinds; AllItems must stay in sync.
type ItemKind string

const (
	ItemRevealDigit   ItemKind = "reveal_digit"   // one digit at a random unrevealed position
	ItemEliminateTwo  ItemKind = "eliminate_two"  // two digits absent from the code
	ItemRevealSet     ItemKind = "reveal_set"     // the unordered digits of the code
	ItemExtraTime     ItemKind = "extra_time"     // +30s on the actor's clock
	ItemCutTime       ItemKind = "cut_time"       // -10s on the opponent's next turn
	ItemSingleGuess   ItemKind = "single_guess"   // opponent's next turn capped to one guess
	ItemExtraAttempts ItemKind = "extra_attempts" // +2 guess attempts in a free room
)

// AllItems lists every item kind.
var AllItems = []ItemKind{
	ItemRevealDigit,
	ItemEliminateTwo,
	ItemRevealSet,
	ItemExtraTime,
	ItemCutTime,
	ItemSingleGuess,
	ItemExtraAttempts,
}

const (
	ExtraTimeSeconds   = 30
	CutTimeSeconds     = 10
	ExtraAttemptsBonus = 2
)

var (
	ErrUnknownItem    = errors.New("unknown item")
	ErrItemNotAllowed = errors.New("item cannot be used in this room")
)

func ParseItemKind(s string) (ItemKind, error) {
	for _, k := range AllItems {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownItem, s)
}

// InDuel reports whether the kind belongs to the duel catalogue.
func (k ItemKind) InDuel() bool {
	switch k {
	case ItemRevealDigit, ItemEliminateTwo, ItemRevealSet, ItemExtraTime, ItemCutTime, ItemSingleGuess:
		return true
	case ItemExtraAttempts:
		return false
	}
	return false
}

// InFree reports whether the kind belongs to the free-room catalogue.
func (k ItemKind) InFree() bool {
	switch k {
	case ItemExtraAttempts, ItemRevealDigit, ItemEliminateTwo, ItemRevealSet:
		return true
	case ItemExtraTime, ItemCutTime, ItemSingleGuess:
		return false
	}
	return false
}

// RevealState is what an actor has already learned about the code they are
// guessing. Items only ever add to it.
type RevealState struct {
	Positions  map[int]bool
	Eliminated map[byte]bool
}

func NewRevealState() *RevealState {
	return &RevealState{
		Positions:  make(map[int]bool),
		Eliminated: make(map[byte]bool),
	}
}

// Reveal is a single disclosed position of a code.
type Reveal struct {
	Position int    `json:"position"`
	Digit    string `json:"digit"`
}

// Effect describes what an item did. Time and guess-cap effects are data for
// the protocol layer; the engine never touches the turn scheduler.
type Effect struct {
	Item             ItemKind `json:"itemId"`
	Reveal           *Reveal  `json:"reveal,omitempty"`
	EliminatedDigits []string `json:"eliminatedDigits,omitempty"`
	DigitSet         []string `json:"digitSet,omitempty"`
	TargetRole       Role     `json:"targetRole,omitempty"`
	DeltaSeconds     int      `json:"deltaSeconds,omitempty"`
	GuessCap         int      `json:"guessCap,omitempty"`
	ExtraAttempts    int      `json:"extraAttempts,omitempty"`
	Exhausted        bool     `json:"exhausted,omitempty"`
}

// Private reports whether the effect discloses part of a secret and must
// only be sent to the actor.
func (e Effect) Private() bool {
	return e.Reveal != nil || len(e.EliminatedDigits) > 0 || len(e.DigitSet) > 0
}

// ApplyDuelItem resolves a duel item used by actor against the opponent's
// code. state is the actor's reveal state.
func ApplyDuelItem(kind ItemKind, opponentCode string, actor Role, state *RevealState, rng *rand.Rand) (Effect, error) {
	if !kind.InDuel() {
		return Effect{}, fmt.Errorf("%w: %s", ErrItemNotAllowed, kind)
	}
	switch kind {
	case ItemRevealDigit:
		return revealDigit(opponentCode, state, rng), nil
	case ItemEliminateTwo:
		return eliminateAbsent(opponentCode, state, 2, rng), nil
	case ItemRevealSet:
		return Effect{Item: kind, DigitSet: distinctDigits(opponentCode)}, nil
	case ItemExtraTime:
		return Effect{Item: kind, TargetRole: actor, DeltaSeconds: ExtraTimeSeconds}, nil
	case ItemCutTime:
		return Effect{Item: kind, TargetRole: actor.Opponent(), DeltaSeconds: -CutTimeSeconds}, nil
	case ItemSingleGuess:
		return Effect{Item: kind, TargetRole: actor.Opponent(), GuessCap: 1}, nil
	case ItemExtraAttempts:
		return Effect{}, fmt.Errorf("%w: %s", ErrItemNotAllowed, kind)
	}
	return Effect{}, fmt.Errorf("%w: %q", ErrUnknownItem, kind)
}

// ApplyFreeItem resolves a free-room item against the shared secret, scoped
// to the acting participant's own reveal state.
func ApplyFreeItem(kind ItemKind, secret string, state *RevealState, rng *rand.Rand) (Effect, error) {
	if !kind.InFree() {
		return Effect{}, fmt.Errorf("%w: %s", ErrItemNotAllowed, kind)
	}
	switch kind {
	case ItemExtraAttempts:
		return Effect{Item: kind, ExtraAttempts: ExtraAttemptsBonus}, nil
	case ItemRevealDigit:
		return revealDigit(secret, state, rng), nil
	case ItemEliminateTwo:
		return eliminateAbsent(secret, state, 2, rng), nil
	case ItemRevealSet:
		return Effect{Item: kind, DigitSet: digitMultiset(secret)}, nil
	case ItemExtraTime, ItemCutTime, ItemSingleGuess:
		return Effect{}, fmt.Errorf("%w: %s", ErrItemNotAllowed, kind)
	}
	return Effect{}, fmt.Errorf("%w: %q", ErrUnknownItem, kind)
}

func revealDigit(code string, state *RevealState, rng *rand.Rand) Effect {
	eff := Effect{Item: ItemRevealDigit}
	var open []int
	for i := 0; i < len(code); i++ {
		if !state.Positions[i] {
			open = append(open, i)
		}
	}
	if len(open) == 0 {
		eff.Exhausted = true
		return eff
	}
	pos := open[rng.Intn(len(open))]
	state.Positions[pos] = true
	eff.Reveal = &Reveal{Position: pos, Digit: string(code[pos])}
	return eff
}

func eliminateAbsent(code string, state *RevealState, want int, rng *rand.Rand) Effect {
	eff := Effect{Item: ItemEliminateTwo}
	var candidates []byte
	for d := byte('0'); d <= '9'; d++ {
		if state.Eliminated[d] {
			continue
		}
		if containsByte(code, d) {
			continue
		}
		candidates = append(candidates, d)
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > want {
		candidates = candidates[:want]
	}
	for _, d := range candidates {
		state.Eliminated[d] = true
		eff.EliminatedDigits = append(eff.EliminatedDigits, string(d))
	}
	sort.Strings(eff.EliminatedDigits)
	eff.Exhausted = len(candidates) < want
	return eff
}

func distinctDigits(code string) []string {
	var seen [10]bool
	var out []string
	for i := 0; i < len(code); i++ {
		d := code[i] - '0'
		if d > 9 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, string(code[i]))
	}
	sort.Strings(out)
	return out
}

func digitMultiset(code string) []string {
	out := make([]string, 0, len(code))
	for i := 0; i < len(code); i++ {
		out = append(out, string(code[i]))
	}
	sort.Strings(out)
	return out
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}
