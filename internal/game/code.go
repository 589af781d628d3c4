// internal/game/code.go
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// CodeLength is the number of digits in every secret code and guess.
const CodeLength = 4

// CodeRule selects how codes are validated and scored in a room.
type CodeRule string

const (
	RuleUnique CodeRule = "unique" // four pairwise distinct digits
	RuleRepeat CodeRule = "repeat" // digits may repeat
	RuleTrivia CodeRule = "trivia" // "guess a person": no digit codes at all
)

var (
	// ErrCodeFormat is returned for anything that is not exactly four ASCII digits.
	ErrCodeFormat = errors.New("code must be exactly 4 digits")
	// ErrCodeRepeats is returned when a unique-digit code repeats a digit.
	ErrCodeRepeats = errors.New("code digits must all be different")
	// ErrUnknownRule is returned by ParseCodeRule for unrecognised names.
	ErrUnknownRule = errors.New("unknown code rule")
)

// ParseCodeRule maps the client-facing rule names onto a CodeRule. An empty
// string selects the unique-digit rule.
func ParseCodeRule(s string) (CodeRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unique", "unique-digit", "unique_digit":
		return RuleUnique, nil
	case "repeat", "repeat-allowed", "repeat_allowed":
		return RuleRepeat, nil
	case "trivia", "guess-person", "guess_person":
		return RuleTrivia, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRule, s)
}

// UsesDigits reports whether the rule plays with secret digit codes.
func (r CodeRule) UsesDigits() bool {
	return r == RuleUnique || r == RuleRepeat
}

// Result is the (exact, partial) score of a guess, rendered as "xAyB".
type Result struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Solved reports a full match.
func (r Result) Solved() bool {
	return r.A == CodeLength
}

func (r Result) String() string {
	return fmt.Sprintf("%dA%dB", r.A, r.B)
}

// ValidateCode checks a code or a guess against the rule of the room it is
// played in. Repeated digits are only rejected under RuleUnique.
func ValidateCode(code string, rule CodeRule) error {
	if len(code) != CodeLength {
		return ErrCodeFormat
	}
	var seen [10]bool
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c < '0' || c > '9' {
			return ErrCodeFormat
		}
		if rule == RuleUnique {
			if seen[c-'0'] {
				return ErrCodeRepeats
			}
			seen[c-'0'] = true
		}
	}
	return nil
}

// ScoreExact scores a guess under the unique-digit rule. Both inputs must
// already be validated as distinct-digit codes, so a digit can never be
// counted twice.
func ScoreExact(secret, guess string) Result {
	var res Result
	n := min(len(secret), len(guess))
	for i := 0; i < n; i++ {
		if secret[i] == guess[i] {
			res.A++
		} else if strings.IndexByte(secret, guess[i]) >= 0 {
			res.B++
		}
	}
	return res
}

// ScoreWithRepeats scores a guess when digits may repeat in either string.
// Exact positions are consumed first; each remaining guess digit then
// consumes at most one unconsumed secret position, scanning left to right.
func ScoreWithRepeats(secret, guess string) Result {
	var res Result
	n := min(len(secret), len(guess))
	usedSecret := make([]bool, n)
	usedGuess := make([]bool, n)

	for i := 0; i < n; i++ {
		if secret[i] == guess[i] {
			res.A++
			usedSecret[i] = true
			usedGuess[i] = true
		}
	}
	for i := 0; i < n; i++ {
		if usedGuess[i] {
			continue
		}
		for j := 0; j < n; j++ {
			if !usedSecret[j] && secret[j] == guess[i] {
				res.B++
				usedSecret[j] = true
				break
			}
		}
	}
	return res
}

// Score is the single scoring entry point. The unique-digit fast path and the
// two-pass algorithm agree on every distinct-digit input.
func Score(rule CodeRule, secret, guess string) Result {
	if rule == RuleUnique {
		return ScoreExact(secret, guess)
	}
	return ScoreWithRepeats(secret, guess)
}

// RandomCode draws a code valid under rule. Anything other than RuleUnique
// draws each digit independently.
func RandomCode(rng *rand.Rand, rule CodeRule) string {
	b := make([]byte, CodeLength)
	if rule == RuleUnique {
		perm := rng.Perm(10)
		for i := range b {
			b[i] = byte('0' + perm[i])
		}
		return string(b)
	}
	for i := range b {
		b[i] = byte('0' + rng.Intn(10))
	}
	return string(b)
}
