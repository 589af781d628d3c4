// internal/game/code_test.go
package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCode(t *testing.T) {
	tests := []struct {
		name string
		code string
		rule CodeRule
		want error
	}{
		{"unique ok", "1234", RuleUnique, nil},
		{"unique rejects repeats", "1123", RuleUnique, ErrCodeRepeats},
		{"repeat accepts repeats", "1123", RuleRepeat, nil},
		{"repeat accepts all same", "0000", RuleRepeat, nil},
		{"too short", "123", RuleUnique, ErrCodeFormat},
		{"too long", "12345", RuleRepeat, ErrCodeFormat},
		{"letters", "12a4", RuleRepeat, ErrCodeFormat},
		{"non ascii digits", "١٢٣٤", RuleRepeat, ErrCodeFormat},
		{"empty", "", RuleUnique, ErrCodeFormat},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCode(tc.code, tc.rule)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseCodeRule(t *testing.T) {
	for in, want := range map[string]CodeRule{
		"":               RuleUnique,
		"unique-digit":   RuleUnique,
		"Repeat-Allowed": RuleRepeat,
		"trivia":         RuleTrivia,
		" repeat ":       RuleRepeat,
	} {
		got, err := ParseCodeRule(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCodeRule("chaos")
	assert.ErrorIs(t, err, ErrUnknownRule)

	assert.True(t, RuleUnique.UsesDigits())
	assert.True(t, RuleRepeat.UsesDigits())
	assert.False(t, RuleTrivia.UsesDigits())
}

func TestScoreExamples(t *testing.T) {
	res := Score(RuleUnique, "1234", "1243")
	assert.Equal(t, Result{A: 2, B: 2}, res)
	assert.Equal(t, "2A2B", res.String())
	assert.False(t, res.Solved())

	res = Score(RuleUnique, "1234", "1234")
	assert.Equal(t, Result{A: 4}, res)
	assert.True(t, res.Solved())

	// shared secret with repeats, as drawn in free rooms
	assert.Equal(t, Result{A: 1, B: 3}, ScoreWithRepeats("1123", "1231"))
}

func TestScoreWithRepeatsDoesNotDoubleCount(t *testing.T) {
	tests := []struct {
		secret, guess string
		want          Result
	}{
		{"1123", "1111", Result{A: 2, B: 0}},
		{"1111", "1123", Result{A: 2, B: 0}},
		{"1122", "2211", Result{A: 0, B: 4}},
		{"1234", "5555", Result{}},
		{"0012", "1200", Result{A: 0, B: 4}},
		{"9899", "9998", Result{A: 2, B: 2}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ScoreWithRepeats(tc.secret, tc.guess), "%s vs %s", tc.secret, tc.guess)
	}
}

func TestScoreProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		secret := RandomCode(rng, RuleRepeat)
		guess := RandomCode(rng, RuleRepeat)

		res := ScoreWithRepeats(secret, guess)
		assert.LessOrEqual(t, res.A+res.B, CodeLength)
		assert.Equal(t, Result{A: CodeLength}, ScoreWithRepeats(secret, secret))
	}

	for i := 0; i < 2000; i++ {
		secret := RandomCode(rng, RuleUnique)
		guess := RandomCode(rng, RuleUnique)
		require.NoError(t, ValidateCode(secret, RuleUnique))

		exact := ScoreExact(secret, guess)
		assert.LessOrEqual(t, exact.A+exact.B, CodeLength)
		// both algorithms must agree on distinct-digit codes
		assert.Equal(t, exact, ScoreWithRepeats(secret, guess))
	}
}

func TestScoreExactArgumentOrder(t *testing.T) {
	// ScoreExact relies on validated distinct-digit input; swapping the
	// arguments of an unvalidated guess gives a different score.
	assert.Equal(t, Result{A: 1, B: 3}, ScoreExact("1234", "1111"))
	assert.Equal(t, Result{A: 1, B: 0}, ScoreExact("1111", "1234"))
	assert.Equal(t, Result{A: 1, B: 0}, ScoreWithRepeats("1234", "1111"))
}
