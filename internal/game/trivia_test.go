// internal/game/trivia_test.go
package game

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet() *TriviaSet {
	return &TriviaSet{
		Subject: "Grace Hopper",
		Aliases: []string{"Amazing Grace"},
		Questions: []TriviaQuestion{
			{ID: "q1", Text: "Navy?", Answer: "yes"},
			{ID: "q2", Text: "Compiler?", Answer: "yes"},
			{ID: "q3", Text: "Painter?", Answer: "no"},
			{ID: "q4", Text: "Alive?", Answer: "no"},
		},
	}
}

func TestTriviaMatchesNormalizesNames(t *testing.T) {
	set := testSet()
	assert.True(t, set.Matches("grace hopper"))
	assert.True(t, set.Matches("  GRACE\tHOPPER "))
	assert.True(t, set.Matches("amazinggrace"))
	assert.False(t, set.Matches("Grace"))
	assert.False(t, set.Matches("   "))
	assert.Equal(t, "adalovelace", NormalizeName(" Ada  Lovelace\n"))
}

func TestTriviaBoardPickConsumesAndRefills(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	board := NewTriviaBoard(testSet(), 2, rng)
	require.Len(t, board.Pool, 2)

	now := time.Unix(1_700_000_000, 0)
	picked := board.Pool[0].ID
	qa, err := board.Pick(RoleHost, picked, now, rng)
	require.NoError(t, err)
	assert.Equal(t, picked, qa.QuestionID)
	assert.True(t, board.Asked[picked])
	assert.Len(t, board.Log, 1)
	assert.Len(t, board.Pool, 2)
	for _, q := range board.Pool {
		assert.NotEqual(t, picked, q.ID)
	}

	_, err = board.Pick(RoleGuest, picked, now, rng)
	assert.ErrorIs(t, err, ErrQuestionNotInPool)

	// drain: the pool shrinks once no unasked questions remain
	for len(board.Pool) > 0 {
		_, err := board.Pick(RoleGuest, board.Pool[0].ID, now, rng)
		require.NoError(t, err)
	}
	assert.Len(t, board.Log, 4)
	assert.Len(t, board.Asked, 4)
}

func TestTriviaCooldown(t *testing.T) {
	board := NewTriviaBoard(testSet(), 3, rand.New(rand.NewSource(1)))
	now := time.Unix(1_700_000_000, 0)

	assert.Zero(t, board.CoolingDown(RoleHost, now, 10*time.Second))
	board.RecordWrong(RoleHost, "Ada", now)

	assert.Equal(t, 7*time.Second, board.CoolingDown(RoleHost, now.Add(3*time.Second), 10*time.Second))
	assert.Zero(t, board.CoolingDown(RoleGuest, now, 10*time.Second))
	assert.Zero(t, board.CoolingDown(RoleHost, now.Add(10*time.Second), 10*time.Second))
	assert.Len(t, board.WrongGuesses, 1)
}

func TestLoadTriviaBank(t *testing.T) {
	bank, err := LoadTriviaBank("")
	require.NoError(t, err)
	assert.NotEmpty(t, bank.Sets)

	path := filepath.Join(t.TempDir(), "bank.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"subject":"Grace Hopper","questions":[{"id":"q1","text":"Navy?","answer":"yes"}]}]`), 0o600))
	bank, err = LoadTriviaBank(path)
	require.NoError(t, err)

	set, err := bank.Draw(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", set.Subject)

	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))
	_, err = LoadTriviaBank(path)
	assert.ErrorIs(t, err, ErrEmptyBank)

	_, err = (&StaticBank{}).Draw(rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrEmptyBank)
}
