// internal/game/trivia.go
package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"
	"unicode"
)

var (
	ErrQuestionNotInPool = errors.New("question is not in the current pool")
	ErrEmptyBank         = errors.New("trivia bank has no subjects")
)

// TriviaQuestion is one yes/no style clue about the hidden subject.
type TriviaQuestion struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Answer string `json:"answer"`
}

// TriviaSet is a hidden subject and every clue that may be asked about it.
type TriviaSet struct {
	Subject   string           `json:"subject"`
	Aliases   []string         `json:"aliases,omitempty"`
	Questions []TriviaQuestion `json:"questions"`
}

// NormalizeName lowercases s and strips every whitespace rune.
func NormalizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Matches reports whether name identifies the subject or one of its aliases.
func (s *TriviaSet) Matches(name string) bool {
	n := NormalizeName(name)
	if n == "" {
		return false
	}
	if n == NormalizeName(s.Subject) {
		return true
	}
	for _, a := range s.Aliases {
		if n == NormalizeName(a) {
			return true
		}
	}
	return false
}

// QA is one entry of the public question log.
type QA struct {
	Role       Role   `json:"role"`
	QuestionID string `json:"questionId"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	At         int64  `json:"at"`
}

// WrongGuess is one entry of the wrong-name log.
type WrongGuess struct {
	Role Role   `json:"role"`
	Name string `json:"name"`
	At   int64  `json:"at"`
}

// TriviaBoard is the per-room state of a "guess a person" duel.
type TriviaBoard struct {
	Set          *TriviaSet
	Asked        map[string]bool
	Pool         []TriviaQuestion
	PoolSize     int
	Log          []QA
	WrongGuesses []WrongGuess
	LastWrong    map[Role]time.Time
}

func NewTriviaBoard(set *TriviaSet, poolSize int, rng *rand.Rand) *TriviaBoard {
	b := &TriviaBoard{
		Set:       set,
		Asked:     make(map[string]bool),
		PoolSize:  poolSize,
		LastWrong: make(map[Role]time.Time),
	}
	b.Refill(rng)
	return b
}

// Refill tops the candidate pool up to PoolSize from questions not yet
// asked and not already offered.
func (b *TriviaBoard) Refill(rng *rand.Rand) {
	offered := make(map[string]bool, len(b.Pool))
	for _, q := range b.Pool {
		offered[q.ID] = true
	}
	var fresh []TriviaQuestion
	for _, q := range b.Set.Questions {
		if !b.Asked[q.ID] && !offered[q.ID] {
			fresh = append(fresh, q)
		}
	}
	rng.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
	for _, q := range fresh {
		if len(b.Pool) >= b.PoolSize {
			break
		}
		b.Pool = append(b.Pool, q)
	}
}

// Pick consumes a question from the pool, logs its answer publicly and
// refills the pool.
func (b *TriviaBoard) Pick(role Role, id string, now time.Time, rng *rand.Rand) (QA, error) {
	idx := -1
	for i, q := range b.Pool {
		if q.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return QA{}, fmt.Errorf("%w: %q", ErrQuestionNotInPool, id)
	}
	q := b.Pool[idx]
	b.Pool = append(b.Pool[:idx], b.Pool[idx+1:]...)
	b.Asked[q.ID] = true

	entry := QA{
		Role:       role,
		QuestionID: q.ID,
		Question:   q.Text,
		Answer:     q.Answer,
		At:         now.UnixMilli(),
	}
	b.Log = append(b.Log, entry)
	b.Refill(rng)
	return entry, nil
}

// CoolingDown reports how long role must still wait before guessing a name.
func (b *TriviaBoard) CoolingDown(role Role, now time.Time, cooldown time.Duration) time.Duration {
	last, ok := b.LastWrong[role]
	if !ok {
		return 0
	}
	if left := last.Add(cooldown).Sub(now); left > 0 {
		return left
	}
	return 0
}

// RecordWrong logs a wrong name and starts role's cooldown.
func (b *TriviaBoard) RecordWrong(role Role, name string, now time.Time) WrongGuess {
	w := WrongGuess{Role: role, Name: name, At: now.UnixMilli()}
	b.WrongGuesses = append(b.WrongGuesses, w)
	b.LastWrong[role] = now
	return w
}

// TriviaBank hands out subjects for new trivia rooms.
type TriviaBank interface {
	Draw(rng *rand.Rand) (*TriviaSet, error)
}

// StaticBank is a fixed list of subjects.
type StaticBank struct {
	Sets []TriviaSet
}

func (s *StaticBank) Draw(rng *rand.Rand) (*TriviaSet, error) {
	if len(s.Sets) == 0 {
		return nil, ErrEmptyBank
	}
	set := s.Sets[rng.Intn(len(s.Sets))]
	return &set, nil
}

// LoadTriviaBank reads a JSON array of TriviaSet from path. An empty path
// yields the built-in subjects.
func LoadTriviaBank(path string) (*StaticBank, error) {
	if path == "" {
		return DefaultTriviaBank(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trivia bank: %w", err)
	}
	var sets []TriviaSet
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, fmt.Errorf("decode trivia bank: %w", err)
	}
	if len(sets) == 0 {
		return nil, ErrEmptyBank
	}
	return &StaticBank{Sets: sets}, nil
}

func DefaultTriviaBank() *StaticBank {
	return &StaticBank{Sets: []TriviaSet{
		{
			Subject: "Ada Lovelace",
			Aliases: []string{"Lovelace", "Augusta Ada King"},
			Questions: []TriviaQuestion{
				{ID: "ada-1", Text: "Was this person born in the 19th century?", Answer: "yes"},
				{ID: "ada-2", Text: "Is this person known mainly as an athlete?", Answer: "no"},
				{ID: "ada-3", Text: "Did this person work with Charles Babbage?", Answer: "yes"},
				{ID: "ada-4", Text: "Was this person British?", Answer: "yes"},
				{ID: "ada-5", Text: "Is this person still alive?", Answer: "no"},
				{ID: "ada-6", Text: "Is a programming language named after this person?", Answer: "yes"},
				{ID: "ada-7", Text: "Was this person's father a poet?", Answer: "yes"},
			},
		},
		{
			Subject: "Alan Turing",
			Aliases: []string{"Turing"},
			Questions: []TriviaQuestion{
				{ID: "turing-1", Text: "Was this person born in the 20th century?", Answer: "yes"},
				{ID: "turing-2", Text: "Did this person work on codebreaking in wartime?", Answer: "yes"},
				{ID: "turing-3", Text: "Is this person known mainly as a painter?", Answer: "no"},
				{ID: "turing-4", Text: "Is a famous test of machine intelligence named after this person?", Answer: "yes"},
				{ID: "turing-5", Text: "Was this person American?", Answer: "no"},
				{ID: "turing-6", Text: "Did this person run marathons?", Answer: "yes"},
			},
		},
		{
			Subject: "Marie Curie",
			Aliases: []string{"Curie", "Maria Sklodowska"},
			Questions: []TriviaQuestion{
				{ID: "curie-1", Text: "Did this person win a Nobel Prize?", Answer: "yes"},
				{ID: "curie-2", Text: "Did this person win more than one Nobel Prize?", Answer: "yes"},
				{ID: "curie-3", Text: "Was this person born in France?", Answer: "no"},
				{ID: "curie-4", Text: "Is this person known for work on radioactivity?", Answer: "yes"},
				{ID: "curie-5", Text: "Was this person a composer?", Answer: "no"},
				{ID: "curie-6", Text: "Is a chemical element named after this person?", Answer: "yes"},
			},
		},
	}}
}
