// internal/room/registry.go
package room

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/sirupsen/logrus"
)

// Kind distinguishes the two room variants.
type Kind string

const (
	KindDuel Kind = "duel"
	KindFree Kind = "free"
)

var (
	ErrUnknownKind      = errors.New("unknown room kind")
	ErrIDSpaceExhausted = errors.New("could not allocate a free room id")
)

// maxIDAttempts bounds collision retries so a saturated id space surfaces
// as an error instead of a spin.
const maxIDAttempts = 10_000

// Room is implemented by *DuelRoom and *FreeRoom.
type Room interface {
	RoomID() string
	Kind() Kind

	idle(now time.Time, ttl time.Duration) bool
	shutdown()
}

// Limits bounds what a create request may ask for.
type Limits struct {
	GuessLimitMin     int
	GuessLimitMax     int
	GuessLimitDefault int
	FreeCapacity      int
	FreeMinPlayers    int
	TurnSeconds       int
	MinTurnSeconds    int
	TriviaPoolSize    int
}

func DefaultLimits() Limits {
	return Limits{
		GuessLimitMin:     3,
		GuessLimitMax:     20,
		GuessLimitDefault: 10,
		FreeCapacity:      8,
		FreeMinPlayers:    2,
		TurnSeconds:       60,
		MinTurnSeconds:    10,
		TriviaPoolSize:    3,
	}
}

// ClampGuessLimit applies the default to n <= 0 and clamps everything else
// into [GuessLimitMin, GuessLimitMax].
func (l Limits) ClampGuessLimit(n int) int {
	if n <= 0 {
		n = l.GuessLimitDefault
	}
	return min(max(n, l.GuessLimitMin), l.GuessLimitMax)
}

// Options carries the create-request parameters. Rule applies to duel
// rooms; the rest to free rooms.
type Options struct {
	Rule       game.CodeRule
	Name       string
	Password   string
	GuessLimit int
}

// Registry owns every live room in the process.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]Room

	limits Limits
	trivia game.TriviaBank
	logger *logrus.Logger

	now       func() time.Time
	newRng    func() *mrand.Rand
	newDuelID func() (string, error)
	newFreeID func() (string, error)
}

// RegistryOption customizes a Registry, mostly for tests.
type RegistryOption func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(g *Registry) { g.now = now }
}

// WithIDGenerators replaces the duel and free id generators. A nil
// generator keeps the default.
func WithIDGenerators(duel, free func() (string, error)) RegistryOption {
	return func(g *Registry) {
		if duel != nil {
			g.newDuelID = duel
		}
		if free != nil {
			g.newFreeID = free
		}
	}
}

// WithRand replaces the per-room random source factory.
func WithRand(newRng func() *mrand.Rand) RegistryOption {
	return func(g *Registry) { g.newRng = newRng }
}

func NewRegistry(limits Limits, trivia game.TriviaBank, logger *logrus.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	g := &Registry{
		rooms:     make(map[string]Room),
		limits:    limits,
		trivia:    trivia,
		logger:    logger,
		now:       time.Now,
		newRng:    seededRand,
		newDuelID: DuelID,
		newFreeID: FreeID,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limits returns the configured bounds.
func (g *Registry) Limits() Limits { return g.limits }

// DuelID returns a 48-bit random hex token.
func DuelID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// FreeID returns a six-digit numeric code.
func FreeID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func seededRand() *mrand.Rand {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	return mrand.New(mrand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}

// insert generates ids until one is free and stores the room built for it,
// all under a single critical section.
func (g *Registry) insert(gen func() (string, error), build func(id string) Room) (Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := gen()
		if err != nil {
			return nil, fmt.Errorf("generate room id: %w", err)
		}
		if _, taken := g.rooms[id]; taken {
			g.logger.WithField("roomId", id).Debug("room id collision, retrying")
			continue
		}
		r := build(id)
		g.rooms[id] = r
		return r, nil
	}
	return nil, ErrIDSpaceExhausted
}

// Create is the kind-agnostic entry point used by the HTTP layer.
func (g *Registry) Create(kind Kind, opts Options) (string, Room, error) {
	switch kind {
	case KindDuel:
		r, err := g.CreateDuel(opts.Rule)
		if err != nil {
			return "", nil, err
		}
		return r.ID, r, nil
	case KindFree:
		r, err := g.CreateFree(opts.Name, opts.Password, opts.GuessLimit)
		if err != nil {
			return "", nil, err
		}
		return r.ID, r, nil
	}
	return "", nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// CreateDuel registers a waiting duel room. Trivia rooms draw their hidden
// subject up front.
func (g *Registry) CreateDuel(rule game.CodeRule) (*DuelRoom, error) {
	if rule == "" {
		rule = game.RuleUnique
	}
	now := g.now()
	rng := g.newRng()

	var board *game.TriviaBoard
	if rule == game.RuleTrivia {
		if g.trivia == nil {
			return nil, game.ErrEmptyBank
		}
		set, err := g.trivia.Draw(rng)
		if err != nil {
			return nil, fmt.Errorf("draw trivia subject: %w", err)
		}
		board = game.NewTriviaBoard(set, g.limits.TriviaPoolSize, rng)
	}

	turn := game.NewTurnScheduler(g.limits.TurnSeconds, g.limits.MinTurnSeconds)
	r, err := g.insert(g.newDuelID, func(id string) Room {
		d := NewDuelRoom(id, rule, turn, rng, now)
		d.Trivia = board
		return d
	})
	if err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{"roomId": r.RoomID(), "rule": rule}).Info("duel room created")
	return r.(*DuelRoom), nil
}

// CreateFree registers a waiting free room. The password is stored only as
// an argon2id hash.
func (g *Registry) CreateFree(name, password string, guessLimit int) (*FreeRoom, error) {
	hash, err := auth.HashRoomPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash room password: %w", err)
	}
	limit := g.limits.ClampGuessLimit(guessLimit)
	now := g.now()
	rng := g.newRng()

	r, err := g.insert(g.newFreeID, func(id string) Room {
		if name == "" {
			name = "Room " + id
		}
		return NewFreeRoom(id, name, hash, limit, g.limits.FreeCapacity, g.limits.FreeMinPlayers, rng, now)
	})
	if err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"roomId":     r.RoomID(),
		"guessLimit": limit,
		"private":    hash != "",
	}).Info("free room created")
	return r.(*FreeRoom), nil
}

func (g *Registry) Get(id string) (Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	return r, ok
}

// Duel looks up a duel room by id.
func (g *Registry) Duel(id string) (*DuelRoom, bool) {
	r, ok := g.Get(id)
	if !ok {
		return nil, false
	}
	d, ok := r.(*DuelRoom)
	return d, ok
}

// Free looks up a free room by id.
func (g *Registry) Free(id string) (*FreeRoom, bool) {
	r, ok := g.Get(id)
	if !ok {
		return nil, false
	}
	f, ok := r.(*FreeRoom)
	return f, ok
}

// Delete removes id unconditionally.
func (g *Registry) Delete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, id)
}

// Remove deletes r only if it is still the room registered under its id.
func (g *Registry) Remove(r Room) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.rooms[r.RoomID()]; ok && cur == r {
		delete(g.rooms, r.RoomID())
		return true
	}
	return false
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

func (g *Registry) snapshot() []Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	return out
}

// ListFree returns the free rooms still accepting players, ordered by id.
func (g *Registry) ListFree() []Summary {
	var out []Summary
	for _, r := range g.snapshot() {
		f, ok := r.(*FreeRoom)
		if !ok {
			continue
		}
		s := f.summary()
		if s.State == StateWaiting && s.Players < s.Capacity {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sweep discards rooms that have had no live connection and no activity for
// at least idle. Room locks are never taken while holding the registry lock.
func (g *Registry) Sweep(idle time.Duration) int {
	now := g.now()
	swept := 0
	for _, r := range g.snapshot() {
		if !r.idle(now, idle) {
			continue
		}
		if g.Remove(r) {
			r.shutdown()
			swept++
			g.logger.WithFields(logrus.Fields{"roomId": r.RoomID(), "kind": r.Kind()}).Info("idle room discarded")
		}
	}
	return swept
}

// RunJanitor sweeps every interval until ctx is done.
func (g *Registry) RunJanitor(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := g.Sweep(idle); n > 0 {
				g.logger.WithField("rooms", n).Debug("janitor sweep")
			}
		}
	}
}
