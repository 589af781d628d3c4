// internal/session/handler.go
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/sirupsen/logrus"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoleTaken      = errors.New("role is already taken")
	ErrAlreadySeated  = errors.New("you already hold the other seat in this room")
	ErrNameRequired   = errors.New("display name is required")
	ErrPlayerRequired = errors.New("player id is required")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrItemUsed       = errors.New("item already used")
	ErrWrongVariant   = errors.New("message does not apply to this room")
	ErrUnknownMessage = errors.New("unknown message type")
)

// PlayerStore loads and saves rating profiles.
type PlayerStore interface {
	LoadPlayer(ctx context.Context, id string) (models.PlayerProfile, error)
	SaveRating(ctx context.Context, p models.PlayerProfile) error
}

// MatchRecorder receives every finished match.
type MatchRecorder interface {
	SaveMatchRecord(ctx context.Context, rec models.MatchRecord) error
}

// Inventory debits consumable items. Grant is used to refund an item whose
// effect could not be applied.
type Inventory interface {
	Consume(ctx context.Context, playerID, itemID string) error
	Grant(ctx context.Context, playerID, itemID string, n int) error
}

// Settings are the gameplay knobs the handler needs beyond registry limits.
type Settings struct {
	TriviaCooldown time.Duration
	PersistTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		TriviaCooldown: 10 * time.Second,
		PersistTimeout: 10 * time.Second,
	}
}

// Handler binds sockets to rooms and applies protocol messages to them.
// Room state is only touched under the room's Mu; collaborator I/O always
// happens after the lock is released.
type Handler struct {
	registry  *room.Registry
	logger    *logrus.Logger
	players   PlayerStore
	recorders []MatchRecorder
	inventory Inventory
	settings  Settings
	now       func() time.Time

	wg sync.WaitGroup
}

type Option func(*Handler)

func WithPlayers(p PlayerStore) Option {
	return func(h *Handler) { h.players = p }
}

// WithRecorders appends match sinks. Each finished match is offered to all
// of them in order.
func WithRecorders(rs ...MatchRecorder) Option {
	return func(h *Handler) {
		for _, r := range rs {
			if r != nil {
				h.recorders = append(h.recorders, r)
			}
		}
	}
}

// WithInventory enables inventory-backed items. Without one, items are free.
func WithInventory(inv Inventory) Option {
	return func(h *Handler) { h.inventory = inv }
}

func WithSettings(s Settings) Option {
	return func(h *Handler) { h.settings = s }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(registry *room.Registry, logger *logrus.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{
		registry: registry,
		logger:   logger,
		settings: DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Registry() *room.Registry { return h.registry }

// Wait blocks until every in-flight match persistence has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func messageType(packet map[string]interface{}) string {
	t, _ := packet["type"].(string)
	return t
}

func stringField(packet map[string]interface{}, key string) string {
	switch v := packet[key].(type) {
	case string:
		return v
	case float64:
		// clients sometimes send codes as JSON numbers; anything that is not
		// a whole number in 0..9999 is left for ValidateCode to reject
		if v != math.Trunc(v) || v < 0 || v >= 10000 {
			return ""
		}
		return fmt.Sprintf("%04d", int(v))
	}
	return ""
}

// Describe turns an error into the message shown to the player.
func Describe(err error) string {
	switch {
	case errors.Is(err, game.ErrCodeFormat):
		return "Code must be exactly 4 digits"
	case errors.Is(err, game.ErrCodeRepeats):
		return "Digits must all be different in this room"
	case errors.Is(err, room.ErrCodeAlreadySet):
		return "Your code is already set"
	case errors.Is(err, room.ErrNotWaiting):
		return "The game has already started"
	case errors.Is(err, room.ErrNotPlaying):
		return "The game is not in progress"
	case errors.Is(err, ErrNotYourTurn):
		return "It is not your turn"
	case errors.Is(err, models.ErrItemOutOfStock):
		return "You have none of that item left"
	case errors.Is(err, auth.ErrWrongPassword):
		return "Wrong room password"
	}
	msg := err.Error()
	if msg == "" {
		return "Request rejected"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func turnFields(msg map[string]interface{}, key string, info game.TurnInfo) map[string]interface{} {
	msg[key] = info.Holder
	msg["turnStartAt"] = info.StartedAt
	msg["turnSeconds"] = info.Seconds
	if info.GuessCap > 0 {
		msg["guessCap"] = info.GuessCap
	}
	return msg
}
