// internal/session/items.go
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/sirupsen/logrus"
)

// Items are used in three steps: reserve under the room lock, debit the
// inventory with the lock released, then apply under the lock again. A room
// that moved on in between gets the item refunded.

func (h *Handler) consume(ctx context.Context, playerID string, kind game.ItemKind) error {
	if h.inventory == nil {
		return nil
	}
	if err := h.inventory.Consume(ctx, playerID, string(kind)); err != nil {
		if errors.Is(err, models.ErrItemOutOfStock) {
			return err
		}
		return fmt.Errorf("consume %s: %w", kind, err)
	}
	return nil
}

func (h *Handler) refund(ctx context.Context, playerID string, kind game.ItemKind) {
	if h.inventory == nil {
		return
	}
	if err := h.inventory.Grant(ctx, playerID, string(kind), 1); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"player": playerID,
			"item":   kind,
		}).Error("failed to refund item")
	}
}

func (h *Handler) reserveDuelItemUnsafe(seat *DuelSeat, kind game.ItemKind) error {
	r := seat.Room
	if r.State != room.StatePlaying {
		return room.ErrNotPlaying
	}
	if !r.Rule.UsesDigits() || !kind.InDuel() {
		return fmt.Errorf("%w: %s", game.ErrItemNotAllowed, kind)
	}
	if !r.Turn.Holds(seat.Role) {
		return ErrNotYourTurn
	}
	if r.ItemUsed[seat.Role] != "" || r.ItemPending[seat.Role] {
		return ErrItemUsed
	}
	r.ItemPending[seat.Role] = true
	return nil
}

func (h *Handler) useDuelItem(ctx context.Context, seat *DuelSeat, itemID string) {
	kind, err := game.ParseItemKind(itemID)
	if err != nil {
		seat.Conn.WriteError(Describe(err))
		return
	}

	r := seat.Room
	r.Mu.Lock()
	if !seat.currentUnsafe() {
		r.Mu.Unlock()
		return
	}
	if err := h.reserveDuelItemUnsafe(seat, kind); err != nil {
		r.Mu.Unlock()
		seat.Conn.WriteError(Describe(err))
		return
	}
	playerID := r.Slots[seat.Role].PlayerID
	r.Mu.Unlock()

	if err := h.consume(ctx, playerID, kind); err != nil {
		r.Mu.Lock()
		delete(r.ItemPending, seat.Role)
		r.Mu.Unlock()
		seat.Conn.WriteError(Describe(err))
		return
	}

	r.Mu.Lock()
	applied := h.applyDuelItemUnsafe(seat, kind)
	r.Mu.Unlock()

	if !applied {
		h.refund(ctx, playerID, kind)
	}
}

// applyDuelItemUnsafe resolves a reserved item. It reports false when the
// room moved on since the reservation and nothing was applied.
func (h *Handler) applyDuelItemUnsafe(seat *DuelSeat, kind game.ItemKind) bool {
	r := seat.Room
	delete(r.ItemPending, seat.Role)
	if r.State != room.StatePlaying || !seat.currentUnsafe() {
		seat.Conn.WriteError(Describe(room.ErrNotPlaying))
		return false
	}

	eff, err := game.ApplyDuelItem(kind, r.Codes[seat.Role.Opponent()], seat.Role, r.Reveals[seat.Role], r.Rng)
	if err != nil {
		seat.Conn.WriteError(Describe(err))
		return false
	}
	r.ItemUsed[seat.Role] = kind
	now := h.now()
	r.TouchUnsafe(now)

	switch {
	case eff.DeltaSeconds != 0:
		r.Turn.Extend(eff.TargetRole, eff.DeltaSeconds)
	case eff.GuessCap > 0:
		r.Turn.CapNext(eff.TargetRole, eff.GuessCap)
	}

	msg := turnFields(map[string]interface{}{
		"type":   "item_used",
		"role":   seat.Role,
		"itemId": kind,
	}, "turn", r.Turn.Snapshot())
	if !eff.Private() {
		msg["effect"] = eff
	}
	r.BroadcastAllUnsafe(msg)
	if eff.Private() {
		seat.Conn.Write(map[string]interface{}{
			"type":   "item_effect",
			"effect": eff,
		})
	}

	h.logger.WithFields(logrus.Fields{"roomId": r.ID, "role": seat.Role, "item": kind}).Info("duel item used")
	return true
}

func (h *Handler) reserveFreeItemUnsafe(r *room.FreeRoom, p *room.FreeParticipant, kind game.ItemKind) error {
	if r.State != room.StatePlaying {
		return room.ErrNotPlaying
	}
	if !kind.InFree() {
		return fmt.Errorf("%w: %s", game.ErrItemNotAllowed, kind)
	}
	if p.Eliminated {
		return room.ErrEliminated
	}
	if p.ItemsUsed[kind] || p.ItemsPending[kind] {
		return ErrItemUsed
	}
	p.ItemsPending[kind] = true
	return nil
}

func (h *Handler) useFreeItem(ctx context.Context, seat *FreeSeat, itemID string) {
	kind, err := game.ParseItemKind(itemID)
	if err != nil {
		seat.Conn.WriteError(Describe(err))
		return
	}

	r := seat.Room
	r.Mu.Lock()
	p := seat.participantUnsafe()
	if p == nil {
		r.Mu.Unlock()
		return
	}
	if err := h.reserveFreeItemUnsafe(r, p, kind); err != nil {
		r.Mu.Unlock()
		seat.Conn.WriteError(Describe(err))
		return
	}
	round := r.Round
	r.Mu.Unlock()

	if err := h.consume(ctx, seat.PlayerID, kind); err != nil {
		r.Mu.Lock()
		delete(p.ItemsPending, kind)
		r.Mu.Unlock()
		seat.Conn.WriteError(Describe(err))
		return
	}

	r.Mu.Lock()
	applied := h.applyFreeItemUnsafe(seat, kind, round)
	r.Mu.Unlock()

	if !applied {
		h.refund(ctx, seat.PlayerID, kind)
	}
}

func (h *Handler) applyFreeItemUnsafe(seat *FreeSeat, kind game.ItemKind, round int) bool {
	r := seat.Room
	p := seat.participantUnsafe()
	if p == nil {
		return false
	}
	delete(p.ItemsPending, kind)
	// a restart in between replaces the secret the item was bought for
	if r.State != room.StatePlaying || r.Round != round || p.Eliminated {
		seat.Conn.WriteError(Describe(room.ErrNotPlaying))
		return false
	}

	eff, err := game.ApplyFreeItem(kind, r.Secret, p.Reveal, r.Rng)
	if err != nil {
		seat.Conn.WriteError(Describe(err))
		return false
	}
	p.ItemsUsed[kind] = true
	p.BonusAttempts += eff.ExtraAttempts
	r.LastActive = h.now()

	seat.Conn.Write(map[string]interface{}{
		"type":      "item_effect",
		"effect":    eff,
		"remaining": r.Remaining(p),
	})
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":     "item_used",
		"playerId": p.ID,
		"itemId":   kind,
		"players":  r.PlayersPayloadUnsafe(),
	})

	h.logger.WithFields(logrus.Fields{"roomId": r.ID, "player": p.ID, "item": kind}).Info("free item used")
	return true
}
