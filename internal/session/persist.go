// internal/session/persist.go
package session

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/rating"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// persist hands a finished match to every recorder and then applies rating
// changes, in the background. Failures are logged; the game is already over.
func (h *Handler) persist(rec models.MatchRecord, rate func(ctx context.Context) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.settings.PersistTimeout)
		defer cancel()

		log := h.logger.WithFields(logrus.Fields{
			"matchId": rec.ID.String(),
			"roomId":  rec.RoomID,
			"kind":    rec.Kind,
		})
		for _, r := range h.recorders {
			if err := r.SaveMatchRecord(ctx, rec); err != nil {
				log.WithError(err).Warn("failed to record match")
			}
		}
		if rate != nil {
			if err := rate(ctx); err != nil {
				log.WithError(err).Warn("failed to update ratings")
			}
		}
		log.Debug("match persisted")
	}()
}

func (h *Handler) rateDuel(winnerID, loserID string) func(ctx context.Context) error {
	if h.players == nil || winnerID == "" || loserID == "" || winnerID == loserID {
		return nil
	}
	return func(ctx context.Context) error {
		winner, err := h.players.LoadPlayer(ctx, winnerID)
		if err != nil {
			return fmt.Errorf("load %s: %w", winnerID, err)
		}
		loser, err := h.players.LoadPlayer(ctx, loserID)
		if err != nil {
			return fmt.Errorf("load %s: %w", loserID, err)
		}
		winner, loser = rating.UpdateDuel(winner, loser)
		if err := h.players.SaveRating(ctx, winner); err != nil {
			return fmt.Errorf("save %s: %w", winnerID, err)
		}
		if err := h.players.SaveRating(ctx, loser); err != nil {
			return fmt.Errorf("save %s: %w", loserID, err)
		}
		return nil
	}
}

func (h *Handler) rateFree(ranking []game.RankEntry, names map[string]string) func(ctx context.Context) error {
	if h.players == nil || len(ranking) < 2 {
		return nil
	}
	return func(ctx context.Context) error {
		profiles := make([]models.PlayerProfile, len(ranking))
		ranks := make(map[string]int, len(ranking))

		g, gctx := errgroup.WithContext(ctx)
		for i, e := range ranking {
			ranks[e.ID] = e.Rank
			g.Go(func() error {
				p, err := h.players.LoadPlayer(gctx, e.ID)
				if err != nil {
					return fmt.Errorf("load %s: %w", e.ID, err)
				}
				if p.Name == "" {
					p.Name = names[e.ID]
				}
				profiles[i] = p
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, p := range rating.FinalizeRatings(profiles, ranks) {
			if err := h.players.SaveRating(ctx, p); err != nil {
				return fmt.Errorf("save %s: %w", p.ID, err)
			}
		}
		return nil
	}
}
