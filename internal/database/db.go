// internal/database/db.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/codebreak/internal/models"
)

// Store is the PostgreSQL-backed player, inventory and match store.
type Store struct {
	Pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

// LoadPlayer returns the stored profile, or a default one for players that
// have never been rated.
func (s *Store) LoadPlayer(ctx context.Context, id string) (models.PlayerProfile, error) {
	p := models.PlayerProfile{ID: id}
	err := s.Pool.QueryRow(ctx,
		`SELECT name, mmr, phi, sigma FROM players WHERE id = $1`, id,
	).Scan(&p.Name, &p.MMR, &p.Phi, &p.Sigma)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NewPlayerProfile(id, ""), nil
	}
	if err != nil {
		return models.PlayerProfile{}, fmt.Errorf("load player %s: %w", id, err)
	}
	return p, nil
}

// SaveRating upserts a player's rating.
func (s *Store) SaveRating(ctx context.Context, p models.PlayerProfile) error {
	q := `
		INSERT INTO players (id, name, mmr, phi, sigma, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET mmr = EXCLUDED.mmr,
		    phi = EXCLUDED.phi,
		    sigma = EXCLUDED.sigma,
		    name = COALESCE(NULLIF(EXCLUDED.name, ''), players.name),
		    updated_at = NOW()
	`
	if _, err := s.Pool.Exec(ctx, q, p.ID, p.Name, p.MMR, p.Phi, p.Sigma); err != nil {
		return fmt.Errorf("save rating for %s: %w", p.ID, err)
	}
	return nil
}

// SaveMatchRecord persists one finished match in a single transaction.
func (s *Store) SaveMatchRecord(ctx context.Context, rec models.MatchRecord) error {
	return s.SaveMatchRecords(ctx, []models.MatchRecord{rec})
}

// SaveMatchRecords persists a batch of finished matches in a single
// transaction. Records already stored are skipped.
func (s *Store) SaveMatchRecords(ctx context.Context, recs []models.MatchRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := rec.Validate(); err != nil {
				return err
			}
			if err := insertMatchTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("match %s: %w", rec.ID, rejected(err))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save match records: %w", err)
	}
	return nil
}

// rejected tags data and constraint errors with models.ErrRecordRejected.
func rejected(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return fmt.Errorf("%w: %w", models.ErrRecordRejected, err)
	}
	return err
}

func insertMatchTx(ctx context.Context, tx pgx.Tx, rec models.MatchRecord) error {
	var winner *string
	if rec.WinnerID != "" {
		winner = &rec.WinnerID
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO matches (id, room_id, kind, rule, round, started_at, ended_at, winner_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.RoomID, rec.Kind, rec.Rule, rec.Round, rec.StartedAt, rec.EndedAt, winner, rec.Reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range rec.Participants {
		batch.Queue(`
			INSERT INTO match_participants (match_id, player_id, name, role, code, attempts, best_score, rank, item_used)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, rec.ID, p.PlayerID, p.Name, p.Role, p.Code, p.Attempts, p.BestScore, p.Rank, p.ItemUsed)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert participants: %w", err)
	}

	if len(rec.Guesses) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(rec.Guesses))
	for i, g := range rec.Guesses {
		rows[i] = []interface{}{rec.ID, i, g.PlayerID, g.Guess, g.A, g.B, g.At}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"match_guesses"},
		[]string{"match_id", "seq", "player_id", "guess", "a", "b", "at_ms"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy guesses: %w", err)
	}
	return nil
}

// Consume removes one unit of itemID from playerID's inventory.
func (s *Store) Consume(ctx context.Context, playerID, itemID string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE inventory SET quantity = quantity - 1
		WHERE player_id = $1 AND item_id = $2 AND quantity > 0
	`, playerID, itemID)
	if err != nil {
		return fmt.Errorf("consume %s for %s: %w", itemID, playerID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrItemOutOfStock
	}
	return nil
}

// Grant adds n units of itemID to playerID's inventory.
func (s *Store) Grant(ctx context.Context, playerID, itemID string, n int) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO inventory (player_id, item_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id, item_id) DO UPDATE
		SET quantity = inventory.quantity + EXCLUDED.quantity
	`, playerID, itemID, n)
	if err != nil {
		return fmt.Errorf("grant %s to %s: %w", itemID, playerID, err)
	}
	return nil
}

// Inventory lists a player's items.
func (s *Store) Inventory(ctx context.Context, playerID string) ([]models.InventoryItem, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT player_id, item_id, quantity FROM inventory
		WHERE player_id = $1 AND quantity > 0
		ORDER BY item_id
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list inventory for %s: %w", playerID, err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.InventoryItem])
	if err != nil {
		return nil, fmt.Errorf("scan inventory for %s: %w", playerID, err)
	}
	return items, nil
}
