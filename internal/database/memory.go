// internal/database/memory.go
package database

import (
	"context"
	"sort"
	"sync"

	"github.com/jason-s-yu/codebreak/internal/models"
)

// MemoryStore implements the same operations as Store without a database.
// It backs local development when DATABASE_URL is unset, and tests.
type MemoryStore struct {
	mu        sync.Mutex
	players   map[string]models.PlayerProfile
	inventory map[string]map[string]int
	matches   []models.MatchRecord

	// StarterStock is granted per item kind the first time a player's
	// inventory is touched.
	StarterStock map[string]int
}

func NewMemoryStore(starter map[string]int) *MemoryStore {
	return &MemoryStore{
		players:      make(map[string]models.PlayerProfile),
		inventory:    make(map[string]map[string]int),
		StarterStock: starter,
	}
}

func (m *MemoryStore) LoadPlayer(_ context.Context, id string) (models.PlayerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[id]; ok {
		return p, nil
	}
	return models.NewPlayerProfile(id, ""), nil
}

func (m *MemoryStore) SaveRating(_ context.Context, p models.PlayerProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.players[p.ID]; ok && p.Name == "" {
		p.Name = old.Name
	}
	m.players[p.ID] = p
	return nil
}

func (m *MemoryStore) SaveMatchRecord(_ context.Context, rec models.MatchRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.matches {
		if existing.ID == rec.ID {
			return nil
		}
	}
	m.matches = append(m.matches, rec)
	return nil
}

func (m *MemoryStore) SaveMatchRecords(ctx context.Context, recs []models.MatchRecord) error {
	for _, rec := range recs {
		if err := m.SaveMatchRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Matches returns every stored record in insertion order.
func (m *MemoryStore) Matches() []models.MatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.MatchRecord, len(m.matches))
	copy(out, m.matches)
	return out
}

func (m *MemoryStore) stockUnsafe(playerID string) map[string]int {
	inv, ok := m.inventory[playerID]
	if !ok {
		inv = make(map[string]int, len(m.StarterStock))
		for k, v := range m.StarterStock {
			inv[k] = v
		}
		m.inventory[playerID] = inv
	}
	return inv
}

func (m *MemoryStore) Consume(_ context.Context, playerID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.stockUnsafe(playerID)
	if inv[itemID] <= 0 {
		return models.ErrItemOutOfStock
	}
	inv[itemID]--
	return nil
}

func (m *MemoryStore) Grant(_ context.Context, playerID, itemID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stockUnsafe(playerID)[itemID] += n
	return nil
}

func (m *MemoryStore) Inventory(_ context.Context, playerID string) ([]models.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []models.InventoryItem
	for id, q := range m.stockUnsafe(playerID) {
		if q > 0 {
			items = append(items, models.InventoryItem{PlayerID: playerID, ItemID: id, Quantity: q})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}
