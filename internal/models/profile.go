// internal/models/profile.go
package models

// Default rating values for players that have never finished a match.
const (
	DefaultMMR   = 1500
	DefaultPhi   = 350.0
	DefaultSigma = 0.06
)

// PlayerProfile is the persisted rating state of a player.
type PlayerProfile struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	MMR   int     `json:"mmr"`
	Phi   float64 `json:"phi"`
	Sigma float64 `json:"sigma"`
}

// NewPlayerProfile returns a profile at the default rating.
func NewPlayerProfile(id, name string) PlayerProfile {
	return PlayerProfile{
		ID:    id,
		Name:  name,
		MMR:   DefaultMMR,
		Phi:   DefaultPhi,
		Sigma: DefaultSigma,
	}
}

// InventoryItem is a player's stock of one consumable item kind.
type InventoryItem struct {
	PlayerID string `json:"playerId"`
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}
