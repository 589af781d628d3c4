// internal/game/ranking.go
package game

import "sort"

// Contestant is a free-room participant's standing in the current round.
type Contestant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Attempts   int    `json:"submitCount"`
	BestScore  int    `json:"bestScore"`
	Eliminated bool   `json:"eliminated"`
}

// RankEntry is one row of the public scoreboard.
type RankEntry struct {
	Rank       int    `json:"rank"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	BestScore  int    `json:"bestScore"`
	Attempts   int    `json:"submitCount"`
	Eliminated bool   `json:"eliminated"`
}

// RecordAttempt counts one submitted guess and keeps the best exact score.
func RecordAttempt(c *Contestant, res Result) {
	c.Attempts++
	if res.A > c.BestScore {
		c.BestScore = res.A
	}
}

// Reset clears the per-round counters.
func (c *Contestant) Reset() {
	c.Attempts = 0
	c.BestScore = 0
	c.Eliminated = false
}

// AllEliminated is true iff there is at least one contestant and none of
// them can still guess.
func AllEliminated(cs []*Contestant) bool {
	if len(cs) == 0 {
		return false
	}
	for _, c := range cs {
		if !c.Eliminated {
			return false
		}
	}
	return true
}

// better orders by best score descending, then attempts ascending.
func better(a, b *Contestant) bool {
	if a.BestScore != b.BestScore {
		return a.BestScore > b.BestScore
	}
	return a.Attempts < b.Attempts
}

func sameStanding(a, b *Contestant) bool {
	return a.BestScore == b.BestScore && a.Attempts == b.Attempts
}

func sorted(cs []*Contestant) []*Contestant {
	out := make([]*Contestant, len(cs))
	copy(out, cs)
	// stable so equal standings keep join order
	sort.SliceStable(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}

// Rank returns the scoreboard. Contestants with identical standings share a
// rank.
func Rank(cs []*Contestant) []RankEntry {
	order := sorted(cs)
	out := make([]RankEntry, len(order))
	for i, c := range order {
		rank := i + 1
		if i > 0 && sameStanding(order[i-1], c) {
			rank = out[i-1].Rank
		}
		out[i] = RankEntry{
			Rank:       rank,
			ID:         c.ID,
			Name:       c.Name,
			BestScore:  c.BestScore,
			Attempts:   c.Attempts,
			Eliminated: c.Eliminated,
		}
	}
	return out
}

// DetermineWinner returns the single best contestant, or tie=true when the
// top two share the same (best score, attempts) pair.
func DetermineWinner(cs []*Contestant) (winnerID string, tie bool) {
	order := sorted(cs)
	switch len(order) {
	case 0:
		return "", false
	case 1:
		return order[0].ID, false
	}
	if sameStanding(order[0], order[1]) {
		return "", true
	}
	return order[0].ID, false
}
