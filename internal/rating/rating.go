// internal/rating/rating.go
package rating

import (
	"sort"

	"github.com/jason-s-yu/codebreak/internal/models"
)

// UpdateDuel rates a decided duel: the winner scores 1 against the loser's
// pre-match rating and vice versa.
func UpdateDuel(winner, loser models.PlayerProfile) (models.PlayerProfile, models.PlayerProfile) {
	w, l := FromProfile(winner), FromProfile(loser)
	return updateGlicko(w, l, 1).Apply(winner), updateGlicko(l, w, 0).Apply(loser)
}

// FinalizeRatings rates a free-room round from final ranks (1 is best).
// Ranks become fractions in [0..1] with ties sharing their average
// position, and each player is updated against the mean rating of the rest.
// Fewer than two players leaves everything unchanged.
func FinalizeRatings(players []models.PlayerProfile, ranks map[string]int) []models.PlayerProfile {
	out := make([]models.PlayerProfile, len(players))
	copy(out, players)
	if len(players) < 2 {
		return out
	}

	order := make([]int, len(players))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return ranks[players[order[i]].ID] < ranks[players[order[j]].ID]
	})

	frac := make([]float64, len(players))
	last := float64(len(players) - 1)
	for i := 0; i < len(order); {
		j := i + 1
		for j < len(order) && ranks[players[order[j]].ID] == ranks[players[order[i]].ID] {
			j++
		}
		// players i..j-1 are tied
		avg := float64(i+j-1) / 2
		for k := i; k < j; k++ {
			frac[order[k]] = 1 - avg/last
		}
		i = j
	}

	before := make([]Glicko2Rating, len(players))
	var total float64
	for i, p := range players {
		before[i] = FromProfile(p)
		total += before[i].Mu
	}
	for i, p := range players {
		opp := Glicko2Rating{
			Mu:    (total - before[i].Mu) / last,
			Phi:   DefaultPhi / GlickoScale,
			Sigma: models.DefaultSigma,
		}
		out[i] = updateGlicko(before[i], opp, frac[i]).Apply(p)
	}
	return out
}
