// internal/rating/glicko2.go
package rating

import (
	"math"

	"github.com/jason-s-yu/codebreak/internal/models"
)

const (
	// GlickoScale converts between the 1500-based display scale and Glicko-2's mu.
	GlickoScale = 173.7178
	// DefaultMu is the baseline rating on the display scale.
	DefaultMu = 1500.0
	// DefaultPhi is the baseline rating deviation on the display scale.
	DefaultPhi = 350.0
	// Tau constrains volatility changes.
	Tau = 0.5
	// Epsilon is the convergence tolerance of the volatility iteration.
	Epsilon = 0.000001

	// minPhi keeps deviation from collapsing after many matches.
	minPhi = 30.0
)

// Glicko2Rating is a rating in Glicko-2 space.
type Glicko2Rating struct {
	Mu    float64
	Phi   float64
	Sigma float64
}

// NewGlicko2Rating converts a display-scale rating, deviation and volatility.
func NewGlicko2Rating(mmr, rd, sigma float64) Glicko2Rating {
	if rd <= 0 {
		rd = DefaultPhi
	}
	if sigma <= 0 {
		sigma = models.DefaultSigma
	}
	return Glicko2Rating{
		Mu:    (mmr - DefaultMu) / GlickoScale,
		Phi:   rd / GlickoScale,
		Sigma: sigma,
	}
}

// FromProfile reads a player's stored rating.
func FromProfile(p models.PlayerProfile) Glicko2Rating {
	return NewGlicko2Rating(float64(p.MMR), p.Phi, p.Sigma)
}

// ToMMR converts Mu back to the display scale.
func (r Glicko2Rating) ToMMR() float64 {
	return r.Mu*GlickoScale + DefaultMu
}

// Apply writes r back onto a profile.
func (r Glicko2Rating) Apply(p models.PlayerProfile) models.PlayerProfile {
	p.MMR = int(math.Round(r.ToMMR()))
	p.Phi = math.Max(r.Phi*GlickoScale, minPhi)
	p.Sigma = r.Sigma
	return p
}

// updateGlicko performs a single-match Glicko-2 update of r against rOpp,
// given a score in [0..1].
func updateGlicko(r, rOpp Glicko2Rating, score float64) Glicko2Rating {
	gVal := g(rOpp.Phi)
	EVal := E(r.Mu, rOpp.Mu, rOpp.Phi)

	v := 1.0 / (gVal * gVal * EVal * (1 - EVal))
	delta := v * gVal * (score - EVal)

	a := math.Log(r.Sigma * r.Sigma)
	A := a
	var B float64
	if delta*delta > r.Phi*r.Phi+v {
		B = math.Log(delta*delta - r.Phi*r.Phi - v)
	} else {
		k := 1.0
		for f(a-k*Tau, r.Phi, v, delta, a) < 0 {
			k++
		}
		B = a - k*Tau
	}

	fA, fB := f(A, r.Phi, v, delta, a), f(B, r.Phi, v, delta, a)
	for i := 0; i < 100 && math.Abs(B-A) > Epsilon; i++ {
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C, r.Phi, v, delta, a)
		if fC*fB <= 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}

	newSigma := math.Exp(A / 2)
	phiStar := math.Sqrt(r.Phi*r.Phi + newSigma*newSigma)
	phiPrime := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	muPrime := r.Mu + phiPrime*phiPrime*gVal*(score-EVal)

	return Glicko2Rating{Mu: muPrime, Phi: phiPrime, Sigma: newSigma}
}

// g is 1/sqrt(1+3phi^2/pi^2).
func g(phi float64) float64 {
	return 1.0 / math.Sqrt(1.0+3.0*phi*phi/math.Pi/math.Pi)
}

// E is the expected score of mu against (mu2, phi2).
func E(mu, mu2, phi2 float64) float64 {
	return 1.0 / (1.0 + math.Exp(-g(phi2)*(mu-mu2)))
}

// f is the volatility root-finding function.
func f(x, phi, v, delta, a float64) float64 {
	ex := math.Exp(x)
	num := ex * (delta*delta - phi*phi - v - ex)
	den := 2.0 * (phi*phi + v + ex) * (phi*phi + v + ex)
	return (num / den) - ((x - a) / (Tau * Tau))
}
