package network

import (
	"math"

	"github.com/nvandessel/gkmerge/internal/constants"
)

// AssetID identifies an asset within one Network.
type AssetID int

// Asset is an external tradable asset held in common by several banks.
// Its devaluation factor phi reflects fire-sale price impact.
type Asset struct {
	id        AssetID
	basePrice float64
	phi       float64
	law       DevaluationLaw
}

func newAsset(id AssetID, basePrice float64, law DevaluationLaw) *Asset {
	return &Asset{id: id, basePrice: basePrice, phi: 1, law: law}
}

// ID returns the asset's identifier.
func (a *Asset) ID() AssetID { return a.id }

// BasePrice returns the undevalued price.
func (a *Asset) BasePrice() float64 { return a.basePrice }

// Phi returns the current devaluation factor.
func (a *Asset) Phi() float64 { return a.phi }

// Price returns the effective price base_price * phi.
func (a *Asset) Price() float64 { return a.basePrice * a.phi }

// Law returns the devaluation law applied by Devaluate.
func (a *Asset) Law() DevaluationLaw { return a.law }

// Devaluate applies the asset's price-impact law for the given liquidated
// fraction and returns the new devaluation factor.
func (a *Asset) Devaluate(liquidatedFraction float64) float64 {
	return a.devaluateScaled(liquidatedFraction, 1)
}

// devaluateScaled applies strength of the law's price impact:
// phi *= 1 - strength*(1 - f(liquidatedFraction)). Strength 1 is the full law.
func (a *Asset) devaluateScaled(liquidatedFraction, strength float64) float64 {
	a.phi *= 1 - strength*(1-a.impact(liquidatedFraction))
	return a.phi
}

// impact returns the law's price multiplier f for a liquidated fraction.
func (a *Asset) impact(liquidatedFraction float64) float64 {
	if a.law == DevaluationIdentity {
		return liquidatedFraction
	}
	return math.Exp(-constants.DevaluationAlpha * liquidatedFraction)
}
