package resolver

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/rng"
)

const (
	LimboMinTarget     = 1.01
	LimboMaxMultiplier = 1_000_000.0
)

// LimboResult maps u in [0,1) onto the inverse-odds curve 1/(1-u),
// capped at LimboMaxMultiplier.
func LimboResult(u float64) float64 {
	if u >= 1 {
		return LimboMaxMultiplier
	}
	v := 1 / (1 - u)
	if v > LimboMaxMultiplier {
		return LimboMaxMultiplier
	}
	return v
}

func Limbo(amount decimal.Decimal, p models.LimboParams, src rng.Source) (*models.BetResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if math.IsNaN(p.Target) || p.Target < LimboMinTarget || p.Target > LimboMaxMultiplier {
		return nil, fmt.Errorf("%w: limbo target %.2f outside [%.2f,%.0f]", ErrInvalidParameter, p.Target, LimboMinTarget, LimboMaxMultiplier)
	}

	// the player sees two decimals, so the bet is decided on those
	result := math.Floor(LimboResult(src.Float64())*100) / 100
	win := result >= p.Target

	multiplier := 0.0
	if win {
		multiplier = p.Target * (1 - HouseEdge)
	}

	return newResult(models.ModeLimbo, amount, win, multiplier, models.LimboPayload{
		Target: p.Target,
		Result: result,
	}), nil
}
