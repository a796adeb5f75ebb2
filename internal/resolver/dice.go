package resolver

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/rng"
)

const (
	DiceMinTarget = 1
	DiceMaxTarget = 99
)

// DiceWinChance is the winning share of the 1..100 roll space, in percent.
func DiceWinChance(target int, isOver bool) float64 {
	if isOver {
		return float64(100 - target)
	}
	return float64(target)
}

// DiceMultiplier is the payout multiplier of a winning roll.
func DiceMultiplier(target int, isOver bool) float64 {
	return (100 / DiceWinChance(target, isOver)) * (1 - HouseEdge)
}

func Dice(amount decimal.Decimal, p models.DiceParams, src rng.Source) (*models.BetResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if p.Target < DiceMinTarget || p.Target > DiceMaxTarget {
		return nil, fmt.Errorf("%w: dice target %d outside [%d,%d]", ErrInvalidParameter, p.Target, DiceMinTarget, DiceMaxTarget)
	}

	roll := int(math.Floor(src.Float64()*100)) + 1
	if roll > 100 {
		roll = 100
	}

	win := (p.IsOver && roll > p.Target) || (!p.IsOver && roll < p.Target)

	multiplier := 0.0
	if win {
		multiplier = DiceMultiplier(p.Target, p.IsOver)
	}

	return newResult(models.ModeDice, amount, win, multiplier, models.DicePayload{
		Roll:      roll,
		Target:    p.Target,
		IsOver:    p.IsOver,
		WinChance: DiceWinChance(p.Target, p.IsOver),
	}), nil
}
