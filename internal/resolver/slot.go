package resolver

import (
	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/rng"
)

const (
	SlotRTP       = 0.96
	SlotWinChance = 0.30

	slotRows  = 3
	slotReels = 5
)

var slotSymbols = []string{"cherry", "lemon", "orange", "grape", "diamond", "star"}

// Slot settles on a flat win chance. The symbol grid is drawn after the
// outcome and is cosmetic.
func Slot(amount decimal.Decimal, src rng.Source) (*models.BetResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	win := src.Float64() < SlotWinChance
	multiplier := 0.0
	if win {
		multiplier = (1 + src.Float64()*10) * SlotRTP
	}

	grid := make([][]string, slotRows)
	for r := range grid {
		grid[r] = make([]string, slotReels)
		for c := range grid[r] {
			i := int(src.Float64() * float64(len(slotSymbols)))
			if i >= len(slotSymbols) {
				i = len(slotSymbols) - 1
			}
			grid[r][c] = slotSymbols[i]
		}
	}

	return newResult(models.ModeSlot, amount, win, multiplier, models.SlotPayload{Symbols: grid}), nil
}
