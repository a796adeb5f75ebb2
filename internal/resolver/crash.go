package resolver

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/rng"
)

const (
	CrashMinPoint       = 1.00
	CrashMaxPoint       = 1000.00
	CrashMinAutoCashout = 1.01
)

type crashBand struct {
	weight    float64
	low, high float64
}

var crashBands = []crashBand{
	{weight: 0.33, low: 1, high: 2},
	{weight: 0.33, low: 2, high: 5},
	{weight: 0.24, low: 5, high: 20},
	{weight: 0.09, low: 20, high: 100},
	{weight: 0.01, low: 100, high: 1000},
}

// CrashBand returns the index of the band crashPoint falls in, or -1.
func CrashBand(crashPoint float64) int {
	for i, b := range crashBands {
		if crashPoint >= b.low && crashPoint < b.high {
			return i
		}
	}
	if crashPoint == CrashMaxPoint {
		return len(crashBands) - 1
	}
	return -1
}

// CrashBandWeights lists the probability of each band.
func CrashBandWeights() []float64 {
	w := make([]float64, len(crashBands))
	for i, b := range crashBands {
		w[i] = b.weight
	}
	return w
}

// CrashPoint draws a round's crash point: a band by weight, then a
// uniform value inside it floored to two decimals.
func CrashPoint(src rng.Source) float64 {
	u := src.Float64()

	band := crashBands[len(crashBands)-1]
	acc := 0.0
	for _, b := range crashBands {
		acc += b.weight
		if u < acc {
			band = b
			break
		}
	}

	v := band.low + src.Float64()*(band.high-band.low)
	v = math.Floor(v*100) / 100
	return math.Min(math.Max(v, CrashMinPoint), CrashMaxPoint)
}

func ValidateAutoCashout(target float64) error {
	if target == 0 {
		return nil
	}
	if math.IsNaN(target) || target < CrashMinAutoCashout || target > CrashMaxPoint {
		return fmt.Errorf("%w: auto cashout %.2f outside [%.2f,%.0f]", ErrInvalidParameter, target, CrashMinAutoCashout, CrashMaxPoint)
	}
	return nil
}

// SettleCrash resolves one crash bet. cashoutAt is the multiplier the bet
// left the round at, or zero when it rode into the crash. The payout uses
// the cash-out multiplier, never the crash point.
func SettleCrash(amount decimal.Decimal, crashPoint, cashoutAt float64) (*models.BetResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if crashPoint < CrashMinPoint {
		return nil, fmt.Errorf("%w: crash point %.2f below %.2f", ErrInvalidParameter, crashPoint, CrashMinPoint)
	}
	if cashoutAt < 0 {
		return nil, fmt.Errorf("%w: negative cashout %.2f", ErrInvalidParameter, cashoutAt)
	}

	payload := models.CrashPayload{CrashPoint: crashPoint, CashoutAt: cashoutAt}
	if cashoutAt >= 1 && cashoutAt <= crashPoint {
		return newResult(models.ModeCrash, amount, true, cashoutAt, payload), nil
	}

	payload.CashoutAt = 0
	return newResult(models.ModeCrash, amount, false, 0, payload), nil
}
