// Package resolver turns a wager and a random source into a settled
// outcome. Every function is pure: it never touches balances or storage.
package resolver

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/rng"
)

const (
	HouseEdge = 0.01
	GridSize  = 25
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidAmount    = errors.New("invalid bet amount")
	ErrAlreadyResolved  = errors.New("already resolved")
)

// Resolve dispatches req to the resolver of its game mode.
func Resolve(req models.BetRequest, src rng.Source) (*models.BetResult, error) {
	if req.Params == nil {
		return nil, fmt.Errorf("%w: missing %s parameters", ErrInvalidParameter, req.Mode)
	}
	if req.Params.Mode() != req.Mode {
		return nil, fmt.Errorf("%w: %s parameters for %s bet", ErrInvalidParameter, req.Params.Mode(), req.Mode)
	}

	switch p := req.Params.(type) {
	case models.DiceParams:
		return Dice(req.Amount, p, src)
	case models.LimboParams:
		return Limbo(req.Amount, p, src)
	case models.MinesParams:
		_, res, err := RevealMines(req.Amount, p.Round, p.Cell)
		return res, err
	case models.PlinkoParams:
		return Plinko(req.Amount, p, src)
	case models.SlotParams:
		return Slot(req.Amount, src)
	case models.CrashParams:
		return SettleCrash(req.Amount, p.CrashPoint, p.CashoutAt)
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownMode, req.Mode)
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

func newResult(mode models.GameMode, amount decimal.Decimal, isWin bool, multiplier float64, payload models.Payload) *models.BetResult {
	if multiplier <= 0 {
		return &models.BetResult{Mode: mode, Payout: models.NewMoney(decimal.Zero), Payload: payload}
	}
	return &models.BetResult{
		Mode:       mode,
		IsWin:      isWin,
		Multiplier: multiplier,
		Payout:     models.NewMoney(models.CalculatePayout(amount, multiplier)),
		Payload:    payload,
	}
}
