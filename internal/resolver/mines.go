package resolver

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/rng"
)

const (
	MinesMin = 1
	MinesMax = 24
)

// NewMinesRound places minesCount mines on the 5x5 grid. The layout is
// fixed for the whole round.
func NewMinesRound(minesCount int, src rng.Source) (models.MinesRound, error) {
	if minesCount < MinesMin || minesCount > MinesMax {
		return models.MinesRound{}, fmt.Errorf("%w: mines count %d outside [%d,%d]", ErrInvalidParameter, minesCount, MinesMin, MinesMax)
	}

	cells := make([]int, GridSize)
	for i := range cells {
		cells[i] = i
	}

	// partial Fisher-Yates
	for i := 0; i < minesCount; i++ {
		j := i + int(src.Float64()*float64(GridSize-i))
		if j >= GridSize {
			j = GridSize - 1
		}
		cells[i], cells[j] = cells[j], cells[i]
	}

	positions := append([]int(nil), cells[:minesCount]...)
	sort.Ints(positions)

	return models.MinesRound{
		MinesCount:    minesCount,
		MinePositions: positions,
		Revealed:      []int{},
		Status:        models.MinesActive,
	}, nil
}

// MinesMultiplier is the fair multiplier for k safe picks with
// minesCount mines, after the house edge.
func MinesMultiplier(minesCount, k int) (float64, error) {
	if minesCount < MinesMin || minesCount > MinesMax {
		return 0, fmt.Errorf("%w: mines count %d outside [%d,%d]", ErrInvalidParameter, minesCount, MinesMin, MinesMax)
	}
	safe := GridSize - minesCount
	if k < 0 || k > safe {
		return 0, fmt.Errorf("%w: %d safe reveals with %d mines", ErrInvalidParameter, k, minesCount)
	}

	prob := 1.0
	for i := 1; i <= k; i++ {
		prob *= float64(safe-i+1) / float64(GridSize-i+1)
	}
	return (1 / prob) * (1 - HouseEdge), nil
}

// RevealMines opens cell in round and returns the updated round together
// with the running result. round itself is left untouched.
func RevealMines(amount decimal.Decimal, round models.MinesRound, cell int) (models.MinesRound, *models.BetResult, error) {
	if err := validateAmount(amount); err != nil {
		return round, nil, err
	}
	if err := validateMinesRound(round); err != nil {
		return round, nil, err
	}
	if !minesActive(round) {
		return round, nil, fmt.Errorf("%w: mines round is %s", ErrAlreadyResolved, round.Status)
	}
	if cell < 0 || cell >= GridSize {
		return round, nil, fmt.Errorf("%w: cell %d outside [0,%d]", ErrInvalidParameter, cell, GridSize-1)
	}

	next := cloneMinesRound(round)
	next.Status = models.MinesActive

	if next.IsRevealed(cell) {
		res, err := minesResult(amount, next, cell)
		return next, res, err
	}

	next.Revealed = append(next.Revealed, cell)

	if next.IsMine(cell) {
		next.Status = models.MinesLost
		return next, newResult(models.ModeMines, amount, false, 0, minesPayload(next, cell, true)), nil
	}

	if len(next.Revealed) == GridSize-next.MinesCount {
		next.Status = models.MinesCashedOut
	}

	res, err := minesResult(amount, next, cell)
	return next, res, err
}

// CashoutMines locks in the current multiplier as the final payout.
func CashoutMines(amount decimal.Decimal, round models.MinesRound) (models.MinesRound, *models.BetResult, error) {
	if err := validateAmount(amount); err != nil {
		return round, nil, err
	}
	if err := validateMinesRound(round); err != nil {
		return round, nil, err
	}
	if !minesActive(round) {
		return round, nil, fmt.Errorf("%w: mines round is %s", ErrAlreadyResolved, round.Status)
	}
	if len(round.Revealed) == 0 {
		return round, nil, fmt.Errorf("%w: reveal at least one cell before cashing out", ErrInvalidParameter)
	}

	next := cloneMinesRound(round)
	next.Status = models.MinesCashedOut

	last := next.Revealed[len(next.Revealed)-1]
	res, err := minesResult(amount, next, last)
	return next, res, err
}

func minesResult(amount decimal.Decimal, round models.MinesRound, cell int) (*models.BetResult, error) {
	multiplier, err := MinesMultiplier(round.MinesCount, len(round.Revealed))
	if err != nil {
		return nil, err
	}
	return newResult(models.ModeMines, amount, true, multiplier, minesPayload(round, cell, false)), nil
}

func minesPayload(round models.MinesRound, cell int, hit bool) models.MinesPayload {
	p := models.MinesPayload{
		MinesCount: round.MinesCount,
		Cell:       cell,
		HitMine:    hit,
		Revealed:   append([]int(nil), round.Revealed...),
		SafeLeft:   GridSize - round.MinesCount - safeReveals(round),
		Status:     round.Status,
	}
	if round.Status != models.MinesActive {
		p.MinePositions = append([]int(nil), round.MinePositions...)
	}
	return p
}

func safeReveals(round models.MinesRound) int {
	n := 0
	for _, c := range round.Revealed {
		if !round.IsMine(c) {
			n++
		}
	}
	return n
}

func minesActive(round models.MinesRound) bool {
	return round.Status == "" || round.Status == models.MinesActive
}

func validateMinesRound(round models.MinesRound) error {
	if round.MinesCount < MinesMin || round.MinesCount > MinesMax {
		return fmt.Errorf("%w: mines count %d outside [%d,%d]", ErrInvalidParameter, round.MinesCount, MinesMin, MinesMax)
	}
	if len(round.MinePositions) != round.MinesCount {
		return fmt.Errorf("%w: %d mine positions for %d mines", ErrInvalidParameter, len(round.MinePositions), round.MinesCount)
	}

	seen := make(map[int]bool, len(round.MinePositions))
	for _, p := range round.MinePositions {
		if p < 0 || p >= GridSize || seen[p] {
			return fmt.Errorf("%w: bad mine position %d", ErrInvalidParameter, p)
		}
		seen[p] = true
	}
	revealed := make(map[int]bool, len(round.Revealed))
	for _, c := range round.Revealed {
		if c < 0 || c >= GridSize || revealed[c] {
			return fmt.Errorf("%w: bad revealed cell %d", ErrInvalidParameter, c)
		}
		revealed[c] = true
		// only a finished round may show a mine
		if minesActive(round) && seen[c] {
			return fmt.Errorf("%w: active round has revealed mine %d", ErrInvalidParameter, c)
		}
	}
	return nil
}

func cloneMinesRound(round models.MinesRound) models.MinesRound {
	round.MinePositions = append([]int(nil), round.MinePositions...)
	round.Revealed = append([]int{}, round.Revealed...)
	return round
}
