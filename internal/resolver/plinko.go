package resolver

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/rng"
)

const (
	PlinkoDefaultRows = 16
	PlinkoDefaultRisk = models.RiskLow
)

// Edge-to-centre halves of each table; the centre bucket is the last
// entry. Expected value under binomial landing is ~0.99 for all of them.
var plinkoHalves = map[int]map[models.PlinkoRisk][]float64{
	8: {
		models.RiskLow:    {5.6, 2.1, 1.1, 1, 0.5},
		models.RiskMedium: {13, 3, 1.3, 0.7, 0.4},
		models.RiskHigh:   {29, 4, 1.5, 0.3, 0.2},
	},
	12: {
		models.RiskLow:    {10, 3, 1.6, 1.4, 1.1, 1, 0.5},
		models.RiskMedium: {33, 11, 4, 2, 1.1, 0.6, 0.3},
		models.RiskHigh:   {170, 24, 8.1, 2, 0.7, 0.2, 0.2},
	},
	16: {
		models.RiskLow:    {16, 9, 2, 1.4, 1.4, 1.2, 1.1, 1, 0.5},
		models.RiskMedium: {110, 41, 10, 5, 3, 1.5, 1, 0.5, 0.3},
		models.RiskHigh:   {1000, 130, 26, 9, 4, 2, 0.2, 0.2, 0.2},
	},
}

// PlinkoTable returns the rows+1 bucket multipliers for risk and rows.
// Unknown combinations fall back to the low risk 16 row table.
func PlinkoTable(risk models.PlinkoRisk, rows int) []float64 {
	half, ok := plinkoHalves[rows][risk]
	if !ok {
		half = plinkoHalves[PlinkoDefaultRows][PlinkoDefaultRisk]
	}

	table := make([]float64, 0, 2*len(half)-1)
	table = append(table, half...)
	for i := len(half) - 2; i >= 0; i-- {
		table = append(table, half[i])
	}
	return table
}

// PlinkoBucket walks from the centre half a bucket per step and clamps
// the floored position into [0, rows].
func PlinkoBucket(path []int, rows int) int {
	position := float64(rows) / 2
	for _, dir := range path {
		position += float64(dir) * 0.5
	}

	bucket := int(math.Floor(position))
	if bucket < 0 {
		return 0
	}
	if bucket > rows {
		return rows
	}
	return bucket
}

func Plinko(amount decimal.Decimal, p models.PlinkoParams, src rng.Source) (*models.BetResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	if p.Rows == 0 {
		p.Rows = PlinkoDefaultRows
	}
	if p.Risk == "" {
		p.Risk = PlinkoDefaultRisk
	}
	if _, ok := plinkoHalves[p.Rows]; !ok {
		return nil, fmt.Errorf("%w: plinko rows %d not in {8,12,16}", ErrInvalidParameter, p.Rows)
	}
	if _, ok := plinkoHalves[p.Rows][p.Risk]; !ok {
		return nil, fmt.Errorf("%w: plinko risk %q", ErrInvalidParameter, p.Risk)
	}

	path := make([]int, p.Rows)
	for i := range path {
		if src.Float64() >= 0.5 {
			path[i] = 1
		} else {
			path[i] = -1
		}
	}

	table := PlinkoTable(p.Risk, p.Rows)
	bucket := PlinkoBucket(path, p.Rows)
	multiplier := table[bucket]

	return newResult(models.ModePlinko, amount, multiplier > 1, multiplier, models.PlinkoPayload{
		Rows:        p.Rows,
		Risk:        p.Risk,
		Path:        path,
		Bucket:      bucket,
		Multipliers: table,
	}), nil
}
