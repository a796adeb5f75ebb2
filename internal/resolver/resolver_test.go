package resolver_test

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/resolver"
	"casino-originals/internal/rng"
)

type countingSource struct {
	src   rng.Source
	draws int
}

func (c *countingSource) Float64() float64 {
	c.draws++
	return c.src.Float64()
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDiceScenario(t *testing.T) {
	// u=0.725 rolls a 73
	res, err := resolver.Dice(amount("10"), models.DiceParams{Target: 50, IsOver: true}, rng.NewSequence(0.725))
	if err != nil {
		t.Fatal(err)
	}

	payload := res.Payload.(models.DicePayload)
	if payload.Roll != 73 {
		t.Fatalf("roll = %d, want 73", payload.Roll)
	}
	if !res.IsWin {
		t.Fatal("roll 73 over 50 should win")
	}
	if math.Abs(res.Multiplier-1.98) > 1e-9 {
		t.Errorf("multiplier = %f, want 1.98", res.Multiplier)
	}
	if !res.Payout.Round(2).Equal(amount("19.80")) {
		t.Errorf("payout = %s, want 19.80", res.Payout)
	}
}

func TestDiceLoss(t *testing.T) {
	res, err := resolver.Dice(amount("10"), models.DiceParams{Target: 50, IsOver: false}, rng.NewSequence(0.725))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsWin || res.Multiplier != 0 || !res.Payout.IsZero() {
		t.Errorf("expected total loss, got %+v", res)
	}
}

func TestDiceWinChanceSumsTo100(t *testing.T) {
	for target := resolver.DiceMinTarget; target <= resolver.DiceMaxTarget; target++ {
		over := resolver.DiceWinChance(target, true)
		under := resolver.DiceWinChance(target, false)
		if over+under != 100 {
			t.Fatalf("target %d: %f + %f != 100", target, over, under)
		}
		for _, isOver := range []bool{true, false} {
			got := resolver.DiceMultiplier(target, isOver) * resolver.DiceWinChance(target, isOver) / 100
			if math.Abs(got-(1-resolver.HouseEdge)) > 1e-9 {
				t.Fatalf("target %d over=%v: edge-adjusted return %f", target, isOver, got)
			}
		}
	}
}

func TestDiceReturnToPlayer(t *testing.T) {
	const n = 200000
	src := rng.NewSeeded(7)

	for _, target := range []int{10, 50, 90} {
		var total float64
		for i := 0; i < n; i++ {
			res, err := resolver.Dice(amount("1"), models.DiceParams{Target: target, IsOver: true}, src)
			if err != nil {
				t.Fatal(err)
			}
			total += res.Multiplier
		}
		if rtp := total / n; math.Abs(rtp-0.99) > 0.02 {
			t.Errorf("target %d: rtp=%f not close to 0.99", target, rtp)
		}
	}
}

func TestDiceRejectsTargets(t *testing.T) {
	for _, target := range []int{0, 100, -5} {
		src := &countingSource{src: rng.NewSeeded(1)}
		_, err := resolver.Dice(amount("1"), models.DiceParams{Target: target}, src)
		if !errors.Is(err, resolver.ErrInvalidParameter) {
			t.Errorf("target %d: want ErrInvalidParameter, got %v", target, err)
		}
		if src.draws != 0 {
			t.Errorf("target %d: randomness drawn before validation", target)
		}
	}
}

func TestLimbo(t *testing.T) {
	// u=0.6 -> 2.5x
	res, err := resolver.Limbo(amount("4"), models.LimboParams{Target: 2}, rng.NewSequence(0.6))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsWin || math.Abs(res.Multiplier-1.98) > 1e-9 {
		t.Errorf("unexpected result %+v", res)
	}
	if !res.Payout.Round(2).Equal(amount("7.92")) {
		t.Errorf("payout = %s, want 7.92", res.Payout)
	}

	// u=0.4 -> 1.66x
	res, err = resolver.Limbo(amount("4"), models.LimboParams{Target: 2}, rng.NewSequence(0.4))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsWin || !res.Payout.IsZero() {
		t.Errorf("expected loss, got %+v", res)
	}

	if _, err := resolver.Limbo(amount("4"), models.LimboParams{Target: 1.0}, rng.NewSeeded(1)); !errors.Is(err, resolver.ErrInvalidParameter) {
		t.Errorf("target 1.0: want ErrInvalidParameter, got %v", err)
	}
}

func TestLimboDecidedOnShownResult(t *testing.T) {
	// u=0.49925 -> 1.997x, shown as 1.99
	src := rng.NewSequence(1 - 1/1.997)
	res, err := resolver.Limbo(amount("1"), models.LimboParams{Target: 1.995}, src)
	if err != nil {
		t.Fatal(err)
	}
	payload := res.Payload.(models.LimboPayload)
	if payload.Result != 1.99 {
		t.Errorf("shown result = %v, want 1.99", payload.Result)
	}
	if res.IsWin {
		t.Errorf("shown result %v below target %v must lose", payload.Result, payload.Target)
	}

	res, err = resolver.Limbo(amount("1"), models.LimboParams{Target: 1.99}, rng.NewSequence(1-1/1.997))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsWin {
		t.Error("shown result equal to target must win")
	}
}

func TestLimboResultCap(t *testing.T) {
	if got := resolver.LimboResult(0); got != 1 {
		t.Errorf("LimboResult(0) = %f, want 1", got)
	}
	if got := resolver.LimboResult(0.9999999999); got != resolver.LimboMaxMultiplier {
		t.Errorf("LimboResult near 1 = %f, want cap", got)
	}
}

func TestLimboWinFrequency(t *testing.T) {
	const n = 200000
	src := rng.NewSeeded(11)
	wins := 0
	for i := 0; i < n; i++ {
		res, err := resolver.Limbo(amount("1"), models.LimboParams{Target: 4}, src)
		if err != nil {
			t.Fatal(err)
		}
		if res.IsWin {
			wins++
		}
	}
	if freq := float64(wins) / n; math.Abs(freq-0.25) > 0.01 {
		t.Errorf("freq=%f not close to 0.25", freq)
	}
}

func TestSlot(t *testing.T) {
	const n = 100000
	src := rng.NewSeeded(3)
	wins := 0
	for i := 0; i < n; i++ {
		res, err := resolver.Slot(amount("1"), src)
		if err != nil {
			t.Fatal(err)
		}
		if res.IsWin {
			wins++
			if res.Multiplier < 0.96 || res.Multiplier > 11*0.96 {
				t.Fatalf("multiplier %f outside slot range", res.Multiplier)
			}
		} else if res.Multiplier != 0 {
			t.Fatalf("loss with multiplier %f", res.Multiplier)
		}
		grid := res.Payload.(models.SlotPayload).Symbols
		if len(grid) != 3 || len(grid[0]) != 5 {
			t.Fatalf("unexpected grid shape %dx%d", len(grid), len(grid[0]))
		}
	}
	if freq := float64(wins) / n; math.Abs(freq-resolver.SlotWinChance) > 0.01 {
		t.Errorf("freq=%f not close to %f", freq, resolver.SlotWinChance)
	}
}

func TestResolveDispatch(t *testing.T) {
	cases := []struct {
		name    string
		req     models.BetRequest
		wantErr error
	}{
		{
			name: "Dice",
			req:  models.BetRequest{Mode: models.ModeDice, Amount: amount("1"), Params: models.DiceParams{Target: 50, IsOver: true}},
		},
		{
			name: "Plinko",
			req:  models.BetRequest{Mode: models.ModePlinko, Amount: amount("1"), Params: models.PlinkoParams{Rows: 8, Risk: models.RiskHigh}},
		},
		{
			name: "Slot",
			req:  models.BetRequest{Mode: models.ModeSlot, Amount: amount("1"), Params: models.SlotParams{}},
		},
		{
			name: "Crash",
			req:  models.BetRequest{Mode: models.ModeCrash, Amount: amount("20"), Params: models.CrashParams{CrashPoint: 3.1, CashoutAt: 2}},
		},
		{
			name:    "ZeroAmount",
			req:     models.BetRequest{Mode: models.ModeDice, Amount: decimal.Zero, Params: models.DiceParams{Target: 50}},
			wantErr: resolver.ErrInvalidAmount,
		},
		{
			name:    "NegativeAmount",
			req:     models.BetRequest{Mode: models.ModeSlot, Amount: amount("-1"), Params: models.SlotParams{}},
			wantErr: resolver.ErrInvalidAmount,
		},
		{
			name:    "MismatchedParams",
			req:     models.BetRequest{Mode: models.ModeDice, Amount: amount("1"), Params: models.SlotParams{}},
			wantErr: resolver.ErrInvalidParameter,
		},
		{
			name:    "MissingParams",
			req:     models.BetRequest{Mode: models.ModeLimbo, Amount: amount("1")},
			wantErr: resolver.ErrInvalidParameter,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res, err := resolver.Resolve(tc.req, rng.NewSeeded(5))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Mode != tc.req.Mode || res.Payload.Mode() != tc.req.Mode {
				t.Errorf("result mode mismatch: %s / %s", res.Mode, res.Payload.Mode())
			}
			if res.Multiplier == 0 && (res.IsWin || !res.Payout.IsZero()) {
				t.Errorf("zero multiplier must be a loss with zero payout: %+v", res)
			}
		})
	}
}
