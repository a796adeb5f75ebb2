package resolver_test

import (
	"errors"
	"math"
	"testing"

	"casino-originals/internal/resolver"
	"casino-originals/internal/rng"
)

func TestCrashPointDistribution(t *testing.T) {
	const n = 100000
	src := rng.NewSeeded(2024)
	weights := resolver.CrashBandWeights()
	counts := make([]int, len(weights))

	for i := 0; i < n; i++ {
		p := resolver.CrashPoint(src)
		if p < resolver.CrashMinPoint || p > resolver.CrashMaxPoint {
			t.Fatalf("crash point %f out of range", p)
		}
		band := resolver.CrashBand(p)
		if band < 0 {
			t.Fatalf("crash point %f outside every band", p)
		}
		counts[band]++
	}

	for i, w := range weights {
		if freq := float64(counts[i]) / n; math.Abs(freq-w) > 0.02 {
			t.Errorf("band %d: freq=%f, want %f", i, freq, w)
		}
	}
}

func TestCrashPointBandEdges(t *testing.T) {
	// first draw picks the band, second the position inside it
	if got := resolver.CrashPoint(rng.NewSequence(0, 0)); got != 1.00 {
		t.Errorf("lowest draw = %f, want 1.00", got)
	}
	if got := resolver.CrashPoint(rng.NewSequence(0.999, 0.99999)); got < 100 || got > 1000 {
		t.Errorf("top band draw = %f", got)
	}
}

func TestSettleCrashScenarios(t *testing.T) {
	// auto cashout 2.00x never reached before a 1.50x crash
	res, err := resolver.SettleCrash(amount("20"), 1.50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsWin || !res.Payout.IsZero() {
		t.Errorf("expected loss, got %+v", res)
	}

	res, err = resolver.SettleCrash(amount("20"), 3.10, 2.00)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsWin || res.Multiplier != 2.00 {
		t.Errorf("expected win at 2.00x, got %+v", res)
	}
	if !res.Payout.Equal(amount("40")) {
		t.Errorf("payout = %s, want 40.00", res.Payout)
	}

	// a cash-out above the crash point cannot win
	res, err = resolver.SettleCrash(amount("20"), 1.50, 2.00)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsWin {
		t.Error("cashout above crash point must lose")
	}
}

func TestValidateAutoCashout(t *testing.T) {
	if err := resolver.ValidateAutoCashout(0); err != nil {
		t.Errorf("no auto cashout should be valid: %v", err)
	}
	if err := resolver.ValidateAutoCashout(2); err != nil {
		t.Errorf("2.00x should be valid: %v", err)
	}
	if err := resolver.ValidateAutoCashout(1.0); !errors.Is(err, resolver.ErrInvalidParameter) {
		t.Errorf("1.00x: want ErrInvalidParameter, got %v", err)
	}
}
