package catalog_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"casino-originals/internal/catalog"
	"casino-originals/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := catalog.Load("")
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	for _, mode := range []models.GameMode{models.ModeDice, models.ModeLimbo, models.ModeMines, models.ModePlinko, models.ModeCrash, models.ModeSlot} {
		if _, err := c.ForMode(mode); err != nil {
			t.Errorf("no game for %s: %v", mode, err)
		}
	}

	if n := len(c.ByCategory("originals")); n != 5 {
		t.Errorf("Expected 5 originals, got %d", n)
	}

	all := c.All()
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Fatal("games should be ordered by id")
		}
	}
}

func TestResolve(t *testing.T) {
	c, err := catalog.Load("")
	if err != nil {
		t.Fatal(err)
	}

	g, err := c.Resolve(0, models.ModePlinko)
	if err != nil || g.Name != "Plinko" {
		t.Fatalf("Resolve by mode: %v %v", g, err)
	}

	if _, err := c.Resolve(3, models.ModeLimbo); !errors.Is(err, catalog.ErrNotPlayable) {
		t.Errorf("dice game for a limbo bet: want ErrNotPlayable, got %v", err)
	}
	if _, err := c.Resolve(9, models.ModeSlot); !errors.Is(err, catalog.ErrNotPlayable) {
		t.Errorf("live game: want ErrNotPlayable, got %v", err)
	}
	if _, err := c.Resolve(999, models.ModeDice); !errors.Is(err, catalog.ErrGameNotFound) {
		t.Errorf("want ErrGameNotFound, got %v", err)
	}
}

func TestCheckBet(t *testing.T) {
	c, err := catalog.Load("")
	if err != nil {
		t.Fatal(err)
	}
	slot, err := c.Get(6)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		amount string
		ok     bool
	}{
		{name: "Min", amount: "0.20", ok: true},
		{name: "Max", amount: "125.00", ok: true},
		{name: "Below", amount: "0.19"},
		{name: "Above", amount: "125.01"},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := slot.CheckBet(decimal.RequireFromString(tc.amount))
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, catalog.ErrBetOutOfLimits) {
				t.Errorf("want ErrBetOutOfLimits, got %v", err)
			}
		})
	}
}

func TestDefaultParams(t *testing.T) {
	c, err := catalog.Load("")
	if err != nil {
		t.Fatal(err)
	}
	g, err := c.ForMode(models.ModePlinko)
	if err != nil {
		t.Fatal(err)
	}

	p, err := models.DecodeParams(models.ModePlinko, g.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if pl := p.(models.PlinkoParams); pl.Rows != 16 || pl.Risk != models.RiskLow {
		t.Errorf("unexpected defaults %+v", pl)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"Duplicate":   "games:\n  - {id: 1, name: A}\n  - {id: 1, name: B}\n",
		"UnknownMode": "games:\n  - {id: 1, name: A, mode: roulette}\n",
		"BadLimits":   "games:\n  - {id: 1, name: A, min_bet: \"5\", max_bet: \"1\"}\n",
		"NoName":      "games:\n  - {id: 1}\n",
		"NotYAML":     "games: [",
	}

	for name, doc := range cases {
		if _, err := catalog.Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
