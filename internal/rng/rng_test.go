package rng_test

import (
	"testing"

	"casino-originals/internal/rng"
)

func TestFairIsDeterministic(t *testing.T) {
	a := rng.NewFair("server", "client", 7)
	b := rng.NewFair("server", "client", 7)

	for i := 0; i < 20; i++ {
		x, y := a.Float64(), b.Float64()
		if x != y {
			t.Fatalf("draw %d differs: %f vs %f", i, x, y)
		}
		if x < 0 || x >= 1 {
			t.Fatalf("draw %d out of range: %f", i, x)
		}
	}
}

func TestFairDependsOnNonce(t *testing.T) {
	a := rng.NewFair("server", "client", 1)
	b := rng.NewFair("server", "client", 2)

	same := 0
	for i := 0; i < 8; i++ {
		if a.Float64() == b.Float64() {
			same++
		}
	}
	if same == 8 {
		t.Fatal("different nonces produced the same stream")
	}
	if a.Hash() == b.Hash() {
		t.Fatal("different nonces produced the same hash")
	}
}

func TestSeededMean(t *testing.T) {
	src := rng.NewSeeded(42)
	const n = 100000

	var sum float64
	for i := 0; i < n; i++ {
		v := src.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("value out of range: %f", v)
		}
		sum += v
	}
	if mean := sum / n; mean < 0.49 || mean > 0.51 {
		t.Fatalf("mean=%f not close to 0.5", mean)
	}
}

func TestSequenceWraps(t *testing.T) {
	s := rng.NewSequence(0.1, 0.2)
	want := []float64{0.1, 0.2, 0.1}
	for i, w := range want {
		if got := s.Float64(); got != w {
			t.Fatalf("step %d: want %f, got %f", i, w, got)
		}
	}
}

func TestHashSeed(t *testing.T) {
	seed, err := rng.GenerateSeed()
	if err != nil {
		t.Fatal(err)
	}
	if len(seed) != 64 {
		t.Fatalf("seed length = %d, want 64", len(seed))
	}
	if rng.HashSeed(seed) != rng.HashSeed(seed) {
		t.Fatal("hash is not stable")
	}
	if rng.HashSeed(seed) == seed {
		t.Fatal("hash must differ from seed")
	}
}
