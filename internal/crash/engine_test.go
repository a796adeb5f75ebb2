package crash

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"casino-originals/internal/resolver"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func fixedPoints(points ...float64) PointFunc {
	return func(nonce int64) (float64, string) {
		return points[int(nonce-1)%len(points)], "hash"
	}
}

type recorder struct {
	mu  sync.Mutex
	got []Settlement
}

func (r *recorder) add(s Settlement) {
	r.mu.Lock()
	r.got = append(r.got, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Settlement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Settlement(nil), r.got...)
}

func newTestEngine(t *testing.T, points ...float64) (*Engine, *clock, *recorder) {
	t.Helper()

	c := &clock{t: time.Unix(1_700_000_000, 0)}
	e := NewEngine(DefaultConfig(), fixedPoints(points...), WithClock(c.Now))
	rec := &recorder{}
	e.OnSettle(rec.add)
	return e, c, rec
}

func usd(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMultiplierCurve(t *testing.T) {
	if got := Multiplier(0); got != 1 {
		t.Errorf("Multiplier(0) = %f, want 1", got)
	}
	if got := Multiplier(3 * time.Second); got < 2 || got > 2.1 {
		t.Errorf("Multiplier(3s) = %f, want just above 2", got)
	}
	if Multiplier(5*time.Second) <= Multiplier(4*time.Second) {
		t.Error("curve must be increasing")
	}
}

func TestAutoCashoutWins(t *testing.T) {
	e, c, rec := newTestEngine(t, 3.10)
	start := c.Now()

	bet, err := e.placeBet(Bet{UserID: 1, Amount: usd("20"), AutoCashout: 2.00}, start)
	if err != nil {
		t.Fatal(err)
	}

	e.advance(start.Add(5 * time.Second))
	if e.round.state != StateRising {
		t.Fatalf("state = %s, want rising", e.round.state)
	}

	rising := start.Add(5 * time.Second)
	e.advance(rising.Add(3 * time.Second))

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("got %d settlements, want 1", len(got))
	}
	s := got[0]
	if s.Bet.ID != bet.ID || !s.Auto || !s.Result.IsWin {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if s.Result.Multiplier != 2.00 || !s.Result.Payout.Equal(usd("40")) {
		t.Errorf("payout = %s at %fx, want 40 at 2.00x", s.Result.Payout, s.Result.Multiplier)
	}

	// later ticks and the crash itself must not settle the bet again
	e.advance(rising.Add(4 * time.Second))
	e.advance(rising.Add(6 * time.Second))
	if e.round.state != StateCrashed {
		t.Fatalf("state = %s, want crashed", e.round.state)
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("got %d settlements after crash, want 1", n)
	}
}

func TestAutoCashoutNotReached(t *testing.T) {
	e, c, rec := newTestEngine(t, 1.50)
	start := c.Now()

	if _, err := e.placeBet(Bet{UserID: 1, Amount: usd("20"), AutoCashout: 2.00}, start); err != nil {
		t.Fatal(err)
	}

	e.advance(start.Add(5 * time.Second))
	// one tick jumps far past both the target and the crash point
	e.advance(start.Add(15 * time.Second))

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("got %d settlements, want 1", len(got))
	}
	if got[0].Result.IsWin || !got[0].Result.Payout.IsZero() {
		t.Errorf("expected loss, got %+v", got[0].Result)
	}
	if got[0].CrashPoint != 1.50 {
		t.Errorf("crash point = %f, want 1.50", got[0].CrashPoint)
	}
}

func TestAutoCashoutAtCrashPointWins(t *testing.T) {
	e, c, rec := newTestEngine(t, 2.00)
	start := c.Now()

	if _, err := e.placeBet(Bet{UserID: 1, Amount: usd("10"), AutoCashout: 2.00}, start); err != nil {
		t.Fatal(err)
	}
	e.advance(start.Add(5 * time.Second))
	e.advance(start.Add(20 * time.Second))

	got := rec.all()
	if len(got) != 1 || !got[0].Result.IsWin {
		t.Fatalf("target equal to crash point should win: %+v", got)
	}
}

func TestManualCashout(t *testing.T) {
	e, c, rec := newTestEngine(t, 50)
	start := c.Now()

	bet, err := e.placeBet(Bet{UserID: 7, Amount: usd("5")}, start)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.cashout(7, bet.ID, start); !errors.Is(err, ErrRoundNotStarted) {
		t.Errorf("cashout while waiting: want ErrRoundNotStarted, got %v", err)
	}

	e.advance(start.Add(5 * time.Second))
	e.advance(start.Add(8 * time.Second))
	current := e.round.multiplier

	if _, err := e.cashout(8, bet.ID, start.Add(8*time.Second)); !errors.Is(err, ErrBetNotFound) {
		t.Errorf("foreign cashout: want ErrBetNotFound, got %v", err)
	}

	s, err := e.cashout(7, bet.ID, start.Add(8*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Result.IsWin || s.Result.Multiplier != current {
		t.Errorf("cashout at %f, want %f", s.Result.Multiplier, current)
	}

	if _, err := e.cashout(7, bet.ID, start.Add(8*time.Second)); !errors.Is(err, resolver.ErrAlreadyResolved) {
		t.Errorf("second cashout: want ErrAlreadyResolved, got %v", err)
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("got %d settlements, want 1", n)
	}
}

func TestCashoutAfterCrash(t *testing.T) {
	e, c, rec := newTestEngine(t, 1.20, 5)
	start := c.Now()

	bet, err := e.placeBet(Bet{UserID: 1, Amount: usd("1")}, start)
	if err != nil {
		t.Fatal(err)
	}
	e.advance(start.Add(5 * time.Second))
	e.advance(start.Add(10 * time.Second))

	if _, err := e.cashout(1, bet.ID, start.Add(10*time.Second)); !errors.Is(err, resolver.ErrAlreadyResolved) {
		t.Errorf("want ErrAlreadyResolved, got %v", err)
	}

	// still resolved once the next round has begun
	e.advance(start.Add(14 * time.Second))
	if e.round.state != StateWaiting {
		t.Fatalf("state = %s, want waiting", e.round.state)
	}
	if _, err := e.cashout(1, bet.ID, start.Add(14*time.Second)); !errors.Is(err, resolver.ErrAlreadyResolved) {
		t.Errorf("want ErrAlreadyResolved, got %v", err)
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("got %d settlements, want 1", n)
	}
}

func TestCashoutBetweenTicks(t *testing.T) {
	e, c, rec := newTestEngine(t, 1.50, 5)
	start := c.Now()

	bet, err := e.placeBet(Bet{UserID: 3, Amount: usd("2")}, start)
	if err != nil {
		t.Fatal(err)
	}
	e.advance(start.Add(5 * time.Second))
	e.advance(start.Add(6 * time.Second))
	if e.round.state != StateRising {
		t.Fatalf("state = %s, want rising", e.round.state)
	}

	// no tick between the last one and the crash point
	ch := make(chan reply, 1)
	e.handle(event{kind: cashoutEvent, userID: 3, betID: bet.ID, reply: ch}, start.Add(60*time.Second))
	got := <-ch
	if !errors.Is(got.err, resolver.ErrAlreadyResolved) {
		t.Fatalf("cashout past crash point: want ErrAlreadyResolved, got %v", got.err)
	}

	all := rec.all()
	if len(all) != 1 || all[0].Result.IsWin {
		t.Errorf("want a single losing settlement, got %+v", all)
	}
}

func TestBetAfterWaitBetweenTicks(t *testing.T) {
	e, c, _ := newTestEngine(t, 5)
	start := c.Now()

	ch := make(chan reply, 1)
	e.handle(event{kind: placeEvent, bet: Bet{UserID: 4, Amount: usd("1")}, reply: ch}, start.Add(6*time.Second))
	if got := <-ch; !errors.Is(got.err, ErrBettingClosed) {
		t.Errorf("bet after waiting period: want ErrBettingClosed, got %v", got.err)
	}
}

func TestBettingClosed(t *testing.T) {
	e, c, _ := newTestEngine(t, 10)
	start := c.Now()

	e.advance(start.Add(5 * time.Second))
	if _, err := e.placeBet(Bet{UserID: 1, Amount: usd("1")}, start.Add(5*time.Second)); !errors.Is(err, ErrBettingClosed) {
		t.Errorf("want ErrBettingClosed, got %v", err)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	e, c, _ := newTestEngine(t, 10)
	now := c.Now()

	if _, err := e.placeBet(Bet{UserID: 1, Amount: decimal.Zero}, now); !errors.Is(err, resolver.ErrInvalidAmount) {
		t.Errorf("zero amount: want ErrInvalidAmount, got %v", err)
	}
	if _, err := e.placeBet(Bet{UserID: 1, Amount: usd("1"), AutoCashout: 1.0}, now); !errors.Is(err, resolver.ErrInvalidParameter) {
		t.Errorf("auto 1.00: want ErrInvalidParameter, got %v", err)
	}

	bet, err := e.placeBet(Bet{ID: "b1", UserID: 1, Amount: usd("1")}, now)
	if err != nil {
		t.Fatal(err)
	}
	if bet.RoundID != e.round.id {
		t.Errorf("bet round = %s, want %s", bet.RoundID, e.round.id)
	}
	if _, err := e.placeBet(Bet{ID: "b1", UserID: 1, Amount: usd("1")}, now); !errors.Is(err, ErrDuplicateBet) {
		t.Errorf("want ErrDuplicateBet, got %v", err)
	}
}

func TestHistoryAndSnapshot(t *testing.T) {
	e, c, _ := newTestEngine(t, 1.00)
	now := c.Now()

	// each round crashes on its first rising tick
	for i := 0; i < 25; i++ {
		now = now.Add(5 * time.Second)
		e.advance(now)
		e.advance(now)
		now = now.Add(3 * time.Second)
		e.advance(now)
	}

	snap := e.Snapshot()
	if len(snap.History) != 20 {
		t.Fatalf("history has %d entries, want 20", len(snap.History))
	}
	if snap.Round.State != StateWaiting || snap.Round.CrashPoint != 0 {
		t.Errorf("waiting round must not leak its crash point: %+v", snap.Round)
	}
	if snap.Round.Nonce != 26 {
		t.Errorf("nonce = %d, want 26", snap.Round.Nonce)
	}
}

func TestSubscribeTicks(t *testing.T) {
	e, c, _ := newTestEngine(t, 3)
	start := c.Now()

	var ticks []Tick
	cancel := e.Subscribe(func(tk Tick) { ticks = append(ticks, tk) })

	e.advance(start.Add(time.Second))
	e.advance(start.Add(5 * time.Second))
	e.advance(start.Add(10 * time.Second))
	cancel()
	e.advance(start.Add(11 * time.Second))

	if len(ticks) != 3 {
		t.Fatalf("got %d ticks, want 3", len(ticks))
	}
	if ticks[0].State != StateWaiting || ticks[0].Countdown != 4*time.Second {
		t.Errorf("unexpected first tick %+v", ticks[0])
	}
	if ticks[2].State != StateCrashed || ticks[2].CrashPoint != 3 || ticks[2].Multiplier != 3 {
		t.Errorf("unexpected crash tick %+v", ticks[2])
	}
}

func TestRunServesBets(t *testing.T) {
	cfg := Config{Wait: 200 * time.Millisecond, Cooldown: 50 * time.Millisecond, Tick: 5 * time.Millisecond}
	e := NewEngine(cfg, fixedPoints(1000))

	settled := make(chan Settlement, 4)
	e.OnSettle(func(s Settlement) { settled <- s })

	rising := make(chan struct{})
	var once sync.Once
	e.Subscribe(func(tk Tick) {
		if tk.State == StateRising {
			once.Do(func() { close(rising) })
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	bet, err := e.PlaceBet(ctx, Bet{UserID: 3, Amount: usd("2")})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-rising:
	case <-time.After(2 * time.Second):
		t.Fatal("round never started")
	}

	s, err := e.Cashout(ctx, 3, bet.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Result.IsWin {
		t.Errorf("expected win, got %+v", s.Result)
	}
	<-settled

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}

	if _, err := e.PlaceBet(context.Background(), Bet{UserID: 3, Amount: usd("1")}); !errors.Is(err, ErrStopped) {
		t.Errorf("want ErrStopped, got %v", err)
	}
}

func TestShutdownRefunds(t *testing.T) {
	e, c, rec := newTestEngine(t, 10)

	if _, err := e.placeBet(Bet{UserID: 1, Amount: usd("3")}, c.Now()); err != nil {
		t.Fatal(err)
	}
	e.shutdown(c.Now())

	got := rec.all()
	if len(got) != 1 || !got[0].Refund || got[0].Result != nil {
		t.Fatalf("expected one refund, got %+v", got)
	}
}

func TestFairPointsDeterministic(t *testing.T) {
	points := FairPoints(func() string { return "server-seed" })

	a, hashA := points(4)
	b, hashB := points(4)
	if a != b || hashA != hashB {
		t.Errorf("same nonce gave %f/%s and %f/%s", a, hashA, b, hashB)
	}
	if a < resolver.CrashMinPoint || a > resolver.CrashMaxPoint {
		t.Errorf("crash point %f out of range", a)
	}
}
