// Package crash runs the shared crash round: a countdown during which bets
// are accepted, a rising multiplier, and a crash at a pre-drawn point.
package crash

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"casino-originals/internal/models"
	"casino-originals/internal/resolver"
)

type Config struct {
	Wait     time.Duration
	Cooldown time.Duration
	Tick     time.Duration
	History  int
}

func DefaultConfig() Config {
	return Config{
		Wait:     5 * time.Second,
		Cooldown: 3 * time.Second,
		Tick:     100 * time.Millisecond,
		History:  20,
	}
}

type Option func(*Engine)

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type eventKind int

const (
	placeEvent eventKind = iota
	cashoutEvent
)

type event struct {
	kind   eventKind
	bet    Bet
	userID int64
	betID  string
	reply  chan reply
}

type reply struct {
	bet        Bet
	settlement Settlement
	err        error
}

// Engine owns one round at a time. All round state is touched only by the
// goroutine running Run; callers talk to it through events.
type Engine struct {
	cfg    Config
	points PointFunc
	log    *zap.Logger
	now    func() time.Time

	events chan event
	done   chan struct{}

	round   *round
	prev    *round
	nonce   int64
	history []float64

	mu       sync.RWMutex
	snapshot Snapshot
	subs     map[int]func(Tick)
	nextSub  int
	onSettle func(Settlement)
}

func NewEngine(cfg Config, points PointFunc, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Wait <= 0 {
		cfg.Wait = def.Wait
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}

	e := &Engine{
		cfg:    cfg,
		points: points,
		log:    zap.NewNop(),
		now:    time.Now,
		events: make(chan event),
		done:   make(chan struct{}),
		subs:   make(map[int]func(Tick)),
	}
	for _, opt := range opts {
		opt(e)
	}

	now := e.now()
	e.newRound(now)
	e.storeSnapshot(now)
	return e
}

// Run drives the round until ctx is cancelled. Bets still open at that
// point are settled as refunds.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()
	defer close(e.done)

	for {
		select {
		case <-ctx.Done():
			e.shutdown(e.now())
			return ctx.Err()
		case <-ticker.C:
			e.advance(e.now())
		case ev := <-e.events:
			e.handle(ev, e.now())
		}
	}
}

// PlaceBet joins the current round. Only allowed while it is waiting.
func (e *Engine) PlaceBet(ctx context.Context, bet Bet) (Bet, error) {
	r, err := e.send(ctx, event{kind: placeEvent, bet: bet})
	return r.bet, err
}

// Cashout takes a bet out at the multiplier reached when the request is handled.
func (e *Engine) Cashout(ctx context.Context, userID int64, betID string) (Settlement, error) {
	r, err := e.send(ctx, event{kind: cashoutEvent, userID: userID, betID: betID})
	return r.settlement, err
}

func (e *Engine) send(ctx context.Context, ev event) (reply, error) {
	ev.reply = make(chan reply, 1)

	select {
	case e.events <- ev:
	case <-e.done:
		return reply{}, ErrStopped
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}

	// once accepted the loop always answers; waiting here keeps the caller
	// in step with what the round recorded
	select {
	case r := <-ev.reply:
		return r, r.err
	case <-e.done:
		select {
		case r := <-ev.reply:
			return r, r.err
		default:
			return reply{}, ErrStopped
		}
	}
}

// Subscribe registers fn for every tick. Callbacks run serially on the
// round goroutine and must not block.
func (e *Engine) Subscribe(fn func(Tick)) (cancel func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// OnSettle sets the hook receiving every settlement exactly once.
func (e *Engine) OnSettle(fn func(Settlement)) {
	e.mu.Lock()
	e.onSettle = fn
	e.mu.Unlock()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.snapshot
	s.History = append([]float64(nil), e.snapshot.History...)
	return s
}

func (e *Engine) handle(ev event, now time.Time) {
	// catch up with the clock so a crash between ticks is seen first
	e.advance(now)

	var r reply
	switch ev.kind {
	case placeEvent:
		r.bet, r.err = e.placeBet(ev.bet, now)
	case cashoutEvent:
		r.settlement, r.err = e.cashout(ev.userID, ev.betID, now)
	}
	ev.reply <- r
}

func (e *Engine) placeBet(bet Bet, now time.Time) (Bet, error) {
	if !bet.Amount.IsPositive() {
		return Bet{}, fmt.Errorf("%w: bet amount must be positive", resolver.ErrInvalidAmount)
	}
	if err := resolver.ValidateAutoCashout(bet.AutoCashout); err != nil {
		return Bet{}, err
	}

	r := e.round
	if r.state != StateWaiting {
		return Bet{}, fmt.Errorf("%w: round %s is %s", ErrBettingClosed, r.id, r.state)
	}

	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	if _, ok := r.bets[bet.ID]; ok {
		return Bet{}, fmt.Errorf("%w: %s", ErrDuplicateBet, bet.ID)
	}

	bet.RoundID = r.id
	bet.PlacedAt = now
	r.bets[bet.ID] = &openBet{Bet: bet}
	r.order = append(r.order, bet.ID)

	e.storeSnapshot(now)
	return bet, nil
}

func (e *Engine) cashout(userID int64, betID string, now time.Time) (Settlement, error) {
	r := e.round
	b, ok := r.bets[betID]
	if !ok && e.prev != nil {
		r = e.prev
		b, ok = r.bets[betID]
	}
	if !ok || b.UserID != userID {
		return Settlement{}, fmt.Errorf("%w: %s", ErrBetNotFound, betID)
	}

	if b.settled || r.state == StateCrashed {
		return Settlement{}, fmt.Errorf("%w: bet %s", resolver.ErrAlreadyResolved, betID)
	}
	if r.state == StateWaiting {
		return Settlement{}, fmt.Errorf("%w: round %s", ErrRoundNotStarted, r.id)
	}

	return e.settle(r, b, r.multiplier, false, now), nil
}

// advance moves the round to now. It is the only place state changes
// other than bet placement, so the crash transition orders every cash-out.
func (e *Engine) advance(now time.Time) {
	r := e.round

	switch r.state {
	case StateWaiting:
		if !now.Before(r.waitUntil) {
			r.state = StateRising
			r.startedAt = now
			r.multiplier = 1
			e.log.Debug("crash round started", zap.String("round_id", r.id), zap.Int("bets", len(r.bets)))
		}

	case StateRising:
		m := Multiplier(now.Sub(r.startedAt))
		reached := math.Min(m, r.crashPoint)
		r.multiplier = floor2(reached)

		for _, id := range r.order {
			b := r.bets[id]
			if b.settled || b.AutoCashout == 0 {
				continue
			}
			if b.AutoCashout <= reached {
				e.settle(r, b, b.AutoCashout, true, now)
			}
		}

		if m >= r.crashPoint {
			e.crash(r, now)
		}

	case StateCrashed:
		if !now.Before(r.nextRound) {
			e.prev = r
			e.newRound(now)
		}
	}

	e.storeSnapshot(now)
	e.emit(now)
}

func (e *Engine) crash(r *round, now time.Time) {
	r.state = StateCrashed
	r.multiplier = r.crashPoint
	r.nextRound = now.Add(e.cfg.Cooldown)

	lost := 0
	for _, id := range r.order {
		if b := r.bets[id]; !b.settled {
			e.settle(r, b, 0, false, now)
			lost++
		}
	}

	e.history = append([]float64{r.crashPoint}, e.history...)
	if len(e.history) > e.cfg.History {
		e.history = e.history[:e.cfg.History]
	}

	e.log.Info("crash round ended",
		zap.String("round_id", r.id),
		zap.Float64("crash_point", r.crashPoint),
		zap.Int("bets", len(r.bets)),
		zap.Int("lost", lost),
	)
}

func (e *Engine) settle(r *round, b *openBet, cashoutAt float64, auto bool, now time.Time) Settlement {
	b.settled = true

	res, err := resolver.SettleCrash(b.Amount, r.crashPoint, cashoutAt)
	if err != nil {
		// bets are validated on entry, so this only trips on a broken point source
		e.log.Error("crash settlement failed", zap.String("bet_id", b.ID), zap.Error(err))
	}
	if res != nil {
		if p, ok := res.Payload.(models.CrashPayload); ok {
			p.RoundID = r.id
			res.Payload = p
		}
	}

	s := Settlement{
		Bet:        b.Bet,
		RoundID:    r.id,
		CrashPoint: r.crashPoint,
		Result:     res,
		Auto:       auto,
		SettledAt:  now,
	}
	e.deliver(s)
	return s
}

func (e *Engine) shutdown(now time.Time) {
	r := e.round
	if r.state == StateCrashed {
		return
	}
	for _, id := range r.order {
		b := r.bets[id]
		if b.settled {
			continue
		}
		b.settled = true
		e.deliver(Settlement{Bet: b.Bet, RoundID: r.id, Refund: true, SettledAt: now})
	}
}

func (e *Engine) deliver(s Settlement) {
	e.mu.RLock()
	fn := e.onSettle
	e.mu.RUnlock()

	if fn != nil {
		fn(s)
	}
}

func (e *Engine) newRound(now time.Time) {
	e.nonce++
	crashPoint, hash := e.points(e.nonce)

	e.round = &round{
		id:         uuid.NewString(),
		nonce:      e.nonce,
		hash:       hash,
		crashPoint: crashPoint,
		state:      StateWaiting,
		multiplier: 1,
		waitUntil:  now.Add(e.cfg.Wait),
		bets:       make(map[string]*openBet),
	}
}

func (e *Engine) storeSnapshot(now time.Time) {
	e.mu.Lock()
	e.snapshot = Snapshot{
		Round:   e.round.view(now),
		History: append([]float64(nil), e.history...),
	}
	e.mu.Unlock()
}

func (e *Engine) emit(now time.Time) {
	r := e.round
	t := Tick{
		RoundID:    r.id,
		State:      r.state,
		Multiplier: r.multiplier,
		Countdown:  r.countdown(now),
	}
	if r.state == StateCrashed {
		t.CrashPoint = r.crashPoint
	}

	e.mu.RLock()
	subs := make([]func(Tick), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.RUnlock()

	for _, fn := range subs {
		fn(t)
	}
}
