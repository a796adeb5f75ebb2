package crash

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/resolver"
	"casino-originals/internal/rng"
)

type State string

const (
	StateWaiting State = "waiting"
	StateRising  State = "rising"
	StateCrashed State = "crashed"
)

var (
	ErrBettingClosed   = errors.New("betting closed")
	ErrRoundNotStarted = errors.New("round not started")
	ErrBetNotFound     = errors.New("bet not found")
	ErrDuplicateBet    = errors.New("duplicate bet")
	ErrStopped         = errors.New("crash engine stopped")
)

const (
	curveBase  = 1.0024
	curveScale = 10.0 // milliseconds per exponent step
)

// Multiplier is the curve value after elapsed time in the rising state.
func Multiplier(elapsed time.Duration) float64 {
	ms := float64(elapsed) / float64(time.Millisecond)
	if ms <= 0 {
		return 1
	}
	return math.Pow(curveBase, ms/curveScale)
}

func floor2(v float64) float64 {
	return math.Floor(v*100) / 100
}

// PointFunc draws the crash point for a round nonce and returns the hash
// players can verify it against.
type PointFunc func(nonce int64) (crashPoint float64, hash string)

// FairPoints derives crash points from an HMAC stream keyed by seed.
func FairPoints(seed func() string) PointFunc {
	return func(nonce int64) (float64, string) {
		src := rng.NewFair(seed(), "crash", nonce)
		return resolver.CrashPoint(src), src.Hash()
	}
}

type Bet struct {
	ID          string          `json:"id"`
	UserID      int64           `json:"user_id"`
	RoundID     string          `json:"round_id"`
	Amount      decimal.Decimal `json:"amount"`
	AutoCashout float64         `json:"auto_cashout,omitempty"`
	PlacedAt    time.Time       `json:"placed_at"`
}

// Settlement is emitted once per bet. Refund is set when the engine stops
// before the round could resolve the bet.
type Settlement struct {
	Bet        Bet               `json:"bet"`
	RoundID    string            `json:"round_id"`
	CrashPoint float64           `json:"crash_point"`
	Result     *models.BetResult `json:"result,omitempty"`
	Auto       bool              `json:"auto"`
	Refund     bool              `json:"refund"`
	SettledAt  time.Time         `json:"settled_at"`
}

type Tick struct {
	RoundID    string        `json:"round_id"`
	State      State         `json:"state"`
	Multiplier float64       `json:"multiplier"`
	Countdown  time.Duration `json:"countdown"`
	CrashPoint float64       `json:"crash_point,omitempty"`
}

// Round is the public view of the current round. CrashPoint stays zero
// until the round has crashed.
type Round struct {
	ID         string    `json:"id"`
	Nonce      int64     `json:"nonce"`
	Hash       string    `json:"hash"`
	State      State     `json:"state"`
	Multiplier float64   `json:"multiplier"`
	CrashPoint float64   `json:"crash_point,omitempty"`
	Countdown  float64   `json:"countdown_seconds"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Bets       int       `json:"bets"`
}

type Snapshot struct {
	Round   Round     `json:"round"`
	History []float64 `json:"history"`
}

type openBet struct {
	Bet
	settled bool
}

type round struct {
	id         string
	nonce      int64
	hash       string
	crashPoint float64

	state      State
	multiplier float64
	waitUntil  time.Time
	startedAt  time.Time
	nextRound  time.Time

	bets  map[string]*openBet
	order []string
}

func (r *round) countdown(now time.Time) time.Duration {
	var until time.Time
	switch r.state {
	case StateWaiting:
		until = r.waitUntil
	case StateCrashed:
		until = r.nextRound
	default:
		return 0
	}
	if d := until.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (r *round) view(now time.Time) Round {
	v := Round{
		ID:         r.id,
		Nonce:      r.nonce,
		Hash:       r.hash,
		State:      r.state,
		Multiplier: r.multiplier,
		Countdown:  r.countdown(now).Seconds(),
		StartedAt:  r.startedAt,
		Bets:       len(r.bets),
	}
	if r.state == StateCrashed {
		v.CrashPoint = r.crashPoint
	}
	return v
}
