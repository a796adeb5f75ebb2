package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/resolver"
	"casino-originals/internal/rng"
)

var ErrActiveGames = errors.New("finish running games before rotating seeds")

// CrashClientSeed is the client seed of every crash round. Crash rounds are
// shared, so only the house seed and the round nonce vary.
const CrashClientSeed = "crash"

// HouseSeed is the server seed behind shared crash rounds. It rotates
// after maxAge and reveals the seeds it retired.
type HouseSeed struct {
	mu        sync.Mutex
	seed      string
	hash      string
	rotatedAt time.Time
	maxAge    time.Duration
	now       func() time.Time

	revealed []RevealedSeed
}

type RevealedSeed struct {
	ServerSeed     string    `json:"serverSeed"`
	ServerSeedHash string    `json:"serverSeedHash"`
	UsedFrom       time.Time `json:"usedFrom"`
	RevealedAt     time.Time `json:"revealedAt"`
}

const maxRevealed = 10

func NewHouseSeed(maxAge time.Duration) (*HouseSeed, error) {
	h := &HouseSeed{maxAge: maxAge, now: time.Now}
	if err := h.rotate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *HouseSeed) rotate() error {
	seed, err := rng.GenerateSeed()
	if err != nil {
		return err
	}

	now := h.now()
	if h.seed != "" {
		h.revealed = append([]RevealedSeed{{
			ServerSeed:     h.seed,
			ServerSeedHash: h.hash,
			UsedFrom:       h.rotatedAt,
			RevealedAt:     now,
		}}, h.revealed...)
		if len(h.revealed) > maxRevealed {
			h.revealed = h.revealed[:maxRevealed]
		}
	}

	h.seed = seed
	h.hash = rng.HashSeed(seed)
	h.rotatedAt = now
	return nil
}

// Seed returns the current seed, rotating first when it is too old. The
// crash engine calls it once per round, so a round never spans two seeds.
func (h *HouseSeed) Seed() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxAge > 0 && h.now().Sub(h.rotatedAt) > h.maxAge {
		// keep the old seed if entropy fails; rotation retries next round
		_ = h.rotate()
	}
	return h.seed
}

func (h *HouseSeed) Hash() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hash
}

func (h *HouseSeed) Revealed() []RevealedSeed {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]RevealedSeed(nil), h.revealed...)
}

// SeedManager handles the per-user seed pair kept in the wallet.
type SeedManager struct {
	ledger   Ledger
	sessions SessionStore
}

func NewSeedManager(ledger Ledger, sessions SessionStore) *SeedManager {
	return &SeedManager{ledger: ledger, sessions: sessions}
}

type Fairness struct {
	ServerSeedHash string `json:"serverSeedHash"`
	ClientSeed     string `json:"clientSeed"`
	Nonce          int64  `json:"nonce"`
}

// Rotation is the result of a seed change: the retired pair in full and
// the commitment of the new one.
type Rotation struct {
	Previous struct {
		ServerSeed     string `json:"serverSeed"`
		ServerSeedHash string `json:"serverSeedHash"`
		ClientSeed     string `json:"clientSeed"`
		Nonce          int64  `json:"nonce"`
	} `json:"previous"`
	Current Fairness `json:"current"`
}

func (m *SeedManager) Current(ctx context.Context, userID int64) (Fairness, error) {
	w, err := m.ledger.GetWallet(ctx, userID)
	if err != nil {
		return Fairness{}, err
	}
	return Fairness{ServerSeedHash: w.ServerSeedHash, ClientSeed: w.ClientSeed, Nonce: w.Nonce}, nil
}

// Rotate reveals the current server seed and commits to a fresh one. An
// empty clientSeed keeps the current client seed. Running mines rounds
// were dealt from the current seed, so rotation waits until they end.
func (m *SeedManager) Rotate(ctx context.Context, userID int64, clientSeed string) (*Rotation, error) {
	if len(clientSeed) > 64 {
		return nil, fmt.Errorf("%w: client seed longer than 64 characters", resolver.ErrInvalidParameter)
	}

	active, err := m.sessions.GetUserActiveGames(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, gs := range active {
		if gs.GameMode == models.ModeMines {
			return nil, ErrActiveGames
		}
	}

	serverSeed, err := rng.GenerateSeed()
	if err != nil {
		return nil, err
	}
	prev, err := m.ledger.RotateSeeds(ctx, userID, serverSeed, clientSeed)
	if err != nil {
		return nil, err
	}

	r := &Rotation{}
	r.Previous.ServerSeed = prev.ServerSeed
	r.Previous.ServerSeedHash = prev.ServerSeedHash
	r.Previous.ClientSeed = prev.ClientSeed
	r.Previous.Nonce = prev.Nonce
	r.Current = Fairness{ServerSeedHash: rng.HashSeed(serverSeed), ClientSeed: prev.ClientSeed}
	if clientSeed != "" {
		r.Current.ClientSeed = clientSeed
	}
	return r, nil
}

type VerifyRequest struct {
	ServerSeed string          `json:"serverSeed" binding:"required"`
	ClientSeed string          `json:"clientSeed" binding:"required"`
	Nonce      int64           `json:"nonce" binding:"gte=0"`
	GameMode   models.GameMode `json:"gameMode" binding:"required"`
	Parameters json.RawMessage `json:"parameters"`
}

type Verification struct {
	ServerSeedHash string            `json:"serverSeedHash"`
	Hash           string            `json:"hash"`
	Result         *models.BetResult `json:"result,omitempty"`
	MinePositions  []int             `json:"minePositions,omitempty"`
	CrashPoint     float64           `json:"crashPoint,omitempty"`
}

// unit is the stake used to replay outcomes; only multipliers matter.
var unit = decimal.NewFromInt(1)

// Verify replays an outcome from a revealed seed pair. Instant modes are
// re-resolved with the given parameters, mines returns the dealt layout
// and crash returns the round's crash point.
func Verify(req VerifyRequest) (*Verification, error) {
	fair := rng.NewFair(req.ServerSeed, req.ClientSeed, req.Nonce)
	v := &Verification{
		ServerSeedHash: rng.HashSeed(req.ServerSeed),
		Hash:           fair.Hash(),
	}

	switch req.GameMode {
	case models.ModeMines:
		var p struct {
			MinesCount int `json:"minesCount"`
		}
		if len(req.Parameters) > 0 {
			if err := json.Unmarshal(req.Parameters, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", resolver.ErrInvalidParameter, err)
			}
		}
		round, err := resolver.NewMinesRound(p.MinesCount, fair)
		if err != nil {
			return nil, err
		}
		v.MinePositions = round.MinePositions
	case models.ModeCrash:
		v.CrashPoint = resolver.CrashPoint(fair)
	default:
		if !req.GameMode.Instant() {
			return nil, fmt.Errorf("%w: %q", models.ErrUnknownMode, req.GameMode)
		}
		params, err := models.DecodeParams(req.GameMode, req.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", resolver.ErrInvalidParameter, err)
		}
		res, err := resolver.Resolve(models.BetRequest{Mode: req.GameMode, Amount: unit, Params: params}, fair)
		if err != nil {
			return nil, err
		}
		v.Result = res
	}
	return v, nil
}
