package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type GameMode string

const (
	ModeDice   GameMode = "dice"
	ModeLimbo  GameMode = "limbo"
	ModeMines  GameMode = "mines"
	ModePlinko GameMode = "plinko"
	ModeCrash  GameMode = "crash"
	ModeSlot   GameMode = "slot"
)

var ErrUnknownMode = errors.New("unknown game mode")

func (m GameMode) Valid() bool {
	switch m {
	case ModeDice, ModeLimbo, ModeMines, ModePlinko, ModeCrash, ModeSlot:
		return true
	}
	return false
}

// Instant modes settle in a single call.
func (m GameMode) Instant() bool {
	switch m {
	case ModeDice, ModeLimbo, ModePlinko, ModeSlot:
		return true
	}
	return false
}

// Params is the mode specific part of a bet request.
type Params interface {
	Mode() GameMode
}

type DiceParams struct {
	Target int  `json:"target"`
	IsOver bool `json:"isOver"`
}

type LimboParams struct {
	Target float64 `json:"target"`
}

type MinesStatus string

const (
	MinesActive    MinesStatus = "active"
	MinesLost      MinesStatus = "lost"
	MinesCashedOut MinesStatus = "cashed_out"
)

// MinesRound is owned by the caller and passed back on every reveal.
type MinesRound struct {
	MinesCount    int         `json:"minesCount"`
	MinePositions []int       `json:"minePositions"`
	Revealed      []int       `json:"revealedCells"`
	Status        MinesStatus `json:"status"`
}

func (r MinesRound) IsRevealed(cell int) bool {
	for _, c := range r.Revealed {
		if c == cell {
			return true
		}
	}
	return false
}

func (r MinesRound) IsMine(cell int) bool {
	for _, c := range r.MinePositions {
		if c == cell {
			return true
		}
	}
	return false
}

type MinesParams struct {
	Round MinesRound `json:"round"`
	Cell  int        `json:"cell"`
}

type PlinkoRisk string

const (
	RiskLow    PlinkoRisk = "low"
	RiskMedium PlinkoRisk = "medium"
	RiskHigh   PlinkoRisk = "high"
)

type PlinkoParams struct {
	Rows int        `json:"rows"`
	Risk PlinkoRisk `json:"risk"`
}

type SlotParams struct{}

// CrashParams settles one bet against an already drawn crash point.
// CashoutAt is zero when the bet never cashed out.
type CrashParams struct {
	CrashPoint float64 `json:"crashPoint"`
	CashoutAt  float64 `json:"cashoutAt"`
}

func (DiceParams) Mode() GameMode   { return ModeDice }
func (LimboParams) Mode() GameMode  { return ModeLimbo }
func (MinesParams) Mode() GameMode  { return ModeMines }
func (PlinkoParams) Mode() GameMode { return ModePlinko }
func (SlotParams) Mode() GameMode   { return ModeSlot }
func (CrashParams) Mode() GameMode  { return ModeCrash }

type BetRequest struct {
	Mode   GameMode
	Amount decimal.Decimal
	Params Params
}

// Payload is the mode specific result shown to the player.
type Payload interface {
	Mode() GameMode
}

type DicePayload struct {
	Roll      int     `json:"roll"`
	Target    int     `json:"target"`
	IsOver    bool    `json:"isOver"`
	WinChance float64 `json:"winChance"`
}

type LimboPayload struct {
	Target float64 `json:"target"`
	Result float64 `json:"result"`
}

type MinesPayload struct {
	MinesCount    int         `json:"minesCount"`
	Cell          int         `json:"cell"`
	HitMine       bool        `json:"hitMine"`
	Revealed      []int       `json:"revealedCells"`
	SafeLeft      int         `json:"safeLeft"`
	Status        MinesStatus `json:"status"`
	MinePositions []int       `json:"minePositions,omitempty"`
}

type PlinkoPayload struct {
	Rows        int        `json:"rows"`
	Risk        PlinkoRisk `json:"risk"`
	Path        []int      `json:"path"`
	Bucket      int        `json:"bucket"`
	Multipliers []float64  `json:"multipliers"`
}

type SlotPayload struct {
	Symbols [][]string `json:"symbols"`
}

type CrashPayload struct {
	CrashPoint float64 `json:"crashPoint"`
	CashoutAt  float64 `json:"cashoutAt"`
	RoundID    string  `json:"roundId,omitempty"`
}

func (DicePayload) Mode() GameMode   { return ModeDice }
func (LimboPayload) Mode() GameMode  { return ModeLimbo }
func (MinesPayload) Mode() GameMode  { return ModeMines }
func (PlinkoPayload) Mode() GameMode { return ModePlinko }
func (SlotPayload) Mode() GameMode   { return ModeSlot }
func (CrashPayload) Mode() GameMode  { return ModeCrash }

type BetResult struct {
	Mode       GameMode        `json:"gameMode"`
	IsWin      bool            `json:"isWin"`
	Multiplier float64         `json:"multiplier"`
	Payout     Money           `json:"winAmount"`
	Payload    Payload         `json:"gameData"`
}

// DecodeParams builds the typed parameters for mode from raw JSON.
// An empty document yields the zero value of the mode's parameters.
func DecodeParams(mode GameMode, raw json.RawMessage) (Params, error) {
	var p Params
	switch mode {
	case ModeDice:
		p = &DiceParams{IsOver: true}
	case ModeLimbo:
		p = &LimboParams{}
	case ModeMines:
		p = &MinesParams{}
	case ModePlinko:
		p = &PlinkoParams{}
	case ModeSlot:
		p = &SlotParams{}
	case ModeCrash:
		p = &CrashParams{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("invalid %s parameters: %w", mode, err)
		}
	}

	switch v := p.(type) {
	case *DiceParams:
		return *v, nil
	case *LimboParams:
		return *v, nil
	case *MinesParams:
		return *v, nil
	case *PlinkoParams:
		return *v, nil
	case *SlotParams:
		return *v, nil
	case *CrashParams:
		return *v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}
