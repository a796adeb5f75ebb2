package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCashedOut SessionStatus = "cashed_out"
	StatusLost      SessionStatus = "lost"
	StatusRefunded  SessionStatus = "refunded"
)

// GameSession is one wager. Mines rounds keep their grid in Mines while
// active; crash bets reference their round in RoundID.
type GameSession struct {
	ID         string          `json:"id"`
	UserID     int64           `json:"user_id"`
	GameID     int             `json:"game_id"`
	GameMode   GameMode        `json:"game_mode"`
	BetAmount  decimal.Decimal `json:"bet_amount"`
	Payout     decimal.Decimal `json:"win_amount"`
	Multiplier float64         `json:"multiplier"`
	IsWin      bool            `json:"is_win"`
	GameData   json.RawMessage `json:"game_data,omitempty"`

	Mines       *MinesRound `json:"mines,omitempty"`
	RoundID     string      `json:"round_id,omitempty"`
	AutoCashout float64     `json:"auto_cashout,omitempty"`

	ClientSeed     string `json:"client_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	Nonce          int64  `json:"nonce"`
	Hash           string `json:"hash,omitempty"`

	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	EndedAt   time.Time     `json:"ended_at,omitempty"`
}

// Settle copies a resolver result onto the session.
func (s *GameSession) Settle(res *BetResult, status SessionStatus, now time.Time) error {
	data, err := json.Marshal(res.Payload)
	if err != nil {
		return err
	}

	s.IsWin = res.IsWin
	s.Multiplier = res.Multiplier
	s.Payout = res.Payout.Decimal
	s.GameData = data
	s.Status = status
	s.EndedAt = now
	return nil
}
