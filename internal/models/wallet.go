package models

import "github.com/shopspring/decimal"

// Wallet balances are kept in cents.
type Wallet struct {
	UserID        int64 `json:"user_id" redis:"user_id"`
	Balance       int64 `json:"balance" redis:"balance"`
	LockedBalance int64 `json:"locked_balance" redis:"locked_balance"`
	TotalWagered  int64 `json:"total_wagered" redis:"total_wagered"`
	TotalWon      int64 `json:"total_won" redis:"total_won"`

	// Provably Fair seeds. ServerSeed stays secret until rotated.
	ServerSeed     string `json:"server_seed" redis:"server_seed"`
	ServerSeedHash string `json:"server_seed_hash" redis:"server_seed_hash"`
	ClientSeed     string `json:"client_seed" redis:"client_seed"`
	Nonce          int64  `json:"nonce" redis:"nonce"`
}

type BalanceResponse struct {
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	TotalWagered  decimal.Decimal `json:"total_wagered"`
	TotalWon      decimal.Decimal `json:"total_won"`
	Available     decimal.Decimal `json:"available"`
	Currency      string          `json:"currency"`
}

// Available balance excludes funds locked in running games.
func (w *Wallet) Response() BalanceResponse {
	return BalanceResponse{
		Balance:       FromCents(w.Balance + w.LockedBalance),
		LockedBalance: FromCents(w.LockedBalance),
		TotalWagered:  FromCents(w.TotalWagered),
		TotalWon:      FromCents(w.TotalWon),
		Available:     FromCents(w.Balance),
		Currency:      "USD",
	}
}
