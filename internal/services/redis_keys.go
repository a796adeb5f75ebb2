package services

import "time"

// every key lives under one prefix so the casino can share a Redis
const keyPrefix = "originals:"

const (
	KeyUserInfo           = keyPrefix + "user:%d"
	KeyUserSeq            = keyPrefix + "user:seq"
	KeyWallet             = keyPrefix + "wallet:%d"
	KeyGameSession        = keyPrefix + "session:%s"
	KeyUserActiveGames    = keyPrefix + "user:%d:active"
	KeyUserCompletedGames = keyPrefix + "user:%d:completed"
	KeyTransaction        = keyPrefix + "tx:%s"
	KeyUserTransactions   = keyPrefix + "user:%d:txs"
	KeyRateLimit          = keyPrefix + "rl:%d:%s"
)

const (
	TTLUserInfo    = 90 * 24 * time.Hour
	TTLGameSession = 24 * time.Hour
	TTLTransaction = 90 * 24 * time.Hour
)

// HistoryLimit caps the per-user sorted sets.
const HistoryLimit = 100

// per minute
const (
	DefaultRateLimitBets    = 30
	DefaultRateLimitCashout = 60
)
