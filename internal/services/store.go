package services

import (
	"context"
	"errors"
	"time"

	"casino-originals/internal/models"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrGameNotFound        = errors.New("game not found")
	ErrNotOwner            = errors.New("game belongs to another user")
	ErrUserNotFound        = errors.New("user not found")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

// Ledger moves money. Amounts are cents; every balance change is atomic.
type Ledger interface {
	// GetWallet returns the wallet, creating it with the starting balance
	// on first access.
	GetWallet(ctx context.Context, userID int64) (*models.Wallet, error)
	// LockBalanceForGame moves amount from balance to locked balance.
	LockBalanceForGame(ctx context.Context, userID, amount int64) (*models.Wallet, error)
	// ReleaseBalanceFromGame unlocks amount and credits the gross payout.
	ReleaseBalanceFromGame(ctx context.Context, userID, amount, payout int64) (*models.Wallet, error)
	// NextNonce returns the wallet as it was and bumps its nonce, so the
	// returned seeds and nonce are used by exactly one bet.
	NextNonce(ctx context.Context, userID int64) (*models.Wallet, error)
	// RotateSeeds installs new seeds, resets the nonce and returns the
	// previous wallet so the old server seed can be revealed.
	RotateSeeds(ctx context.Context, userID int64, serverSeed, clientSeed string) (*models.Wallet, error)
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	GetUserTransactions(ctx context.Context, userID int64, limit int64) ([]*models.Transaction, error)
}

// SessionStore keeps running game sessions: mines rounds and crash bets.
type SessionStore interface {
	SaveGameSession(ctx context.Context, session *models.GameSession) error
	GetGameSession(ctx context.Context, gameID string) (*models.GameSession, error)
	CompleteGameSession(ctx context.Context, userID int64, gameID string) error
	GetUserActiveGames(ctx context.Context, userID int64) ([]*models.GameSession, error)
	CheckRateLimit(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error)
}

type UserStore interface {
	NextUserID(ctx context.Context) (int64, error)
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

// Store is one backend serving all three concerns.
type Store interface {
	Ledger
	SessionStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}
