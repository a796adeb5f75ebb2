package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"casino-originals/internal/config"
	"casino-originals/internal/models"
	"casino-originals/internal/services"
)

func TestRedisService(t *testing.T) {
	cfg := &config.Config{
		RedisURL:     "localhost:6379",
		RedisPass:    "",
		RedisDB:      0,
		StartBalance: 10000,
	}

	ctx := context.Background()
	redisService, err := services.NewRedisService(ctx, cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer redisService.Close()

	userID := int64(999999)
	redisService.DeleteWallet(ctx, userID)

	wallet, err := redisService.GetWallet(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if wallet.Balance != 10000 {
		t.Errorf("Expected default balance 10000, got %d", wallet.Balance)
	}
	if wallet.ServerSeedHash == "" || wallet.ClientSeed == "" {
		t.Error("New wallet should carry seeds")
	}

	wallet, err = redisService.LockBalanceForGame(ctx, userID, 1000)
	if err != nil {
		t.Fatalf("Failed to lock balance: %v", err)
	}
	if wallet.Balance != 9000 || wallet.LockedBalance != 1000 {
		t.Errorf("Expected 9000/1000 after lock, got %d/%d", wallet.Balance, wallet.LockedBalance)
	}

	if _, err := redisService.LockBalanceForGame(ctx, userID, 100000); !errors.Is(err, services.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	wallet, err = redisService.ReleaseBalanceFromGame(ctx, userID, 1000, 1980)
	if err != nil {
		t.Fatalf("Failed to release balance: %v", err)
	}
	if wallet.Balance != 10980 || wallet.LockedBalance != 0 || wallet.TotalWon != 1980 {
		t.Errorf("Unexpected wallet after release: %+v", wallet)
	}

	before, err := redisService.NextNonce(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to bump nonce: %v", err)
	}
	after, _ := redisService.GetWallet(ctx, userID)
	if after.Nonce != before.Nonce+1 {
		t.Errorf("Nonce should advance by one, got %d -> %d", before.Nonce, after.Nonce)
	}

	session := &models.GameSession{
		ID:        "test_game_123",
		UserID:    userID,
		GameMode:  models.ModeMines,
		BetAmount: decimal.RequireFromString("10.00"),
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	if err := redisService.SaveGameSession(ctx, session); err != nil {
		t.Errorf("Failed to save game session: %v", err)
	}

	retrieved, err := redisService.GetGameSession(ctx, "test_game_123")
	if err != nil {
		t.Fatalf("Failed to get game session: %v", err)
	}
	if retrieved.ID != session.ID || !retrieved.BetAmount.Equal(session.BetAmount) {
		t.Errorf("Game session mismatch: %+v", retrieved)
	}

	active, err := redisService.GetUserActiveGames(ctx, userID)
	if err != nil || len(active) != 1 {
		t.Errorf("Expected one active game, got %d (%v)", len(active), err)
	}
	if err := redisService.CompleteGameSession(ctx, userID, session.ID); err != nil {
		t.Errorf("Failed to complete game session: %v", err)
	}

	allowed, err := redisService.CheckRateLimit(ctx, userID, "bet", 5, time.Minute)
	if err != nil {
		t.Errorf("Failed to check rate limit: %v", err)
	}
	if !allowed {
		t.Error("First bet should be allowed")
	}

	redisService.DeleteWallet(ctx, userID)
	redisService.DeleteGameSession(ctx, session.ID)
	redisService.ClearRateLimit(ctx, userID, "bet")
}
