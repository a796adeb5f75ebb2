package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"casino-originals/internal/config"
	"casino-originals/internal/models"
	"casino-originals/internal/rng"
)

type RedisService struct {
	client       *redis.Client
	startBalance int64
}

var _ Store = (*RedisService)(nil)

func NewRedisService(ctx context.Context, cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{
		client:       client,
		startBalance: cfg.StartBalance,
	}, nil
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) NextUserID(ctx context.Context) (int64, error) {
	id, err := s.client.Incr(ctx, KeyUserSeq).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate user id: %w", err)
	}
	return id, nil
}

func (s *RedisService) SaveUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, fmt.Sprintf(KeyUserInfo, user.ID), data, TTLUserInfo).Err()
}

func (s *RedisService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyUserInfo, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// GetWallet creates the wallet with SETNX so concurrent first requests
// agree on one set of seeds.
func (s *RedisService) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	key := fmt.Sprintf(KeyWallet, userID)

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		if err := s.createWallet(ctx, key, userID); err != nil {
			return nil, err
		}
		data, err = s.client.Get(ctx, key).Bytes()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return decodeWallet(data)
}

func (s *RedisService) createWallet(ctx context.Context, key string, userID int64) error {
	wallet, err := models.NewWallet(userID, s.startBalance)
	if err != nil {
		return err
	}
	data, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %w", err)
	}
	if err := s.client.SetNX(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func decodeWallet(data []byte) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := json.Unmarshal(data, &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}
	return &wallet, nil
}

// Every wallet script works on the JSON blob and returns a wallet document.
var lockBalanceScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)

	if wallet.balance < amount then
		return redis.error_reply("insufficient balance")
	end

	wallet.balance = wallet.balance - amount
	wallet.locked_balance = wallet.locked_balance + amount
	wallet.total_wagered = wallet.total_wagered + amount

	local updated = cjson.encode(wallet)
	redis.call("SET", key, updated)

	return updated
`)

func (s *RedisService) LockBalanceForGame(ctx context.Context, userID, amount int64) (*models.Wallet, error) {
	if _, err := s.GetWallet(ctx, userID); err != nil {
		return nil, err
	}
	return s.runWalletScript(ctx, lockBalanceScript, userID, amount)
}

var releaseBalanceScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])
	local payout = tonumber(ARGV[2])

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)

	wallet.locked_balance = wallet.locked_balance - amount
	if wallet.locked_balance < 0 then
		wallet.locked_balance = 0
	end

	if payout > 0 then
		wallet.balance = wallet.balance + payout
		wallet.total_won = wallet.total_won + payout
	end

	local updated = cjson.encode(wallet)
	redis.call("SET", key, updated)

	return updated
`)

func (s *RedisService) ReleaseBalanceFromGame(ctx context.Context, userID, amount, payout int64) (*models.Wallet, error) {
	return s.runWalletScript(ctx, releaseBalanceScript, userID, amount, payout)
}

var nextNonceScript = redis.NewScript(`
	local key = KEYS[1]

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)
	wallet.nonce = wallet.nonce + 1
	redis.call("SET", key, cjson.encode(wallet))

	return data
`)

func (s *RedisService) NextNonce(ctx context.Context, userID int64) (*models.Wallet, error) {
	if _, err := s.GetWallet(ctx, userID); err != nil {
		return nil, err
	}
	return s.runWalletScript(ctx, nextNonceScript, userID)
}

var rotateSeedsScript = redis.NewScript(`
	local key = KEYS[1]

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)
	wallet.server_seed = ARGV[1]
	wallet.server_seed_hash = ARGV[2]
	if ARGV[3] ~= "" then
		wallet.client_seed = ARGV[3]
	end
	wallet.nonce = 0
	redis.call("SET", key, cjson.encode(wallet))

	return data
`)

func (s *RedisService) RotateSeeds(ctx context.Context, userID int64, serverSeed, clientSeed string) (*models.Wallet, error) {
	if _, err := s.GetWallet(ctx, userID); err != nil {
		return nil, err
	}
	return s.runWalletScript(ctx, rotateSeedsScript, userID, serverSeed, rng.HashSeed(serverSeed), clientSeed)
}

func (s *RedisService) runWalletScript(ctx context.Context, script *redis.Script, userID int64, args ...any) (*models.Wallet, error) {
	key := fmt.Sprintf(KeyWallet, userID)

	data, err := script.Run(ctx, s.client, []string{key}, args...).Text()
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "insufficient balance"):
			return nil, ErrInsufficientBalance
		case strings.Contains(err.Error(), "wallet not found"):
			return nil, fmt.Errorf("%w: %d", ErrWalletNotFound, userID)
		}
		return nil, fmt.Errorf("wallet script failed: %w", err)
	}
	return decodeWallet([]byte(data))
}

func (s *RedisService) SaveGameSession(ctx context.Context, session *models.GameSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal game session: %w", err)
	}

	activeKey := fmt.Sprintf(KeyUserActiveGames, session.UserID)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyGameSession, session.ID), data, TTLGameSession)
	if session.Status == models.StatusActive {
		pipe.SAdd(ctx, activeKey, session.ID)
		pipe.Expire(ctx, activeKey, TTLGameSession)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save game session: %w", err)
	}
	return nil
}

func (s *RedisService) GetGameSession(ctx context.Context, gameID string) (*models.GameSession, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyGameSession, gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game session: %w", err)
	}

	var session models.GameSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game session: %w", err)
	}
	return &session, nil
}

func (s *RedisService) GetUserActiveGames(ctx context.Context, userID int64) ([]*models.GameSession, error) {
	ids, err := s.client.SMembers(ctx, fmt.Sprintf(KeyUserActiveGames, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active games: %w", err)
	}

	sessions, err := s.bulkGetGameSessions(ctx, ids)
	if err != nil {
		return nil, err
	}

	active := sessions[:0]
	for _, gs := range sessions {
		if gs.Status == models.StatusActive {
			active = append(active, gs)
		}
	}
	return active, nil
}

func (s *RedisService) CompleteGameSession(ctx context.Context, userID int64, gameID string) error {
	completedKey := fmt.Sprintf(KeyUserCompletedGames, userID)

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, fmt.Sprintf(KeyUserActiveGames, userID), gameID)
	pipe.ZAdd(ctx, completedKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: gameID,
	})
	pipe.ZRemRangeByRank(ctx, completedKey, 0, -HistoryLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete game session: %w", err)
	}
	return nil
}

func (s *RedisService) bulkGetGameSessions(ctx context.Context, gameIDs []string) ([]*models.GameSession, error) {
	if len(gameIDs) == 0 {
		return []*models.GameSession{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(gameIDs))
	for i, gameID := range gameIDs {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyGameSession, gameID))
	}

	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	sessions := make([]*models.GameSession, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}

		var session models.GameSession
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

func (s *RedisService) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, tx.UserID)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyTransaction, tx.ID), data, TTLTransaction)
	pipe.ZAdd(ctx, userTxKey, redis.Z{
		Score:  float64(tx.CreatedAt.UnixNano()),
		Member: tx.ID,
	})
	pipe.ZRemRangeByRank(ctx, userTxKey, 0, -HistoryLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func (s *RedisService) GetUserTransactions(ctx context.Context, userID int64, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = 50
	}

	txIDs, err := s.client.ZRevRange(ctx, fmt.Sprintf(KeyUserTransactions, userID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction IDs: %w", err)
	}
	if len(txIDs) == 0 {
		return []*models.Transaction{}, nil
	}

	keys := make([]string, len(txIDs))
	for i, id := range txIDs {
		keys[i] = fmt.Sprintf(KeyTransaction, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	transactions := make([]*models.Transaction, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		var tx models.Transaction
		if err := json.Unmarshal([]byte(raw), &tx); err != nil {
			continue
		}
		transactions = append(transactions, &tx)
	}
	return transactions, nil
}

func (s *RedisService) CheckRateLimit(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// ClearRateLimit drops the counter for action, used by tests and support tooling.
func (s *RedisService) ClearRateLimit(ctx context.Context, userID int64, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, userID, action)).Err()
}

// DeleteWallet removes the wallet; the next GetWallet starts over.
func (s *RedisService) DeleteWallet(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyWallet, userID)).Err()
}

func (s *RedisService) DeleteGameSession(ctx context.Context, gameID string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyGameSession, gameID)).Err()
}
