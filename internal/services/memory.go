package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"casino-originals/internal/models"
	"casino-originals/internal/rng"
)

// CacheStore keeps everything in process memory. It mirrors RedisService
// for development and tests: values are stored as JSON so callers never
// share pointers with the store.
type CacheStore struct {
	mu           sync.Mutex
	c            *cache.Cache
	startBalance int64

	nextUserID   int64
	active       map[int64]map[string]struct{}
	transactions map[int64][]string
}

var _ Store = (*CacheStore)(nil)

func NewCacheStore(startBalance int64) *CacheStore {
	return &CacheStore{
		c:            cache.New(cache.NoExpiration, 10*time.Minute),
		startBalance: startBalance,
		active:       make(map[int64]map[string]struct{}),
		transactions: make(map[int64][]string),
	}
}

func (s *CacheStore) Ping(context.Context) error { return nil }

func (s *CacheStore) Close() error {
	s.c.Flush()
	return nil
}

func (s *CacheStore) NextUserID(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextUserID++
	return s.nextUserID, nil
}

func (s *CacheStore) SaveUser(_ context.Context, user *models.User) error {
	return s.put(fmt.Sprintf(KeyUserInfo, user.ID), user, TTLUserInfo)
}

func (s *CacheStore) GetUser(_ context.Context, userID int64) (*models.User, error) {
	var user models.User
	if !s.get(fmt.Sprintf(KeyUserInfo, userID), &user) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return &user, nil
}

func (s *CacheStore) GetWallet(_ context.Context, userID int64) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wallet(userID)
}

// wallet loads or creates the wallet; callers hold mu.
func (s *CacheStore) wallet(userID int64) (*models.Wallet, error) {
	var w models.Wallet
	if s.get(fmt.Sprintf(KeyWallet, userID), &w) {
		return &w, nil
	}

	fresh, err := models.NewWallet(userID, s.startBalance)
	if err != nil {
		return nil, err
	}
	if err := s.put(fmt.Sprintf(KeyWallet, userID), fresh, cache.NoExpiration); err != nil {
		return nil, err
	}
	return fresh, nil
}

// update applies fn to the wallet under the lock and returns the wallet
// before and after.
func (s *CacheStore) update(userID int64, fn func(w *models.Wallet) error) (before, after *models.Wallet, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.wallet(userID)
	if err != nil {
		return nil, nil, err
	}
	prev := *w
	if err := fn(w); err != nil {
		return nil, nil, err
	}
	if err := s.put(fmt.Sprintf(KeyWallet, userID), w, cache.NoExpiration); err != nil {
		return nil, nil, err
	}
	return &prev, w, nil
}

func (s *CacheStore) LockBalanceForGame(_ context.Context, userID, amount int64) (*models.Wallet, error) {
	_, w, err := s.update(userID, func(w *models.Wallet) error {
		if w.Balance < amount {
			return ErrInsufficientBalance
		}
		w.Balance -= amount
		w.LockedBalance += amount
		w.TotalWagered += amount
		return nil
	})
	return w, err
}

func (s *CacheStore) ReleaseBalanceFromGame(_ context.Context, userID, amount, payout int64) (*models.Wallet, error) {
	_, w, err := s.update(userID, func(w *models.Wallet) error {
		w.LockedBalance -= amount
		if w.LockedBalance < 0 {
			w.LockedBalance = 0
		}
		if payout > 0 {
			w.Balance += payout
			w.TotalWon += payout
		}
		return nil
	})
	return w, err
}

func (s *CacheStore) NextNonce(_ context.Context, userID int64) (*models.Wallet, error) {
	prev, _, err := s.update(userID, func(w *models.Wallet) error {
		w.Nonce++
		return nil
	})
	return prev, err
}

func (s *CacheStore) RotateSeeds(_ context.Context, userID int64, serverSeed, clientSeed string) (*models.Wallet, error) {
	prev, _, err := s.update(userID, func(w *models.Wallet) error {
		w.ServerSeed = serverSeed
		w.ServerSeedHash = rng.HashSeed(serverSeed)
		if clientSeed != "" {
			w.ClientSeed = clientSeed
		}
		w.Nonce = 0
		return nil
	})
	return prev, err
}

func (s *CacheStore) SaveTransaction(_ context.Context, tx *models.Transaction) error {
	if err := s.put(fmt.Sprintf(KeyTransaction, tx.ID), tx, TTLTransaction); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append(s.transactions[tx.UserID], tx.ID)
	if len(ids) > HistoryLimit {
		ids = ids[len(ids)-HistoryLimit:]
	}
	s.transactions[tx.UserID] = ids
	return nil
}

func (s *CacheStore) GetUserTransactions(_ context.Context, userID int64, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = 50
	}

	s.mu.Lock()
	ids := append([]string(nil), s.transactions[userID]...)
	s.mu.Unlock()

	out := make([]*models.Transaction, 0, limit)
	for i := len(ids) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		var tx models.Transaction
		if s.get(fmt.Sprintf(KeyTransaction, ids[i]), &tx) {
			out = append(out, &tx)
		}
	}
	return out, nil
}

func (s *CacheStore) SaveGameSession(_ context.Context, session *models.GameSession) error {
	if err := s.put(fmt.Sprintf(KeyGameSession, session.ID), session, TTLGameSession); err != nil {
		return err
	}
	if session.Status != models.StatusActive {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.active[session.UserID]
	if !ok {
		set = make(map[string]struct{})
		s.active[session.UserID] = set
	}
	set[session.ID] = struct{}{}
	return nil
}

func (s *CacheStore) GetGameSession(_ context.Context, gameID string) (*models.GameSession, error) {
	var gs models.GameSession
	if !s.get(fmt.Sprintf(KeyGameSession, gameID), &gs) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	return &gs, nil
}

func (s *CacheStore) CompleteGameSession(_ context.Context, userID int64, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active[userID], gameID)
	return nil
}

func (s *CacheStore) GetUserActiveGames(ctx context.Context, userID int64) ([]*models.GameSession, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.active[userID]))
	for id := range s.active[userID] {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	out := make([]*models.GameSession, 0, len(ids))
	for _, id := range ids {
		gs, err := s.GetGameSession(ctx, id)
		if err != nil || gs.Status != models.StatusActive {
			continue
		}
		out = append(out, gs)
	}
	return out, nil
}

// CheckRateLimit counts hits in a fixed window that starts at the first hit.
func (s *CacheStore) CheckRateLimit(_ context.Context, userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	if err := s.c.Add(key, int64(1), window); err == nil {
		return 1 <= limit, nil
	}
	count, err := s.c.IncrementInt64(key, 1)
	if err != nil {
		// expired between Add and Increment
		s.c.Set(key, int64(1), window)
		return 1 <= limit, nil
	}
	return count <= int64(limit), nil
}

func (s *CacheStore) put(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	s.c.Set(key, data, ttl)
	return nil
}

func (s *CacheStore) get(key string, v any) bool {
	raw, ok := s.c.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw.([]byte), v) == nil
}
