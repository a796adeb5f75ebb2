package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"casino-originals/internal/catalog"
	"casino-originals/internal/crash"
	"casino-originals/internal/metrics"
	"casino-originals/internal/models"
	"casino-originals/internal/resolver"
	"casino-originals/internal/rng"
)

// Recorder keeps the permanent record of every session.
type Recorder interface {
	Record(ctx context.Context, session models.GameSession) error
}

type Deps struct {
	Store       Store
	Catalog     *catalog.Catalog
	Recorder    Recorder
	Crash       *crash.Engine
	House       *HouseSeed
	Broadcaster Broadcaster
	Logger      *zap.Logger

	// cents
	MaxBet        int64
	RateLimitBets int
}

// GameEngine settles wagers against the ledger: it moves funds, draws the
// provably fair outcome and records the result.
type GameEngine struct {
	store       Store
	catalog     *catalog.Catalog
	recorder    Recorder
	crash       *crash.Engine
	house       *HouseSeed
	broadcaster Broadcaster
	log         *zap.Logger

	maxBet    int64
	rateLimit int
	now       func() time.Time

	games       keyedMutex
	settlements chan crash.Settlement
	closeOnce   sync.Once
	lastCrashed string
}

func NewGameEngine(d Deps) *GameEngine {
	ge := &GameEngine{
		store:       d.Store,
		catalog:     d.Catalog,
		recorder:    d.Recorder,
		crash:       d.Crash,
		house:       d.House,
		broadcaster: d.Broadcaster,
		log:         d.Logger,
		maxBet:      d.MaxBet,
		rateLimit:   d.RateLimitBets,
		now:         time.Now,
		games:       keyedMutex{m: make(map[string]*keyedEntry)},
		settlements: make(chan crash.Settlement, 1024),
	}
	if ge.broadcaster == nil {
		ge.broadcaster = nopBroadcaster{}
	}
	if ge.log == nil {
		ge.log = zap.NewNop()
	}
	if ge.rateLimit <= 0 {
		ge.rateLimit = DefaultRateLimitBets
	}

	if ge.crash != nil {
		ge.crash.OnSettle(func(s crash.Settlement) { ge.settlements <- s })
		ge.crash.Subscribe(ge.onTick)
	}
	return ge
}

type PlaceBetRequest struct {
	GameID     int             `json:"gameId"`
	GameMode   models.GameMode `json:"gameMode" binding:"required"`
	BetAmount  string          `json:"betAmount" binding:"required"`
	Parameters json.RawMessage `json:"parameters"`
}

type BetOutcome struct {
	models.BetResult
	SessionID      string          `json:"sessionId"`
	GameID         int             `json:"gameId"`
	Hash           string          `json:"hash"`
	ServerSeedHash string          `json:"serverSeedHash"`
	ClientSeed     string          `json:"clientSeed"`
	Nonce          int64           `json:"nonce"`
	NewBalance     decimal.Decimal `json:"newBalance"`
}

// PlaceBet settles a single-call wager: dice, limbo, plinko or slot.
func (ge *GameEngine) PlaceBet(ctx context.Context, userID int64, req PlaceBetRequest) (*BetOutcome, error) {
	const op = "services.PlaceBet"

	if !req.GameMode.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownMode, req.GameMode)
	}
	if !req.GameMode.Instant() {
		return nil, fmt.Errorf("%w: %s is not settled in one call", resolver.ErrInvalidParameter, req.GameMode)
	}
	if err := ge.checkRate(ctx, userID, "bet"); err != nil {
		return nil, err
	}

	game, amount, err := ge.wager(req.GameID, req.GameMode, req.BetAmount)
	if err != nil {
		return nil, err
	}

	raw := req.Parameters
	if len(raw) == 0 || string(raw) == "null" {
		raw = game.DefaultParams()
	}
	params, err := models.DecodeParams(req.GameMode, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", resolver.ErrInvalidParameter, err)
	}
	bet := models.BetRequest{Mode: req.GameMode, Amount: amount, Params: params}

	// parameters never depend on the draw, so a throwaway source rejects
	// bad ones before any funds move
	if _, err := resolver.Resolve(bet, rng.NewSequence(0)); err != nil {
		return nil, err
	}

	cents := models.ToCents(amount)
	if err := ge.lock(ctx, userID, cents, req.GameMode); err != nil {
		return nil, err
	}

	wallet, err := ge.store.NextNonce(ctx, userID)
	if err != nil {
		ge.refund(ctx, userID, cents)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	fair := rng.NewFair(wallet.ServerSeed, wallet.ClientSeed, wallet.Nonce)

	res, err := resolver.Resolve(bet, fair)
	if err != nil {
		ge.refund(ctx, userID, cents)
		return nil, err
	}

	now := ge.now()
	gs := &models.GameSession{
		ID:             models.GenerateGameID(),
		UserID:         userID,
		GameID:         game.ID,
		GameMode:       req.GameMode,
		BetAmount:      amount,
		ClientSeed:     wallet.ClientSeed,
		ServerSeedHash: wallet.ServerSeedHash,
		Nonce:          wallet.Nonce,
		Hash:           fair.Hash(),
		Status:         models.StatusActive,
		CreatedAt:      now,
	}

	after, err := ge.finish(ctx, gs, res, models.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &BetOutcome{
		BetResult:      *res,
		SessionID:      gs.ID,
		GameID:         game.ID,
		Hash:           gs.Hash,
		ServerSeedHash: gs.ServerSeedHash,
		ClientSeed:     gs.ClientSeed,
		Nonce:          gs.Nonce,
		NewBalance:     models.FromCents(after.Balance),
	}, nil
}

type MinesState struct {
	GameID         string             `json:"gameId"`
	BetAmount      decimal.Decimal    `json:"betAmount"`
	MinesCount     int                `json:"minesCount"`
	Revealed       []int              `json:"revealedCells"`
	Status         models.MinesStatus `json:"status"`
	Multiplier     float64            `json:"multiplier"`
	NextMultiplier float64            `json:"nextMultiplier,omitempty"`
	MinePositions  []int              `json:"minePositions,omitempty"`
	Result         *models.BetResult  `json:"result,omitempty"`
	Hash           string             `json:"hash"`
	Nonce          int64              `json:"nonce"`
	NewBalance     *decimal.Decimal   `json:"newBalance,omitempty"`
}

type StartMinesRequest struct {
	GameID     int    `json:"gameId"`
	BetAmount  string `json:"betAmount" binding:"required"`
	MinesCount int    `json:"minesCount"`
}

// StartMines locks the stake and deals a new layout from the player's seeds.
func (ge *GameEngine) StartMines(ctx context.Context, userID int64, req StartMinesRequest) (*MinesState, error) {
	const op = "services.StartMines"

	if err := ge.checkRate(ctx, userID, "bet"); err != nil {
		return nil, err
	}
	game, amount, err := ge.wager(req.GameID, models.ModeMines, req.BetAmount)
	if err != nil {
		return nil, err
	}

	count := req.MinesCount
	if count == 0 {
		if v, ok := game.Defaults["minesCount"].(int); ok {
			count = v
		}
	}
	if count < resolver.MinesMin || count > resolver.MinesMax {
		return nil, fmt.Errorf("%w: mines count %d outside [%d,%d]", resolver.ErrInvalidParameter, count, resolver.MinesMin, resolver.MinesMax)
	}

	cents := models.ToCents(amount)
	if err := ge.lock(ctx, userID, cents, models.ModeMines); err != nil {
		return nil, err
	}

	wallet, err := ge.store.NextNonce(ctx, userID)
	if err != nil {
		ge.refund(ctx, userID, cents)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	fair := rng.NewFair(wallet.ServerSeed, wallet.ClientSeed, wallet.Nonce)

	round, err := resolver.NewMinesRound(count, fair)
	if err != nil {
		ge.refund(ctx, userID, cents)
		return nil, err
	}

	gs := &models.GameSession{
		ID:             models.GenerateGameID(),
		UserID:         userID,
		GameID:         game.ID,
		GameMode:       models.ModeMines,
		BetAmount:      amount,
		Mines:          &round,
		ClientSeed:     wallet.ClientSeed,
		ServerSeedHash: wallet.ServerSeedHash,
		Nonce:          wallet.Nonce,
		Hash:           fair.Hash(),
		Status:         models.StatusActive,
		CreatedAt:      ge.now(),
	}
	if err := ge.store.SaveGameSession(ctx, gs); err != nil {
		ge.refund(ctx, userID, cents)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ge.record(ctx, gs)

	return minesState(gs, nil), nil
}

// RevealMine opens one cell. Hitting a mine or clearing the board ends
// the round.
func (ge *GameEngine) RevealMine(ctx context.Context, userID int64, gameID string, cell int) (*MinesState, error) {
	if err := ge.checkRate(ctx, userID, "reveal"); err != nil {
		return nil, err
	}

	unlock := ge.games.Lock(gameID)
	defer unlock()

	gs, err := ge.activeMines(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}

	round, res, err := resolver.RevealMines(gs.BetAmount, *gs.Mines, cell)
	if err != nil {
		return nil, err
	}
	gs.Mines = &round

	switch round.Status {
	case models.MinesLost:
		return ge.endMines(ctx, gs, res, models.StatusLost)
	case models.MinesCashedOut:
		return ge.endMines(ctx, gs, res, models.StatusCashedOut)
	}

	gs.Multiplier = res.Multiplier
	if err := ge.store.SaveGameSession(ctx, gs); err != nil {
		return nil, fmt.Errorf("services.RevealMine: %w", err)
	}
	return minesState(gs, res), nil
}

func (ge *GameEngine) CashoutMines(ctx context.Context, userID int64, gameID string) (*MinesState, error) {
	if err := ge.checkRate(ctx, userID, "cashout"); err != nil {
		return nil, err
	}

	unlock := ge.games.Lock(gameID)
	defer unlock()

	gs, err := ge.activeMines(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}

	round, res, err := resolver.CashoutMines(gs.BetAmount, *gs.Mines)
	if err != nil {
		return nil, err
	}
	gs.Mines = &round
	return ge.endMines(ctx, gs, res, models.StatusCashedOut)
}

// MinesGame returns a round as its owner sees it.
func (ge *GameEngine) MinesGame(ctx context.Context, userID int64, gameID string) (*MinesState, error) {
	gs, err := ge.ownedSession(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	if gs.GameMode != models.ModeMines || gs.Mines == nil {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	return minesState(gs, nil), nil
}

func (ge *GameEngine) activeMines(ctx context.Context, userID int64, gameID string) (*models.GameSession, error) {
	gs, err := ge.ownedSession(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	if gs.GameMode != models.ModeMines || gs.Mines == nil {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	if gs.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: game %s is %s", resolver.ErrAlreadyResolved, gameID, gs.Status)
	}
	return gs, nil
}

func (ge *GameEngine) endMines(ctx context.Context, gs *models.GameSession, res *models.BetResult, status models.SessionStatus) (*MinesState, error) {
	after, err := ge.finish(ctx, gs, res, status)
	if err != nil {
		return nil, fmt.Errorf("services.endMines: %w", err)
	}

	st := minesState(gs, res)
	balance := models.FromCents(after.Balance)
	st.NewBalance = &balance
	return st, nil
}

func minesState(gs *models.GameSession, res *models.BetResult) *MinesState {
	round := gs.Mines
	st := &MinesState{
		GameID:     gs.ID,
		BetAmount:  gs.BetAmount,
		MinesCount: round.MinesCount,
		Revealed:   append([]int{}, round.Revealed...),
		Status:     round.Status,
		Multiplier: gs.Multiplier,
		Result:     res,
		Hash:       gs.Hash,
		Nonce:      gs.Nonce,
	}
	if round.Status == models.MinesActive {
		if next, err := resolver.MinesMultiplier(round.MinesCount, len(round.Revealed)+1); err == nil {
			st.NextMultiplier = next
		}
	} else {
		st.MinePositions = append([]int(nil), round.MinePositions...)
	}
	return st
}

type CrashBetRequest struct {
	GameID      int     `json:"gameId"`
	BetAmount   string  `json:"betAmount" binding:"required"`
	AutoCashout float64 `json:"autoCashout"`
}

type CrashBetState struct {
	BetID          string          `json:"betId"`
	RoundID        string          `json:"roundId"`
	BetAmount      decimal.Decimal `json:"betAmount"`
	AutoCashout    float64         `json:"autoCashout,omitempty"`
	Nonce          int64           `json:"nonce"`
	Hash           string          `json:"hash"`
	ServerSeedHash string          `json:"serverSeedHash"`
	NewBalance     decimal.Decimal `json:"newBalance"`
}

// PlaceCrashBet locks the stake and joins the waiting round.
func (ge *GameEngine) PlaceCrashBet(ctx context.Context, userID int64, req CrashBetRequest) (*CrashBetState, error) {
	const op = "services.PlaceCrashBet"

	if ge.crash == nil {
		return nil, crash.ErrStopped
	}
	if err := ge.checkRate(ctx, userID, "bet"); err != nil {
		return nil, err
	}
	game, amount, err := ge.wager(req.GameID, models.ModeCrash, req.BetAmount)
	if err != nil {
		return nil, err
	}
	if err := resolver.ValidateAutoCashout(req.AutoCashout); err != nil {
		return nil, err
	}

	cents := models.ToCents(amount)
	if err := ge.lock(ctx, userID, cents, models.ModeCrash); err != nil {
		return nil, err
	}

	betID := models.GenerateGameID()
	unlock := ge.games.Lock(betID)
	defer unlock()

	bet, err := ge.crash.PlaceBet(ctx, crash.Bet{
		ID:          betID,
		UserID:      userID,
		Amount:      amount,
		AutoCashout: req.AutoCashout,
	})
	if err != nil {
		ge.refund(ctx, userID, cents)
		return nil, err
	}
	metrics.ActiveCrashBets.Inc()

	round := ge.crash.Snapshot().Round
	gs := &models.GameSession{
		ID:          bet.ID,
		UserID:      userID,
		GameID:      game.ID,
		GameMode:    models.ModeCrash,
		BetAmount:   amount,
		RoundID:     bet.RoundID,
		AutoCashout: bet.AutoCashout,
		ClientSeed:  CrashClientSeed,
		Status:      models.StatusActive,
		CreatedAt:   bet.PlacedAt,
	}
	if round.ID == bet.RoundID {
		gs.Nonce = round.Nonce
		gs.Hash = round.Hash
	}
	if ge.house != nil {
		gs.ServerSeedHash = ge.house.Hash()
	}

	// the bet is live in the round now; a failed save is logged and the
	// settlement worker rebuilds the session from the bet
	if err := ge.store.SaveGameSession(ctx, gs); err != nil {
		ge.log.Error("save crash bet", zap.String("op", op), zap.String("game_id", gs.ID), zap.Error(err))
	}
	ge.record(ctx, gs)

	wallet, err := ge.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &CrashBetState{
		BetID:          bet.ID,
		RoundID:        bet.RoundID,
		BetAmount:      amount,
		AutoCashout:    bet.AutoCashout,
		Nonce:          gs.Nonce,
		Hash:           gs.Hash,
		ServerSeedHash: gs.ServerSeedHash,
		NewBalance:     models.FromCents(wallet.Balance),
	}, nil
}

// CashoutCrash takes the bet out at the current multiplier. The ledger is
// credited by the settlement worker, which also pushes the new balance.
func (ge *GameEngine) CashoutCrash(ctx context.Context, userID int64, betID string) (*models.BetResult, error) {
	if ge.crash == nil {
		return nil, crash.ErrStopped
	}
	if err := ge.checkRate(ctx, userID, "cashout"); err != nil {
		return nil, err
	}

	s, err := ge.crash.Cashout(ctx, userID, betID)
	if err != nil {
		return nil, err
	}
	return s.Result, nil
}

func (ge *GameEngine) CrashState() crash.Snapshot {
	if ge.crash == nil {
		return crash.Snapshot{}
	}
	return ge.crash.Snapshot()
}

// RunSettlements applies crash settlements to the ledger until
// CloseSettlements is called and the queue is drained.
func (ge *GameEngine) RunSettlements(ctx context.Context) {
	for s := range ge.settlements {
		ge.applyCrash(ctx, s)
	}
}

// CloseSettlements is called once the crash engine has stopped.
func (ge *GameEngine) CloseSettlements() {
	ge.closeOnce.Do(func() { close(ge.settlements) })
}

func (ge *GameEngine) applyCrash(ctx context.Context, s crash.Settlement) {
	unlock := ge.games.Lock(s.Bet.ID)
	defer unlock()

	gs, err := ge.store.GetGameSession(ctx, s.Bet.ID)
	if err != nil {
		gs = &models.GameSession{
			ID:          s.Bet.ID,
			UserID:      s.Bet.UserID,
			GameMode:    models.ModeCrash,
			BetAmount:   s.Bet.Amount,
			RoundID:     s.RoundID,
			AutoCashout: s.Bet.AutoCashout,
			ClientSeed:  CrashClientSeed,
			Status:      models.StatusActive,
			CreatedAt:   s.Bet.PlacedAt,
		}
	}
	if gs.Status != models.StatusActive {
		return
	}
	metrics.ActiveCrashBets.Dec()

	status := models.StatusLost
	res := s.Result
	switch {
	case s.Refund:
		status = models.StatusRefunded
		res = nil
	case res == nil:
		ge.log.Error("crash settlement without result", zap.String("game_id", gs.ID), zap.String("round_id", s.RoundID))
		status = models.StatusRefunded
	case res.IsWin:
		status = models.StatusCashedOut
	}

	if _, err := ge.finish(ctx, gs, res, status); err != nil {
		ge.log.Error("apply crash settlement",
			zap.String("game_id", gs.ID),
			zap.Int64("user_id", gs.UserID),
			zap.String("round_id", s.RoundID),
			zap.Error(err),
		)
	}
}

func (ge *GameEngine) onTick(t crash.Tick) {
	if t.State == crash.StateCrashed && t.RoundID != ge.lastCrashed {
		ge.lastCrashed = t.RoundID
		metrics.CrashRounds.Inc()
		metrics.CrashPoints.Observe(t.CrashPoint)
	}
	ge.broadcaster.BroadcastCrashTick(t)
}

// ActiveGames lists running sessions with mine layouts hidden.
func (ge *GameEngine) ActiveGames(ctx context.Context, userID int64) ([]models.GameSession, error) {
	sessions, err := ge.store.GetUserActiveGames(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.GameSession, 0, len(sessions))
	for _, gs := range sessions {
		view := *gs
		if view.Mines != nil {
			m := *view.Mines
			m.MinePositions = nil
			view.Mines = &m
		}
		out = append(out, view)
	}
	return out, nil
}

func (ge *GameEngine) ownedSession(ctx context.Context, userID int64, gameID string) (*models.GameSession, error) {
	gs, err := ge.store.GetGameSession(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if gs.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, gameID)
	}
	return gs, nil
}

// wager resolves the game and checks the stake against its limits.
func (ge *GameEngine) wager(gameID int, mode models.GameMode, betAmount string) (*catalog.Game, decimal.Decimal, error) {
	amount, err := models.ParseAmount(betAmount)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if ge.maxBet > 0 && models.ToCents(amount) > ge.maxBet {
		return nil, decimal.Zero, fmt.Errorf("%w: %s above house maximum %s",
			catalog.ErrBetOutOfLimits, amount.StringFixed(2), models.FromCents(ge.maxBet).StringFixed(2))
	}

	game, err := ge.catalog.Resolve(gameID, mode)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if err := game.CheckBet(amount); err != nil {
		return nil, decimal.Zero, err
	}
	return game, amount, nil
}

func (ge *GameEngine) checkRate(ctx context.Context, userID int64, action string) error {
	limit := ge.rateLimit
	if action != "bet" {
		limit = DefaultRateLimitCashout
		if ge.rateLimit > limit {
			limit = ge.rateLimit
		}
	}

	allowed, err := ge.store.CheckRateLimit(ctx, userID, action, limit, time.Minute)
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrRateLimited, action)
	}
	return nil
}

func (ge *GameEngine) lock(ctx context.Context, userID, cents int64, mode models.GameMode) error {
	wallet, err := ge.store.LockBalanceForGame(ctx, userID, cents)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return fmt.Errorf("%w: need %s", ErrInsufficientBalance, models.FormatCurrency(cents))
		}
		return fmt.Errorf("failed to lock balance: %w", err)
	}
	metrics.Wagered.WithLabelValues(string(mode)).Add(float64(cents))

	ge.saveTransaction(ctx, &models.Transaction{
		UserID:        userID,
		Type:          models.TransactionTypeBet,
		Amount:        cents,
		BalanceBefore: wallet.Balance + cents,
		BalanceAfter:  wallet.Balance,
		Description:   fmt.Sprintf("Placed %s bet on %s", models.FormatCurrency(cents), mode),
	})
	return nil
}

// refund returns a stake that never reached the resolver.
func (ge *GameEngine) refund(ctx context.Context, userID, cents int64) {
	wallet, err := ge.store.ReleaseBalanceFromGame(ctx, userID, cents, cents)
	if err != nil {
		ge.log.Error("refund failed", zap.Int64("user_id", userID), zap.Int64("amount", cents), zap.Error(err))
		return
	}

	ge.saveTransaction(ctx, &models.Transaction{
		UserID:        userID,
		Type:          models.TransactionTypeRefund,
		Amount:        cents,
		BalanceBefore: wallet.Balance - cents,
		BalanceAfter:  wallet.Balance,
		Description:   "Bet refunded",
	})
}

// finish releases the stake with the gross payout, closes the session and
// publishes it. A nil result is a refund of the stake.
func (ge *GameEngine) finish(ctx context.Context, gs *models.GameSession, res *models.BetResult, status models.SessionStatus) (*models.Wallet, error) {
	now := ge.now()
	stake := models.ToCents(gs.BetAmount)

	if res == nil {
		gs.Status = models.StatusRefunded
		gs.Payout = gs.BetAmount
		gs.Multiplier = 1
		gs.EndedAt = now
	} else if err := gs.Settle(res, status, now); err != nil {
		return nil, err
	}
	payout := models.ToCents(gs.Payout)

	wallet, err := ge.store.ReleaseBalanceFromGame(ctx, gs.UserID, stake, payout)
	if err != nil {
		return nil, fmt.Errorf("failed to release balance: %w", err)
	}

	if payout > 0 {
		tx := &models.Transaction{
			UserID:        gs.UserID,
			Type:          models.TransactionTypeWin,
			Amount:        payout,
			BalanceBefore: wallet.Balance - payout,
			BalanceAfter:  wallet.Balance,
			GameID:        gs.ID,
			Description:   fmt.Sprintf("Won %s on %s (%.2fx)", models.FormatCurrency(payout), gs.GameMode, gs.Multiplier),
		}
		if gs.Status == models.StatusRefunded {
			tx.Type = models.TransactionTypeRefund
			tx.Description = fmt.Sprintf("Refunded %s bet", gs.GameMode)
		}
		ge.saveTransaction(ctx, tx)
	}

	if err := ge.store.SaveGameSession(ctx, gs); err != nil {
		ge.log.Error("save session", zap.String("game_id", gs.ID), zap.Error(err))
	}
	if err := ge.store.CompleteGameSession(ctx, gs.UserID, gs.ID); err != nil {
		ge.log.Error("complete session", zap.String("game_id", gs.ID), zap.Error(err))
	}
	ge.record(ctx, gs)

	if gs.Status != models.StatusRefunded {
		metrics.BetsSettled.WithLabelValues(string(gs.GameMode), metrics.Outcome(gs.IsWin)).Inc()
	}
	metrics.PaidOut.WithLabelValues(string(gs.GameMode)).Add(float64(payout))

	ge.broadcaster.BroadcastSettlement(*gs)
	ge.broadcaster.SendBalance(gs.UserID, wallet)
	return wallet, nil
}

func (ge *GameEngine) record(ctx context.Context, gs *models.GameSession) {
	if ge.recorder == nil {
		return
	}
	view := *gs
	view.Mines = nil
	if err := ge.recorder.Record(ctx, view); err != nil {
		ge.log.Error("record session", zap.String("game_id", gs.ID), zap.Int64("user_id", gs.UserID), zap.Error(err))
	}
}

func (ge *GameEngine) saveTransaction(ctx context.Context, tx *models.Transaction) {
	tx.ID = models.GenerateTransactionID()
	tx.CreatedAt = ge.now()
	if err := ge.store.SaveTransaction(ctx, tx); err != nil {
		ge.log.Warn("save transaction", zap.Int64("user_id", tx.UserID), zap.Error(err))
	}
}

// keyedMutex serialises actions on one game.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.m[key]
	if !ok {
		e = &keyedEntry{}
		k.m[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
