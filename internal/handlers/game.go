package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"casino-originals/internal/catalog"
	"casino-originals/internal/models"
	"casino-originals/internal/recorder"
	"casino-originals/internal/services"
)

// History is the read side of the session recorder.
type History interface {
	UserSessions(ctx context.Context, userID int64, limit int) ([]models.GameSession, error)
	Recent(ctx context.Context, limit int) ([]models.GameSession, error)
	Stats(ctx context.Context, userID int64) (recorder.Stats, error)
}

type GameHandler struct {
	gameEngine *services.GameEngine
	ledger     services.Ledger
	history    History
	catalog    *catalog.Catalog
}

func NewGameHandler(gameEngine *services.GameEngine, ledger services.Ledger, history History, cat *catalog.Catalog) *GameHandler {
	return &GameHandler{
		gameEngine: gameEngine,
		ledger:     ledger,
		history:    history,
		catalog:    cat,
	}
}

func (h *GameHandler) PlaceBet(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req services.PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := h.gameEngine.PlaceBet(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, "Failed to place bet", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  outcome,
	})
}

func (h *GameHandler) StartMines(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req services.StartMinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	state, err := h.gameEngine.StartMines(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, "Failed to start game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    state,
	})
}

func (h *GameHandler) RevealMine(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req struct {
		GameID string `json:"gameId" binding:"required"`
		Cell   *int   `json:"cell" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	state, err := h.gameEngine.RevealMine(c.Request.Context(), userID, req.GameID, *req.Cell)
	if err != nil {
		respondError(c, "Failed to reveal cell", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    state,
	})
}

func (h *GameHandler) CashoutMines(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req struct {
		GameID string `json:"gameId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	state, err := h.gameEngine.CashoutMines(c.Request.Context(), userID, req.GameID)
	if err != nil {
		respondError(c, "Failed to cash out", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    state,
	})
}

func (h *GameHandler) GetMinesGame(c *gin.Context) {
	userID := c.GetInt64("user_id")

	state, err := h.gameEngine.MinesGame(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    state,
	})
}

func (h *GameHandler) GetCrashState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"crash":   h.gameEngine.CrashState(),
	})
}

func (h *GameHandler) PlaceCrashBet(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req services.CrashBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bet, err := h.gameEngine.PlaceCrashBet(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, "Failed to place bet", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bet":     bet,
	})
}

func (h *GameHandler) CashoutCrash(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req struct {
		BetID string `json:"betId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.gameEngine.CashoutCrash(c.Request.Context(), userID, req.BetID)
	if err != nil {
		respondError(c, "Failed to cash out", err)
		return
	}

	// the new balance follows over the websocket once the ledger is credited
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (h *GameHandler) GetActiveGames(c *gin.Context) {
	userID := c.GetInt64("user_id")

	games, err := h.gameEngine.ActiveGames(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "Failed to get active games", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"games":   games,
		"count":   len(games),
	})
}

func (h *GameHandler) GetBalance(c *gin.Context) {
	userID := c.GetInt64("user_id")

	wallet, err := h.ledger.GetWallet(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "Failed to get balance", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": wallet.Response(),
	})
}

func (h *GameHandler) GetTransactions(c *gin.Context) {
	userID := c.GetInt64("user_id")
	limit := queryLimit(c, services.HistoryLimit)

	txs, err := h.ledger.GetUserTransactions(c.Request.Context(), userID, int64(limit))
	if err != nil {
		respondError(c, "Failed to get transactions", err)
		return
	}

	response := make([]gin.H, 0, len(txs))
	for _, tx := range txs {
		response = append(response, gin.H{
			"id":             tx.ID,
			"type":           tx.Type,
			"amount":         models.FromCents(tx.Amount).StringFixed(2),
			"balance_before": models.FromCents(tx.BalanceBefore).StringFixed(2),
			"balance_after":  models.FromCents(tx.BalanceAfter).StringFixed(2),
			"game_id":        tx.GameID,
			"description":    tx.Description,
			"created_at":     tx.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"transactions": response,
		"count":        len(response),
	})
}

func (h *GameHandler) GetGameHistory(c *gin.Context) {
	userID := c.GetInt64("user_id")

	games, err := h.history.UserSessions(c.Request.Context(), userID, queryLimit(c, 50))
	if err != nil {
		respondError(c, "Failed to get game history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"games":   games,
		"count":   len(games),
	})
}

func (h *GameHandler) GetLiveSessions(c *gin.Context) {
	games, err := h.history.Recent(c.Request.Context(), queryLimit(c, 20))
	if err != nil {
		respondError(c, "Failed to get live sessions", err)
		return
	}

	response := make([]gin.H, 0, len(games))
	for _, gs := range games {
		response = append(response, liveBet(gs))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sessions": response,
	})
}

func (h *GameHandler) ListGames(c *gin.Context) {
	games := h.catalog.All()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"games":   games,
		"count":   len(games),
	})
}

func (h *GameHandler) GetGame(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}

	game, err := h.catalog.Get(id)
	if err != nil {
		respondError(c, "Game not found", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    game,
	})
}

func (h *GameHandler) GamesByCategory(c *gin.Context) {
	games := h.catalog.ByCategory(c.Param("category"))
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"category": c.Param("category"),
		"games":    games,
		"count":    len(games),
	})
}

// queryLimit reads ?limit=, falling back to def for missing or bad values.
func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
