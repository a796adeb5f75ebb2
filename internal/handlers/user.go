package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"casino-originals/internal/models"
	"casino-originals/internal/services"
)

type UserHandler struct {
	store      services.Store
	jwtService *services.JWTService
	history    History
	log        *zap.Logger
}

func NewUserHandler(store services.Store, jwtService *services.JWTService, history History, log *zap.Logger) *UserHandler {
	return &UserHandler{
		store:      store,
		jwtService: jwtService,
		history:    history,
		log:        log,
	}
}

// GuestLogin creates a player with a fresh wallet and returns a token.
func (h *UserHandler) GuestLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"omitempty,alphanum,max=32"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	userID, err := h.store.NextUserID(ctx)
	if err != nil {
		respondError(c, "Failed to create user", err)
		return
	}

	user := &models.User{
		ID:        userID,
		Username:  req.Username,
		CreatedAt: time.Now(),
	}
	if user.Username == "" {
		user.Username = fmt.Sprintf("guest_%d", userID)
	}
	if err := h.store.SaveUser(ctx, user); err != nil {
		respondError(c, "Failed to create user", err)
		return
	}

	wallet, err := h.store.GetWallet(ctx, userID)
	if err != nil {
		respondError(c, "Failed to create wallet", err)
		return
	}

	token, sessionID, err := h.jwtService.GenerateToken(userID)
	if err != nil {
		respondError(c, "Failed to generate token", err)
		return
	}

	h.log.Info("guest created", zap.Int64("user_id", userID), zap.String("session_id", sessionID))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"user":    user,
		"wallet":  wallet.Response(),
	})
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID := c.GetInt64("user_id")
	ctx := c.Request.Context()

	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		respondError(c, "User not found", err)
		return
	}

	wallet, err := h.store.GetWallet(ctx, userID)
	if err != nil {
		respondError(c, "Failed to get wallet", err)
		return
	}

	stats, err := h.history.Stats(ctx, userID)
	if err != nil {
		respondError(c, "Failed to get stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user,
		"session": gin.H{
			"session_id": c.GetString("session_id"),
		},
		"wallet": wallet.Response(),
		"stats":  stats,
	})
}
