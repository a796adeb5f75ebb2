package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"casino-originals/internal/services"
)

type FairnessHandler struct {
	seeds *services.SeedManager
	house *services.HouseSeed
}

func NewFairnessHandler(seeds *services.SeedManager, house *services.HouseSeed) *FairnessHandler {
	return &FairnessHandler{seeds: seeds, house: house}
}

// GetFairness returns the player's committed seed pair and the hash of
// the seed behind the current crash rounds.
func (h *FairnessHandler) GetFairness(c *gin.Context) {
	userID := c.GetInt64("user_id")

	current, err := h.seeds.Current(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "Failed to get verification data", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    current,
		"crash": gin.H{
			"serverSeedHash": h.house.Hash(),
			"clientSeed":     services.CrashClientSeed,
			"revealed":       h.house.Revealed(),
		},
	})
}

// SetClientSeed changes the client seed. The server seed is rotated with
// it so a player never picks a client seed against a known commitment.
func (h *FairnessHandler) SetClientSeed(c *gin.Context) {
	var req struct {
		ClientSeed string `json:"clientSeed" binding:"required,max=64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.rotate(c, req.ClientSeed)
}

func (h *FairnessHandler) RotateSeed(c *gin.Context) {
	var req struct {
		ClientSeed string `json:"clientSeed" binding:"max=64"`
	}
	// an empty body keeps the client seed
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	h.rotate(c, req.ClientSeed)
}

func (h *FairnessHandler) rotate(c *gin.Context, clientSeed string) {
	userID := c.GetInt64("user_id")

	rotation, err := h.seeds.Rotate(c.Request.Context(), userID, clientSeed)
	if err != nil {
		respondError(c, "Failed to rotate seeds", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"rotation": rotation,
	})
}

func (h *FairnessHandler) Verify(c *gin.Context) {
	var req services.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	v, err := services.Verify(req)
	if err != nil {
		respondError(c, "Verification failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"verification": v,
	})
}
