package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"casino-originals/internal/catalog"
	"casino-originals/internal/crash"
	"casino-originals/internal/models"
	"casino-originals/internal/recorder"
	"casino-originals/internal/resolver"
	"casino-originals/internal/services"
)

// statusFor maps domain errors onto HTTP status codes. Anything unknown
// is a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, resolver.ErrInvalidParameter),
		errors.Is(err, resolver.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrUnknownMode),
		errors.Is(err, catalog.ErrBetOutOfLimits),
		errors.Is(err, catalog.ErrNotPlayable),
		errors.Is(err, services.ErrInsufficientBalance),
		errors.Is(err, crash.ErrBettingClosed),
		errors.Is(err, crash.ErrRoundNotStarted):
		return http.StatusBadRequest
	case errors.Is(err, resolver.ErrAlreadyResolved),
		errors.Is(err, crash.ErrDuplicateBet),
		errors.Is(err, services.ErrActiveGames):
		return http.StatusConflict
	case errors.Is(err, services.ErrGameNotFound),
		errors.Is(err, catalog.ErrGameNotFound),
		errors.Is(err, crash.ErrBetNotFound),
		errors.Is(err, recorder.ErrNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, crash.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		// internal details stay in the log
		c.Error(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"details": err.Error(),
	})
}
