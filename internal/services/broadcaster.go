package services

import (
	"casino-originals/internal/crash"
	"casino-originals/internal/models"
)

// Broadcaster pushes game events to connected players.
type Broadcaster interface {
	BroadcastCrashTick(tick crash.Tick)
	BroadcastSettlement(session models.GameSession)
	SendBalance(userID int64, wallet *models.Wallet)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastCrashTick(crash.Tick)          {}
func (nopBroadcaster) BroadcastSettlement(models.GameSession) {}
func (nopBroadcaster) SendBalance(int64, *models.Wallet)      {}
