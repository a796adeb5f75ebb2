package recorder_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
	"casino-originals/internal/recorder"
)

func openTestStore(t *testing.T) *recorder.Store {
	t.Helper()

	store, err := recorder.Open(context.Background(), recorder.SQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open recorder: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func session(id string, userID int64, bet, payout string, isWin bool, at time.Time) models.GameSession {
	return models.GameSession{
		ID:         id,
		UserID:     userID,
		GameID:     3,
		GameMode:   models.ModeDice,
		BetAmount:  decimal.RequireFromString(bet),
		Payout:     decimal.RequireFromString(payout),
		Multiplier: 1.98,
		IsWin:      isWin,
		GameData:   json.RawMessage(`{"roll":73}`),
		ClientSeed: "client",
		Nonce:      1,
		Status:     models.StatusCompleted,
		CreatedAt:  at,
		EndedAt:    at,
	}
}

func TestRecordAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	gs := session("s1", 42, "10.00", "19.80", true, now)
	if err := store.Record(ctx, gs); err != nil {
		t.Fatalf("Failed to record session: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if !got.BetAmount.Equal(gs.BetAmount) || !got.Payout.Equal(gs.Payout) {
		t.Errorf("amounts mismatch: %s/%s", got.BetAmount, got.Payout)
	}
	if !got.IsWin || got.GameMode != models.ModeDice || string(got.GameData) != `{"roll":73}` {
		t.Errorf("unexpected session %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, recorder.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestRecordUpdatesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	active := session("m1", 7, "5.00", "0", false, now)
	active.GameMode = models.ModeMines
	active.Status = models.StatusActive
	active.EndedAt = time.Time{}
	if err := store.Record(ctx, active); err != nil {
		t.Fatal(err)
	}

	done := active
	done.Status = models.StatusCashedOut
	done.IsWin = true
	done.Payout = decimal.RequireFromString("6.43")
	done.EndedAt = now.Add(time.Minute)
	if err := store.Record(ctx, done); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCashedOut || !got.Payout.Equal(done.Payout) || got.EndedAt.IsZero() {
		t.Errorf("session not updated: %+v", got)
	}
}

func TestUserSessionsAndStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	records := []models.GameSession{
		session("a", 1, "10.00", "19.80", true, base),
		session("b", 1, "10.00", "0", false, base.Add(time.Minute)),
		session("c", 1, "5.00", "0", false, base.Add(2*time.Minute)),
		session("d", 2, "1.00", "1.98", true, base.Add(3*time.Minute)),
	}
	for _, r := range records {
		if err := store.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	list, err := store.UserSessions(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].ID != "c" {
		t.Fatalf("expected newest first for user 1, got %d sessions", len(list))
	}

	st, err := store.Stats(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if st.Bets != 3 || st.Wins != 1 {
		t.Errorf("bets/wins = %d/%d, want 3/1", st.Bets, st.Wins)
	}
	if !st.Wagered.Equal(decimal.RequireFromString("25")) || !st.Won.Equal(decimal.RequireFromString("19.80")) {
		t.Errorf("wagered/won = %s/%s", st.Wagered, st.Won)
	}
	if !st.NetGain.Equal(decimal.RequireFromString("-5.20")) {
		t.Errorf("net = %s, want -5.20", st.NetGain)
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "d" {
		t.Errorf("unexpected live feed %+v", recent)
	}
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	if _, err := recorder.Open(context.Background(), "mysql", "x"); err == nil {
		t.Error("expected an error for mysql")
	}
}
