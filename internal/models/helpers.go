package models

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"casino-originals/internal/rng"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")

	amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
)

func GenerateGameID() string {
	return fmt.Sprintf("game_%s_%s",
		time.Now().Format("20060102"),
		uuid.NewString())
}

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s_%s",
		time.Now().Format("20060102"),
		uuid.NewString())
}

func GenerateClientSeed() (string, error) {
	bytes := make([]byte, 16) // 128 bits of entropy
	_, err := rand.Read(bytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate client seed: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// ParseAmount parses a wire amount with at most two decimals.
func ParseAmount(s string) (decimal.Decimal, error) {
	if !amountPattern.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	return d, nil
}

func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// CalculatePayout rounds to the cent, the unit the ledger credits.
func CalculatePayout(betAmount decimal.Decimal, multiplier float64) decimal.Decimal {
	if multiplier <= 0 {
		return decimal.Zero
	}
	return betAmount.Mul(decimal.NewFromFloat(multiplier)).Round(2)
}

// Money is an amount that goes on the wire as a JSON number with two
// decimals.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d.Round(2)}
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

func FormatCurrency(cents int64) string {
	return "$" + FromCents(cents).StringFixed(2)
}

func NewWallet(userID int64, startingBalance int64) (*Wallet, error) {
	clientSeed, err := GenerateClientSeed()
	if err != nil {
		return nil, err
	}
	serverSeed, err := rng.GenerateSeed()
	if err != nil {
		return nil, err
	}

	return &Wallet{
		UserID:         userID,
		Balance:        startingBalance,
		ServerSeed:     serverSeed,
		ServerSeedHash: rng.HashSeed(serverSeed),
		ClientSeed:     clientSeed,
		Nonce:          0,
	}, nil
}
