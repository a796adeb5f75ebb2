// Package catalog lists the games the casino offers and their bet limits.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"casino-originals/internal/models"
)

//go:embed games.yaml
var defaultCatalog []byte

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrNotPlayable    = errors.New("game has no playable mode")
	ErrBetOutOfLimits = errors.New("bet outside game limits")
)

type Game struct {
	ID          int             `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Provider    string          `yaml:"provider" json:"provider"`
	Category    string          `yaml:"category" json:"category"`
	Mode        models.GameMode `yaml:"mode" json:"mode,omitempty"`
	Hot         bool            `yaml:"hot" json:"isHot"`
	New         bool            `yaml:"new" json:"isNew"`
	Live        bool            `yaml:"live" json:"isLive"`
	Description string          `yaml:"description" json:"description"`
	MinBet      string          `yaml:"min_bet" json:"minBet"`
	MaxBet      string          `yaml:"max_bet" json:"maxBet"`
	RTP         float64         `yaml:"rtp" json:"rtp"`
	Volatility  string          `yaml:"volatility" json:"volatility"`
	Defaults    map[string]any  `yaml:"defaults" json:"gameConfig,omitempty"`

	limits [2]decimal.Decimal
}

type file struct {
	Games []Game `yaml:"games"`
}

// Catalog is read-only once parsed.
type Catalog struct {
	games []Game
	byID  map[int]*Game
}

// Load reads the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[int]bool, len(f.Games))
	for i := range f.Games {
		g := &f.Games[i]
		if err := g.normalize(); err != nil {
			return nil, err
		}
		if seen[g.ID] {
			return nil, fmt.Errorf("catalog: duplicate game id %d", g.ID)
		}
		seen[g.ID] = true
	}
	sort.SliceStable(f.Games, func(i, j int) bool { return f.Games[i].ID < f.Games[j].ID })

	c := &Catalog{games: f.Games, byID: make(map[int]*Game, len(f.Games))}
	for i := range c.games {
		c.byID[c.games[i].ID] = &c.games[i]
	}
	return c, nil
}

func (g *Game) normalize() error {
	if g.ID <= 0 || g.Name == "" {
		return fmt.Errorf("catalog: game %q needs an id and a name", g.Name)
	}
	if g.Mode != "" && !g.Mode.Valid() {
		return fmt.Errorf("catalog: game %d has unknown mode %q", g.ID, g.Mode)
	}

	if g.MinBet == "" {
		g.MinBet = "0.01"
	}
	if g.MaxBet == "" {
		g.MaxBet = "1000.00"
	}
	lo, err := decimal.NewFromString(g.MinBet)
	if err != nil {
		return fmt.Errorf("catalog: game %d min_bet: %w", g.ID, err)
	}
	hi, err := decimal.NewFromString(g.MaxBet)
	if err != nil {
		return fmt.Errorf("catalog: game %d max_bet: %w", g.ID, err)
	}
	if !lo.IsPositive() || hi.LessThan(lo) {
		return fmt.Errorf("catalog: game %d has invalid limits %s..%s", g.ID, g.MinBet, g.MaxBet)
	}
	g.limits = [2]decimal.Decimal{lo, hi}
	return nil
}

// CheckBet verifies amount against the game's limits.
func (g *Game) CheckBet(amount decimal.Decimal) error {
	if amount.LessThan(g.limits[0]) || amount.GreaterThan(g.limits[1]) {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrBetOutOfLimits, amount.StringFixed(2), g.MinBet, g.MaxBet)
	}
	return nil
}

// DefaultParams encodes the configured defaults for DecodeParams.
func (g *Game) DefaultParams() json.RawMessage {
	if len(g.Defaults) == 0 {
		return nil
	}
	b, err := json.Marshal(g.Defaults)
	if err != nil {
		return nil
	}
	return b
}

func (c *Catalog) All() []Game {
	return append([]Game(nil), c.games...)
}

func (c *Catalog) Get(id int) (*Game, error) {
	g, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, id)
	}
	cp := *g
	return &cp, nil
}

func (c *Catalog) ByCategory(category string) []Game {
	var out []Game
	for _, g := range c.games {
		if g.Category == category {
			out = append(out, g)
		}
	}
	return out
}

// ForMode returns the first game playing mode. Bets that name no game
// settle against it.
func (c *Catalog) ForMode(mode models.GameMode) (*Game, error) {
	for _, g := range c.games {
		if g.Mode == mode {
			cp := g
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: no game for mode %s", ErrGameNotFound, mode)
}

// Resolve picks the game for a wager: by id when given, otherwise by mode.
// The game must play mode.
func (c *Catalog) Resolve(id int, mode models.GameMode) (*Game, error) {
	if id == 0 {
		return c.ForMode(mode)
	}
	g, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	if g.Mode == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotPlayable, g.Name)
	}
	if g.Mode != mode {
		return nil, fmt.Errorf("%w: %s plays %s, not %s", ErrNotPlayable, g.Name, g.Mode, mode)
	}
	return g, nil
}
