// Package recorder keeps the permanent record of settled game sessions in
// SQLite or PostgreSQL.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"casino-originals/internal/models"
)

var ErrNotFound = errors.New("session not found")

const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

type Store struct {
	db      *sql.DB
	dialect string
}

type Stats struct {
	Bets     int64           `json:"bets"`
	Wins     int64           `json:"wins"`
	Wagered  decimal.Decimal `json:"totalWagered"`
	Won      decimal.Decimal `json:"totalWon"`
	NetGain  decimal.Decimal `json:"netGain"`
	BestMult float64         `json:"bestMultiplier"`
}

// Open connects to the database and creates the tables if needed.
func Open(ctx context.Context, dbType, conn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)

	switch dbType {
	case SQLite, "":
		db, err = sql.Open("sqlite3", conn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// in-memory databases live per connection
		db.SetMaxOpenConns(1)
		dbType = SQLite
	case Postgres:
		db, err = sql.Open("pgx", conn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbType)
	}

	s := &Store{db: db, dialect: dbType}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dbType, err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $N for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) migrate(ctx context.Context) error {
	floatType := "REAL"
	if s.dialect == Postgres {
		floatType = "DOUBLE PRECISION"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS game_sessions (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			game_id INTEGER NOT NULL DEFAULT 0,
			game_mode TEXT NOT NULL,
			bet_cents BIGINT NOT NULL,
			payout_cents BIGINT NOT NULL DEFAULT 0,
			multiplier ` + floatType + ` NOT NULL DEFAULT 0,
			is_win BOOLEAN NOT NULL DEFAULT FALSE,
			game_data TEXT,
			round_id TEXT,
			client_seed TEXT,
			server_seed_hash TEXT,
			nonce BIGINT NOT NULL DEFAULT 0,
			hash TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_user ON game_sessions (user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_ended ON game_sessions (ended_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Record inserts a session or updates the stored copy with the same id.
func (s *Store) Record(ctx context.Context, gs models.GameSession) error {
	const op = "recorder.Record"

	var ended sql.NullTime
	if !gs.EndedAt.IsZero() {
		ended = sql.NullTime{Time: gs.EndedAt.UTC(), Valid: true}
	}
	created := gs.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := s.rebind(`INSERT INTO game_sessions (
			id, user_id, game_id, game_mode, bet_cents, payout_cents, multiplier, is_win,
			game_data, round_id, client_seed, server_seed_hash, nonce, hash, status,
			created_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			payout_cents = excluded.payout_cents,
			multiplier = excluded.multiplier,
			is_win = excluded.is_win,
			game_data = excluded.game_data,
			status = excluded.status,
			ended_at = excluded.ended_at`)

	_, err := s.db.ExecContext(ctx, query,
		gs.ID, gs.UserID, gs.GameID, string(gs.GameMode),
		models.ToCents(gs.BetAmount), models.ToCents(gs.Payout), gs.Multiplier, gs.IsWin,
		string(gs.GameData), gs.RoundID, gs.ClientSeed, gs.ServerSeedHash, gs.Nonce, gs.Hash,
		string(gs.Status), created.UTC(), ended,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

const sessionColumns = `id, user_id, game_id, game_mode, bet_cents, payout_cents, multiplier, is_win,
	game_data, round_id, client_seed, server_seed_hash, nonce, hash, status, created_at, ended_at`

func (s *Store) Get(ctx context.Context, id string) (*models.GameSession, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+sessionColumns+` FROM game_sessions WHERE id = ?`), id)

	gs, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("recorder.Get: %w", err)
	}
	return gs, nil
}

// UserSessions lists a user's sessions, newest first.
func (s *Store) UserSessions(ctx context.Context, userID int64, limit int) ([]models.GameSession, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM game_sessions
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`)
	return s.list(ctx, "recorder.UserSessions", query, userID, clampLimit(limit))
}

// Recent is the live feed: the latest settled sessions across all users.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.GameSession, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM game_sessions
		WHERE status <> ? ORDER BY ended_at DESC LIMIT ?`)
	return s.list(ctx, "recorder.Recent", query, string(models.StatusActive), clampLimit(limit))
}

func (s *Store) Stats(ctx context.Context, userID int64) (Stats, error) {
	query := s.rebind(`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_win THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(bet_cents), 0),
			COALESCE(SUM(payout_cents), 0),
			COALESCE(MAX(multiplier), 0)
		FROM game_sessions WHERE user_id = ? AND status <> ?`)

	var (
		st            Stats
		wagered, paid int64
	)
	err := s.db.QueryRowContext(ctx, query, userID, string(models.StatusActive)).
		Scan(&st.Bets, &st.Wins, &wagered, &paid, &st.BestMult)
	if err != nil {
		return Stats{}, fmt.Errorf("recorder.Stats: %w", err)
	}

	st.Wagered = models.FromCents(wagered)
	st.Won = models.FromCents(paid)
	st.NetGain = st.Won.Sub(st.Wagered)
	return st, nil
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]models.GameSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.GameSession
	for rows.Next() {
		gs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *gs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.GameSession, error) {
	var gs models.GameSession
	var mode, status string
	var bet, payout int64
	var data, roundID, seed, serverHash, hash sql.NullString
	var ended sql.NullTime

	err := row.Scan(&gs.ID, &gs.UserID, &gs.GameID, &mode, &bet, &payout, &gs.Multiplier, &gs.IsWin,
		&data, &roundID, &seed, &serverHash, &gs.Nonce, &hash, &status, &gs.CreatedAt, &ended)
	if err != nil {
		return nil, err
	}

	gs.GameMode = models.GameMode(mode)
	gs.Status = models.SessionStatus(status)
	gs.BetAmount = models.FromCents(bet)
	gs.Payout = models.FromCents(payout)
	if data.String != "" {
		gs.GameData = []byte(data.String)
	}
	gs.RoundID = roundID.String
	gs.ClientSeed = seed.String
	gs.ServerSeedHash = serverHash.String
	gs.Hash = hash.String
	if ended.Valid {
		gs.EndedAt = ended.Time
	}
	return &gs, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
