// Package store implements the storage collaborator on SQLite: item records,
// the negotiation audit log, prior-session state, and pending-payment
// reservations. The UNIQUE(item_id, session_id) index on reservations is the
// concurrency control for the accept path; the pipeline never re-implements
// it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"aura/internal/types"
)

// Store is the SQLite-backed types.ItemStore implementation.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open initializes the database at path, applying pragmas, the base schema
// and any pending column migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		// synchronous=NORMAL is safe with WAL and much faster than FULL.
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		item_id     TEXT PRIMARY KEY,
		name        TEXT NOT NULL DEFAULT '',
		base_price  REAL NOT NULL,
		floor_price REAL NOT NULL,
		min_margin  REAL NOT NULL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS negotiation_log (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id      TEXT NOT NULL,
		request_id      TEXT NOT NULL,
		item_id         TEXT NOT NULL,
		agent_did       TEXT NOT NULL DEFAULT '',
		action          TEXT NOT NULL,
		price           REAL NOT NULL DEFAULT 0,
		round           INTEGER NOT NULL DEFAULT 0,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_negotiation_log_session ON negotiation_log(session_id);

	CREATE TABLE IF NOT EXISTS reservations (
		code       TEXT PRIMARY KEY,
		item_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		price      REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_item_session
		ON reservations(item_id, session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetItem returns the record for the item or types.ErrItemNotFound.
func (s *Store) GetItem(ctx context.Context, itemID string) (types.ItemRecord, error) {
	var rec types.ItemRecord
	row := s.db.QueryRowContext(ctx,
		`SELECT item_id, name, base_price, floor_price, min_margin FROM items WHERE item_id = ?`,
		itemID)
	err := row.Scan(&rec.ItemID, &rec.Name, &rec.BasePrice, &rec.FloorPrice, &rec.MinMargin)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("item %q: %w", itemID, types.ErrItemNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("get item %q: %w", itemID, err)
	}
	return rec, nil
}

// UpsertItem inserts or replaces an item record. Used by seeding and tests.
func (s *Store) UpsertItem(ctx context.Context, rec types.ItemRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (item_id, name, base_price, floor_price, min_margin)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
			name = excluded.name,
			base_price = excluded.base_price,
			floor_price = excluded.floor_price,
			min_margin = excluded.min_margin`,
		rec.ItemID, rec.Name, rec.BasePrice, rec.FloorPrice, rec.MinMargin)
	if err != nil {
		return fmt.Errorf("upsert item %q: %w", rec.ItemID, err)
	}
	return nil
}

// SessionRounds loads prior negotiation state for a session. Unknown sessions
// return a zero state.
func (s *Store) SessionRounds(ctx context.Context, sessionID string) (types.SessionState, error) {
	var state types.SessionState
	if sessionID == "" {
		return state, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT action, price FROM negotiation_log WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return state, fmt.Errorf("session rounds %q: %w", sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var action string
		var price float64
		if err := rows.Scan(&action, &price); err != nil {
			return state, fmt.Errorf("session rounds %q: %w", sessionID, err)
		}
		state.Rounds++
		if types.Action(action) == types.ActionCounter {
			state.PriorOffers = append(state.PriorOffers, price)
		}
	}
	return state, rows.Err()
}

// WriteNegotiationLog appends one audit-trail row.
func (s *Store) WriteNegotiationLog(ctx context.Context, entry types.NegotiationLogEntry) error {
	if err := s.insertLog(ctx, s.db, entry); err != nil {
		return fmt.Errorf("write negotiation log: %w (%w)", err, types.ErrPersistence)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertLog(ctx context.Context, db execer, entry types.NegotiationLogEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO negotiation_log
			(session_id, request_id, item_id, agent_did, action, price, round, reputation, override_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.RequestID, entry.ItemID, entry.AgentDID,
		string(entry.Action), entry.Price, entry.Round, entry.Reputation, entry.OverrideReason, createdAt)
	return err
}

// Reserve creates a pending-payment reservation for the item+session pair.
// A second reservation for the same pair hits the unique index and returns
// types.ErrReservationConflict.
func (s *Store) Reserve(ctx context.Context, itemID, sessionID string) (string, error) {
	code := "HIVE-" + uuid.NewString()
	if err := s.insertReservation(ctx, s.db, code, itemID, sessionID, 0); err != nil {
		return "", err
	}
	return code, nil
}

func (s *Store) insertReservation(ctx context.Context, db execer, code, itemID, sessionID string, price float64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO reservations (code, item_id, session_id, price) VALUES (?, ?, ?, ?)`,
		code, itemID, sessionID, price)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reserve %s/%s: %w", itemID, sessionID, types.ErrReservationConflict)
		}
		return fmt.Errorf("reserve %s/%s: %w (%w)", itemID, sessionID, err, types.ErrPersistence)
	}
	return nil
}

// ApplyOutcome persists a negotiation outcome in one transaction: the log row
// and, when reserve is true, the reservation. Cancellation mid-way rolls the
// whole outcome back so no partial state survives.
func (s *Store) ApplyOutcome(ctx context.Context, entry types.NegotiationLogEntry, reserve bool) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("apply outcome: %w (%w)", err, types.ErrPersistence)
	}
	defer tx.Rollback()

	if err := s.insertLog(ctx, tx, entry); err != nil {
		return "", fmt.Errorf("apply outcome: %w (%w)", err, types.ErrPersistence)
	}

	var code string
	if reserve {
		code = "HIVE-" + uuid.NewString()
		if err := s.insertReservation(ctx, tx, code, entry.ItemID, entry.SessionID, entry.Price); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("apply outcome: %w (%w)", err, types.ErrPersistence)
	}
	return code, nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
