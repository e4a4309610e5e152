package store

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Migration adds a single column to an existing table. Later columns arrive
// here rather than in the base schema so databases written by older builds
// upgrade in place; runMigrations is a no-op once a column exists.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists all schema migrations to apply.
var pendingMigrations = []Migration{
	// Audit-trail enrichment: which guard rule (if any) rewrote the intent.
	{"negotiation_log", "override_reason", "TEXT NOT NULL DEFAULT ''"},
	// Counterparty reputation captured at decision time.
	{"negotiation_log", "reputation", "REAL NOT NULL DEFAULT 0"},
	// Reservation price snapshot for reconciliation.
	{"reservations", "price", "REAL NOT NULL DEFAULT 0"},
}

func (s *Store) runMigrations() error {
	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(s.db, m.Table) {
			continue
		}
		if columnExists(s.db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %s.%s: %w", m.Table, m.Column, err)
		}
		applied++
	}
	if applied > 0 {
		s.logger.Info("applied schema migrations", zap.Int("count", applied))
	}
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table,
	).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}
