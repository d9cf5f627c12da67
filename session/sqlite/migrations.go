package sqlite

import "fmt"

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions, events and scoped state",
		SQL: `
			CREATE TABLE sessions (
				id          TEXT NOT NULL,
				app_name    TEXT NOT NULL,
				user_id     TEXT NOT NULL,
				local_state TEXT NOT NULL DEFAULT '{}',
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at  TEXT NOT NULL,
				PRIMARY KEY (app_name, user_id, id)
			);

			CREATE TABLE events (
				seq         INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL,
				app_name    TEXT NOT NULL,
				user_id     TEXT NOT NULL,
				payload     TEXT NOT NULL
			);

			CREATE INDEX idx_events_session ON events (session_id, seq);

			CREATE TABLE app_states (
				app_name TEXT PRIMARY KEY,
				state    TEXT NOT NULL DEFAULT '{}'
			);

			CREATE TABLE user_states (
				app_name TEXT NOT NULL,
				user_id  TEXT NOT NULL,
				state    TEXT NOT NULL DEFAULT '{}',
				PRIMARY KEY (app_name, user_id)
			);
		`,
	},
}

// migrate runs all pending migrations inside transactions, tracking applied
// versions in schema_migrations.
func (s *Service) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		s.logger.Info("session.sqlite.migration", "version", m.Version, "name", m.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
