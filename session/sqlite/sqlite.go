// Package sqlite provides a core.SessionService backed by SQLite, suitable
// for single-process deployments that need sessions to survive restarts.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
)

// Service implements core.SessionService on a SQLite database. Appends are
// serialized through a mutex so each AppendEvent is atomic.
type Service struct {
	db     *sql.DB
	logger logging.Logger
	mu     sync.Mutex
}

// Options configures the SQLite service.
type Options struct {
	Logger logging.Logger
}

// Open opens (or creates) a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for tests).
func Open(path string, optFns ...func(o *Options)) (*Service, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Service{db: db, logger: opts.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("session.sqlite.opened", "path", path)
	return s, nil
}

// Close closes the database connection.
func (s *Service) Close() error {
	return s.db.Close()
}

// Create registers a new session, splitting any initial state into its
// scopes. An empty sessionID asks the service to generate one.
func (s *Service) Create(appName, userID, sessionID string, state map[string]any) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		sessionID = core.NewID()
	}

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?",
		appName, userID, sessionID,
	).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("checking session existence: %w", err)
	}
	if count > 0 {
		return nil, core.NewConfigurationError("session %q already exists for user %q", sessionID, userID)
	}

	app, user, local := core.SplitStateDelta(state)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	localJSON, err := json.Marshal(orEmpty(local))
	if err != nil {
		return nil, fmt.Errorf("encoding local state: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(
		"INSERT INTO sessions (id, app_name, user_id, local_state, updated_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, appName, userID, string(localJSON), now.Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	if err := mergeScopedState(tx, "app_states", "app_name", appName, app); err != nil {
		return nil, err
	}
	if err := mergeUserState(tx, appName, userID, user); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}

	return s.load(appName, userID, sessionID, nil)
}

// Get loads a session with its effective state view. Absent sessions yield
// core.ErrSessionNotFound.
func (s *Service) Get(appName, userID, sessionID string, cfg *core.GetSessionConfig) (*core.Session, error) {
	return s.load(appName, userID, sessionID, cfg)
}

// List returns the user's sessions without event bodies.
func (s *Service) List(appName, userID string) ([]*core.Session, error) {
	rows, err := s.db.Query(
		"SELECT id FROM sessions WHERE app_name = ? AND user_id = ? ORDER BY updated_at",
		appName, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*core.Session
	for _, id := range ids {
		sess, err := s.load(appName, userID, id, nil)
		if err != nil {
			return nil, err
		}
		sess.Events = nil
		out = append(out, sess)
	}
	return out, nil
}

// Delete removes a session and its events. Deleting an absent session is a
// no-op.
func (s *Service) Delete(appName, userID, sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM events WHERE app_name = ? AND user_id = ? AND session_id = ?",
		appName, userID, sessionID,
	); err != nil {
		return fmt.Errorf("deleting events: %w", err)
	}
	if _, err := tx.Exec(
		"DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?",
		appName, userID, sessionID,
	); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return tx.Commit()
}

// AppendEvent persists the event, folds its state delta into the scoped
// tables and mirrors the change into the caller's snapshot.
func (s *Service) AppendEvent(sess *core.Session, ev core.Event) (core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var localJSON string
	err := s.db.QueryRow(
		"SELECT local_state FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?",
		sess.AppName, sess.UserID, sess.ID,
	).Scan(&localJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Event{}, fmt.Errorf("session %s/%s/%s: %w", sess.AppName, sess.UserID, sess.ID, core.ErrSessionNotFound)
	}
	if err != nil {
		return core.Event{}, fmt.Errorf("loading session state: %w", err)
	}

	app, user, local := core.SplitStateDelta(ev.Actions.StateDelta)

	tx, err := s.db.Begin()
	if err != nil {
		return core.Event{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	payload, err := json.Marshal(ev)
	if err != nil {
		return core.Event{}, fmt.Errorf("encoding event: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO events (session_id, app_name, user_id, payload) VALUES (?, ?, ?, ?)",
		sess.ID, sess.AppName, sess.UserID, string(payload),
	); err != nil {
		return core.Event{}, fmt.Errorf("inserting event: %w", err)
	}

	now := time.Now().UTC()
	if len(local) > 0 {
		var localState map[string]any
		if err := json.Unmarshal([]byte(localJSON), &localState); err != nil {
			return core.Event{}, fmt.Errorf("decoding local state: %w", err)
		}
		if localState == nil {
			localState = make(map[string]any)
		}
		for k, v := range local {
			localState[k] = v
		}
		updated, err := json.Marshal(localState)
		if err != nil {
			return core.Event{}, fmt.Errorf("encoding local state: %w", err)
		}
		localJSON = string(updated)
	}
	if _, err := tx.Exec(
		"UPDATE sessions SET local_state = ?, updated_at = ? WHERE app_name = ? AND user_id = ? AND id = ?",
		localJSON, now.Format(time.RFC3339Nano), sess.AppName, sess.UserID, sess.ID,
	); err != nil {
		return core.Event{}, fmt.Errorf("updating session: %w", err)
	}

	if err := mergeScopedState(tx, "app_states", "app_name", sess.AppName, app); err != nil {
		return core.Event{}, err
	}
	if err := mergeUserState(tx, sess.AppName, sess.UserID, user); err != nil {
		return core.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Event{}, fmt.Errorf("commit append: %w", err)
	}

	sess.AddEvent(ev)
	sess.ApplyStateDelta(ev.Actions.StateDelta)
	sess.LastUpdateTime = now

	return ev, nil
}

func (s *Service) load(appName, userID, sessionID string, cfg *core.GetSessionConfig) (*core.Session, error) {
	var (
		localJSON string
		updatedAt string
	)
	err := s.db.QueryRow(
		"SELECT local_state, updated_at FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?",
		appName, userID, sessionID,
	).Scan(&localJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s/%s/%s: %w", appName, userID, sessionID, core.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	sess := core.NewSession(appName, userID, sessionID)
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		sess.LastUpdateTime = ts
	}

	var local map[string]any
	if err := json.Unmarshal([]byte(localJSON), &local); err != nil {
		return nil, fmt.Errorf("decoding local state: %w", err)
	}
	sess.ApplyStateDelta(local)
	sess.ApplyStateDelta(s.scopedState("SELECT state FROM app_states WHERE app_name = ?", appName))
	sess.ApplyStateDelta(s.scopedState("SELECT state FROM user_states WHERE app_name = ? AND user_id = ?", appName, userID))

	events, err := s.loadEvents(sessionID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		events = filterEvents(events, cfg)
	}
	for _, ev := range events {
		sess.AddEvent(ev)
	}

	return sess, nil
}

func (s *Service) loadEvents(sessionID string) ([]core.Event, error) {
	rows, err := s.db.Query("SELECT payload FROM events WHERE session_id = ? ORDER BY seq", sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Service) scopedState(query string, args ...any) map[string]any {
	var stateJSON string
	if err := s.db.QueryRow(query, args...).Scan(&stateJSON); err != nil {
		return nil
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil
	}
	return state
}

func mergeScopedState(tx *sql.Tx, table, keyCol, key string, delta map[string]any) error {
	if len(delta) == 0 {
		return nil
	}

	var stateJSON string
	state := make(map[string]any)
	err := tx.QueryRow("SELECT state FROM "+table+" WHERE "+keyCol+" = ?", key).Scan(&stateJSON)
	if err == nil {
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			return fmt.Errorf("decoding %s state: %w", table, err)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("loading %s state: %w", table, err)
	}

	for k, v := range delta {
		state[k] = v
	}
	updated, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding %s state: %w", table, err)
	}

	if _, err := tx.Exec(
		"INSERT INTO "+table+" ("+keyCol+", state) VALUES (?, ?) ON CONFLICT("+keyCol+") DO UPDATE SET state = excluded.state",
		key, string(updated),
	); err != nil {
		return fmt.Errorf("saving %s state: %w", table, err)
	}
	return nil
}

func mergeUserState(tx *sql.Tx, appName, userID string, delta map[string]any) error {
	if len(delta) == 0 {
		return nil
	}

	var stateJSON string
	state := make(map[string]any)
	err := tx.QueryRow("SELECT state FROM user_states WHERE app_name = ? AND user_id = ?", appName, userID).Scan(&stateJSON)
	if err == nil {
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			return fmt.Errorf("decoding user state: %w", err)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("loading user state: %w", err)
	}

	for k, v := range delta {
		state[k] = v
	}
	updated, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding user state: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO user_states (app_name, user_id, state) VALUES (?, ?, ?) ON CONFLICT(app_name, user_id) DO UPDATE SET state = excluded.state",
		appName, userID, string(updated),
	); err != nil {
		return fmt.Errorf("saving user state: %w", err)
	}
	return nil
}

func filterEvents(events []core.Event, cfg *core.GetSessionConfig) []core.Event {
	if !cfg.AfterTimestamp.IsZero() {
		kept := events[:0:0]
		for _, ev := range events {
			if ev.Timestamp.After(cfg.AfterTimestamp) {
				kept = append(kept, ev)
			}
		}
		events = kept
	}
	if cfg.NumRecentEvents > 0 && len(events) > cfg.NumRecentEvents {
		events = events[len(events)-cfg.NumRecentEvents:]
	}
	return events
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
