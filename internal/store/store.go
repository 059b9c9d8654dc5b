// Package store mirrors a snapshot into SQLite so the participation indices
// can be queried without loading the JSON files.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/avivsinai/mailcorpus/internal/snapshot"
)

// ErrUnknownUser is returned by ThreadsForUser for an address never seen.
var ErrUnknownUser = errors.New("unknown user")

// Store is a SQLite database holding the latest snapshot.
type Store struct {
	db   *sqlx.DB
	path string
}

// Open opens (or creates) the database at path, enables WAL mode and
// foreign keys, and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// SaveSnapshot replaces the database contents with snap in one
// transaction. On error nothing changes.
func (s *Store) SaveSnapshot(ctx context.Context, snap *snapshot.Snapshot, m snapshot.Manifest) error {
	if err := s.saveSnapshot(ctx, snap, m); err != nil {
		return &snapshot.PersistenceError{Op: "sqlite", Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) saveSnapshot(ctx context.Context, snap *snapshot.Snapshot, m snapshot.Manifest) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"thread_users", "message_recipients", "messages", "threads", "users", "runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, created, root, max_files, processed, skipped) VALUES (?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Created, m.Root, m.MaxFiles, m.Counts.Processed, m.Counts.Skipped,
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	if err := insertKeyed(ctx, tx, `INSERT INTO users (id, address) VALUES (?, ?)`, snap.Users); err != nil {
		return fmt.Errorf("inserting users: %w", err)
	}
	if err := insertKeyed(ctx, tx, `INSERT INTO threads (id, subject) VALUES (?, ?)`, snap.Threads); err != nil {
		return fmt.Errorf("inserting threads: %w", err)
	}

	msgStmt, err := tx.PreparexContext(ctx,
		`INSERT INTO messages (id, time, thread_id, sender_id, body, filepath) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer func() { _ = msgStmt.Close() }()
	rcptStmt, err := tx.PreparexContext(ctx,
		`INSERT INTO message_recipients (message_id, position, kind, user_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing recipient insert: %w", err)
	}
	defer func() { _ = rcptStmt.Close() }()

	for i, msg := range snap.Messages {
		if _, err := msgStmt.ExecContext(ctx, i, msg.Time, msg.Thread, msg.Sender, msg.Body, msg.Path); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
		for _, group := range []struct {
			kind string
			ids  []int
		}{{"to", msg.Recipients}, {"cc", msg.CC}, {"bcc", msg.BCC}} {
			for pos, user := range group.ids {
				if _, err := rcptStmt.ExecContext(ctx, i, pos, group.kind, user); err != nil {
					return fmt.Errorf("inserting %s recipient of message %d: %w", group.kind, i, err)
				}
			}
		}
	}

	tuStmt, err := tx.PreparexContext(ctx, `INSERT INTO thread_users (thread_id, user_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing thread_users insert: %w", err)
	}
	defer func() { _ = tuStmt.Close() }()
	for thread, users := range snap.ThreadUsers {
		for _, user := range users {
			if _, err := tuStmt.ExecContext(ctx, thread, user); err != nil {
				return fmt.Errorf("inserting thread %d user %d: %w", thread, user, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func insertKeyed(ctx context.Context, tx *sqlx.Tx, query string, ids map[string]int) error {
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for key, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, key); err != nil {
			return fmt.Errorf("%q: %w", key, err)
		}
	}
	return nil
}

// Thread is a thread row with its normalized subject.
type Thread struct {
	ID      int    `db:"id" json:"id"`
	Subject string `db:"subject" json:"subject"`
}

// User is a user row.
type User struct {
	ID      int    `db:"id" json:"id"`
	Address string `db:"address" json:"address"`
}

// MessageRow is a message without its recipient lists.
type MessageRow struct {
	ID       int    `db:"id" json:"id"`
	Time     string `db:"time" json:"time"`
	ThreadID int    `db:"thread_id" json:"thread"`
	Sender   string `db:"sender" json:"sender"`
	Body     string `db:"body" json:"message"`
	Path     string `db:"filepath" json:"filepath"`
}

// ThreadsForUser lists the threads address participates in, by id.
func (s *Store) ThreadsForUser(ctx context.Context, address string) ([]Thread, error) {
	var userID int
	err := s.db.GetContext(ctx, &userID, `SELECT id FROM users WHERE address = ?`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, address)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	threads := []Thread{}
	err = s.db.SelectContext(ctx, &threads, `
		SELECT t.id, t.subject
		FROM thread_users tu JOIN threads t ON t.id = tu.thread_id
		WHERE tu.user_id = ?
		ORDER BY t.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying threads for user: %w", err)
	}
	return threads, nil
}

// UsersForThread lists the participants of thread, by id.
func (s *Store) UsersForThread(ctx context.Context, thread int) ([]User, error) {
	users := []User{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT u.id, u.address
		FROM thread_users tu JOIN users u ON u.id = tu.user_id
		WHERE tu.thread_id = ?
		ORDER BY u.id`, thread)
	if err != nil {
		return nil, fmt.Errorf("querying users for thread: %w", err)
	}
	return users, nil
}

// MessagesInThread lists the messages of thread in ingest order.
func (s *Store) MessagesInThread(ctx context.Context, thread int) ([]MessageRow, error) {
	rows := []MessageRow{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT m.id, m.time, m.thread_id, u.address AS sender, m.body, m.filepath
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.thread_id = ?
		ORDER BY m.id`, thread)
	if err != nil {
		return nil, fmt.Errorf("querying messages for thread: %w", err)
	}
	return rows, nil
}

// LatestRunID returns the run id of the stored snapshot, or "" if empty.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT run_id FROM runs LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading run: %w", err)
	}
	return id, nil
}
