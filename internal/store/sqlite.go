package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amishk599/applyhook/internal/model"
)

var _ model.ApplyCache = (*SQLiteStore)(nil)

const (
	metaAccessToken = "access_token"
	metaTokenState  = "access_token_state"
)

// SQLiteStore keeps forwarded application IDs in a SQLite database. Insertion
// order is the autoincrement seq column, which is what Cleanup trims by.
// The same database also holds the OAuth token in a key/value meta table.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// applies and meta tables exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection serialises writers; SQLite would otherwise report SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS applies (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			apply_id   TEXT NOT NULL UNIQUE,
			first_seen DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Load returns all stored IDs in insertion order.
func (s *SQLiteStore) Load(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT apply_id FROM applies ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("loading applies: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning apply id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Contains returns true if the given application ID has already been recorded.
func (s *SQLiteStore) Contains(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM applies WHERE apply_id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking apply %s: %w", id, err)
	}
	return true, nil
}

// Extend records ids in one transaction. Already known IDs are ignored.
func (s *SQLiteStore) Extend(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("extending applies: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO applies (apply_id) VALUES (?)", id); err != nil {
			return fmt.Errorf("recording apply %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("extending applies: %w", err)
	}
	return nil
}

// Cleanup deletes everything but the first keepSize rows once more than
// maxSize rows are stored.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxSize, keepSize int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM applies").Scan(&count); err != nil {
		return false, fmt.Errorf("counting applies: %w", err)
	}
	if count <= maxSize {
		return false, nil
	}

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM applies WHERE seq NOT IN (SELECT seq FROM applies ORDER BY seq LIMIT ?)",
		keepSize,
	)
	if err != nil {
		return false, fmt.Errorf("trimming applies to %d: %w", keepSize, err)
	}
	return true, nil
}

// List returns stored IDs with the time they were first recorded.
func (s *SQLiteStore) List(ctx context.Context) ([]model.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT apply_id, first_seen FROM applies ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("listing applies: %w", err)
	}
	defer rows.Close()

	var entries []model.CacheEntry
	for rows.Next() {
		var e model.CacheEntry
		var firstSeen any
		if err := rows.Scan(&e.ID, &firstSeen); err != nil {
			return nil, fmt.Errorf("scanning apply: %w", err)
		}
		e.FirstSeen = parseTimestamp(firstSeen)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) loadMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading meta %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing meta %s: %w", key, err)
	}
	return nil
}

// parseTimestamp converts a DATETIME column value, which the driver may hand
// back either as time.Time or as text, into a time. Unknown values are zero.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SQLiteTokens exposes the token half of a SQLiteStore. Load on the store
// itself belongs to the applies cache, so the token methods live on this view.
type SQLiteTokens struct {
	s *SQLiteStore
}

var _ model.TokenStore = SQLiteTokens{}

// Tokens returns the TokenStore view of s.
func (s *SQLiteStore) Tokens() SQLiteTokens {
	return SQLiteTokens{s: s}
}

// Load returns the stored credential, CredentialAbsent if none was saved.
func (t SQLiteTokens) Load(ctx context.Context) (model.Credential, error) {
	token, ok, err := t.s.loadMeta(ctx, metaAccessToken)
	if err != nil || !ok || token == "" {
		return model.Credential{State: model.CredentialAbsent}, err
	}
	state, _, err := t.s.loadMeta(ctx, metaTokenState)
	if err != nil {
		return model.Credential{State: model.CredentialAbsent}, err
	}
	cred := model.Credential{AccessToken: token, State: model.CredentialValid}
	if state == model.CredentialRejected.String() {
		cred.State = model.CredentialRejected
	}
	return cred, nil
}

// Save replaces the token and clears any rejection.
func (t SQLiteTokens) Save(ctx context.Context, accessToken string) error {
	return t.s.withTx(ctx, func(tx *sql.Tx) error {
		if err := t.s.setMeta(ctx, tx, metaAccessToken, accessToken); err != nil {
			return err
		}
		return t.s.setMeta(ctx, tx, metaTokenState, model.CredentialValid.String())
	})
}

// MarkRejected flags accessToken as rejected by the API. A token saved after
// it is left alone.
func (t SQLiteTokens) MarkRejected(ctx context.Context, accessToken string) error {
	return t.s.withTx(ctx, func(tx *sql.Tx) error {
		var stored string
		err := tx.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaAccessToken).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading meta %s: %w", metaAccessToken, err)
		}
		if stored != accessToken {
			return nil
		}
		return t.s.setMeta(ctx, tx, metaTokenState, model.CredentialRejected.String())
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
