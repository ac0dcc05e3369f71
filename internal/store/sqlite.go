package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/luna/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every :memory: connection is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// SaveSession stores sess as the session of profile, replacing any previous one.
func (s *SQLiteStore) SaveSession(ctx context.Context, profile string, sess *model.Session) error {
	s.logger.Debug("sql", "op", "upsert", "table", "sessions", "profile", profile, "user_id", sess.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (profile, user_id, name, role, token, token_exp, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(profile) DO UPDATE SET
		   user_id = excluded.user_id,
		   name = excluded.name,
		   role = excluded.role,
		   token = excluded.token,
		   token_exp = excluded.token_exp,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		profile, sess.ID, sess.Name, string(sess.Role), sess.Token,
		unixOrZero(sess.TokenExp), sess.CreatedAt.Unix(), unixOrZero(sess.ExpiresAt),
	)
	return err
}

// LoadSession returns the session of profile, or nil if there is none.
func (s *SQLiteStore) LoadSession(ctx context.Context, profile string) (*model.Session, error) {
	s.logger.Debug("sql", "op", "select", "table", "sessions", "profile", profile)

	var sess model.Session
	var role string
	var tokenExp, createdAt, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, role, token, token_exp, created_at, expires_at
		 FROM sessions WHERE profile = ?`, profile,
	).Scan(&sess.ID, &sess.Name, &role, &sess.Token, &tokenExp, &createdAt, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess.Role = model.Role(role)
	sess.TokenExp = timeOrZero(tokenExp)
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.ExpiresAt = timeOrZero(expiresAt)
	return &sess, nil
}

// DeleteSession removes the session of profile.
func (s *SQLiteStore) DeleteSession(ctx context.Context, profile string) error {
	s.logger.Debug("sql", "op", "delete", "table", "sessions", "profile", profile)

	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE profile = ?`, profile)
	return err
}

// DeleteExpiredSessions removes sessions whose own or token expiry has passed.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.logger.Debug("sql", "op", "delete_expired", "table", "sessions")

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions
		 WHERE (expires_at > 0 AND expires_at < ?) OR (token_exp > 0 AND token_exp < ?)`, now, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
