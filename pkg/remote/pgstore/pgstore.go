// Package pgstore keeps the remote session collection in a PostgreSQL table.
//
// The table is created on open. Closing a session uses
// COALESCE(exit_time, $n), so the database itself refuses to move or clear
// an exit time that is already set.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// DefaultTable is the table name used when Config.Table is empty.
const DefaultTable = "kiosk_sessions"

// uniqueViolation is the SQLSTATE for a duplicate primary key.
const uniqueViolation = "23505"

// Config contains PostgreSQL backend configuration.
type Config struct {
	// DSN is a libpq connection string or postgres:// URL.
	DSN string

	Table string

	// MaxConns caps the pool size. Default: pgxpool's default.
	MaxConns int32
}

// DB is the subset of *pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements remote.Store on PostgreSQL.
type Store struct {
	db     DB
	table  string
	logger logger.Logger
}

// New connects to PostgreSQL and ensures the table exists.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgstore: dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	st, err := NewWithDB(ctx, pool, cfg.Table, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

// NewWithDB returns a Store on an existing pool and ensures the table exists.
func NewWithDB(ctx context.Context, db DB, table string, log logger.Logger) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if log == nil {
		log = logger.Noop()
	}

	st := &Store{db: db, table: pgx.Identifier{table}.Sanitize(), logger: log}
	if err := st.migrate(ctx, table); err != nil {
		return nil, err
	}
	log.Info("postgres store ready", "table", table)
	return st, nil
}

func (s *Store) migrate(ctx context.Context, table string) error {
	index := pgx.Identifier{table + "_active_tag"}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
            session_id  TEXT PRIMARY KEY,
            tag_id      TEXT NOT NULL,
            guest_type  TEXT NOT NULL,
            adult_count INTEGER NOT NULL CHECK (adult_count >= 0),
            child_count INTEGER NOT NULL CHECK (child_count >= 0),
            entry_time  TIMESTAMPTZ NOT NULL,
            exit_time   TIMESTAMPTZ NULL CHECK (exit_time IS NULL OR exit_time >= entry_time)
        )`,
		`CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + s.table + ` (tag_id) WHERE exit_time IS NULL`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", table, err)
		}
	}
	return nil
}

const columns = `session_id, tag_id, guest_type, adult_count, child_count, entry_time, exit_time`

func scanSession(row pgx.Row) (scan.Session, error) {
	var (
		s         scan.Session
		guestType string
		exit      *time.Time
	)
	if err := row.Scan(&s.SessionID, &s.TagID, &guestType, &s.AdultCount, &s.ChildCount, &s.EntryTime, &exit); err != nil {
		return scan.Session{}, err
	}
	s.GuestType = scan.GuestType(guestType)
	s.EntryTime = s.EntryTime.UTC()
	if exit != nil {
		t := exit.UTC()
		s.ExitTime = &t
	}
	return s, nil
}

// ListSessions implements remote.Store.ListSessions.
func (s *Store) ListSessions(ctx context.Context) ([]scan.Session, error) {
	rows, err := s.db.Query(ctx, `SELECT `+columns+` FROM `+s.table+` ORDER BY entry_time, session_id`)
	if err != nil {
		return nil, scan.E(scan.ErrRemote, "list", "", err)
	}
	defer rows.Close()

	var out []scan.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, scan.E(scan.ErrRemote, "list", "", err)
		}
		if err := sess.Validate(); err != nil {
			s.logger.Warn("dropping invalid row", "session_id", sess.SessionID, "error", err)
			continue
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, scan.E(scan.ErrRemote, "list", "", err)
	}
	return out, nil
}

// CreateSession implements remote.Store.CreateSession.
func (s *Store) CreateSession(ctx context.Context, sess scan.Session) (scan.Session, error) {
	if err := sess.Validate(); err != nil {
		return scan.Session{}, err
	}
	row := s.db.QueryRow(ctx,
		`INSERT INTO `+s.table+` (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+columns,
		sess.SessionID, sess.TagID, string(sess.GuestType), sess.AdultCount, sess.ChildCount, sess.EntryTime, sess.ExitTime)
	created, err := scanSession(row)
	if err != nil {
		return scan.Session{}, classify("create", sess.SessionID, err)
	}
	return created, nil
}

// UpdateSession implements remote.Store.UpdateSession.
func (s *Store) UpdateSession(ctx context.Context, id string, p scan.Patch) (scan.Session, error) {
	var guestType *string
	if p.GuestType != nil {
		g := string(*p.GuestType)
		guestType = &g
	}
	row := s.db.QueryRow(ctx,
		`UPDATE `+s.table+` SET
            exit_time   = COALESCE(exit_time, $2),
            guest_type  = COALESCE($3, guest_type),
            adult_count = COALESCE($4, adult_count),
            child_count = COALESCE($5, child_count)
        WHERE session_id = $1
        RETURNING `+columns,
		id, p.ExitTime, guestType, p.AdultCount, p.ChildCount)
	updated, err := scanSession(row)
	if err != nil {
		return scan.Session{}, classify("update", id, err)
	}
	return updated, nil
}

// DeleteSession implements remote.Store.DeleteSession.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE session_id = $1`, id)
	if err != nil {
		return classify("delete", id, err)
	}
	if tag.RowsAffected() == 0 {
		return scan.E(scan.ErrNotFound, "delete", id, nil)
	}
	return nil
}

// FindActiveByTag implements remote.Store.FindActiveByTag.
func (s *Store) FindActiveByTag(ctx context.Context, tagID string) (*scan.Session, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+columns+` FROM `+s.table+`
        WHERE tag_id = $1 AND exit_time IS NULL
        ORDER BY entry_time DESC, session_id DESC
        LIMIT 1`, tagID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find active", tagID, err)
	}
	return &sess, nil
}

// Ping implements remote.Store.Ping.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return scan.E(scan.ErrRemote, "ping", "", err)
	}
	return nil
}

// Close implements remote.Store.Close.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// classify maps driver errors onto the scan error kinds.
func classify(op, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return scan.E(scan.ErrNotFound, op, id, nil)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation:
			return scan.E(scan.ErrConflict, op, id, nil)
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "23":
			return scan.E(scan.ErrInvalid, op, id, err)
		}
	}
	return scan.E(scan.ErrRemote, op, id, err)
}
