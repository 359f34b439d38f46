package db

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Options configures the SQLite connection pool.
type Options struct {
	Path         string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// SQLite wraps a sqlx handle on a single database file.
type SQLite struct {
	Conn *sqlx.DB
	Path string
	log  *zap.Logger
}

// New opens the database file, enforces foreign keys and verifies the connection.
func New(ctx context.Context, opts Options, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	conn, err := sqlx.Open("sqlite", dsn(opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxOpen)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("database opened", zap.String("path", opts.Path), zap.Int("max_open_conns", maxOpen))
	return &SQLite{Conn: conn, Path: opts.Path, log: log}, nil
}

func dsn(opts Options) string {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + opts.Path + "?" + q.Encode()
}

func (s *SQLite) Close() {
	if s.Conn != nil {
		if err := s.Conn.Close(); err != nil {
			s.log.Warn("close database", zap.Error(err))
		}
	}
}

// Checkpoint folds the write-ahead log back into the database file.
func (s *SQLite) Checkpoint(ctx context.Context) error {
	if _, err := s.Conn.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return Classify(err, "checkpoint database")
	}
	s.log.Info("database checkpointed")
	return nil
}

// Health checks the database connectivity.
func (s *SQLite) Health(ctx context.Context) error {
	var one int
	return s.Conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// WithTx runs fn inside one transaction. The transaction commits only when fn
// returns nil; errors, panics and context cancellation roll it back.
func (s *SQLite) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	tx, err := s.Conn.BeginTxx(ctx, nil)
	if err != nil {
		return Classify(err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			s.log.Error("transaction panicked", zap.Any("panic", p))
			panic(p)
		}
	}()
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return Classify(err, "commit transaction")
	}
	return nil
}
