// Package postgres implements the optional call-history archive: a
// write-behind, best-effort mirror of completed call-history entries to a
// durable table. It is write-only from the pipeline's perspective — never
// consulted for dispatch, re-dispatch, or crash recovery.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justinlietz93/toolstream/pkg/stream/executor"
)

// queueCapacity bounds the number of pending archive writes buffered in
// memory before new entries are dropped rather than blocking the executor
// goroutine that called Archive.
const queueCapacity = 256

// Store is a PostgreSQL-backed call-history archive.
type Store struct {
	pool    *pgxpool.Pool
	entries chan archiveEntry
	done    chan struct{}
}

type archiveEntry struct {
	streamID string
	entry    executor.HistoryEntry
}

// Ensure Store implements executor.Archiver at compile time.
var _ executor.Archiver = (*Store)(nil)

// New creates a new PostgreSQL-backed archive with the given configuration
// and starts its background writer goroutine. If MigrateOnStart is true,
// schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{
		pool:    pool,
		entries: make(chan archiveEntry, queueCapacity),
		done:    make(chan struct{}),
	}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	go s.run()

	return s, nil
}

// Archive enqueues entry for asynchronous, best-effort persistence. If the
// internal queue is full the entry is dropped and logged rather than
// blocking the caller — mirroring is never allowed to slow down dispatch.
func (s *Store) Archive(streamID string, entry executor.HistoryEntry) {
	select {
	case s.entries <- archiveEntry{streamID: streamID, entry: entry}:
	default:
		slog.Warn("call history archive queue full, dropping entry",
			"stream_id", streamID,
			"tool_name", entry.ToolName,
		)
	}
}

// run drains the entry queue and inserts each one, until Close closes the
// channel.
func (s *Store) run() {
	defer close(s.done)
	for e := range s.entries {
		s.insert(e)
	}
}

func (s *Store) insert(e archiveEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fieldsJSON, err := json.Marshal(e.entry.InputFields)
	if err != nil {
		slog.Warn("call history archive: marshaling input_fields", "error", err)
		return
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO call_history (stream_id, ts, tool_name, input_fields, result_content, kind, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		e.streamID, e.entry.Timestamp, e.entry.ToolName, fieldsJSON,
		e.entry.Result, string(e.entry.Kind), e.entry.Status,
	)
	if err != nil {
		slog.Warn("call history archive: insert failed",
			"stream_id", e.streamID,
			"tool_name", e.entry.ToolName,
			"error", err,
		)
	}
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close stops accepting new entries, drains the ones already queued, and
// releases the connection pool.
func (s *Store) Close() error {
	close(s.entries)
	<-s.done
	s.pool.Close()
	return nil
}
