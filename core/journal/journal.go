// Package journal persists handoff records per conversation.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/adalundhe/duet/core/handoff"
)

// =============================================================================
// Handoff Journal - Tiered Record Storage
// =============================================================================
//
// Journal keeps every handoff record in SQLite and the most recent record of
// each conversation in a Ristretto cache, so status lookups for live
// conversations skip the database.

const (
	// DefaultFileName is the journal file inside the data directory.
	DefaultFileName = "handoffs.db"

	// DefaultListLimit caps List when no limit is given.
	DefaultListLimit = 100

	defaultNumCounters = 1e5
	defaultMaxCost     = 1 << 24
	defaultBufferItems = 64
)

// Config configures a Journal.
type Config struct {
	// Path of the SQLite database. ":memory:" keeps it in memory.
	Path string `yaml:"path"`

	// Ristretto configuration
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`

	Logger *slog.Logger `yaml:"-"`
}

// Entry is a stored record.
type Entry struct {
	ID string `json:"id"`
	handoff.Record
}

// Query filters List.
type Query struct {
	ConversationID string
	Limit          int
}

// Journal implements handoff.Recorder over SQLite.
type Journal struct {
	db     *sql.DB
	cache  *ristretto.Cache
	path   string
	logger *slog.Logger
}

// Open opens or creates the journal at cfg.Path.
func Open(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if cfg.NumCounters == 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost == 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.BufferItems == 0 {
		cfg.BufferItems = defaultBufferItems
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	j := &Journal{path: cfg.Path, logger: logger}
	if err := j.initSQLite(cfg.Path); err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		j.db.Close()
		return nil, fmt.Errorf("failed to initialize Ristretto cache: %w", err)
	}
	j.cache = cache

	return j, nil
}

func (j *Journal) initSQLite(path string) error {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS handoffs (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		from_persona TEXT,
		to_persona TEXT NOT NULL,
		outcome TEXT NOT NULL,
		window_size INTEGER NOT NULL,
		carried INTEGER NOT NULL,
		context_len INTEGER NOT NULL,
		tag_failed INTEGER NOT NULL,
		error TEXT,
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_handoffs_conversation ON handoffs(conversation_id, at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	j.db = db
	return nil
}

// Path returns the database location.
func (j *Journal) Path() string {
	return j.path
}

// RecordHandoff implements handoff.Recorder. Write failures are logged; a
// journal outage never stops a conversation.
func (j *Journal) RecordHandoff(ctx context.Context, rec handoff.Record) {
	if _, err := j.Append(ctx, rec); err != nil {
		j.logger.Warn("handoff journal write failed",
			slog.String("conversation_id", rec.ConversationID),
			slog.String("error", err.Error()))
	}
}

// Append stores rec and returns its entry id.
func (j *Journal) Append(ctx context.Context, rec handoff.Record) (string, error) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	id := uuid.NewString()

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO handoffs
		(id, conversation_id, from_persona, to_persona, outcome, window_size, carried,
		 context_len, tag_failed, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, rec.ConversationID, rec.From, rec.To, string(rec.Outcome), rec.Window,
		rec.Carried, rec.ContextLen, boolToInt(rec.TagFailed), rec.Error, rec.At.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert handoff: %w", err)
	}

	entry := &Entry{ID: id, Record: rec}
	j.cache.Set(rec.ConversationID, entry, entryCost(entry))
	return id, nil
}

// Latest returns the most recent entry of a conversation.
func (j *Journal) Latest(ctx context.Context, conversationID string) (Entry, bool, error) {
	if v, ok := j.cache.Get(conversationID); ok {
		if entry, ok := v.(*Entry); ok {
			return *entry, true, nil
		}
	}

	entries, err := j.List(ctx, Query{ConversationID: conversationID, Limit: 1})
	if err != nil {
		return Entry{}, false, err
	}
	if len(entries) == 0 {
		return Entry{}, false, nil
	}
	return entries[0], true, nil
}

// List returns entries newest first, optionally for a single conversation.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, conversation_id, from_persona, to_persona, outcome, window_size,
		carried, context_len, tag_failed, error, at FROM handoffs`
	args := []any{}
	if q.ConversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, q.ConversationID)
	}
	query += ` ORDER BY at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query handoffs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			from, msg sql.NullString
			outcome   string
			tagFailed int
			at        int64
		)
		if err := rows.Scan(&e.ID, &e.ConversationID, &from, &e.To, &outcome, &e.Window,
			&e.Carried, &e.ContextLen, &tagFailed, &msg, &at); err != nil {
			return nil, fmt.Errorf("scan handoff: %w", err)
		}
		e.From = from.String
		e.Error = msg.String
		e.Outcome = handoff.Outcome(outcome)
		e.TagFailed = tagFailed != 0
		e.At = time.Unix(0, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the cache and the database.
func (j *Journal) Close() error {
	j.cache.Close()
	return j.db.Close()
}

func entryCost(e *Entry) int64 {
	cost := int64(200)
	cost += int64(len(e.ID))
	cost += int64(len(e.ConversationID))
	cost += int64(len(e.From))
	cost += int64(len(e.To))
	cost += int64(len(e.Error))
	return cost
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
