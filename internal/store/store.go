// Package store implements the durable, single-file database for
// sessions, segments, dictionary entries, and settings, backed by
// modernc.org/sqlite (a pure-Go driver, so the store needs no cgo).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sibukixxx/voicetypeless/internal/domainerr"
	"github.com/sibukixxx/voicetypeless/internal/obslog"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	mode       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);

CREATE TABLE IF NOT EXISTS segments (
	segment_id     TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL REFERENCES sessions(session_id),
	raw_text       TEXT NOT NULL DEFAULT '',
	rewritten_text TEXT,
	confidence     REAL NOT NULL DEFAULT 0,
	audio_path     TEXT,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_session_id ON segments(session_id);

CREATE TABLE IF NOT EXISTS dictionary_entries (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	mode        TEXT,
	pattern     TEXT NOT NULL,
	replacement TEXT NOT NULL,
	priority    INTEGER NOT NULL DEFAULT 0,
	enabled     INTEGER NOT NULL DEFAULT 1,
	seq         INTEGER
);
CREATE INDEX IF NOT EXISTS idx_dictionary_scope_enabled ON dictionary_entries(scope, enabled);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store wraps a *sql.DB with the application's schema and queries.
type Store struct {
	db *sql.DB
}

// Open creates/migrates the sqlite file at path and returns a Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domainerr.StorageWrap("failed to open database", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: a single connection serializes all access and avoids SQLITE_BUSY

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, domainerr.StorageWrap("failed to apply schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

const timeLayout = time.RFC3339Nano

// Session is a durable session row.
type Session struct {
	SessionID string
	State     string
	Mode      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Segment is a durable segment row.
type Segment struct {
	SegmentID     string
	SessionID     string
	RawText       string
	RewrittenText *string
	Confidence    float64
	AudioPath     *string
	CreatedAt     time.Time
}

// DictionaryEntry is a durable dictionary row.
type DictionaryEntry struct {
	ID          string
	Scope       string
	Mode        *string
	Pattern     string
	Replacement string
	Priority    int
	Enabled     bool
}

// UpsertSession inserts or replaces a session row.
func (s *Store) UpsertSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, state, mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state, mode = excluded.mode, updated_at = excluded.updated_at`,
		sess.SessionID, sess.State, sess.Mode,
		sess.CreatedAt.Format(timeLayout), sess.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return domainerr.StorageWrap("failed to upsert session", err)
	}
	return nil
}

// HistoryItem is one row of a history page, with its segment count.
type HistoryItem struct {
	Session      Session
	SegmentCount int
}

// HistoryPage is the cursor-paginated result of GetHistory.
type HistoryPage struct {
	Items      []HistoryItem
	NextCursor *string
}

// GetHistory returns sessions ordered by created_at DESC, paginated by
// an opaque cursor (the created_at of the last row on the prior page).
func (s *Store) GetHistory(ctx context.Context, limit int, cursor *string) (HistoryPage, error) {
	query := `
		SELECT s.session_id, s.state, s.mode, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM segments WHERE segments.session_id = s.session_id) AS segment_count
		FROM sessions s`
	args := []any{}
	if cursor != nil {
		query += " WHERE s.created_at < ?"
		args = append(args, *cursor)
	}
	query += " ORDER BY s.created_at DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return HistoryPage{}, domainerr.StorageWrap("failed to query history", err)
	}
	defer rows.Close()

	var items []HistoryItem
	for rows.Next() {
		var sess Session
		var createdAt, updatedAt string
		var count int
		if err := rows.Scan(&sess.SessionID, &sess.State, &sess.Mode, &createdAt, &updatedAt, &count); err != nil {
			return HistoryPage{}, domainerr.StorageWrap("failed to scan history row", err)
		}
		sess.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		sess.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		items = append(items, HistoryItem{Session: sess, SegmentCount: count})
	}
	if err := rows.Err(); err != nil {
		return HistoryPage{}, domainerr.StorageWrap("failed to iterate history rows", err)
	}

	page := HistoryPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		lastCreated := page.Items[limit-1].Session.CreatedAt.Format(timeLayout)
		page.NextCursor = &lastCreated
	}
	return page, nil
}

// SessionDetail is a session plus its segments ordered ascending.
type SessionDetail struct {
	Session  Session
	Segments []Segment
}

// GetSession returns the session row plus its segments, or false if
// the session does not exist.
func (s *Store) GetSession(ctx context.Context, sessionID string) (SessionDetail, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, state, mode, created_at, updated_at FROM sessions WHERE session_id = ?`, sessionID)

	var sess Session
	var createdAt, updatedAt string
	if err := row.Scan(&sess.SessionID, &sess.State, &sess.Mode, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return SessionDetail{}, false, nil
		}
		return SessionDetail{}, false, domainerr.StorageWrap("failed to query session", err)
	}
	sess.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	sess.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id, session_id, raw_text, rewritten_text, confidence, audio_path, created_at
		 FROM segments WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return SessionDetail{}, false, domainerr.StorageWrap("failed to query segments", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		var seg Segment
		var createdAt string
		if err := rows.Scan(&seg.SegmentID, &seg.SessionID, &seg.RawText, &seg.RewrittenText,
			&seg.Confidence, &seg.AudioPath, &createdAt); err != nil {
			return SessionDetail{}, false, domainerr.StorageWrap("failed to scan segment row", err)
		}
		seg.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		segments = append(segments, seg)
	}
	return SessionDetail{Session: sess, Segments: segments}, true, nil
}

// InsertSegment creates a new segment row.
func (s *Store) InsertSegment(ctx context.Context, seg Segment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO segments (segment_id, session_id, raw_text, rewritten_text, confidence, audio_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seg.SegmentID, seg.SessionID, seg.RawText, seg.RewrittenText, seg.Confidence, seg.AudioPath,
		seg.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return domainerr.StorageWrap("failed to insert segment", err)
	}
	return nil
}

// SetSegmentRewrittenText persists the rewrite result for a segment.
func (s *Store) SetSegmentRewrittenText(ctx context.Context, segmentID, text string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE segments SET rewritten_text = ? WHERE segment_id = ?`, text, segmentID)
	if err != nil {
		return domainerr.StorageWrap("failed to persist rewritten text", err)
	}
	return nil
}

// UpsertDictionaryEntry inserts or replaces a dictionary entry; a
// blank ID is filled with a new UUID.
func (s *Store) UpsertDictionaryEntry(ctx context.Context, entry DictionaryEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	enabled := 0
	if entry.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dictionary_entries (id, scope, mode, pattern, replacement, priority, enabled, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM dictionary_entries))
		ON CONFLICT(id) DO UPDATE SET
			scope = excluded.scope, mode = excluded.mode, pattern = excluded.pattern,
			replacement = excluded.replacement, priority = excluded.priority, enabled = excluded.enabled`,
		entry.ID, entry.Scope, entry.Mode, entry.Pattern, entry.Replacement, entry.Priority, enabled,
	)
	if err != nil {
		return "", domainerr.StorageWrap("failed to upsert dictionary entry", err)
	}
	return entry.ID, nil
}

// ListDictionary returns all entries for an optional scope filter,
// ordered by priority DESC then insertion order.
func (s *Store) ListDictionary(ctx context.Context, scope *string) ([]DictionaryEntry, error) {
	query := `SELECT id, scope, mode, pattern, replacement, priority, enabled FROM dictionary_entries`
	var args []any
	if scope != nil {
		query += " WHERE scope = ?"
		args = append(args, *scope)
	}
	query += " ORDER BY priority DESC, seq ASC"

	return s.queryDictionary(ctx, query, args...)
}

// ListEnabledDictionary returns entries usable for a given mode:
// enabled, global scope, or mode scope matching mode (or NULL mode).
func (s *Store) ListEnabledDictionary(ctx context.Context, mode string) ([]DictionaryEntry, error) {
	query := `
		SELECT id, scope, mode, pattern, replacement, priority, enabled
		FROM dictionary_entries
		WHERE enabled = 1 AND (scope = 'global' OR (scope = 'mode' AND (mode IS NULL OR mode = ?)))
		ORDER BY priority DESC, seq ASC`
	return s.queryDictionary(ctx, query, mode)
}

func (s *Store) queryDictionary(ctx context.Context, query string, args ...any) ([]DictionaryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domainerr.StorageWrap("failed to query dictionary entries", err)
	}
	defer rows.Close()

	var out []DictionaryEntry
	for rows.Next() {
		var e DictionaryEntry
		var enabled int
		if err := rows.Scan(&e.ID, &e.Scope, &e.Mode, &e.Pattern, &e.Replacement, &e.Priority, &enabled); err != nil {
			return nil, domainerr.StorageWrap("failed to scan dictionary row", err)
		}
		e.Enabled = enabled != 0
		out = append(out, e)
	}
	return out, nil
}

// DeleteOldSegments removes segments created before cutoff.
func (s *Store) DeleteOldSegments(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM segments WHERE created_at < ?`, cutoff.Format(timeLayout))
	if err != nil {
		return 0, domainerr.StorageWrap("failed to delete old segments", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteOldSessions removes sessions below cutoff that have zero
// remaining segments, so a cleanup pass never severs live segments.
func (s *Store) DeleteOldSessions(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE created_at < ?
		AND session_id NOT IN (SELECT DISTINCT session_id FROM segments)`,
		cutoff.Format(timeLayout),
	)
	if err != nil {
		return 0, domainerr.StorageWrap("failed to delete old sessions", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Settings is the flattened, defaulted view of the settings table.
type Settings struct {
	SttEngine      string   `json:"stt_engine"`
	DefaultMode    string   `json:"default_mode"`
	DefaultDeliver string   `json:"default_deliver_target"`
	RewriteEnabled bool     `json:"rewrite_enabled"`
	PasteAllowlist []string `json:"paste_allowlist"`
	PasteConfirm   bool     `json:"paste_confirm"`
	AudioRetention string   `json:"audio_retention"`
	SegmentTTLDays int      `json:"segment_ttl_days"`
	Hotkey         string   `json:"hotkey"`
	Language       string   `json:"language"`
	RewriteAPIKey  string   `json:"rewrite_api_key"`
}

// DefaultSettings matches the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		SttEngine:      "apple",
		DefaultMode:    "raw",
		DefaultDeliver: "clipboard",
		RewriteEnabled: false,
		PasteAllowlist: []string{},
		PasteConfirm:   true,
		AudioRetention: "none",
		SegmentTTLDays: 0,
		Hotkey:         "CmdOrCtrl+Shift+R",
		Language:       "ja-JP",
	}
}

// LoadSettings flattens every settings row into a Settings struct,
// filling any missing key from defaults.
func (s *Store) LoadSettings(ctx context.Context) (Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, domainerr.StorageWrap("failed to query settings", err)
	}
	defer rows.Close()

	raw := map[string]json.RawMessage{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Settings{}, domainerr.StorageWrap("failed to scan settings row", err)
		}
		raw[key] = json.RawMessage(value)
	}

	out := DefaultSettings()
	defaultsJSON, _ := json.Marshal(out)
	merged := map[string]json.RawMessage{}
	json.Unmarshal(defaultsJSON, &merged)
	for k, v := range raw {
		merged[k] = v
	}
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return Settings{}, domainerr.InternalWrap("failed to re-marshal merged settings", err)
	}
	if err := json.Unmarshal(mergedJSON, &out); err != nil {
		return Settings{}, domainerr.InternalWrap("failed to unmarshal settings", err)
	}
	return out, nil
}

// SaveSettings writes every field individually with upsert semantics.
func (s *Store) SaveSettings(ctx context.Context, settings Settings) error {
	fieldsJSON, err := json.Marshal(settings)
	if err != nil {
		return domainerr.InternalWrap("failed to marshal settings", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
		return domainerr.InternalWrap("failed to flatten settings", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domainerr.StorageWrap("failed to begin settings transaction", err)
	}
	defer tx.Rollback()

	for key, value := range fields {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(value)); err != nil {
			return domainerr.StorageWrap(fmt.Sprintf("failed to upsert setting %q", key), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domainerr.StorageWrap("failed to commit settings transaction", err)
	}
	return nil
}

func init() {
	// Logs one debug line under the storage category when the package
	// loads; driver-internal output is not redirected.
	obslog.Store().Debug("sqlite driver registered")
}
