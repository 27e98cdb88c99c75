// Package storage archives messages that leave the in-memory cache window.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/discord/model"

	_ "modernc.org/sqlite"
)

// Reason records why a message was archived.
type Reason string

const (
	ReasonEvicted        Reason = "evicted"
	ReasonDeleted        Reason = "deleted"
	ReasonBulkDeleted    Reason = "bulk_deleted"
	ReasonChannelDeleted Reason = "channel_deleted"
	ReasonEdited         Reason = "edited"
)

// Runtime metadata keys.
const (
	MetaLastReady = "last_ready"
	MetaLastEvent = "last_event"
)

var errNotInitialized = errors.New("store not initialized")

// Store wraps an embedded SQLite database holding the message archive.
// It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath string

	mu sync.RWMutex
	db *sql.DB
}

// MessageRecord is an archived message snapshot.
type MessageRecord struct {
	Message    *model.Message `json:"message"`
	Reason     Reason         `json:"reason"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// NewStore creates a Store pointing to dbPath. Call Init before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if s.dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA synchronous=NORMAL;`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

// UpsertMessage archives m, replacing an earlier snapshot of the same message.
func (s *Store) UpsertMessage(m *model.Message, reason Reason, archivedAt time.Time) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if m == nil || m.ID == "" || m.ChannelID == "" {
		return nil
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", m.ID, err)
	}
	_, err = db.Exec(
		`INSERT INTO messages (channel_id, message_id, guild_id, author_id, content, created_at, archived_at, reason, payload)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(channel_id, message_id) DO UPDATE SET
           guild_id=excluded.guild_id,
           author_id=excluded.author_id,
           content=excluded.content,
           created_at=excluded.created_at,
           archived_at=excluded.archived_at,
           reason=excluded.reason,
           payload=excluded.payload`,
		m.ChannelID, m.ID, m.GuildID, m.Author.ID, m.Content,
		m.Timestamp.UnixMilli(), archivedAt.UnixMilli(), string(reason), payload,
	)
	return err
}

// UpsertMessages archives several messages in one transaction.
func (s *Store) UpsertMessages(msgs []*model.Message, reason Reason, archivedAt time.Time) error {
	if len(msgs) == 0 {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO messages (channel_id, message_id, guild_id, author_id, content, created_at, archived_at, reason, payload)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(channel_id, message_id) DO UPDATE SET
           content=excluded.content,
           archived_at=excluded.archived_at,
           reason=excluded.reason,
           payload=excluded.payload`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if m == nil || m.ID == "" || m.ChannelID == "" {
			continue
		}
		payload, err := json.Marshal(m)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
		if _, err := stmt.Exec(m.ChannelID, m.ID, m.GuildID, m.Author.ID, m.Content,
			m.Timestamp.UnixMilli(), archivedAt.UnixMilli(), string(reason), payload); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetMessage returns an archived message, or nil when it is not archived.
func (s *Store) GetMessage(channelID, messageID string) (*MessageRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	row := db.QueryRow(
		`SELECT payload, reason, archived_at FROM messages WHERE channel_id=? AND message_id=?`,
		channelID, messageID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListChannelMessages returns up to limit of the newest archived messages of a channel,
// oldest first. limit <= 0 returns all of them.
func (s *Store) ListChannelMessages(channelID string, limit int) ([]*MessageRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT payload, reason, archived_at FROM messages
         WHERE channel_id=?
         ORDER BY created_at DESC, message_id DESC
         LIMIT ?`,
		channelID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MessageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// DeleteGuildMessages removes every archived message of a guild.
func (s *Store) DeleteGuildMessages(guildID string) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(`DELETE FROM messages WHERE guild_id=?`, guildID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupOlderThan removes messages archived before cutoff.
func (s *Store) CleanupOlderThan(cutoff time.Time) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(`DELETE FROM messages WHERE archived_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountMessages returns the number of archived messages.
func (s *Store) CountMessages() (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// SetRuntimeMeta stores a timestamp under key.
func (s *Store) SetRuntimeMeta(key string, ts time.Time) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO runtime_meta (key, ts) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET ts=excluded.ts`,
		key, ts.UnixMilli(),
	)
	return err
}

// GetRuntimeMeta returns the timestamp stored under key.
func (s *Store) GetRuntimeMeta(key string) (time.Time, bool, error) {
	db, err := s.conn()
	if err != nil {
		return time.Time{}, false, err
	}
	var ms int64
	err = db.QueryRow(`SELECT ts FROM runtime_meta WHERE key=?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*MessageRecord, error) {
	var (
		payload  []byte
		reason   string
		archived int64
	)
	if err := sc.Scan(&payload, &reason, &archived); err != nil {
		return nil, err
	}
	var m model.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode archived message: %w", err)
	}
	return &MessageRecord{
		Message:    &m,
		Reason:     Reason(reason),
		ArchivedAt: time.UnixMilli(archived).UTC(),
	}, nil
}

// ensureSchema creates required tables and indexes if they don't exist.
func ensureSchema(db *sql.DB) error {
	const createMessages = `
CREATE TABLE IF NOT EXISTS messages (
  channel_id  TEXT NOT NULL,
  message_id  TEXT NOT NULL,
  guild_id    TEXT NOT NULL DEFAULT '',
  author_id   TEXT NOT NULL DEFAULT '',
  content     TEXT,
  created_at  INTEGER NOT NULL,
  archived_at INTEGER NOT NULL,
  reason      TEXT NOT NULL,
  payload     BLOB NOT NULL,
  PRIMARY KEY (channel_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_archived ON messages(archived_at);
CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_guild ON messages(guild_id);`

	const createRuntimeMeta = `
CREATE TABLE IF NOT EXISTS runtime_meta (
  key TEXT PRIMARY KEY,
  ts  INTEGER NOT NULL
);`

	for _, sqlText := range []string{createMessages, createRuntimeMeta} {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
