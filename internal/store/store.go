// Package store persists wall state between runs: manual embeds, the two
// selection sets, bookmarks and user preferences, each as one JSON document
// in a SQLite key/value table.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pkg/errors"

	"github.com/you/streamwall/internal/core"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
  name TEXT NOT NULL PRIMARY KEY,
  value TEXT NOT NULL,
  updated_ts TEXT NOT NULL
);`

// Document names in the kv table.
const (
	docManual    = "manual_embeds"
	docVideoKeys = "video_keys"
	docChatKeys  = "chat_keys"
	docBookmarks = "bookmarks"
	docPrefs     = "prefs"
)

// Prefs are the persisted user preferences.
type Prefs struct {
	// PlatformOrder controls dock group representative selection.
	PlatformOrder []string `json:"platform_order,omitempty"`
	// YouTubeMultiplier scales the YouTube poll interval.
	YouTubeMultiplier float64 `json:"youtube_multiplier,omitempty"`
	// DockCollapsed remembers whether the dock is folded away.
	DockCollapsed bool `json:"dock_collapsed,omitempty"`
}

// Store is a SQLite-backed kv document store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	ApplyPragmas(context.Background(), db)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping() error { return s.db.Ping() }

// DB exposes the underlying handle for startup migrations.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) putJSON(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", name)
	}
	const q = `INSERT INTO kv (name, value, updated_ts) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET value=excluded.value, updated_ts=excluded.updated_ts;`
	_, err = s.db.ExecContext(ctx, q, name, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	return errors.Wrapf(err, "write %s", name)
}

// getJSON loads one document into out. A missing or malformed document
// leaves out at its zero value; corruption is logged, not fatal, so a bad
// document never blocks startup.
func (s *Store) getJSON(ctx context.Context, name string, out any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE name = ?;`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Printf("store: malformed %s document, using defaults: %v", name, err)
	}
	return nil
}

func (s *Store) SaveManual(ctx context.Context, embeds []core.LiveEmbed) error {
	if embeds == nil {
		embeds = []core.LiveEmbed{}
	}
	return s.putJSON(ctx, docManual, embeds)
}

func (s *Store) LoadManual(ctx context.Context) ([]core.LiveEmbed, error) {
	var out []core.LiveEmbed
	err := s.getJSON(ctx, docManual, &out)
	return out, err
}

func (s *Store) SaveVideoKeys(ctx context.Context, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	return s.putJSON(ctx, docVideoKeys, keys)
}

func (s *Store) LoadVideoKeys(ctx context.Context) ([]string, error) {
	var out []string
	err := s.getJSON(ctx, docVideoKeys, &out)
	return out, err
}

func (s *Store) SaveChatKeys(ctx context.Context, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	return s.putJSON(ctx, docChatKeys, keys)
}

func (s *Store) LoadChatKeys(ctx context.Context) ([]string, error) {
	var out []string
	err := s.getJSON(ctx, docChatKeys, &out)
	return out, err
}

func (s *Store) SaveBookmarks(ctx context.Context, bookmarks []core.Bookmark) error {
	if bookmarks == nil {
		bookmarks = []core.Bookmark{}
	}
	return s.putJSON(ctx, docBookmarks, bookmarks)
}

func (s *Store) LoadBookmarks(ctx context.Context) ([]core.Bookmark, error) {
	var out []core.Bookmark
	err := s.getJSON(ctx, docBookmarks, &out)
	return out, err
}

func (s *Store) SavePrefs(ctx context.Context, prefs Prefs) error {
	return s.putJSON(ctx, docPrefs, prefs)
}

func (s *Store) LoadPrefs(ctx context.Context) (Prefs, error) {
	var out Prefs
	err := s.getJSON(ctx, docPrefs, &out)
	return out, err
}

func (s *Store) String() string {
	return fmt.Sprintf("Store{%p}", s.db)
}
