package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/you/streamwall/internal/embedkey"
)

// migrateKV normalizes state documents written by older builds: selection
// keys get canonicalized (platform lowercased, whitespace trimmed) and
// deduplicated, and manual embeds get lowercased platforms. YouTube ids
// that were fully lowercased by old builds cannot be restored here; the
// selection reconciler migrates those once live content arrives.
func migrateKV(ctx context.Context, db *sql.DB) error {
	path := sqlitePath(ctx, db)
	userVersion, err := sqliteUserVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite: user_version: %w", err)
	}

	log.Printf("streamwall: sqlite: path=%s user_version=%d", path, userVersion)

	exists, err := kvTableExists(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite: describe kv: %w", err)
	}
	if !exists {
		log.Printf("streamwall: sqlite: kv table missing; skipping migration")
		return nil
	}

	for _, doc := range []string{"video_keys", "chat_keys"} {
		changed, err := migrateKeyList(ctx, db, doc)
		if err != nil {
			return fmt.Errorf("sqlite: migrate %s: %w", doc, err)
		}
		if changed > 0 {
			log.Printf("streamwall: sqlite: normalized %d key(s) in %s", changed, doc)
		}
	}

	changed, err := migrateManualEmbeds(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite: migrate manual_embeds: %w", err)
	}
	if changed > 0 {
		log.Printf("streamwall: sqlite: normalized %d manual embed(s)", changed)
	}

	return nil
}

func migrateKeyList(ctx context.Context, db *sql.DB, doc string) (int, error) {
	raw, ok, err := readDoc(ctx, db, doc)
	if err != nil || !ok {
		return 0, err
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		// Corrupt documents are left alone; the store falls back to
		// defaults on load.
		return 0, nil
	}

	changed := 0
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		canonical := embedkey.Canonicalize(strings.TrimSpace(key))
		if canonical != key {
			changed++
		}
		if _, dup := seen[canonical]; dup {
			changed++
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	if changed == 0 {
		return 0, nil
	}
	return changed, writeDoc(ctx, db, doc, out)
}

func migrateManualEmbeds(ctx context.Context, db *sql.DB) (int, error) {
	raw, ok, err := readDoc(ctx, db, "manual_embeds")
	if err != nil || !ok {
		return 0, err
	}

	var embeds []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &embeds); err != nil {
		return 0, nil
	}

	changed := 0
	for _, embed := range embeds {
		var platform string
		if err := json.Unmarshal(embed["platform"], &platform); err != nil {
			continue
		}
		lowered := strings.ToLower(strings.TrimSpace(platform))
		if lowered == platform {
			continue
		}
		encoded, err := json.Marshal(lowered)
		if err != nil {
			continue
		}
		embed["platform"] = encoded
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	return changed, writeDoc(ctx, db, "manual_embeds", embeds)
}

func readDoc(ctx context.Context, db *sql.DB, doc string) (string, bool, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE name = ?;`, doc).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}

func writeDoc(ctx context.Context, db *sql.DB, doc string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `UPDATE kv SET value = ? WHERE name = ?;`, string(encoded), doc)
	return err
}

func kvTableExists(ctx context.Context, db *sql.DB) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'kv';`).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func sqlitePath(ctx context.Context, db *sql.DB) string {
	rows, err := db.QueryContext(ctx, `PRAGMA database_list;`)
	if err != nil {
		return "(unknown)"
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq  int
			name string
			file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return "(unknown)"
		}
		if strings.EqualFold(strings.TrimSpace(name), "main") {
			if file.Valid && strings.TrimSpace(file.String) != "" {
				return file.String
			}
			return "(memory)"
		}
	}
	if err := rows.Err(); err != nil {
		return "(unknown)"
	}
	return "(unknown)"
}

func sqliteUserVersion(ctx context.Context, db *sql.DB) (int, error) {
	var userVersion int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&userVersion); err != nil {
		return 0, err
	}
	return userVersion, nil
}
