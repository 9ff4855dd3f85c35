// Package config loads daemon configuration from STREAMWALL_* environment
// variables. Flags in cmd/streamwall override what is loaded here.
package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTP  HTTPConfig
	Store StoreConfig
	Feed  FeedConfig
	Poll  PollConfig
	// BookmarksFile is an optional JSON file watched for bookmark edits.
	BookmarksFile string
}

type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
	RateRPS     int
	RateBurst   int
}

type StoreConfig struct {
	SQLitePath  string
	SaveDelayMS int
}

type FeedConfig struct {
	Enabled        bool
	URL            string
	MaxBackoffSecs int
}

type PollConfig struct {
	Enabled           bool
	YouTubeMultiplier float64
}

const (
	defaultAddr        = ":8843"
	defaultSQLitePath  = "streamwall.db"
	defaultSaveDelayMS = 500
	defaultMaxBackoff  = 60
)

func Load() Config {
	cfg := Config{}

	cfg.HTTP.Addr = strings.TrimSpace(os.Getenv("STREAMWALL_HTTP_ADDR"))
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = defaultAddr
	}
	cfg.HTTP.CORSOrigins = splitList(os.Getenv("STREAMWALL_CORS_ORIGINS"))
	cfg.HTTP.RateRPS = readInt("STREAMWALL_HTTP_RATE_RPS", 0)
	cfg.HTTP.RateBurst = readInt("STREAMWALL_HTTP_RATE_BURST", 0)

	cfg.Store.SQLitePath = strings.TrimSpace(os.Getenv("STREAMWALL_DB_PATH"))
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = defaultSQLitePath
	}
	cfg.Store.SaveDelayMS = readInt("STREAMWALL_SAVE_DELAY_MS", defaultSaveDelayMS)

	cfg.Feed.URL = strings.TrimSpace(os.Getenv("STREAMWALL_FEED_URL"))
	cfg.Feed.Enabled = cfg.Feed.URL != ""
	cfg.Feed.MaxBackoffSecs = readInt("STREAMWALL_FEED_MAX_BACKOFF_SECS", defaultMaxBackoff)

	cfg.Poll.Enabled = readBool("STREAMWALL_POLL_ENABLED", true)
	cfg.Poll.YouTubeMultiplier = readFloat("STREAMWALL_YT_MULTIPLIER", 1)

	cfg.BookmarksFile = strings.TrimSpace(os.Getenv("STREAMWALL_BOOKMARKS_FILE"))

	return cfg
}

// SaveDelay converts the persistence debounce setting to a duration.
func (c Config) SaveDelay() time.Duration {
	return time.Duration(c.Store.SaveDelayMS) * time.Millisecond
}

// FeedMaxBackoff converts the reconnect cap to a duration.
func (c Config) FeedMaxBackoff() time.Duration {
	return time.Duration(c.Feed.MaxBackoffSecs) * time.Second
}

type Summary struct {
	Addr          string   `json:"addr"`
	CORSOrigins   []string `json:"cors_origins,omitempty"`
	RateRPS       int      `json:"rate_rps,omitempty"`
	SQLitePath    string   `json:"sqlite_path"`
	SaveDelayMS   int      `json:"save_delay_ms"`
	FeedEnabled   bool     `json:"feed_enabled"`
	FeedURL       string   `json:"feed_url,omitempty"`
	PollEnabled   bool     `json:"poll_enabled"`
	YTMultiplier  float64  `json:"yt_multiplier"`
	BookmarksFile string   `json:"bookmarks_file,omitempty"`
}

func (c Config) Summary() Summary {
	return Summary{
		Addr:          c.HTTP.Addr,
		CORSOrigins:   append([]string(nil), c.HTTP.CORSOrigins...),
		RateRPS:       c.HTTP.RateRPS,
		SQLitePath:    c.Store.SQLitePath,
		SaveDelayMS:   c.Store.SaveDelayMS,
		FeedEnabled:   c.Feed.Enabled,
		FeedURL:       c.Feed.URL,
		PollEnabled:   c.Poll.Enabled,
		YTMultiplier:  c.Poll.YouTubeMultiplier,
		BookmarksFile: c.BookmarksFile,
	}
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return dedupe(out)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(v))
	}
	sort.Strings(out)
	return out
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func readFloat(name string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
