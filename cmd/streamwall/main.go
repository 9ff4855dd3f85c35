package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/you/streamwall/internal/config"
	"github.com/you/streamwall/internal/core"
	"github.com/you/streamwall/internal/httpapi"
	"github.com/you/streamwall/internal/livefeed"
	"github.com/you/streamwall/internal/liveness"
	"github.com/you/streamwall/internal/store"
	"github.com/you/streamwall/internal/version"
	"github.com/you/streamwall/internal/wall"
	"github.com/you/streamwall/internal/ytresolve"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag     bool
		dbPath          string
		feedURL         string
		bookmarksFile   string
		ytMultiplier    float64
		pollEnabled     bool
		httpAddr        string
		httpCorsOrigins string
		httpRateRPS     int
		httpRateBurst   int
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&dbPath, "sqlite", "", "Path to SQLite state file")
	flag.StringVar(&feedURL, "feed-url", "", "Websocket URL of the community live feed")
	flag.StringVar(&bookmarksFile, "bookmarks-file", "", "JSON bookmark file to watch for edits")
	flag.Float64Var(&ytMultiplier, "yt-multiplier", 0, "YouTube poll interval multiplier")
	flag.BoolVar(&pollEnabled, "poll", true, "Enable bookmark liveness polling")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP API address (e.g., :8843)")
	flag.StringVar(&httpCorsOrigins, "http-cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.IntVar(&httpRateRPS, "http-rate-rps", 0, "Maximum HTTP requests per second per client")
	flag.IntVar(&httpRateBurst, "http-rate-burst", 0, "Burst size for HTTP rate limiter")
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"streamwall version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()
	if overrides["sqlite"] {
		cfg.Store.SQLitePath = dbPath
	}
	if overrides["feed-url"] {
		cfg.Feed.URL = feedURL
		cfg.Feed.Enabled = feedURL != ""
	}
	if overrides["bookmarks-file"] {
		cfg.BookmarksFile = bookmarksFile
	}
	if overrides["yt-multiplier"] && ytMultiplier > 0 {
		cfg.Poll.YouTubeMultiplier = ytMultiplier
	}
	if overrides["poll"] {
		cfg.Poll.Enabled = pollEnabled
	}
	if overrides["http-addr"] {
		cfg.HTTP.Addr = httpAddr
	}
	if overrides["http-cors-origins"] {
		cfg.HTTP.CORSOrigins = nil
		for _, origin := range strings.Split(httpCorsOrigins, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				cfg.HTTP.CORSOrigins = append(cfg.HTTP.CORSOrigins, o)
			}
		}
	}
	if overrides["http-rate-rps"] {
		cfg.HTTP.RateRPS = httpRateRPS
	}
	if overrides["http-rate-burst"] {
		cfg.HTTP.RateBurst = httpRateBurst
	}

	slog.Info("streamwall starting", "version", version.Version, "config", cfg.Summary())

	st, err := store.Open(cfg.Store.SQLitePath)
	if err != nil {
		log.Fatalf("streamwall: open store: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrateKV(ctx, st.DB()); err != nil {
		log.Fatalf("streamwall: migrate: %v", err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resolver := ytresolve.NewResolver(httpClient)
	checker := liveness.NewChecker(httpClient)

	var broadcast func()
	var pollError func(platform string)
	w := wall.New(wall.Config{
		Store:     st,
		Resolver:  resolver,
		Checker:   checker,
		SaveDelay: cfg.SaveDelay(),
		OnChange: func() {
			if broadcast != nil {
				broadcast()
			}
		},
		OnPollError: func(platform string) {
			if pollError != nil {
				pollError(platform)
			}
		},
		OnChatTargets: func(targets map[string][]string) {
			slog.Info("chat targets changed", "targets", targets)
		},
	})
	if err := w.Load(ctx); err != nil {
		log.Fatalf("streamwall: load state: %v", err)
	}

	server := httpapi.New(w, httpapi.Options{
		Addr:        cfg.HTTP.Addr,
		Build:       buildInfo(),
		CORSOrigins: cfg.HTTP.CORSOrigins,
		RateRPS:     cfg.HTTP.RateRPS,
		RateBurst:   cfg.HTTP.RateBurst,
	})
	broadcast = server.BroadcastState
	pollError = server.Metrics().IncPollErrors

	if cfg.Poll.Enabled {
		w.StartPollers(ctx)
		if m := cfg.Poll.YouTubeMultiplier; m > 0 && m != 1 {
			w.SetYouTubeMultiplier(ctx, m)
		}
	} else {
		log.Printf("streamwall: bookmark polling disabled")
	}

	if cfg.Feed.Enabled {
		metrics := server.Metrics()
		feed := livefeed.New(livefeed.Config{
			URL:        cfg.Feed.URL,
			MaxBackoff: cfg.FeedMaxBackoff(),
		}, livefeed.Handlers{
			OnEmbeds: func(embeds []core.LiveEmbed) {
				w.ApplyFeedUpdate(embeds)
				metrics.IncFeedRefreshes()
			},
			OnBanned: w.ApplyBanned,
		})
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("streamwall: feed stopped: %v", err)
			}
		}()
	}

	if cfg.BookmarksFile != "" {
		if err := w.WatchBookmarksFile(ctx, cfg.BookmarksFile); err != nil {
			log.Printf("streamwall: bookmarks watch: %v", err)
		}
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Printf("streamwall: shutting down")
	case err := <-serverErr:
		if err != nil {
			log.Printf("streamwall: http server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("streamwall: http shutdown: %v", err)
	}
	if err := w.Close(); err != nil {
		log.Printf("streamwall: flush state: %v", err)
	}
}

func buildInfo() httpapi.BuildInfo {
	build := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
	if version.BuildTime != "" && version.BuildTime != "unknown" {
		if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
			build.BuiltAt = t
		}
	}
	return build
}
