// Package poller runs the per-platform bookmark liveness pollers. Each
// platform gets one state machine: Idle while no bookmark carries an
// identifier for the platform, Polling while at least one does. A cycle
// checks every configured bookmark sequentially and commits its results as
// one atomic replacement of that platform's registry slice; a torn-down
// cycle never commits.
package poller

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/you/streamwall/internal/core"
)

const (
	// DefaultInterval is the fixed Kick/Twitch poll interval and the
	// base for the YouTube multiplier.
	DefaultInterval = 60 * time.Second
	// MinYouTubeInterval floors the configurable YouTube interval.
	MinYouTubeInterval = 15 * time.Second
)

// YouTubeInterval converts the user multiplier into a poll interval:
// max(15s, round(60s * multiplier)), multiplier clamped to [0.25, 5].
func YouTubeInterval(multiplier float64) time.Duration {
	if multiplier == 0 || math.IsNaN(multiplier) {
		multiplier = 1
	}
	if multiplier < 0.25 {
		multiplier = 0.25
	}
	if multiplier > 5 {
		multiplier = 5
	}
	interval := time.Duration(math.Round(multiplier*DefaultInterval.Seconds())) * time.Second
	if interval < MinYouTubeInterval {
		interval = MinYouTubeInterval
	}
	return interval
}

// CheckFunc checks liveness for one bookmark on the poller's platform.
// It returns the embed key and value when live. Errors are treated as
// not-live for that cycle only and never abort the rest of the cycle.
type CheckFunc func(ctx context.Context, b core.Bookmark) (key string, embed core.LiveEmbed, live bool, err error)

// CommitFunc receives a completed cycle: the fresh entries for this
// platform's registry slice and, per key, the ids of the bookmarks that
// resolved to it (in bookmark order). Commits happen at most once per
// cycle and never after the poller was torn down. The Polling to Idle
// transition commits one empty map pair as a retraction.
type CommitFunc func(entries map[string]core.LiveEmbed, owners map[string][]string)

// Poller is one platform's poll state machine.
type Poller struct {
	platform string
	check    CheckFunc
	commit   CommitFunc
	limiter  *rate.Limiter

	mu        sync.Mutex
	interval  time.Duration
	bookmarks []core.Bookmark
	cancel    context.CancelFunc
	done      chan struct{}
	pollNow   chan struct{}
	onError   func(platform string)
}

// Options configures a Poller.
type Options struct {
	Platform string
	Interval time.Duration
	Check    CheckFunc
	Commit   CommitFunc
	// LookupRate paces liveness lookups inside a cycle; zero disables
	// pacing.
	LookupRate rate.Limit
	// OnError is invoked once per failed lookup, for metrics.
	OnError func(platform string)
}

// New creates an idle poller. It starts polling when SetBookmarks hands it
// at least one bookmark configured for its platform.
func New(opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		platform: opts.Platform,
		check:    opts.Check,
		commit:   opts.Commit,
		interval: interval,
		pollNow:  make(chan struct{}, 1),
		onError:  opts.OnError,
	}
	if opts.LookupRate > 0 {
		p.limiter = rate.NewLimiter(opts.LookupRate, 1)
	}
	return p
}

// SetBookmarks updates the poller's dependency set. Bookmarks without an
// identifier for this platform are ignored. A change tears down any
// running cycle (discarding its uncommitted results) and, when the
// filtered list is non-empty, starts a fresh polling loop with an
// immediate first cycle. Dropping the last bookmark commits one empty
// result so previously injected entries and owners are retracted.
func (p *Poller) SetBookmarks(ctx context.Context, bookmarks []core.Bookmark) {
	filtered := make([]core.Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if b.HasPlatform(p.platform) {
			filtered = append(filtered, b)
		}
	}

	p.mu.Lock()
	if bookmarksEqual(p.bookmarks, filtered) && (p.cancel != nil) == (len(filtered) > 0) {
		p.mu.Unlock()
		return
	}
	wasPolling := p.cancel != nil
	p.stopLocked()
	p.bookmarks = filtered
	if len(filtered) == 0 {
		p.mu.Unlock()
		log.Printf("poller: %s idle (no bookmarks configured)", p.platform)
		if wasPolling {
			p.commit(map[string]core.LiveEmbed{}, map[string][]string{})
		}
		return
	}
	p.startLocked(ctx)
	p.mu.Unlock()
	log.Printf("poller: %s polling %d bookmark(s) every %s", p.platform, len(filtered), p.interval)
}

// SetInterval changes the poll interval; a running loop restarts so the
// new cadence takes effect.
func (p *Poller) SetInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if interval == p.interval {
		return
	}
	p.interval = interval
	if p.cancel != nil {
		p.stopLocked()
		p.startLocked(ctx)
	}
}

// PollNow schedules exactly one extra immediate cycle without disturbing
// the interval schedule. A no-op while idle or when a trigger is already
// pending.
func (p *Poller) PollNow() {
	p.mu.Lock()
	running := p.cancel != nil
	p.mu.Unlock()
	if !running {
		return
	}
	select {
	case p.pollNow <- struct{}{}:
	default:
	}
}

// Stop tears the poller down; any in-flight cycle is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.bookmarks = nil
}

func (p *Poller) startLocked(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	bookmarks := append([]core.Bookmark(nil), p.bookmarks...)
	interval := p.interval
	p.cancel = cancel
	p.done = done
	go func() {
		defer close(done)
		p.run(runCtx, bookmarks, interval)
	}()
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

func (p *Poller) run(ctx context.Context, bookmarks []core.Bookmark, interval time.Duration) {
	p.cycle(ctx, bookmarks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx, bookmarks)
		case <-p.pollNow:
			p.cycle(ctx, bookmarks)
		}
	}
}

// cycle checks every bookmark sequentially, in bookmark-list order, and
// commits the result map atomically at the end. Cancellation mid-cycle
// stops further checks and suppresses the commit.
func (p *Poller) cycle(ctx context.Context, bookmarks []core.Bookmark) {
	entries := make(map[string]core.LiveEmbed)
	owners := make(map[string][]string)

	for _, b := range bookmarks {
		if ctx.Err() != nil {
			return
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}
		key, embed, live, err := p.check(ctx, b)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("poller: %s check %q: %v", p.platform, b.Nickname, err)
			if p.onError != nil {
				p.onError(p.platform)
			}
			continue
		}
		if !live || key == "" {
			continue
		}
		if _, exists := entries[key]; !exists {
			entries[key] = embed
		}
		owners[key] = append(owners[key], b.ID)
	}

	if ctx.Err() != nil {
		return
	}
	p.commit(entries, owners)
}

func bookmarksEqual(a, b []core.Bookmark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EqualOwners reports whether two streamer-id maps are structurally
// identical: same size, same keys, same id lists. Used to skip no-op
// grouping-map updates.
func EqualOwners(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for key, ids := range a {
		other, ok := b[key]
		if !ok || len(other) != len(ids) {
			return false
		}
		for i := range ids {
			if ids[i] != other[i] {
				return false
			}
		}
	}
	return true
}
