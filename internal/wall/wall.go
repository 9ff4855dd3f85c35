// Package wall owns the live state of the stream wall: the three embed
// source registries, the video/chat selection sets, bookmarks, the banned
// list and the per-platform pollers. All mutations funnel through here so
// selections are reconciled and state is persisted after every change.
package wall

import (
	"context"
	"log"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/you/streamwall/internal/core"
	"github.com/you/streamwall/internal/dock"
	"github.com/you/streamwall/internal/embedkey"
	"github.com/you/streamwall/internal/feedtrace"
	"github.com/you/streamwall/internal/linkparse"
	"github.com/you/streamwall/internal/liveness"
	"github.com/you/streamwall/internal/poller"
	"github.com/you/streamwall/internal/registry"
	"github.com/you/streamwall/internal/selection"
	"github.com/you/streamwall/internal/store"
	"github.com/you/streamwall/internal/ytresolve"
)

// ErrChannelOffline reports that a pasted YouTube channel link resolved
// cleanly but the channel is not live; the channel was registered as a
// bookmark so the poller picks it up when it goes live.
var ErrChannelOffline = errors.New("wall: channel not live, bookmarked for polling")

// Config wires the wall's collaborators. Store may be nil for ephemeral
// walls (tests, dry runs); Resolver and Checker may be nil when the
// corresponding platform features are unused.
type Config struct {
	Store    *store.Store
	Resolver *ytresolve.Resolver
	Checker  *liveness.Checker
	// OnChange runs after every state change, outside the wall lock.
	OnChange func()
	// OnChatTargets receives the per-platform sorted chat id lists
	// whenever the chat selection changes, outside the wall lock. This is
	// the boundary to the combined-chat renderer.
	OnChatTargets func(targets map[string][]string)
	// SaveDelay is the persistence debounce window.
	SaveDelay time.Duration
	// OnPollError is forwarded to the pollers, for metrics.
	OnPollError func(platform string)
}

// EmbedView is one merged embed plus its display metadata.
type EmbedView struct {
	Key string `json:"key"`
	core.LiveEmbed
	Provenance string `json:"provenance"`
	Disabled   bool   `json:"disabled,omitempty"`
}

// Snapshot is an immutable copy of the whole wall state.
type Snapshot struct {
	Embeds            []EmbedView         `json:"embeds"`
	Dock              []dock.Item         `json:"dock"`
	Video             []string            `json:"video"`
	Chat              []string            `json:"chat"`
	ChatTargets       map[string][]string `json:"chat_targets"`
	Banned            []core.BannedEmbed  `json:"banned"`
	Bookmarks         []core.Bookmark     `json:"bookmarks"`
	PlatformOrder     []string            `json:"platform_order"`
	YouTubeMultiplier float64             `json:"youtube_multiplier"`
}

// Wall is the orchestrator.
type Wall struct {
	cfg      Config
	resolver *ytresolve.Resolver
	checker  *liveness.Checker
	saver    *store.Saver

	mu        sync.Mutex
	sources   *registry.Sources
	video     selection.Set
	chat      selection.Set
	chatDirty bool
	bookmarks []core.Bookmark
	banned    []core.BannedEmbed
	bannedSet map[string]struct{}
	ytOwners  map[string][]string
	prefs     store.Prefs
	feedSeq   uint64

	pollers map[string]*poller.Poller
}

// New creates an empty wall. Call Load to restore persisted state and
// StartPollers before serving.
func New(cfg Config) *Wall {
	w := &Wall{
		cfg:       cfg,
		resolver:  cfg.Resolver,
		checker:   cfg.Checker,
		sources:   registry.NewSources(),
		video:     selection.NewSet(),
		chat:      selection.NewSet(),
		bannedSet: make(map[string]struct{}),
		pollers:   make(map[string]*poller.Poller),
	}
	if cfg.Store != nil {
		w.saver = store.NewSaver(w.flushState, cfg.SaveDelay)
	}
	return w
}

// Load restores manual embeds, selections, bookmarks and prefs from the
// store. Selections are sanitized on the way in; pruning against live
// content happens on the first reconcile.
func (w *Wall) Load(ctx context.Context) error {
	if w.cfg.Store == nil {
		return nil
	}
	manual, err := w.cfg.Store.LoadManual(ctx)
	if err != nil {
		return err
	}
	videoKeys, err := w.cfg.Store.LoadVideoKeys(ctx)
	if err != nil {
		return err
	}
	chatKeys, err := w.cfg.Store.LoadChatKeys(ctx)
	if err != nil {
		return err
	}
	bookmarks, err := w.cfg.Store.LoadBookmarks(ctx)
	if err != nil {
		return err
	}
	prefs, err := w.cfg.Store.LoadPrefs(ctx)
	if err != nil {
		return err
	}

	entries, dropped := registry.Ingest(manual)
	if dropped > 0 {
		log.Printf("wall: dropped %d malformed manual embed(s) on load", dropped)
	}

	w.mu.Lock()
	w.sources.ReplaceManual(entries)
	w.video = selection.Sanitize(videoKeys)
	w.chat = selection.Sanitize(chatKeys)
	w.bookmarks = normalizeBookmarks(bookmarks)
	w.prefs = prefs
	w.mu.Unlock()

	log.Printf("wall: loaded %d manual embed(s), %d video / %d chat selection(s), %d bookmark(s)",
		len(entries), len(videoKeys), len(chatKeys), len(bookmarks))
	return nil
}

// StartPollers creates the per-platform pollers and hands them the current
// bookmark list. Safe to call once.
func (w *Wall) StartPollers(ctx context.Context) {
	w.mu.Lock()
	multiplier := w.prefs.YouTubeMultiplier
	bookmarks := append([]core.Bookmark(nil), w.bookmarks...)
	w.mu.Unlock()

	if w.checker != nil {
		w.pollers[core.PlatformKick] = poller.New(poller.Options{
			Platform: core.PlatformKick,
			Interval: poller.DefaultInterval,
			Check:    w.checkKick,
			Commit:   w.commitPlatform(core.PlatformKick),
			OnError:  w.cfg.OnPollError,
		})
		w.pollers[core.PlatformTwitch] = poller.New(poller.Options{
			Platform: core.PlatformTwitch,
			Interval: poller.DefaultInterval,
			Check:    w.checkTwitch,
			Commit:   w.commitPlatform(core.PlatformTwitch),
			OnError:  w.cfg.OnPollError,
		})
	}
	if w.resolver != nil {
		w.pollers[core.PlatformYouTube] = poller.New(poller.Options{
			Platform: core.PlatformYouTube,
			Interval: poller.YouTubeInterval(multiplier),
			Check:    w.checkYouTube,
			Commit:   w.commitYouTube,
			OnError:  w.cfg.OnPollError,
		})
	}
	for _, p := range w.pollers {
		p.SetBookmarks(ctx, bookmarks)
	}
}

// Close stops the pollers and flushes pending state.
func (w *Wall) Close() error {
	for _, p := range w.pollers {
		p.Stop()
	}
	if w.saver != nil {
		return w.saver.Close()
	}
	return nil
}

func (w *Wall) checkKick(ctx context.Context, b core.Bookmark) (string, core.LiveEmbed, bool, error) {
	status, err := w.checker.CheckKick(ctx, b.KickSlug)
	if err != nil {
		return "", core.LiveEmbed{}, false, err
	}
	if !status.Live {
		return "", core.LiveEmbed{}, false, nil
	}
	key := embedkey.Make(core.PlatformKick, b.KickSlug)
	embed := core.LiveEmbed{
		Platform: core.PlatformKick,
		ID:       strings.ToLower(b.KickSlug),
		Media: &core.MediaInfo{
			DisplayName: firstNonEmpty(status.DisplayName, b.Nickname),
			Live:        true,
			Viewers:     status.Viewers,
		},
	}
	return key, embed, true, nil
}

func (w *Wall) checkTwitch(ctx context.Context, b core.Bookmark) (string, core.LiveEmbed, bool, error) {
	status, err := w.checker.CheckTwitch(ctx, b.TwitchLogin)
	if err != nil {
		return "", core.LiveEmbed{}, false, err
	}
	if !status.Live {
		return "", core.LiveEmbed{}, false, nil
	}
	key := embedkey.Make(core.PlatformTwitch, b.TwitchLogin)
	embed := core.LiveEmbed{
		Platform: core.PlatformTwitch,
		ID:       strings.ToLower(b.TwitchLogin),
		Media: &core.MediaInfo{
			DisplayName: firstNonEmpty(status.DisplayName, b.Nickname),
			Live:        true,
		},
	}
	return key, embed, true, nil
}

func (w *Wall) checkYouTube(ctx context.Context, b core.Bookmark) (string, core.LiveEmbed, bool, error) {
	res, err := w.resolver.Resolve(ctx, b.YouTubeChannelID)
	if errors.Is(err, ytresolve.ErrNotLive) {
		return "", core.LiveEmbed{}, false, nil
	}
	if err != nil {
		return "", core.LiveEmbed{}, false, err
	}
	key := embedkey.Make(core.PlatformYouTube, res.VideoID)
	embed := core.LiveEmbed{
		Platform: core.PlatformYouTube,
		ID:       res.VideoID,
		Media: &core.MediaInfo{
			DisplayName: b.Nickname,
			Live:        true,
		},
	}
	return key, embed, true, nil
}

func (w *Wall) commitPlatform(platform string) poller.CommitFunc {
	return func(entries map[string]core.LiveEmbed, _ map[string][]string) {
		w.mu.Lock()
		w.sources.ReplacePlatformBookmarks(platform, entries)
		w.reconcileLocked()
		w.mu.Unlock()
		w.notify()
	}
}

// commitYouTube additionally maintains the video-to-streamer grouping map,
// skipping the update when the new map is structurally identical.
func (w *Wall) commitYouTube(entries map[string]core.LiveEmbed, owners map[string][]string) {
	w.mu.Lock()
	w.sources.ReplacePlatformBookmarks(core.PlatformYouTube, entries)
	if !poller.EqualOwners(w.ytOwners, owners) {
		w.ytOwners = owners
	}
	w.reconcileLocked()
	w.mu.Unlock()
	w.notify()
}

// ApplyFeedUpdate atomically replaces the live-feed registry with the
// contents of one embeds frame and reconciles selections.
func (w *Wall) ApplyFeedUpdate(embeds []core.LiveEmbed) {
	entries, dropped := registry.Ingest(embeds)

	w.mu.Lock()
	w.feedSeq++
	trace := feedtrace.NewRefreshTrace("livefeed", len(embeds), w.feedSeq)
	trace.AddCounter(feedtrace.StageIngestedOK, int64(len(entries)))
	if dropped > 0 {
		trace.AddCounter(feedtrace.StageDropped("partial"), int64(dropped))
	}
	w.sources.ReplaceLive(entries)
	w.reconcileLocked()
	trace.AddCounter(feedtrace.StageMergedToWall, int64(len(entries)))
	w.mu.Unlock()

	if dropped > 0 {
		trace.LogTrace(slog.Default(), "feed refresh dropped entries")
	}
	w.notify()
}

// ApplyBanned replaces the banned list. Nil clears it. Banned embeds stay
// on the wall but are marked disabled. Entries are keyed canonically, so
// a YouTube ban names the exact video id.
func (w *Wall) ApplyBanned(banned []core.BannedEmbed) {
	set := make(map[string]struct{}, len(banned))
	for _, b := range banned {
		set[embedkey.Make(b.Platform, b.Name)] = struct{}{}
	}

	w.mu.Lock()
	w.banned = append([]core.BannedEmbed(nil), banned...)
	w.bannedSet = set
	w.mu.Unlock()
	w.notify()
}

// AddManualFromURL parses a pasted link and pins the result as a manual
// embed. YouTube channel links are resolved to the active live video; an
// offline channel is registered as a bookmark instead and ErrChannelOffline
// is returned.
func (w *Wall) AddManualFromURL(ctx context.Context, raw string) (string, error) {
	link, err := linkparse.Parse(raw)
	if err != nil {
		return "", err
	}

	if link.Platform == core.PlatformYouTube && link.Channel != "" {
		if w.resolver == nil {
			return "", errors.New("wall: youtube channel links need a resolver")
		}
		res, err := w.resolver.Resolve(ctx, link.Channel)
		if errors.Is(err, ytresolve.ErrNotLive) {
			w.addChannelBookmark(ctx, link.Channel)
			return "", ErrChannelOffline
		}
		if err != nil {
			return "", err
		}
		link.ID = res.VideoID
	}

	embed := core.LiveEmbed{Platform: link.Platform, ID: link.ID}
	if platform, id, ok := embedkey.Parse(embedkey.Make(link.Platform, link.ID)); ok {
		embed.Platform, embed.ID = platform, id
	}

	// The registry insert is a no-op for an already-pinned key, but the
	// video selection is (re)applied on every successful parse so pasting
	// a link always puts it on the wall.
	w.mu.Lock()
	key, added := w.sources.AddManual(embed)
	w.video.Add(key)
	w.reconcileLocked()
	w.persistLocked()
	w.mu.Unlock()

	if added {
		log.Printf("wall: pinned %s", key)
	}
	w.notify()
	return key, nil
}

// RemoveManual unpins a manual embed and drops it from both selections.
func (w *Wall) RemoveManual(key string) bool {
	w.mu.Lock()
	removed := w.sources.RemoveManual(key)
	if removed {
		w.video.Remove(key)
		if w.chat.Has(key) {
			w.chat.Remove(key)
			w.chatDirty = true
		}
		w.reconcileLocked()
		w.persistLocked()
	}
	w.mu.Unlock()
	if removed {
		w.notify()
	}
	return removed
}

// ToggleVideo flips a key's video selection. Turning video off also turns
// chat off for the key. Returns the new state.
func (w *Wall) ToggleVideo(key string) bool {
	w.mu.Lock()
	on := w.video.Toggle(key)
	if !on && w.chat.Has(key) {
		w.chat.Remove(key)
		w.chatDirty = true
	}
	w.persistLocked()
	w.mu.Unlock()
	w.notify()
	return on
}

// ToggleChat flips a key's chat selection and returns the new state.
func (w *Wall) ToggleChat(key string) bool {
	w.mu.Lock()
	on := w.chat.Toggle(key)
	w.chatDirty = true
	w.persistLocked()
	w.mu.Unlock()
	w.notify()
	return on
}

// ToggleDockItem turns a dock item off when any of its keys is selected,
// otherwise turns the preferred key's video on. Returns the key turned on,
// or "" when the item was turned off.
func (w *Wall) ToggleDockItem(keys []string) string {
	w.mu.Lock()
	anyOn := false
	for _, key := range keys {
		if w.video.Has(key) || w.chat.Has(key) {
			anyOn = true
			break
		}
	}
	turnedOn := ""
	if anyOn {
		for _, key := range keys {
			w.video.Remove(key)
			if w.chat.Has(key) {
				w.chat.Remove(key)
				w.chatDirty = true
			}
		}
	} else {
		turnedOn = dock.ChooseKey(keys, w.prefs.PlatformOrder)
		if turnedOn != "" {
			w.video.Add(turnedOn)
		}
	}
	w.persistLocked()
	w.mu.Unlock()
	w.notify()
	return turnedOn
}

// SetBookmarks replaces the bookmark list, assigning ids where missing,
// and restarts the pollers on the new set.
func (w *Wall) SetBookmarks(ctx context.Context, bookmarks []core.Bookmark) {
	normalized := normalizeBookmarks(bookmarks)

	w.mu.Lock()
	w.bookmarks = normalized
	w.persistLocked()
	w.mu.Unlock()

	for _, p := range w.pollers {
		p.SetBookmarks(ctx, normalized)
	}
	w.notify()
}

func (w *Wall) addChannelBookmark(ctx context.Context, channel string) {
	w.mu.Lock()
	for _, b := range w.bookmarks {
		if strings.EqualFold(b.YouTubeChannelID, channel) {
			w.mu.Unlock()
			return
		}
	}
	bookmarks := append(append([]core.Bookmark(nil), w.bookmarks...), core.Bookmark{
		ID:               uuid.NewString(),
		Nickname:         channel,
		YouTubeChannelID: channel,
	})
	w.mu.Unlock()

	log.Printf("wall: channel %s offline, registered as bookmark", channel)
	w.SetBookmarks(ctx, bookmarks)
}

// PollNow triggers one extra poll cycle, for one platform or for all when
// platform is empty.
func (w *Wall) PollNow(platform string) {
	for name, p := range w.pollers {
		if platform == "" || platform == name {
			p.PollNow()
		}
	}
}

// SetYouTubeMultiplier adjusts the YouTube poll cadence.
func (w *Wall) SetYouTubeMultiplier(ctx context.Context, multiplier float64) {
	w.mu.Lock()
	w.prefs.YouTubeMultiplier = multiplier
	w.persistLocked()
	w.mu.Unlock()

	if p, ok := w.pollers[core.PlatformYouTube]; ok {
		p.SetInterval(ctx, poller.YouTubeInterval(multiplier))
	}
	w.notify()
}

// SetPlatformOrder sets the preferred-platform order for dock toggles.
func (w *Wall) SetPlatformOrder(order []string) {
	w.mu.Lock()
	w.prefs.PlatformOrder = append([]string(nil), order...)
	w.persistLocked()
	w.mu.Unlock()
	w.notify()
}

// Bookmarks returns a copy of the bookmark list.
func (w *Wall) Bookmarks() []core.Bookmark {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]core.Bookmark(nil), w.bookmarks...)
}

// Snapshot assembles the full wall state for clients.
func (w *Wall) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	combined := w.sources.Combined()
	items := dock.Build(combined, w.bookmarks, w.ytOwners)

	pinned := make(map[string]struct{})
	for _, item := range items {
		if len(item.Streamers) == 0 {
			continue
		}
		for _, key := range item.Keys {
			pinned[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(combined))
	for key := range combined {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	embeds := make([]EmbedView, 0, len(keys))
	for _, key := range keys {
		_, isPinned := pinned[key]
		_, disabled := w.bannedSet[key]
		embeds = append(embeds, EmbedView{
			Key:        key,
			LiveEmbed:  core.CloneEmbed(combined[key]),
			Provenance: w.sources.ProvenanceOf(key, isPinned).Label(),
			Disabled:   disabled,
		})
	}

	order := w.prefs.PlatformOrder
	if len(order) == 0 {
		order = dock.DefaultPlatformOrder
	}

	return Snapshot{
		Embeds:            embeds,
		Dock:              items,
		Video:             w.video.Sorted(),
		Chat:              w.chat.Sorted(),
		ChatTargets:       selection.ChatTargets(w.chat),
		Banned:            append([]core.BannedEmbed(nil), w.banned...),
		Bookmarks:         append([]core.Bookmark(nil), w.bookmarks...),
		PlatformOrder:     append([]string(nil), order...),
		YouTubeMultiplier: w.prefs.YouTubeMultiplier,
	}
}

// reconcileLocked migrates legacy selection keys onto the canonical keys
// now available and prunes selections whose content went away. Manual keys
// always resolve, so pins are never pruned.
func (w *Wall) reconcileLocked() {
	available := selection.NewSet()
	for key := range w.sources.Combined() {
		available.Add(key)
	}

	video, videoChanged := selection.MigrateAndPrune(w.video, available)
	chat, chatChanged := selection.MigrateAndPrune(w.chat, available)
	if videoChanged {
		w.video = video
	}
	if chatChanged {
		w.chat = chat
		w.chatDirty = true
	}
	if videoChanged || chatChanged {
		w.persistLocked()
	}
}

func (w *Wall) persistLocked() {
	if w.saver == nil {
		return
	}
	if err := w.saver.Request(); err != nil {
		log.Printf("wall: persist: %v", err)
	}
}

// flushState is the saver's flush target.
func (w *Wall) flushState() error {
	w.mu.Lock()
	manualMap := w.sources.Manual()
	manualKeys := make([]string, 0, len(manualMap))
	for key := range manualMap {
		manualKeys = append(manualKeys, key)
	}
	sort.Strings(manualKeys)
	manual := make([]core.LiveEmbed, 0, len(manualKeys))
	for _, key := range manualKeys {
		manual = append(manual, manualMap[key])
	}
	video := w.video.Sorted()
	chat := w.chat.Sorted()
	bookmarks := append([]core.Bookmark(nil), w.bookmarks...)
	prefs := w.prefs
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.cfg.Store.SaveManual(ctx, manual); err != nil {
		return err
	}
	if err := w.cfg.Store.SaveVideoKeys(ctx, video); err != nil {
		return err
	}
	if err := w.cfg.Store.SaveChatKeys(ctx, chat); err != nil {
		return err
	}
	if err := w.cfg.Store.SaveBookmarks(ctx, bookmarks); err != nil {
		return err
	}
	return w.cfg.Store.SavePrefs(ctx, prefs)
}

// notify publishes pending chat-target changes and then the general
// change signal, both outside the wall lock.
func (w *Wall) notify() {
	w.mu.Lock()
	var targets map[string][]string
	chatChanged := w.chatDirty
	w.chatDirty = false
	if chatChanged && w.cfg.OnChatTargets != nil {
		targets = selection.ChatTargets(w.chat)
	}
	w.mu.Unlock()

	if targets != nil {
		w.cfg.OnChatTargets(targets)
	}
	if w.cfg.OnChange != nil {
		w.cfg.OnChange()
	}
}

func normalizeBookmarks(bookmarks []core.Bookmark) []core.Bookmark {
	out := make([]core.Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		out = append(out, b)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
