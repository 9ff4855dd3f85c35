package wall

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/you/streamwall/internal/core"
	"github.com/you/streamwall/internal/liveness"
	"github.com/you/streamwall/internal/store"
	"github.com/you/streamwall/internal/ytresolve"
)

func intp(v int64) *int64 { return &v }

func TestFeedUpdateMigratesLegacySelection(t *testing.T) {
	w := New(Config{})
	w.ApplyFeedUpdate([]core.LiveEmbed{{Platform: "youtube", ID: "AbC123xyz_-"}})

	// A selection saved by an old build that lowercased everything.
	w.ToggleVideo("youtube:abc123xyz_-")
	w.ApplyFeedUpdate([]core.LiveEmbed{{Platform: "youtube", ID: "AbC123xyz_-"}})

	snap := w.Snapshot()
	if len(snap.Video) != 1 || snap.Video[0] != "youtube:AbC123xyz_-" {
		t.Fatalf("video = %v, want migrated canonical key", snap.Video)
	}
}

func TestFeedUpdatePrunesGoneSelections(t *testing.T) {
	w := New(Config{})
	w.ApplyFeedUpdate([]core.LiveEmbed{
		{Platform: "twitch", ID: "somebody"},
		{Platform: "kick", ID: "other"},
	})
	w.ToggleVideo("twitch:somebody")
	w.ToggleChat("twitch:somebody")
	w.ToggleVideo("kick:other")

	w.ApplyFeedUpdate([]core.LiveEmbed{{Platform: "kick", ID: "other"}})

	snap := w.Snapshot()
	if len(snap.Video) != 1 || snap.Video[0] != "kick:other" {
		t.Fatalf("video = %v", snap.Video)
	}
	if len(snap.Chat) != 0 {
		t.Fatalf("chat = %v, want pruned", snap.Chat)
	}
}

func TestManualPinSurvivesFeedRefresh(t *testing.T) {
	w := New(Config{})
	key, err := w.AddManualFromURL(context.Background(), "https://twitch.tv/Somebody")
	if err != nil {
		t.Fatalf("AddManualFromURL() error = %v", err)
	}
	if key != "twitch:somebody" {
		t.Fatalf("key = %q", key)
	}

	// Feed refreshes never carry the pinned channel.
	w.ApplyFeedUpdate([]core.LiveEmbed{{Platform: "kick", ID: "other"}})
	w.ApplyFeedUpdate(nil)

	snap := w.Snapshot()
	if len(snap.Video) != 1 || snap.Video[0] != "twitch:somebody" {
		t.Fatalf("video = %v, pin must survive refreshes", snap.Video)
	}
	found := false
	for _, e := range snap.Embeds {
		if e.Key == "twitch:somebody" {
			found = true
			if !strings.Contains(e.Provenance, "manual") {
				t.Fatalf("provenance = %q", e.Provenance)
			}
		}
	}
	if !found {
		t.Fatalf("embeds = %+v", snap.Embeds)
	}
}

func TestAddManualFromURL_OfflineChannelBecomesBookmark(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/channel/UCoffline/live", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"offline12345","isLiveContent":false}};</script></html>`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	resolver := ytresolve.NewResolver(&http.Client{Transport: rewriteYouTube(server.URL), Timeout: 2 * time.Second})
	w := New(Config{Resolver: resolver})

	_, err := w.AddManualFromURL(context.Background(), "https://www.youtube.com/channel/UCoffline")
	if !errors.Is(err, ErrChannelOffline) {
		t.Fatalf("error = %v, want ErrChannelOffline", err)
	}

	bookmarks := w.Bookmarks()
	if len(bookmarks) != 1 || bookmarks[0].YouTubeChannelID != "UCoffline" {
		t.Fatalf("bookmarks = %+v", bookmarks)
	}
	if bookmarks[0].ID == "" {
		t.Fatal("bookmark missing generated id")
	}

	// Pasting the same channel twice must not duplicate the bookmark.
	w.AddManualFromURL(context.Background(), "https://www.youtube.com/channel/UCoffline")
	if got := len(w.Bookmarks()); got != 1 {
		t.Fatalf("bookmarks after repeat = %d", got)
	}
}

func TestAddManualFromURL_RepasteReselects(t *testing.T) {
	w := New(Config{})
	key, err := w.AddManualFromURL(context.Background(), "https://kick.com/friend")
	if err != nil {
		t.Fatalf("AddManualFromURL() error = %v", err)
	}
	if snap := w.Snapshot(); len(snap.Video) != 1 || snap.Video[0] != key {
		t.Fatalf("video = %v after first paste", snap.Video)
	}

	w.ToggleVideo(key)
	if snap := w.Snapshot(); len(snap.Video) != 0 {
		t.Fatalf("video = %v, want toggled off", snap.Video)
	}

	// Pasting the same link again keeps the pin and re-selects it.
	again, err := w.AddManualFromURL(context.Background(), "https://kick.com/friend")
	if err != nil {
		t.Fatalf("AddManualFromURL() repeat error = %v", err)
	}
	if again != key {
		t.Fatalf("key = %q, want %q", again, key)
	}
	if snap := w.Snapshot(); len(snap.Video) != 1 || snap.Video[0] != key {
		t.Fatalf("video = %v, re-paste must re-select", snap.Video)
	}
}

func TestToggleVideoOffDropsChat(t *testing.T) {
	w := New(Config{})
	w.ApplyFeedUpdate([]core.LiveEmbed{{Platform: "kick", ID: "x"}})

	if on := w.ToggleVideo("kick:x"); !on {
		t.Fatal("first toggle should turn video on")
	}
	w.ToggleChat("kick:x")
	if on := w.ToggleVideo("kick:x"); on {
		t.Fatal("second toggle should turn video off")
	}

	snap := w.Snapshot()
	if len(snap.Video) != 0 || len(snap.Chat) != 0 {
		t.Fatalf("video=%v chat=%v, want both empty", snap.Video, snap.Chat)
	}
}

func TestToggleDockItem(t *testing.T) {
	w := New(Config{})
	w.ApplyFeedUpdate([]core.LiveEmbed{
		{Platform: "youtube", ID: "AbC123xyz_-"},
		{Platform: "kick", ID: "friend"},
	})

	keys := []string{"kick:friend", "youtube:AbC123xyz_-"}
	turnedOn := w.ToggleDockItem(keys)
	if turnedOn != "youtube:AbC123xyz_-" {
		t.Fatalf("turnedOn = %q, want the preferred platform's key", turnedOn)
	}

	if again := w.ToggleDockItem(keys); again != "" {
		t.Fatalf("second toggle = %q, want off", again)
	}
	snap := w.Snapshot()
	if len(snap.Video) != 0 {
		t.Fatalf("video = %v", snap.Video)
	}
}

func TestApplyBannedDisablesWithoutRemoving(t *testing.T) {
	w := New(Config{})
	w.ApplyFeedUpdate([]core.LiveEmbed{
		{Platform: "twitch", ID: "troublemaker", Count: intp(4)},
		{Platform: "kick", ID: "fine"},
	})

	w.ApplyBanned([]core.BannedEmbed{{Platform: "twitch", Name: "TroubleMaker", Reason: "tos"}})

	snap := w.Snapshot()
	if len(snap.Embeds) != 2 {
		t.Fatalf("embeds = %+v, banned entries must stay", snap.Embeds)
	}
	for _, e := range snap.Embeds {
		switch e.Key {
		case "twitch:troublemaker":
			if !e.Disabled {
				t.Fatal("banned embed not disabled")
			}
		case "kick:fine":
			if e.Disabled {
				t.Fatal("unbanned embed disabled")
			}
		}
	}

	w.ApplyBanned(nil)
	for _, e := range w.Snapshot().Embeds {
		if e.Disabled {
			t.Fatal("clearing the banned list left embeds disabled")
		}
	}
}

func TestApplyBannedMatchesCanonicalKeys(t *testing.T) {
	w := New(Config{})
	w.ApplyFeedUpdate([]core.LiveEmbed{{Platform: "youtube", ID: "AbC123xyz_-"}})

	// A ban naming a different-cased id is a different video.
	w.ApplyBanned([]core.BannedEmbed{{Platform: "youtube", Name: "abc123xyz_-"}})
	for _, e := range w.Snapshot().Embeds {
		if e.Key == "youtube:AbC123xyz_-" && e.Disabled {
			t.Fatal("ban on a different-cased youtube id disabled the embed")
		}
	}

	w.ApplyBanned([]core.BannedEmbed{{Platform: "youtube", Name: "AbC123xyz_-"}})
	disabled := false
	for _, e := range w.Snapshot().Embeds {
		if e.Key == "youtube:AbC123xyz_-" {
			disabled = e.Disabled
		}
	}
	if !disabled {
		t.Fatal("exact-id youtube ban did not disable the embed")
	}
}

func TestClearingBookmarksRetractsPolledEmbeds(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v2/channels/foo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"username":"Foo"},"livestream":{"is_live":true,"viewer_count":12}}`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	checker := liveness.NewChecker(&http.Client{Transport: rewriteHost("kick.com", server.URL), Timeout: 2 * time.Second})
	changes := make(chan struct{}, 64)
	w := New(Config{Checker: checker, OnChange: func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}})
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.SetBookmarks(ctx, []core.Bookmark{{ID: "b1", Nickname: "Foo", KickSlug: "foo"}})
	w.StartPollers(ctx)

	waitForSnapshot(t, changes, w, func(s Snapshot) bool { return hasEmbed(s, "kick:foo") })
	w.ToggleVideo("kick:foo")

	// Removing the last bookmark must retract the polled entry and prune
	// the selection on it, not leave it orphaned until restart.
	w.SetBookmarks(ctx, nil)
	waitForSnapshot(t, changes, w, func(s Snapshot) bool {
		return !hasEmbed(s, "kick:foo") && len(s.Video) == 0
	})
}

func TestChatTargetsCallback(t *testing.T) {
	var calls []map[string][]string
	w := New(Config{OnChatTargets: func(targets map[string][]string) {
		calls = append(calls, targets)
	}})
	w.ApplyFeedUpdate([]core.LiveEmbed{
		{Platform: "kick", ID: "x"},
		{Platform: "twitch", ID: "y"},
	})
	if len(calls) != 0 {
		t.Fatalf("calls = %d before any chat change", len(calls))
	}

	w.ToggleChat("kick:x")
	if len(calls) != 1 || len(calls[0]["kick"]) != 1 || calls[0]["kick"][0] != "x" {
		t.Fatalf("calls = %+v", calls)
	}

	w.ToggleVideo("twitch:y") // video-only change, no chat callback
	if len(calls) != 1 {
		t.Fatalf("calls = %d after video toggle", len(calls))
	}

	// Pruning kick:x out of the feed drops it from chat and republishes.
	w.ApplyFeedUpdate([]core.LiveEmbed{{Platform: "twitch", ID: "y"}})
	if len(calls) != 2 || len(calls[1]) != 0 {
		t.Fatalf("calls = %+v, want empty targets after prune", calls)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	w := New(Config{Store: s, SaveDelay: 10 * time.Millisecond})
	if _, err := w.AddManualFromURL(context.Background(), "https://kick.com/Friend"); err != nil {
		t.Fatalf("AddManualFromURL() error = %v", err)
	}
	w.ToggleChat("kick:friend")
	w.SetBookmarks(context.Background(), []core.Bookmark{{Nickname: "Pal", TwitchLogin: "pal"}})
	w.SetYouTubeMultiplier(context.Background(), 0.5)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	s.Close()

	s2, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	w2 := New(Config{Store: s2})
	if err := w2.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	snap := w2.Snapshot()
	if len(snap.Video) != 1 || snap.Video[0] != "kick:friend" {
		t.Fatalf("video = %v", snap.Video)
	}
	if len(snap.Chat) != 1 || snap.Chat[0] != "kick:friend" {
		t.Fatalf("chat = %v", snap.Chat)
	}
	if len(snap.Bookmarks) != 1 || snap.Bookmarks[0].Nickname != "Pal" {
		t.Fatalf("bookmarks = %+v", snap.Bookmarks)
	}
	if snap.YouTubeMultiplier != 0.5 {
		t.Fatalf("multiplier = %v", snap.YouTubeMultiplier)
	}
	found := false
	for _, e := range snap.Embeds {
		if e.Key == "kick:friend" {
			found = true
		}
	}
	if !found {
		t.Fatalf("manual embed missing after reload: %+v", snap.Embeds)
	}
}

func TestSnapshotGroupsBookmarkStreams(t *testing.T) {
	w := New(Config{})
	w.SetBookmarks(context.Background(), []core.Bookmark{
		{ID: "b1", Nickname: "Friend", KickSlug: "friend", TwitchLogin: "friend"},
	})
	w.ApplyFeedUpdate([]core.LiveEmbed{
		{Platform: "kick", ID: "friend"},
		{Platform: "twitch", ID: "friend"},
		{Platform: "twitch", ID: "stranger", Count: intp(9)},
	})

	snap := w.Snapshot()
	if len(snap.Dock) != 2 {
		t.Fatalf("dock = %+v", snap.Dock)
	}
	group := snap.Dock[0]
	if group.Kind != "group" || len(group.Keys) != 2 {
		t.Fatalf("first item = %+v, want the bookmark group", group)
	}
	for _, e := range snap.Embeds {
		if e.Key == "kick:friend" && !strings.Contains(e.Provenance, "pinned") {
			t.Fatalf("provenance = %q, want pinned", e.Provenance)
		}
	}
}

func rewriteYouTube(target string) http.RoundTripper {
	return rewriteHost("youtube.com", target)
}

func rewriteHost(hostSuffix, target string) http.RoundTripper {
	urlTarget, err := url.Parse(target)
	if err != nil {
		panic(err)
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Host, hostSuffix) {
			clone := req.Clone(req.Context())
			cloned := *clone.URL
			clone.URL = &cloned
			clone.URL.Scheme = urlTarget.Scheme
			clone.URL.Host = urlTarget.Host
			clone.Host = urlTarget.Host
			return http.DefaultTransport.RoundTrip(clone)
		}
		return http.DefaultTransport.RoundTrip(req)
	})
}

func hasEmbed(s Snapshot, key string) bool {
	for _, e := range s.Embeds {
		if e.Key == key {
			return true
		}
	}
	return false
}

// waitForSnapshot polls the wall after each change signal until ok holds.
func waitForSnapshot(t *testing.T, changes <-chan struct{}, w *Wall, ok func(Snapshot) bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if ok(w.Snapshot()) {
			return
		}
		select {
		case <-changes:
		case <-deadline:
			t.Fatalf("snapshot never reached expected state: %+v", w.Snapshot())
		}
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
