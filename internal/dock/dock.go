// Package dock groups available embeds into dock buttons. Bookmarked
// streamers whose resolved key sets are identical collapse into a single
// group button; everything else gets an individual button.
package dock

import (
	"sort"
	"strings"

	"github.com/you/streamwall/internal/core"
	"github.com/you/streamwall/internal/embedkey"
	"github.com/you/streamwall/internal/selection"
)

// Kind tags the Item variant.
type Kind string

const (
	KindGroup  Kind = "group"
	KindSingle Kind = "single"
)

// Item is one dock button: either a group of bookmarks sharing a resolved
// key set, or a single ungrouped embed key.
type Item struct {
	Kind      Kind            `json:"kind"`
	Streamers []core.Bookmark `json:"streamers,omitempty"`
	Keys      []string        `json:"keys"`
}

// DefaultPlatformOrder is the preferred-platform order used when turning a
// multi-key item on, unless the user configured another order.
var DefaultPlatformOrder = []string{core.PlatformYouTube, core.PlatformKick, core.PlatformTwitch}

// Build computes the dock items for the current combined embeds.
//
// Ownership: a kick/twitch key belongs to every bookmark whose slug/login
// equals the key's id case-insensitively; a youtube key belongs to the
// bookmarks listed in ytVideoToStreamerIDs under the exact key (youtube ids
// are case-sensitive, no folding), falling back to the literal
// "youtube:<id>" form.
func Build(combined map[string]core.LiveEmbed, bookmarks []core.Bookmark, ytVideoToStreamerIDs map[string][]string) []Item {
	ownersByKey := make(map[string][]int, len(combined))
	for key := range combined {
		ownersByKey[key] = owners(key, bookmarks, ytVideoToStreamerIDs)
	}

	// Owned keys per bookmark, filtered to availability, sorted for a
	// stable signature.
	keysByBookmark := make([][]string, len(bookmarks))
	for key, idxs := range ownersByKey {
		for _, i := range idxs {
			keysByBookmark[i] = append(keysByBookmark[i], key)
		}
	}
	for i := range keysByBookmark {
		sort.Strings(keysByBookmark[i])
	}

	type group struct {
		minIndex int
		members  []int
		keys     []string
	}
	groupsBySig := make(map[string]*group)
	var order []string
	for i, keys := range keysByBookmark {
		if len(keys) == 0 {
			continue
		}
		sig := strings.Join(keys, "\n")
		g, ok := groupsBySig[sig]
		if !ok {
			g = &group{minIndex: i, keys: keys}
			groupsBySig[sig] = g
			order = append(order, sig)
		}
		g.members = append(g.members, i)
	}

	covered := make(map[string]struct{})
	var items []Item
	for _, sig := range order {
		g := groupsBySig[sig]
		streamers := make([]core.Bookmark, 0, len(g.members))
		for _, i := range g.members {
			streamers = append(streamers, bookmarks[i])
		}
		keys := append([]string(nil), g.keys...)
		for _, key := range keys {
			covered[key] = struct{}{}
		}
		items = append(items, Item{Kind: KindGroup, Streamers: streamers, Keys: keys})
	}
	sort.SliceStable(items, func(a, b int) bool {
		return groupsBySig[strings.Join(items[a].Keys, "\n")].minIndex <
			groupsBySig[strings.Join(items[b].Keys, "\n")].minIndex
	})

	var singles []Item
	for key := range combined {
		if _, ok := covered[key]; ok {
			continue
		}
		if len(ownersByKey[key]) > 0 {
			continue
		}
		singles = append(singles, Item{Kind: KindSingle, Keys: []string{key}})
	}
	sort.Slice(singles, func(a, b int) bool {
		pa := popularity(combined[singles[a].Keys[0]])
		pb := popularity(combined[singles[b].Keys[0]])
		if pa != pb {
			return pa > pb
		}
		return singles[a].Keys[0] < singles[b].Keys[0]
	})

	return append(items, singles...)
}

func owners(key string, bookmarks []core.Bookmark, ytVideoToStreamerIDs map[string][]string) []int {
	platform, id, ok := embedkey.Parse(key)
	if !ok {
		return nil
	}

	var out []int
	switch platform {
	case core.PlatformKick:
		for i, b := range bookmarks {
			if b.KickSlug != "" && strings.EqualFold(b.KickSlug, id) {
				out = append(out, i)
			}
		}
	case core.PlatformTwitch:
		for i, b := range bookmarks {
			if b.TwitchLogin != "" && strings.EqualFold(b.TwitchLogin, id) {
				out = append(out, i)
			}
		}
	case core.PlatformYouTube:
		ids, ok := ytVideoToStreamerIDs[key]
		if !ok {
			ids = ytVideoToStreamerIDs[core.PlatformYouTube+":"+id]
		}
		for _, streamerID := range ids {
			for i, b := range bookmarks {
				if b.ID == streamerID && b.YouTubeChannelID != "" {
					out = append(out, i)
				}
			}
		}
	}
	return out
}

func popularity(e core.LiveEmbed) int64 {
	if e.Count != nil {
		return *e.Count
	}
	if e.Media != nil && e.Media.Viewers != nil {
		return *e.Media.Viewers
	}
	return 0
}

// AnyOn reports whether any of the item's keys is currently selected for
// video or chat.
func (it Item) AnyOn(video, chat selection.Set) bool {
	for _, key := range it.Keys {
		if video.Has(key) || chat.Has(key) {
			return true
		}
	}
	return false
}

// ChooseKey picks the key to select when turning a multi-key item on: the
// first platform in the preferred order that is present in the key set.
// Falls back to the lexically first key when no preferred platform matches.
func ChooseKey(keys []string, platformOrder []string) string {
	if len(keys) == 0 {
		return ""
	}
	if len(platformOrder) == 0 {
		platformOrder = DefaultPlatformOrder
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, platform := range platformOrder {
		for _, key := range sorted {
			if p, _, ok := embedkey.Parse(key); ok && p == platform {
				return key
			}
		}
	}
	return sorted[0]
}
