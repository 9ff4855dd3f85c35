package core

import "time"

// Platform identifiers as they appear in embed keys. Keys always carry the
// lowercased form.
const (
	PlatformYouTube    = "youtube"
	PlatformTwitch     = "twitch"
	PlatformKick       = "kick"
	PlatformTikTok     = "tiktok"
	PlatformStreamable = "streamable"
	PlatformVideo      = "video"
	PlatformLSF        = "lsf"
)

// PolledPlatforms are the platforms the bookmark pollers know how to check.
var PolledPlatforms = []string{PlatformYouTube, PlatformKick, PlatformTwitch}

// MediaInfo carries optional platform-reported metadata for an embed.
// Viewers is a pointer so "unknown" is distinguishable from zero.
type MediaInfo struct {
	PreviewURL  string     `json:"previewUrl,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	Title       string     `json:"title,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	Live        bool       `json:"live,omitempty"`
	Viewers     *int64     `json:"viewers,omitempty"`
}

// LiveEmbed is one watchable stream or video. Count is the number of
// aggregator users currently watching (push feed only); nil when unreported.
type LiveEmbed struct {
	Platform string     `json:"platform"`
	ID       string     `json:"id"`
	Count    *int64     `json:"count,omitempty"`
	Media    *MediaInfo `json:"media,omitempty"`
}

// BannedEmbed is a blacklist entry. It disables toggles for the matching
// key but never removes the embed from availability.
type BannedEmbed struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Reason   string `json:"reason,omitempty"`
}

// Bookmark is a user-saved streamer identity spanning up to three
// platforms, tracked for liveness independent of the push feed. ID is
// opaque and stable across renames; slice order is the user-defined order.
type Bookmark struct {
	ID               string `json:"id"`
	Nickname         string `json:"nickname"`
	YouTubeChannelID string `json:"youtubeChannelId,omitempty"`
	KickSlug         string `json:"kickSlug,omitempty"`
	TwitchLogin      string `json:"twitchLogin,omitempty"`
	Color            string `json:"color,omitempty"`
}

// HasPlatform reports whether the bookmark has an identifier configured for
// the given platform.
func (b Bookmark) HasPlatform(platform string) bool {
	return b.PlatformID(platform) != ""
}

// PlatformID returns the bookmark's identifier for the given platform, or
// "" when none is configured.
func (b Bookmark) PlatformID(platform string) string {
	switch platform {
	case PlatformYouTube:
		return b.YouTubeChannelID
	case PlatformKick:
		return b.KickSlug
	case PlatformTwitch:
		return b.TwitchLogin
	}
	return ""
}

// CloneEmbed returns a deep copy of e so registry snapshots can be handed
// to readers without sharing the Count/Media pointers.
func CloneEmbed(e LiveEmbed) LiveEmbed {
	out := e
	if e.Count != nil {
		c := *e.Count
		out.Count = &c
	}
	if e.Media != nil {
		m := *e.Media
		if e.Media.Viewers != nil {
			v := *e.Media.Viewers
			m.Viewers = &v
		}
		if e.Media.CreatedAt != nil {
			t := *e.Media.CreatedAt
			m.CreatedAt = &t
		}
		out.Media = &m
	}
	return out
}
