// Package linkparse turns user-pasted links into embed identities.
package linkparse

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/you/streamwall/internal/core"
)

// ErrUnrecognized is returned when a pasted link does not match any known
// embed form. Callers surface it and perform no state change.
var ErrUnrecognized = errors.New("linkparse: unrecognized link")

// Link is a parsed pasted link. Exactly one of ID or Channel is set:
// ID names a watchable embed directly, Channel names a YouTube channel or
// handle that still needs resolving to a live video.
type Link struct {
	Platform string
	ID       string
	Channel  string
}

// Parse extracts a platform identity from a pasted link. Accepted forms:
// YouTube watch/short/live links, Kick and Twitch channel paths,
// Streamable links, TikTok live pages, direct video file URLs, the
// "#platform/id" shorthand, and YouTube channel/handle pages (returned as
// a Channel for the caller to resolve).
func Parse(raw string) (Link, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Link{}, ErrUnrecognized
	}

	if strings.HasPrefix(trimmed, "#") {
		return parseShorthand(trimmed[1:])
	}
	if strings.HasPrefix(trimmed, "@") {
		return Link{Platform: core.PlatformYouTube, Channel: trimmed}, nil
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	// Shorthand can ride in the fragment of any pasted page URL.
	if frag := strings.TrimSpace(u.Fragment); frag != "" && strings.Contains(frag, "/") {
		if link, err := parseShorthand(frag); err == nil {
			return link, nil
		}
	}

	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	switch host {
	case "youtu.be":
		id := firstSegment(u.Path)
		if !validYouTubeID(id) {
			return Link{}, ErrUnrecognized
		}
		return Link{Platform: core.PlatformYouTube, ID: id}, nil
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		return parseYouTubePath(u)
	case "twitch.tv":
		login := firstSegment(u.Path)
		if login == "" || reservedTwitchPath(login) {
			return Link{}, ErrUnrecognized
		}
		return Link{Platform: core.PlatformTwitch, ID: login}, nil
	case "kick.com":
		slug := firstSegment(u.Path)
		if slug == "" || strings.EqualFold(slug, "video") {
			return Link{}, ErrUnrecognized
		}
		return Link{Platform: core.PlatformKick, ID: slug}, nil
	case "streamable.com":
		id := firstSegment(u.Path)
		if id == "" {
			return Link{}, ErrUnrecognized
		}
		return Link{Platform: core.PlatformStreamable, ID: id}, nil
	case "tiktok.com":
		user := firstSegment(u.Path)
		if !strings.HasPrefix(user, "@") || len(user) < 2 {
			return Link{}, ErrUnrecognized
		}
		return Link{Platform: core.PlatformTikTok, ID: user[1:]}, nil
	}

	if isVideoFile(u.Path) {
		return Link{Platform: core.PlatformVideo, ID: u.String()}, nil
	}

	return Link{}, ErrUnrecognized
}

func parseShorthand(frag string) (Link, error) {
	platform, id, found := strings.Cut(strings.TrimPrefix(frag, "/"), "/")
	if !found {
		return Link{}, ErrUnrecognized
	}
	platform = strings.ToLower(strings.TrimSpace(platform))
	id = strings.TrimSpace(id)
	if platform == "" || id == "" {
		return Link{}, ErrUnrecognized
	}
	return Link{Platform: platform, ID: id}, nil
}

func parseYouTubePath(u *url.URL) (Link, error) {
	p := path.Clean(u.Path)
	switch {
	case strings.EqualFold(p, "/watch"):
		id := strings.TrimSpace(u.Query().Get("v"))
		if !validYouTubeID(id) {
			return Link{}, ErrUnrecognized
		}
		return Link{Platform: core.PlatformYouTube, ID: id}, nil
	case strings.HasPrefix(p, "/shorts/"), strings.HasPrefix(p, "/live/"), strings.HasPrefix(p, "/embed/"):
		id := firstSegment(strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(p, "/shorts"), "/live"), "/embed"))
		if !validYouTubeID(id) {
			return Link{}, ErrUnrecognized
		}
		return Link{Platform: core.PlatformYouTube, ID: id}, nil
	case strings.HasPrefix(p, "/channel/"):
		id := firstSegment(strings.TrimPrefix(p, "/channel"))
		if id == "" {
			return Link{}, ErrUnrecognized
		}
		return Link{Platform: core.PlatformYouTube, Channel: id}, nil
	case strings.HasPrefix(p, "/@"):
		handle := firstSegment(p)
		if len(handle) < 2 {
			return Link{}, ErrUnrecognized
		}
		return Link{Platform: core.PlatformYouTube, Channel: handle}, nil
	}
	return Link{}, ErrUnrecognized
}

func firstSegment(p string) string {
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			return part
		}
	}
	return ""
}

func reservedTwitchPath(segment string) bool {
	switch strings.ToLower(segment) {
	case "videos", "directory", "settings", "downloads", "p", "search":
		return true
	}
	return false
}

// validYouTubeID matches the 11-character video id alphabet. Case matters.
func validYouTubeID(id string) bool {
	if len(id) != 11 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func isVideoFile(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".mp4", ".webm", ".mov", ".m3u8", ".mpd":
		return true
	}
	return false
}
