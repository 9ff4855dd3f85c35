// Package ytresolve locates the active livestream video id for a YouTube
// channel id, handle or URL.
package ytresolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"
)

// ErrNotLive reports that the channel resolved cleanly but has no active
// livestream. Callers use it to offer "register as bookmark instead";
// every other error is a lookup failure.
var ErrNotLive = errors.New("ytresolve: channel not currently live")

// Result is the outcome of a channel resolution. VideoID preserves the
// platform's exact casing.
type Result struct {
	Live    bool
	VideoID string
}

// Resolver fetches YouTube channel pages and extracts the live video id.
type Resolver struct {
	http *http.Client
}

// NewResolver creates a resolver backed by the provided HTTP client, or a
// default client with a sane timeout when nil.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{http: client}
}

// Resolve normalizes the input (channel id "UC…", handle "@name", or a
// youtube.com URL), fetches the channel's /live endpoint and determines
// whether a livestream is active. Offline channels yield ErrNotLive with
// the placeholder video id when one was present.
func (r *Resolver) Resolve(ctx context.Context, channelIDOrURL string) (Result, error) {
	target, err := normalizeChannelInput(channelIDOrURL)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; streamwall-resolver/1.0)")

	resp, err := r.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("ytresolve: status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return Result{}, err
	}
	raw := string(body)

	if videoID, live, ok := extractPlayerState(raw); ok {
		if !live {
			return Result{Live: false, VideoID: videoID}, ErrNotLive
		}
		return Result{Live: true, VideoID: videoID}, nil
	}

	// The player response was absent; fall back to the redirect target
	// plus a live-marker scan of the page text.
	videoID := videoIDFromWatchURL(resp.Request.URL)
	if videoID != "" && containsLiveMarker(raw) {
		return Result{Live: true, VideoID: videoID}, nil
	}
	if videoID != "" {
		return Result{Live: false, VideoID: videoID}, ErrNotLive
	}
	return Result{}, ErrNotLive
}

// normalizeChannelInput coerces channel ids, handles and URLs into the
// canonical https://www.youtube.com/…/live page to fetch.
func normalizeChannelInput(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("ytresolve: empty channel")
	}

	switch {
	case strings.HasPrefix(trimmed, "UC") && !strings.ContainsAny(trimmed, "/. "):
		return &url.URL{Scheme: "https", Host: "www.youtube.com", Path: "/channel/" + trimmed + "/live"}, nil
	case strings.HasPrefix(trimmed, "@"):
		trimmed = "https://www.youtube.com/" + trimmed
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("ytresolve: parse input: %w", err)
	}
	u.Fragment = ""

	host := strings.ToLower(u.Host)
	if host != "youtube.com" && host != "www.youtube.com" && host != "m.youtube.com" {
		return nil, fmt.Errorf("ytresolve: unsupported host %q", u.Host)
	}
	u.Scheme = "https"
	u.Host = "www.youtube.com"

	p := path.Clean(u.Path)
	switch {
	case strings.HasPrefix(p, "/channel/"), strings.HasPrefix(p, "/@"):
		if !strings.HasSuffix(p, "/live") {
			p += "/live"
		}
		u.Path = p
		u.RawQuery = ""
		return u, nil
	case strings.EqualFold(p, "/watch"):
		videoID := strings.TrimSpace(u.Query().Get("v"))
		if videoID == "" {
			return nil, errors.New("ytresolve: watch url missing video id")
		}
		u.RawQuery = url.Values{"v": []string{videoID}}.Encode()
		u.Path = "/watch"
		return u, nil
	}
	return nil, fmt.Errorf("ytresolve: unsupported path %q", u.Path)
}

func videoIDFromWatchURL(u *url.URL) string {
	if u == nil || !strings.EqualFold(u.Path, "/watch") {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("v"))
}

// extractPlayerState digs the video id and liveness out of the page's
// embedded player response.
func extractPlayerState(body string) (string, bool, bool) {
	for _, marker := range []string{"ytInitialPlayerResponse", "ytInitialData"} {
		raw, ok := extractJSONAssignment(body, marker)
		if !ok {
			continue
		}
		videoID, live, hasVideo, err := parsePlayerJSON(raw)
		if err != nil || !hasVideo {
			continue
		}
		return videoID, live, true
	}
	return "", false, false
}

func extractJSONAssignment(body, marker string) (string, bool) {
	search := 0
	for {
		idx := strings.Index(body[search:], marker)
		if idx == -1 {
			return "", false
		}
		idx += search
		pos := idx + len(marker)
		for pos < len(body) {
			ch := body[pos]
			if ch == '=' {
				pos++
				break
			}
			if unicode.IsSpace(rune(ch)) || ch == ']' || ch == '"' || ch == '\'' || ch == '.' || ch == ')' {
				pos++
				continue
			}
			pos = -1
			break
		}
		if pos == -1 || pos >= len(body) {
			search = idx + len(marker)
			continue
		}
		for pos < len(body) && unicode.IsSpace(rune(body[pos])) {
			pos++
		}
		if pos >= len(body) {
			return "", false
		}
		if body[pos] != '{' && body[pos] != '[' {
			search = idx + len(marker)
			continue
		}
		jsonSlice, ok := sliceBalancedJSON(body[pos:])
		if !ok {
			search = idx + len(marker)
			continue
		}
		return jsonSlice, true
	}
}

func sliceBalancedJSON(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	stack := make([]rune, 0, 8)
	inString := false
	escape := false
	for i, r := range s {
		if inString {
			if escape {
				escape = false
				continue
			}
			if r == '\\' {
				escape = true
				continue
			}
			if r == '"' {
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, r)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			open := stack[len(stack)-1]
			if (open == '{' && r != '}') || (open == '[' && r != ']') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

type playerPayload struct {
	StreamingData *struct {
		HLSManifestURL  string `json:"hlsManifestUrl"`
		DashManifestURL string `json:"dashManifestUrl"`
	} `json:"streamingData"`
	VideoDetails struct {
		VideoID       string `json:"videoId"`
		IsLive        bool   `json:"isLive"`
		IsLiveContent bool   `json:"isLiveContent"`
	} `json:"videoDetails"`
}

func parsePlayerJSON(raw string) (string, bool, bool, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return "", false, false, err
	}

	payload := playerPayload{}
	if nested, ok := root["playerResponse"]; ok {
		if err := json.Unmarshal(nested, &payload); err != nil {
			return "", false, false, err
		}
	} else {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return "", false, false, err
		}
	}

	videoID := strings.TrimSpace(payload.VideoDetails.VideoID)
	if videoID == "" {
		return "", false, false, nil
	}

	live := payload.VideoDetails.IsLiveContent || payload.VideoDetails.IsLive
	if !live && payload.StreamingData != nil {
		live = true
	}
	return videoID, live, true, nil
}

func containsLiveMarker(body string) bool {
	lowered := strings.ToLower(body)
	switch {
	case strings.Contains(lowered, `"islivenow":true`):
		return true
	case strings.Contains(lowered, `"islive":true`):
		return true
	case strings.Contains(lowered, `"islivecontent":true`):
		return true
	case strings.Contains(lowered, "livechatrenderer"):
		return true
	}
	return false
}
