// Package liveness answers "is this channel live right now" for Kick and
// Twitch, and ad hoc URL checks used by the manual-add flow.
package liveness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Status is the outcome of a liveness check.
type Status struct {
	Live        bool
	DisplayName string
	Viewers     *int64
}

// Checker performs liveness lookups over HTTP.
type Checker struct {
	http     *http.Client
	kickBase string
}

// NewChecker creates a checker backed by the provided HTTP client, or a
// default client with a sane timeout when nil.
func NewChecker(client *http.Client) *Checker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Checker{http: client, kickBase: "https://kick.com"}
}

type kickChannelPayload struct {
	User struct {
		Username string `json:"username"`
	} `json:"user"`
	Livestream *struct {
		IsLive      bool   `json:"is_live"`
		ViewerCount *int64 `json:"viewer_count"`
		SessionName string `json:"session_title"`
	} `json:"livestream"`
}

// CheckKick looks a channel up in the Kick channels API. A missing
// livestream object means offline, not an error.
func (c *Checker) CheckKick(ctx context.Context, slug string) (Status, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return Status{}, errors.New("liveness: empty kick slug")
	}

	endpoint := c.kickBase + "/api/v2/channels/" + url.PathEscape(slug)
	body, err := c.fetch(ctx, endpoint)
	if err != nil {
		return Status{}, err
	}

	var payload kickChannelPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Status{}, fmt.Errorf("liveness: kick payload: %w", err)
	}

	status := Status{DisplayName: payload.User.Username}
	if payload.Livestream == nil {
		return status, nil
	}
	status.Live = payload.Livestream.IsLive || payload.Livestream.ViewerCount != nil
	if payload.Livestream.ViewerCount != nil {
		v := *payload.Livestream.ViewerCount
		status.Viewers = &v
	}
	return status, nil
}

// CheckTwitch fetches the channel page and scans for the structured-data
// live broadcast marker; there is no unauthenticated liveness API.
func (c *Checker) CheckTwitch(ctx context.Context, login string) (Status, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return Status{}, errors.New("liveness: empty twitch login")
	}

	body, err := c.fetch(ctx, "https://www.twitch.tv/"+url.PathEscape(login))
	if err != nil {
		return Status{}, err
	}
	return Status{Live: containsTwitchLiveMarker(string(body)), DisplayName: login}, nil
}

// CheckLive answers an ad hoc "is this live" for a pasted URL, dispatching
// on the host.
func (c *Checker) CheckLive(ctx context.Context, raw string) (Status, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Status{}, fmt.Errorf("liveness: parse url: %w", err)
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	segment := firstPathSegment(u.Path)
	switch host {
	case "kick.com":
		return c.CheckKick(ctx, segment)
	case "twitch.tv":
		return c.CheckTwitch(ctx, segment)
	}
	return Status{}, fmt.Errorf("liveness: unsupported host %q", u.Host)
}

func (c *Checker) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; streamwall-liveness/1.0)")
	req.Header.Set("Accept", "application/json, text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("liveness: status %s for %s", resp.Status, endpoint)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 2<<20))
}

func containsTwitchLiveMarker(body string) bool {
	lowered := strings.ToLower(body)
	return strings.Contains(lowered, `"islivebroadcast":true`) ||
		strings.Contains(lowered, `"islivebroadcast": true`)
}

func firstPathSegment(p string) string {
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			return part
		}
	}
	return ""
}
