package liveness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestCheckKick_Live(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v2/channels/somestreamer", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user":{"username":"SomeStreamer"},"livestream":{"is_live":true,"viewer_count":412,"session_title":"hello"}}`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	c := NewChecker(server.Client())
	c.kickBase = server.URL

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status, err := c.CheckKick(ctx, "SomeStreamer")
	if err != nil {
		t.Fatalf("CheckKick() error = %v", err)
	}
	if !status.Live {
		t.Fatal("CheckKick() Live = false, want true")
	}
	if status.Viewers == nil || *status.Viewers != 412 {
		t.Fatalf("CheckKick() Viewers = %v", status.Viewers)
	}
	if status.DisplayName != "SomeStreamer" {
		t.Fatalf("CheckKick() DisplayName = %q", status.DisplayName)
	}
}

func TestCheckKick_Offline(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v2/channels/quiet", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user":{"username":"quiet"},"livestream":null}`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	c := NewChecker(server.Client())
	c.kickBase = server.URL

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status, err := c.CheckKick(ctx, "quiet")
	if err != nil {
		t.Fatalf("CheckKick() error = %v", err)
	}
	if status.Live {
		t.Fatal("offline channel reported live")
	}
}

func TestCheckKick_HTTPErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := NewChecker(server.Client())
	c.kickBase = server.URL

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := c.CheckKick(ctx, "missing"); err == nil {
		t.Fatal("CheckKick() succeeded on a 404")
	}
}

func TestCheckTwitch(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/livelogin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><script type="application/ld+json">{"@type":"VideoObject","isLiveBroadcast":true}</script></html>`))
	})
	handler.HandleFunc("/offlogin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>channel page without any broadcast data</body></html>`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	c := NewChecker(&http.Client{Transport: twitchRewrite(server.URL), Timeout: 2 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	live, err := c.CheckTwitch(ctx, "LiveLogin")
	if err != nil {
		t.Fatalf("CheckTwitch() error = %v", err)
	}
	if !live.Live {
		t.Fatal("CheckTwitch() Live = false, want true")
	}

	off, err := c.CheckTwitch(ctx, "offlogin")
	if err != nil {
		t.Fatalf("CheckTwitch() error = %v", err)
	}
	if off.Live {
		t.Fatal("offline twitch channel reported live")
	}
}

func TestCheckLive_DispatchesByHost(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v2/channels/somebody", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"username":"somebody"},"livestream":{"is_live":true}}`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	c := NewChecker(server.Client())
	c.kickBase = server.URL

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status, err := c.CheckLive(ctx, "https://kick.com/Somebody")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if !status.Live {
		t.Fatal("CheckLive() Live = false, want true")
	}

	if _, err := c.CheckLive(ctx, "https://example.com/whatever"); err == nil {
		t.Fatal("CheckLive() accepted an unsupported host")
	}
}

func twitchRewrite(target string) http.RoundTripper {
	urlTarget, err := url.Parse(target)
	if err != nil {
		panic(err)
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Host, "twitch.tv") {
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

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
