package ytresolve

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestNormalizeChannelInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"channel id", "UCxyz123abc", "https://www.youtube.com/channel/UCxyz123abc/live"},
		{"bare handle", "@creator", "https://www.youtube.com/@creator/live"},
		{"handle url", "https://www.youtube.com/@creator", "https://www.youtube.com/@creator/live"},
		{"channel url", "youtube.com/channel/UCxyz123abc", "https://www.youtube.com/channel/UCxyz123abc/live"},
		{"already live", "https://www.youtube.com/@creator/live", "https://www.youtube.com/@creator/live"},
		{"watch url", "https://www.youtube.com/watch?v=AbC123xyz_-", "https://www.youtube.com/watch?v=AbC123xyz_-"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeChannelInput(tc.in)
			if err != nil {
				t.Fatalf("normalizeChannelInput() error = %v", err)
			}
			if got.String() != tc.want {
				t.Fatalf("normalizeChannelInput() = %q, want %q", got.String(), tc.want)
			}
		})
	}
}

func TestNormalizeChannelInput_Rejects(t *testing.T) {
	for _, in := range []string{"", "https://example.com/live", "https://www.youtube.com/watch"} {
		if _, err := normalizeChannelInput(in); err == nil {
			t.Fatalf("normalizeChannelInput(%q) succeeded", in)
		}
	}
}

func TestResolve_Live(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/channel/UCxyz/live", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><script>var ytInitialPlayerResponse = {"streamingData":{"hlsManifestUrl":"https://example.com/h.m3u8"},"videoDetails":{"videoId":"XyZ12345678","isLiveContent":true}};</script></head></html>`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	resolver := NewResolver(&http.Client{Transport: rewriteTransport(server.URL), Timeout: 2 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := resolver.Resolve(ctx, "UCxyz")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Live {
		t.Fatal("Resolve() Live = false, want true")
	}
	if res.VideoID != "XyZ12345678" {
		t.Fatalf("Resolve() VideoID = %q (case must be preserved)", res.VideoID)
	}
}

func TestResolve_OfflineIsErrNotLive(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/@creator/live", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"offline12345","isLiveContent":false}};</script></head></html>`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	resolver := NewResolver(&http.Client{Transport: rewriteTransport(server.URL), Timeout: 2 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := resolver.Resolve(ctx, "@creator")
	if !errors.Is(err, ErrNotLive) {
		t.Fatalf("Resolve() error = %v, want ErrNotLive", err)
	}
}

func TestResolve_TransportErrorIsNotErrNotLive(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/@creator/live", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	resolver := NewResolver(&http.Client{Transport: rewriteTransport(server.URL), Timeout: 2 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := resolver.Resolve(ctx, "@creator")
	if err == nil || errors.Is(err, ErrNotLive) {
		t.Fatalf("Resolve() error = %v, want non-ErrNotLive failure", err)
	}
}

func TestResolve_RedirectWithLiveMarker(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/channel/UCxyz/live", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/watch?v=AbC123xyz_-", http.StatusFound)
	})
	handler.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>"isLiveNow":true</body></html>`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	resolver := NewResolver(&http.Client{Transport: rewriteTransport(server.URL), Timeout: 2 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := resolver.Resolve(ctx, "UCxyz")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Live || res.VideoID != "AbC123xyz_-" {
		t.Fatalf("Resolve() = %+v", res)
	}
}

func rewriteTransport(target string) http.RoundTripper {
	urlTarget, err := url.Parse(target)
	if err != nil {
		panic(err)
	}

	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Host, "youtube.com") || req.URL.Host == "youtu.be" {
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
