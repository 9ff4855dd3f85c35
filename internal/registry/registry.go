// Package registry holds the three independently-updated embed sources and
// the merge engine that combines them into one available-embeds view.
package registry

import (
	"sync"

	"github.com/you/streamwall/internal/core"
	"github.com/you/streamwall/internal/embedkey"
)

// Sources owns the three embed registries. All mutation is whole-value
// replace-or-merge; readers always get consistent snapshot copies.
type Sources struct {
	mu       sync.RWMutex
	live     map[string]core.LiveEmbed
	manual   map[string]core.LiveEmbed
	bookmark map[string]core.LiveEmbed
}

func NewSources() *Sources {
	return &Sources{
		live:     make(map[string]core.LiveEmbed),
		manual:   make(map[string]core.LiveEmbed),
		bookmark: make(map[string]core.LiveEmbed),
	}
}

// Ingest canonicalizes a slice of embeds into a key->embed map, dropping
// entries missing a platform or id. It returns the map and the number of
// dropped entries.
func Ingest(embeds []core.LiveEmbed) (map[string]core.LiveEmbed, int) {
	out := make(map[string]core.LiveEmbed, len(embeds))
	dropped := 0
	for _, e := range embeds {
		if e.Platform == "" || e.ID == "" {
			dropped++
			continue
		}
		out[embedkey.Make(e.Platform, e.ID)] = e
	}
	return out, dropped
}

// ReplaceLive swaps the entire live-feed registry for the given entries.
// The push feed always delivers full replacements, never patches.
func (s *Sources) ReplaceLive(entries map[string]core.LiveEmbed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = copyEmbeds(entries)
}

// ReplaceManual swaps the entire manual registry, used when rehydrating
// persisted state.
func (s *Sources) ReplaceManual(entries map[string]core.LiveEmbed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = copyEmbeds(entries)
}

// AddManual inserts a user-pasted embed keyed by its canonical form. It
// reports whether the registry changed (false when the key was already
// present).
func (s *Sources) AddManual(e core.LiveEmbed) (string, bool) {
	if e.Platform == "" || e.ID == "" {
		return "", false
	}
	key := embedkey.Make(e.Platform, e.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.manual[key]; exists {
		return key, false
	}
	s.manual[key] = core.CloneEmbed(e)
	return key, true
}

// RemoveManual deletes a manual entry by key (canonicalized first).
func (s *Sources) RemoveManual(key string) bool {
	key = embedkey.Canonicalize(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.manual[key]; !exists {
		return false
	}
	delete(s.manual, key)
	return true
}

// ReplacePlatformBookmarks atomically replaces only the given platform's
// slice of the bookmark-originated registry, leaving other platforms'
// entries untouched.
func (s *Sources) ReplacePlatformBookmarks(platform string, entries map[string]core.LiveEmbed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]core.LiveEmbed, len(s.bookmark)+len(entries))
	for key, e := range s.bookmark {
		if p, _, ok := embedkey.Parse(key); ok && p == platform {
			continue
		}
		next[key] = e
	}
	for key, e := range entries {
		next[embedkey.Canonicalize(key)] = core.CloneEmbed(e)
	}
	s.bookmark = next
}

// Live returns a snapshot copy of the live-feed registry.
func (s *Sources) Live() map[string]core.LiveEmbed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyEmbeds(s.live)
}

// Manual returns a snapshot copy of the manual registry.
func (s *Sources) Manual() map[string]core.LiveEmbed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyEmbeds(s.manual)
}

// BookmarkOriginated returns a snapshot copy of the bookmark-originated
// registry.
func (s *Sources) BookmarkOriginated() map[string]core.LiveEmbed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyEmbeds(s.bookmark)
}

// Combined merges the three registries under the lock so the result is one
// consistent snapshot.
func (s *Sources) Combined() map[string]core.LiveEmbed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Merge(s.live, s.manual, s.bookmark)
}

// Resolves reports whether the key, as given, is present in any of the
// three registries.
func (s *Sources) Resolves(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.live[key]; ok {
		return true
	}
	if _, ok := s.manual[key]; ok {
		return true
	}
	_, ok := s.bookmark[key]
	return ok
}

func copyEmbeds(in map[string]core.LiveEmbed) map[string]core.LiveEmbed {
	out := make(map[string]core.LiveEmbed, len(in))
	for key, e := range in {
		out[key] = core.CloneEmbed(e)
	}
	return out
}
