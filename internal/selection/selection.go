// Package selection manages the video-on and chat-on key sets, including
// rehydration of persisted keys and migration of legacy lowercased keys.
package selection

import (
	"sort"

	"github.com/you/streamwall/internal/embedkey"
)

// Set is a set of canonical embed keys.
type Set map[string]struct{}

// NewSet builds a set from the given keys verbatim.
func NewSet(keys ...string) Set {
	s := make(Set, len(keys))
	for _, key := range keys {
		s[key] = struct{}{}
	}
	return s
}

// Sanitize rehydrates a persisted key list: entries that fail to parse are
// dropped, the rest are canonicalized and de-duplicated.
func Sanitize(keys []string) Set {
	out := make(Set, len(keys))
	for _, key := range keys {
		if _, _, ok := embedkey.Parse(key); !ok {
			continue
		}
		out[embedkey.Canonicalize(key)] = struct{}{}
	}
	return out
}

// MigrateAndPrune keeps every selected key that is found in available,
// migrates keys whose legacy-lowercased form matches an available key's
// legacy form (pre-case-sensitivity selections), and drops the rest. It
// returns the new set and whether anything changed.
func MigrateAndPrune(selected, available Set) (Set, bool) {
	byLegacy := make(map[string]string, len(available))
	for key := range available {
		byLegacy[embedkey.Legacy(key)] = key
	}

	out := make(Set, len(selected))
	changed := false
	for key := range selected {
		if _, ok := available[key]; ok {
			out[key] = struct{}{}
			continue
		}
		if canonical, ok := byLegacy[embedkey.Legacy(key)]; ok {
			out[canonical] = struct{}{}
			changed = changed || canonical != key
			continue
		}
		changed = true
	}
	return out, changed
}

// Toggle flips membership of the canonical form of key and reports the new
// state (true = now selected).
func (s Set) Toggle(key string) bool {
	key = embedkey.Canonicalize(key)
	if _, ok := s[key]; ok {
		delete(s, key)
		return false
	}
	s[key] = struct{}{}
	return true
}

// Add inserts the canonical form of key.
func (s Set) Add(key string) {
	s[embedkey.Canonicalize(key)] = struct{}{}
}

// Remove deletes the canonical form of key.
func (s Set) Remove(key string) {
	delete(s, embedkey.Canonicalize(key))
}

// Has reports membership of the canonical form of key.
func (s Set) Has(key string) bool {
	_, ok := s[embedkey.Canonicalize(key)]
	return ok
}

// Sorted returns the keys in lexical order, for persistence and stable
// API output.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for key := range s {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for key := range s {
		out[key] = struct{}{}
	}
	return out
}

// Equal reports whether two sets hold the same keys.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for key := range s {
		if _, ok := other[key]; !ok {
			return false
		}
	}
	return true
}

// ChatTargets computes the de-duplicated, sorted id list per platform for
// the current chat-on keys. Unparsable keys are skipped.
func ChatTargets(chat Set) map[string][]string {
	seen := make(map[string]map[string]struct{})
	for key := range chat {
		platform, id, ok := embedkey.Parse(key)
		if !ok {
			continue
		}
		if seen[platform] == nil {
			seen[platform] = make(map[string]struct{})
		}
		seen[platform][id] = struct{}{}
	}

	out := make(map[string][]string, len(seen))
	for platform, ids := range seen {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		sort.Strings(list)
		out[platform] = list
	}
	return out
}
