// Package embedkey canonicalizes (platform, id) pairs into the single
// comparable key space used everywhere else: "<platform>:<id>".
//
// The platform part is always lowercased. The id part is lowercased for
// every platform except YouTube, whose 11-character video identifiers are
// case-sensitive and must be preserved verbatim. Older persisted data used
// fully-lowercased keys; those legacy keys are only ever produced here for
// migration lookups.
package embedkey

import (
	"strings"

	"github.com/you/streamwall/internal/core"
)

// Make builds the canonical key for a platform/id pair.
func Make(platform, id string) string {
	platform = strings.ToLower(platform)
	if platform != core.PlatformYouTube {
		id = strings.ToLower(id)
	}
	return platform + ":" + id
}

// MakeLegacy builds the legacy fully-lowercased key for a platform/id pair.
// Legacy keys exist only in previously-persisted data.
func MakeLegacy(platform, id string) string {
	return strings.ToLower(platform) + ":" + strings.ToLower(id)
}

// Parse splits a key into its platform and id parts. It reports ok=false
// when the key has no separator or either part is empty.
func Parse(key string) (platform, id string, ok bool) {
	platform, id, found := strings.Cut(key, ":")
	if !found || platform == "" || id == "" {
		return "", "", false
	}
	return platform, id, true
}

// Canonicalize re-encodes a key through Make. Unparsable input is returned
// unchanged. Canonicalize is idempotent.
func Canonicalize(key string) string {
	platform, id, ok := Parse(key)
	if !ok {
		return key
	}
	return Make(platform, id)
}

// Legacy returns the fully-lowercased form of a key, used to probe old
// persisted selections against current registries. Unparsable input is
// returned unchanged.
func Legacy(key string) string {
	platform, id, ok := Parse(key)
	if !ok {
		return key
	}
	return MakeLegacy(platform, id)
}
