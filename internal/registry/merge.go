package registry

import (
	"strings"

	"github.com/you/streamwall/internal/core"
)

// Merge combines the three sources into the available-embeds view.
//
// Precedence is structural: manual entries (user intent) seed the map,
// bookmark-originated entries fill only absent keys, and live-feed entries
// merge metadata into whatever is already there. Metadata merging is
// monotone within a refresh: a nil count or viewers never regresses a
// previously known value, while any non-nil value wins.
//
// Merge is pure; callers recompute it on every registry change.
func Merge(live, manual, bookmark map[string]core.LiveEmbed) map[string]core.LiveEmbed {
	out := make(map[string]core.LiveEmbed, len(manual)+len(bookmark)+len(live))

	for key, e := range manual {
		out[key] = core.CloneEmbed(e)
	}
	for key, e := range bookmark {
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = core.CloneEmbed(e)
	}
	for key, e := range live {
		existing, exists := out[key]
		if !exists {
			out[key] = core.CloneEmbed(e)
			continue
		}
		out[key] = mergeEmbed(existing, e)
	}
	return out
}

func mergeEmbed(existing, incoming core.LiveEmbed) core.LiveEmbed {
	merged := core.CloneEmbed(existing)
	if incoming.Count != nil {
		c := *incoming.Count
		merged.Count = &c
	}
	merged.Media = mergeMedia(merged.Media, incoming.Media)
	return merged
}

func mergeMedia(existing, incoming *core.MediaInfo) *core.MediaInfo {
	if incoming == nil {
		return existing
	}
	if existing == nil {
		return cloneMedia(incoming)
	}
	out := *existing
	if incoming.PreviewURL != "" {
		out.PreviewURL = incoming.PreviewURL
	}
	if incoming.DisplayName != "" {
		out.DisplayName = incoming.DisplayName
	}
	if incoming.Title != "" {
		out.Title = incoming.Title
	}
	if incoming.CreatedAt != nil {
		t := *incoming.CreatedAt
		out.CreatedAt = &t
	}
	if incoming.Live {
		out.Live = true
	}
	if incoming.Viewers != nil {
		v := *incoming.Viewers
		out.Viewers = &v
	} else if existing.Viewers != nil {
		v := *existing.Viewers
		out.Viewers = &v
	}
	return &out
}

func cloneMedia(m *core.MediaInfo) *core.MediaInfo {
	if m == nil {
		return nil
	}
	out := *m
	if m.Viewers != nil {
		v := *m.Viewers
		out.Viewers = &v
	}
	if m.CreatedAt != nil {
		t := *m.CreatedAt
		out.CreatedAt = &t
	}
	return &out
}

// Provenance records which sources account for a key being available.
type Provenance struct {
	Pinned bool `json:"pinned"`
	Feed   bool `json:"feed"`
	Manual bool `json:"manual"`
}

// ProvenanceOf computes the feed/manual membership for a key; whether the
// key resolves to a bookmark is the dock's ownership lookup and is passed
// in by the caller.
func (s *Sources) ProvenanceOf(key string, pinned bool) Provenance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, feed := s.live[key]
	_, manual := s.manual[key]
	return Provenance{Pinned: pinned, Feed: feed, Manual: manual}
}

// Label renders the provenance for display: a "/"-joined list of the
// applicable source names, or "Unknown" when none apply.
func (p Provenance) Label() string {
	var parts []string
	if p.Pinned {
		parts = append(parts, "pinned")
	}
	if p.Feed {
		parts = append(parts, "dgg")
	}
	if p.Manual {
		parts = append(parts, "manual")
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "/")
}
