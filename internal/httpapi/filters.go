package httpapi

import (
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/you/streamwall/internal/wall"
)

const (
	defaultLimit = 200
	maxLimit     = 1000
)

// Order represents the sort order used when listing embeds.
type Order string

const (
	// OrderCount sorts by contributing-community count, highest first.
	OrderCount Order = "count"
	// OrderViewers sorts by viewer count, highest first.
	OrderViewers Order = "viewers"
	// OrderKey sorts lexically by embed key.
	OrderKey Order = "key"
)

// Filters captures the parsed query parameters for embed lookups.
type Filters struct {
	Platforms []string
	Sources   []string
	MinCount  int64
	Limit     int
	Order     Order
}

// ParseFilters parses query parameters into a Filters struct.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{
		Limit: defaultLimit,
		Order: OrderKey,
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Filters{}, errors.New("limit must be a positive integer")
		}
		if n > maxLimit {
			n = maxLimit
		}
		f.Limit = n
	}

	if raw := values.Get("order"); raw != "" {
		switch strings.ToLower(raw) {
		case "count":
			f.Order = OrderCount
		case "viewers":
			f.Order = OrderViewers
		case "key":
			f.Order = OrderKey
		default:
			return Filters{}, errors.New("order must be count, viewers or key")
		}
	}

	if raw := values.Get("min_count"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return Filters{}, errors.New("min_count must be a non-negative integer")
		}
		f.MinCount = n
	}

	f.Platforms = collect(values, "platform")
	for i, p := range f.Platforms {
		f.Platforms[i] = strings.ToLower(p)
	}

	f.Sources = collect(values, "source")
	for _, source := range f.Sources {
		switch source {
		case "pinned", "dgg", "manual":
		default:
			return Filters{}, errors.New("source must be pinned, dgg or manual")
		}
	}

	return f, nil
}

// Apply filters and orders a snapshot's embed list.
func (f Filters) Apply(embeds []wall.EmbedView) []wall.EmbedView {
	out := make([]wall.EmbedView, 0, len(embeds))
	for _, e := range embeds {
		if len(f.Platforms) > 0 && !containsString(f.Platforms, e.Platform) {
			continue
		}
		if len(f.Sources) > 0 && !matchesSource(f.Sources, e.Provenance) {
			continue
		}
		if f.MinCount > 0 && (e.Count == nil || *e.Count < f.MinCount) {
			continue
		}
		out = append(out, e)
	}

	switch f.Order {
	case OrderCount:
		sort.SliceStable(out, func(i, j int) bool {
			return int64Value(out[i].Count) > int64Value(out[j].Count)
		})
	case OrderViewers:
		sort.SliceStable(out, func(i, j int) bool {
			return viewerValue(out[i]) > viewerValue(out[j])
		})
	case OrderKey:
		// Snapshots are already key-sorted.
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func matchesSource(wanted []string, provenance string) bool {
	for _, source := range wanted {
		for _, label := range strings.Split(provenance, "/") {
			if strings.EqualFold(label, source) {
				return true
			}
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func int64Value(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func viewerValue(e wall.EmbedView) int64 {
	if e.Media == nil || e.Media.Viewers == nil {
		return 0
	}
	return *e.Media.Viewers
}

func collect(values url.Values, key string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
