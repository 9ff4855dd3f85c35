package embedkey

import "testing"

func TestMake_CaseRules(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		id       string
		want     string
	}{
		{"twitch lowercased", "Twitch", "Shroud", "twitch:shroud"},
		{"kick lowercased", "KICK", "Foo", "kick:foo"},
		{"youtube id preserved", "YouTube", "AbC123xyz_-", "youtube:AbC123xyz_-"},
		{"youtube platform still lowered", "YOUTUBE", "dQw4w9WgXcQ", "youtube:dQw4w9WgXcQ"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Make(tc.platform, tc.id); got != tc.want {
				t.Fatalf("Make(%q, %q) = %q, want %q", tc.platform, tc.id, got, tc.want)
			}
		})
	}
}

func TestMake_NonYouTubeCaseInsensitive(t *testing.T) {
	if Make("kick", "destiny") != Make("kick", "DESTINY") {
		t.Fatal("kick ids must compare case-insensitively")
	}
	if Make("youtube", "AbC123xyz_-") == Make("youtube", "abc123xyz_-") {
		t.Fatal("youtube ids must stay case-sensitive")
	}
}

func TestMakeLegacy(t *testing.T) {
	if got := MakeLegacy("YouTube", "AbC123xyz_-"); got != "youtube:abc123xyz_-" {
		t.Fatalf("MakeLegacy = %q", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		key      string
		platform string
		id       string
		ok       bool
	}{
		{"twitch:shroud", "twitch", "shroud", true},
		{"youtube:AbC123xyz_-", "youtube", "AbC123xyz_-", true},
		{"video:https://example.com/a.mp4", "video", "https://example.com/a.mp4", true},
		{"noseparator", "", "", false},
		{":id", "", "", false},
		{"platform:", "", "", false},
		{"", "", "", false},
	}

	for _, tc := range tests {
		platform, id, ok := Parse(tc.key)
		if ok != tc.ok || platform != tc.platform || id != tc.id {
			t.Fatalf("Parse(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.key, platform, id, ok, tc.platform, tc.id, tc.ok)
		}
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	keys := []string{
		"Twitch:Shroud",
		"youtube:AbC123xyz_-",
		"KICK:FOO",
		"garbage",
		"",
	}
	for _, key := range keys {
		once := Canonicalize(key)
		twice := Canonicalize(once)
		if once != twice {
			t.Fatalf("Canonicalize not idempotent for %q: %q then %q", key, once, twice)
		}
	}
}

func TestCanonicalize_UnparsableUnchanged(t *testing.T) {
	if got := Canonicalize("notakey"); got != "notakey" {
		t.Fatalf("Canonicalize(notakey) = %q", got)
	}
}

func TestLegacy(t *testing.T) {
	if got := Legacy("youtube:AbC123xyz_-"); got != "youtube:abc123xyz_-" {
		t.Fatalf("Legacy = %q", got)
	}
	if got := Legacy("broken"); got != "broken" {
		t.Fatalf("Legacy(broken) = %q", got)
	}
}
