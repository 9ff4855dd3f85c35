package linkparse

import (
	"errors"
	"testing"
)

func TestParse_EmbedLinks(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		platform string
		id       string
	}{
		{"twitch channel", "https://www.twitch.tv/shroud", "twitch", "shroud"},
		{"twitch no scheme", "twitch.tv/Destiny", "twitch", "Destiny"},
		{"kick channel", "https://kick.com/xqc", "kick", "xqc"},
		{"youtube watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "youtube", "dQw4w9WgXcQ"},
		{"youtube short link", "https://youtu.be/AbC123xyz_-", "youtube", "AbC123xyz_-"},
		{"youtube live path", "https://www.youtube.com/live/AbC123xyz_-", "youtube", "AbC123xyz_-"},
		{"youtube shorts", "https://youtube.com/shorts/AbC123xyz_-", "youtube", "AbC123xyz_-"},
		{"streamable", "https://streamable.com/abc12", "streamable", "abc12"},
		{"tiktok live", "https://www.tiktok.com/@someuser/live", "tiktok", "someuser"},
		{"shorthand", "#twitch/shroud", "twitch", "shroud"},
		{"shorthand in fragment", "https://wall.example/#kick/foo", "kick", "foo"},
		{"video file", "https://cdn.example.com/clips/a.mp4", "video", "https://cdn.example.com/clips/a.mp4"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			link, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tc.in, err)
			}
			if link.Platform != tc.platform || link.ID != tc.id {
				t.Fatalf("Parse(%q) = %+v, want platform=%q id=%q", tc.in, link, tc.platform, tc.id)
			}
			if link.Channel != "" {
				t.Fatalf("Parse(%q) unexpectedly returned channel %q", tc.in, link.Channel)
			}
		})
	}
}

func TestParse_YouTubeChannelForms(t *testing.T) {
	tests := []struct {
		in      string
		channel string
	}{
		{"https://www.youtube.com/channel/UCxyz123", "UCxyz123"},
		{"https://www.youtube.com/@somecreator", "@somecreator"},
		{"@somecreator", "@somecreator"},
	}

	for _, tc := range tests {
		link, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tc.in, err)
		}
		if link.Platform != "youtube" || link.Channel != tc.channel || link.ID != "" {
			t.Fatalf("Parse(%q) = %+v, want channel %q", tc.in, link, tc.channel)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"https://example.com/",
		"https://www.twitch.tv/",
		"https://www.twitch.tv/directory/game/x",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/watch?v=short",
		"#twitch",
		"#/onlyslash",
	}
	for _, in := range bad {
		if _, err := Parse(in); !errors.Is(err, ErrUnrecognized) {
			t.Fatalf("Parse(%q) error = %v, want ErrUnrecognized", in, err)
		}
	}
}

func TestParse_YouTubeIDCasePreserved(t *testing.T) {
	link, err := Parse("https://youtu.be/XyZ12345678")
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	if link.ID != "XyZ12345678" {
		t.Fatalf("youtube id mangled: %q", link.ID)
	}
}
