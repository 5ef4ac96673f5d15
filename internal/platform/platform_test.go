package platform

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://twitter.com/user/status/123456", "twitter"},
		{"https://x.com/user/status/123456", "twitter"},
		{"https://www.reddit.com/r/videos/comments/abc123/some_title/", "reddit"},
		{"https://www.dailymotion.com/video/x8abcd", "dailymotion"},
		{"https://vimeo.com/98765", "vimeo"},
		{"https://www.twitch.tv/videos/1234567", "twitch"},
		{"https://clips.twitch.tv/FunnyClipName", "twitch"},
		{"https://streamable.com/abc123", "streamable"},
		{"https://terabox.com/s/1abcdef", "terabox"},
		{"https://www.bitchute.com/video/AbCdEf123", "bitchute"},
		{"https://archive.org/details/some-old_film", "archive"},
		{"https://artist.bandcamp.com/track/song-name", "bandcamp"},
		{"https://example.com/video", Generic},
		{"not a url at all", Generic},
		{"", Generic},
	}

	for _, tc := range cases {
		if got := Detect(tc.url); got != tc.want {
			t.Errorf("Detect(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	const url = "https://twitter.com/user/status/9"
	first := Detect(url)
	for i := 0; i < 100; i++ {
		if got := Detect(url); got != first {
			t.Fatalf("Detect returned %q after %q for the same URL", got, first)
		}
	}
}

func TestKnownOrder(t *testing.T) {
	tags := Known()
	if len(tags) == 0 {
		t.Fatal("expected at least one known platform")
	}
	if tags[0] != "twitter" {
		t.Fatalf("expected twitter first, got %s", tags[0])
	}
}
