package fetch

import "testing"

func TestDiagnose(t *testing.T) {
	cases := []struct {
		line       string
		wantReason string
		wantMatch  bool
	}{
		{"ERROR: rate-limit reached, try again later", "Platform requires authentication or has rate limits. Try again later.", true},
		{"ERROR: This video requires login required cookies", "Platform requires authentication or has rate limits. Try again later.", true},
		{"ERROR: This content is not available in your region", "Content not available or removed.", true},
		{"ERROR: Unsupported URL: https://example.com/thing", "URL format not supported.", true},
		{"[download] 42.0% of 10.00MiB", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		reason, ok := Diagnose(tc.line)
		if ok != tc.wantMatch {
			t.Errorf("Diagnose(%q) matched=%v, want %v", tc.line, ok, tc.wantMatch)
			continue
		}
		if reason != tc.wantReason {
			t.Errorf("Diagnose(%q) = %q, want %q", tc.line, reason, tc.wantReason)
		}
	}
}

func TestCommandArgs(t *testing.T) {
	args := commandArgs("https://vimeo.com/98765", "downloads/abc_%(title)s.%(ext)s", "vimeo")

	if args[0] != "https://vimeo.com/98765" {
		t.Fatalf("expected url first, got %s", args[0])
	}

	want := map[string]bool{
		"--no-playlist":          false,
		"--merge-output-format":  false,
		"--no-check-certificate": false,
		"--format":               false,
		"--extractor-retries":    false,
		"--fragment-retries":     false,
		"--retry-sleep":          false,
	}
	for _, arg := range args {
		if _, ok := want[arg]; ok {
			want[arg] = true
		}
	}
	for flag, seen := range want {
		if !seen {
			t.Errorf("expected flag %s in args", flag)
		}
	}
}

func TestFormatArgsFallsBackToGeneric(t *testing.T) {
	got := formatArgs("never-heard-of-it")
	if len(got) != 2 || got[0] != "--format" || got[1] != "best" {
		t.Fatalf("expected generic profile, got %v", got)
	}
}
