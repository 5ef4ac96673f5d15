package fetch

import "github.com/dunamismax/vidflow/internal/platform"

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	refererURL       = "https://www.google.com/"
)

// formatProfiles holds per-platform format selection flags. Every platform
// currently uses the same "best" profile; the table exists so a single
// platform can be tuned without touching the invocation code.
var formatProfiles = map[string][]string{
	"twitter":        {"--format", "best"},
	"reddit":         {"--format", "best"},
	"dailymotion":    {"--format", "best"},
	"vimeo":          {"--format", "best"},
	"twitch":         {"--format", "best"},
	"streamable":     {"--format", "best"},
	"terabox":        {"--format", "best"},
	"bitchute":       {"--format", "best"},
	"archive":        {"--format", "best"},
	"bandcamp":       {"--format", "best"},
	platform.Generic: {"--format", "best"},
}

func formatArgs(platformTag string) []string {
	if profile, ok := formatProfiles[platformTag]; ok {
		return profile
	}
	return formatProfiles[platform.Generic]
}

// commandArgs builds the full argument list for one fetch. The exit code of
// the resulting process is the only authoritative success signal; its
// stdout and stderr are advisory text.
func commandArgs(url, outputTemplate, platformTag string) []string {
	args := []string{
		url,
		"-o", outputTemplate,
		"--no-playlist",
	}
	args = append(args, formatArgs(platformTag)...)
	args = append(args,
		"--merge-output-format", "mp4",
		"--no-warnings",
		"--no-check-certificate",
		"--ignore-errors",
		"--no-call-home",
		"--user-agent", browserUserAgent,
		"--referer", refererURL,
		"--extractor-retries", "3",
		"--fragment-retries", "3",
		"--retry-sleep", "1",
	)
	return args
}
