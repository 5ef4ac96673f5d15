package fetch

import "strings"

// Diagnose maps a line of the fetch tool's diagnostic output to a
// human-readable failure reason. The matching is best-effort string
// inspection of a third-party tool's messages, so it is kept isolated here
// where the rules can evolve without touching orchestration. A miss is not
// an error; unrecognized failures simply carry no reason.
func Diagnose(output string) (string, bool) {
	switch {
	case strings.Contains(output, "rate-limit"), strings.Contains(output, "login required"):
		return "Platform requires authentication or has rate limits. Try again later.", true
	case strings.Contains(output, "not available"):
		return "Content not available or removed.", true
	case strings.Contains(output, "Unsupported URL"):
		return "URL format not supported.", true
	default:
		return "", false
	}
}
