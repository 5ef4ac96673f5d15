package platform

import "regexp"

// Generic is returned for URLs that match none of the known platforms.
// The external fetch tool still gets a chance at those.
const Generic = "generic"

type matcher struct {
	tag     string
	pattern *regexp.Regexp
}

// Matchers are tried in declaration order and the first hit wins, so an
// ambiguous URL always resolves to the same tag.
var matchers = []matcher{
	{"twitter", regexp.MustCompile(`(?:twitter\.com|x\.com)/(?:#!/)?(\w+)/status(es)?/(\d+)`)},
	{"reddit", regexp.MustCompile(`reddit\.com/r/[\w]+/comments/([A-Za-z0-9]+)`)},
	{"dailymotion", regexp.MustCompile(`dailymotion\.com/video/([A-Za-z0-9]+)`)},
	{"vimeo", regexp.MustCompile(`vimeo\.com/(\d+)`)},
	{"twitch", regexp.MustCompile(`twitch\.tv/videos/(\d+)|clips\.twitch\.tv/([A-Za-z0-9]+)`)},
	{"streamable", regexp.MustCompile(`streamable\.com/([A-Za-z0-9]+)`)},
	{"terabox", regexp.MustCompile(`terabox\.com/s/([A-Za-z0-9]+)`)},
	{"bitchute", regexp.MustCompile(`bitchute\.com/video/([A-Za-z0-9]+)`)},
	{"archive", regexp.MustCompile(`archive\.org/details/([A-Za-z0-9-_]+)`)},
	{"bandcamp", regexp.MustCompile(`[\w-]+\.bandcamp\.com/track/[\w-]+`)},
}

// Detect maps a URL to its hosting platform tag, or Generic when the URL
// matches no known shape.
func Detect(url string) string {
	for _, m := range matchers {
		if m.pattern.MatchString(url) {
			return m.tag
		}
	}
	return Generic
}

// Known returns the recognized platform tags in matching order.
func Known() []string {
	tags := make([]string, 0, len(matchers))
	for _, m := range matchers {
		tags = append(tags, m.tag)
	}
	return tags
}
