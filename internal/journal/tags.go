package journal

import (
	"regexp"
	"strings"
)

var hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_]{1,32})`)

const maxTags = 20

// ExtractTags returns the distinct lowercase hashtags of content in order of
// first appearance.
func ExtractTags(content string) []string {
	matches := hashtagRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return []string{}
	}

	seen := map[string]bool{}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		t := strings.ToLower(m[1])
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
