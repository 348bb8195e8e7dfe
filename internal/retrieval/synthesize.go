package retrieval

import (
	"strings"

	"github.com/3xCaffeine/total-recall/internal/graph"
	"github.com/3xCaffeine/total-recall/internal/vector"
)

const excerptLen = 100

// Synthesize renders matches and entities as the context block handed to
// the model. Either list may be empty.
func Synthesize(matches []vector.Match, entities []graph.Node) string {
	var parts []string

	if len(matches) > 0 {
		parts = append(parts, "## Similar Entries")
		for _, m := range matches {
			parts = append(parts, "- "+excerpt(matchText(m), excerptLen))
		}
	}

	if len(entities) > 0 {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "## Related Entities")
		for _, n := range entities {
			parts = append(parts, "- "+entityLine(n))
		}
	}

	return strings.Join(parts, "\n")
}

func matchText(m vector.Match) string {
	if m.Text != "" {
		return m.Text
	}
	s, _ := m.Metadata["text"].(string)
	return s
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func entityLine(n graph.Node) string {
	name, _ := n.Props["name"].(string)
	if name == "" {
		name = "Unknown"
	}
	if typ, _ := n.Props["type"].(string); typ != "" {
		return name + " (" + typ + ")"
	}
	return name
}
