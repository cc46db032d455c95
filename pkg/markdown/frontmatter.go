package markdown

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FrontMatter is the metadata block emitted above the article body.
// Constructed fresh per conversion and never mutated after creation.
type FrontMatter struct {
	Title  string
	Author string
	Source string
	Saved  time.Time
}

// yamlSpecialRe matches characters that force a value to be quoted.
var yamlSpecialRe = regexp.MustCompile("[:#{}\\[\\]&*!|>'\"%@`]")

// escapeYAML quotes a string value if it contains YAML-significant
// characters or starts with a dash; otherwise it is emitted bare.
func escapeYAML(s string) string {
	if yamlSpecialRe.MatchString(s) || strings.HasPrefix(s, "-") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

// Render emits the complete document: front matter followed by the body.
// Curly quotes in title/author are straightened to match the normalization
// already applied to the body. The tags/progress fields are left empty for
// the reader to fill in.
func (fm FrontMatter) Render(body string) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", escapeYAML(quoteReplacer.Replace(fm.Title)))
	fmt.Fprintf(&b, "author: %s\n", escapeYAML(quoteReplacer.Replace(fm.Author)))
	fmt.Fprintf(&b, "source: %s\n", fm.Source)
	fmt.Fprintf(&b, "saved: %s\n", fm.Saved.UTC().Format(time.RFC3339))
	b.WriteString("tags:\n")
	b.WriteString("progress:\n")
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n")
	return b.String()
}
