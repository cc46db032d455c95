// Structural reflow: extractor output (and HTML source whitespace) breaks
// paragraphs into short soft-wrapped lines. Rejoining them into one logical
// line per paragraph/list-item/blockquote lets the wrapper target the real
// display width.
package markdown

import (
	"regexp"
	"strings"
)

var (
	// structuralRe matches lines that must never be merged into a
	// paragraph, list, or blockquote buffer.
	structuralRe = regexp.MustCompile(
		"^(?:#{1,6}\\s" + // heading
			"|---+\\s*$" + // horizontal rule
			"|>" + // blockquote
			"|\\|" + // table row
			"|!\\[" + // image
			"|```" + // code fence
			"|\\s*[-*+]\\s+" + // unordered list
			"|\\s*\\d+[.)]\\s+" + // ordered list
			")")

	listMarkerRe = regexp.MustCompile(`^(\s*[-*+]\s+|\s*\d+[.)]\s+)`)
	quoteRe      = regexp.MustCompile(`^> ?`)
	hruleRe      = regexp.MustCompile(`^---+\s*$`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)

	openFenceRe  = regexp.MustCompile("^```\\s*(?:markdown)?\\s*\n?")
	closeFenceRe = regexp.MustCompile("\n?```\\s*$")

	quoteReplacer = strings.NewReplacer(
		"‘", "'", "’", "'", // curly apostrophes
		"“", `"`, "”", `"`, // curly quotes
	)
)

// Normalize prepares candidate markdown for reflowing: straightens curly
// quotes, strips a ```markdown wrapper fence left by generative models, and
// collapses runs of blank lines to one.
func Normalize(s string) string {
	s = quoteReplacer.Replace(s)
	s = openFenceRe.ReplaceAllString(s, "")
	s = closeFenceRe.ReplaceAllString(s, "")
	return blankRunRe.ReplaceAllString(s, "\n\n")
}

// Reflow rejoins soft-wrapped lines within paragraphs, list items, and
// blockquotes. Headings, rules, tables, images, blank lines, and fenced
// code pass through untouched, and flush any pending accumulation first.
// Output order always equals the order of each unit's first input line.
func Reflow(s string) string {
	var (
		out     []string
		para    []string
		quote   []string
		item    []string
		indent  string // continuation indent of the open list item
		inFence bool
	)

	flushQuote := func() {
		if len(quote) > 0 {
			out = append(out, "> "+strings.Join(quote, " "))
			quote = nil
		}
	}
	flushPara := func() {
		if len(para) > 0 {
			out = append(out, strings.Join(para, " "))
			para = nil
		}
	}
	flushItem := func() {
		if len(item) > 0 {
			out = append(out, strings.Join(item, " "))
			item = nil
			indent = ""
		}
	}
	flushAll := func() {
		flushQuote()
		flushPara()
		flushItem()
	}

	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```"):
			flushAll()
			out = append(out, line)
			inFence = !inFence
		case inFence:
			out = append(out, line)
		case quoteRe.MatchString(line):
			flushPara()
			flushItem()
			inner := quoteRe.ReplaceAllString(line, "")
			if strings.TrimSpace(inner) != "" && !structuralRe.MatchString(inner) {
				quote = append(quote, inner)
			} else {
				// Nested structure inside the quote, or an empty quote
				// line: keep it verbatim.
				flushQuote()
				out = append(out, line)
			}
		default:
			if m := listMarkerRe.FindString(line); m != "" {
				flushAll()
				item = []string{line}
				indent = strings.Repeat(" ", len(m))
			} else if len(item) > 0 && trimmed != "" &&
				strings.HasPrefix(line, indent) && !structuralRe.MatchString(trimmed) {
				item = append(item, trimmed)
			} else if trimmed != "" && line[0] != ' ' && line[0] != '\t' &&
				!structuralRe.MatchString(line) {
				flushQuote()
				flushItem()
				para = append(para, line)
			} else {
				flushAll()
				out = append(out, line)
			}
		}
	}
	flushAll()
	return strings.Join(out, "\n")
}
