// Heading reconciliation: extractors and language models routinely invent
// headings or drop the real ones, so the candidate markdown's heading
// structure is rebuilt from the source HTML.
package markdown

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Heading is a heading found in the source HTML, with enough of the text
// that followed it to locate its position in candidate markdown.
type Heading struct {
	Level      int    // 1..6, from the tag name
	Text       string // heading text, whitespace-collapsed
	Context    string // first ~120 chars of text after the heading closes
	RuleBefore bool   // an <hr> appeared since the previous heading closed
}

// contextLimit caps how much following text is captured per heading.
const contextLimit = 120

// minContextLen is the minimum context length for a non-h1 heading to be
// considered real content rather than a nav/menu label.
const minContextLen = 20

// boilerplateHeadings are nav/footer headings that never carry content.
// Dropped at any level except h1.
var boilerplateHeadings = map[string]bool{
	"":                true,
	"share":           true,
	"subscribe":       true,
	"ready for more?": true,
}

// rawTextTags are elements whose text content is never article text.
var rawTextTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// collapseSpace joins all whitespace runs into single spaces and truncates
// to max runes (0 = no limit).
func collapseSpace(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max > 0 {
		if r := []rune(s); len(r) > max {
			s = string(r[:max])
		}
	}
	return s
}

// ExtractHeadings scans raw HTML in a single tokenizer pass and returns the
// content headings in document order. Malformed HTML fails soft: whatever
// was recognized before the parse broke down is returned, possibly nothing.
func ExtractHeadings(rawHTML string) []Heading {
	z := html.NewTokenizer(strings.NewReader(rawHTML))

	var (
		found     []Heading
		level     int // current open heading tag, 0 = none
		text      strings.Builder
		capturing bool // accumulating following_context for the last heading
		after     strings.Builder
		ruleSeen  bool
		skipTag   string // inside a script/style/etc element
	)

	// flushAfter attaches the accumulated following text to the most
	// recently recorded heading.
	flushAfter := func() {
		if capturing && len(found) > 0 {
			found[len(found)-1].Context = collapseSpace(after.String(), contextLimit)
		}
		capturing = false
		after.Reset()
	}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a tokenizer failure: either way, stop here.
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tt == html.StartTagToken && rawTextTags[tag] {
				skipTag = tag
				continue
			}
			if lvl := headingLevel(tag); lvl > 0 && tt == html.StartTagToken {
				flushAfter()
				level = lvl
				text.Reset()
			} else if tag == "hr" {
				ruleSeen = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == skipTag {
				skipTag = ""
				continue
			}
			if lvl := headingLevel(tag); lvl > 0 && lvl == level {
				if t := collapseSpace(text.String(), 0); t != "" {
					found = append(found, Heading{Level: level, Text: t, RuleBefore: ruleSeen})
					ruleSeen = false
					capturing = true
					after.Reset()
				}
				level = 0
			}
		case html.TextToken:
			if skipTag != "" {
				continue
			}
			data := string(z.Text())
			if level > 0 {
				text.WriteString(data)
			} else if capturing {
				after.WriteString(data)
				if after.Len() >= contextLimit {
					flushAfter()
				}
			}
		}
	}
	flushAfter()

	// Drop nav/menu headings: boilerplate text, or no real body text
	// following them.
	var out []Heading
	for _, h := range found {
		if h.Level != 1 {
			if boilerplateHeadings[strings.ToLower(strings.TrimSpace(h.Text))] {
				continue
			}
			if len([]rune(h.Context)) <= minContextLen {
				continue
			}
		}
		out = append(out, h)
	}
	return out
}

// atxHeadingRe matches markdown ATX heading lines.
var atxHeadingRe = regexp.MustCompile(`^#{1,6}\s+`)

// anchorWords is the maximum number of context words used for matching.
const anchorWords = 12

// anchorPattern builds a whitespace-tolerant, case-insensitive pattern from
// the first words of a heading's following context. Returns nil if there is
// too little context to anchor reliably.
func anchorPattern(context string) *regexp.Regexp {
	words := strings.Fields(context)
	if len(words) > anchorWords {
		words = words[:anchorWords]
	}
	if len(words) < 3 {
		return nil
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, `\s+`))
}

// ReconcileHeadings strips every ATX heading the candidate invented and
// re-injects the real ones found in the source HTML. The first h1 is
// prepended directly (the text following an h1 in full-page HTML is
// typically nav/byline boilerplate the extractor already dropped, so
// context matching would mis-anchor). Other levels are placed by matching
// their following context; a heading whose context cannot be located is
// dropped rather than guessed.
func ReconcileHeadings(candidate string, headings []Heading, diag *Diagnostics) string {
	var stripped []string
	removed := 0
	for _, line := range strings.Split(candidate, "\n") {
		if atxHeadingRe.MatchString(line) {
			removed++
			continue
		}
		stripped = append(stripped, line)
	}
	if removed > 0 {
		diag.Addf(StageReconcile, "stripped %d candidate heading(s)", removed)
	}
	text := strings.Join(stripped, "\n")

	for _, h := range headings {
		if h.Level == 1 {
			text = "# " + h.Text + "\n\n" + strings.TrimLeft(text, " \t\n")
			break
		}
	}

	// Injection points are computed against the same base text and applied
	// in descending byte order, last heading first, so no insertion shifts
	// an offset a later edit depends on.
	type edit struct {
		pos  int
		text string
		ord  int // document order, for stable placement at equal offsets
	}
	var edits []edit
	for i, h := range headings {
		if h.Level == 1 {
			continue
		}
		pat := anchorPattern(h.Context)
		if pat == nil {
			diag.Addf(StageReconcile, "h%d %q: too little context to anchor", h.Level, h.Text)
			continue
		}
		m := pat.FindStringIndex(text)
		if m == nil {
			diag.Addf(StageReconcile, "h%d %q: context not found in candidate", h.Level, h.Text)
			continue
		}
		// Back up to the start of the line containing the match.
		lineStart := strings.LastIndexByte(text[:m[0]], '\n')
		if lineStart == -1 {
			lineStart = 0
		}
		var b strings.Builder
		b.WriteString("\n\n")
		if h.RuleBefore {
			b.WriteString("---\n")
		}
		fmt.Fprintf(&b, "%s %s\n", strings.Repeat("#", h.Level), h.Text)
		if lineStart == 0 {
			// No preceding newline to supply the blank line below the heading.
			b.WriteString("\n")
		}
		edits = append(edits, edit{pos: lineStart, text: b.String(), ord: i})
	}
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].pos != edits[j].pos {
			return edits[i].pos > edits[j].pos
		}
		return edits[i].ord > edits[j].ord
	})
	for _, e := range edits {
		text = text[:e.pos] + e.text + text[e.pos:]
	}

	return blankRunRe.ReplaceAllString(text, "\n\n")
}
