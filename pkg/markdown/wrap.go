// Width-aware wrapping. The consuming renderer conceals link URLs and
// emphasis markers (vim conceallevel=2 style), so lines are wrapped by the
// width a reader sees, not by raw character count.
package markdown

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultWidth is the target visual column budget.
	DefaultWidth = 100
	// DefaultConcealCap bounds how much of a single link is treated as
	// concealed; past the cap, the rest of the URL counts toward the wrap
	// width so one very long URL cannot produce an unboundedly long line.
	DefaultConcealCap = 50
)

// linkRe matches inline [text](url) syntax. It also covers the bracket
// part of an image reference, which conceals the same way.
var linkRe = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)

// Placeholder encoding: one marker rune followed by padding runes, sized to
// the link's visual width. Padding only ever follows its own marker, so
// restoration can scan left to right.
const (
	linkMarker = '\x00'
	linkPad    = '\x01'
)

func stripEmphasis(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '*' || r == '_' {
			return -1
		}
		return r
	}, s)
}

func emphasisCount(s string) int {
	return strings.Count(s, "*") + strings.Count(s, "_")
}

// maskLinks replaces each [text](url) with a single-word placeholder sized
// to the link's visual width: the emphasis-stripped text, plus any
// concealed overflow past the cap. Returns the masked line and the
// original link strings in left-to-right order.
func maskLinks(line string, conceal int) (string, []string) {
	var links []string
	masked := linkRe.ReplaceAllStringFunc(line, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		visible := utf8.RuneCountInString(stripEmphasis(sub[1]))
		if visible < 1 {
			visible = 1
		}
		concealed := utf8.RuneCountInString(m) - visible
		if concealed > conceal {
			visible += concealed - conceal
		}
		links = append(links, m)
		return string(linkMarker) + strings.Repeat(string(linkPad), visible-1)
	})
	return masked, links
}

// restoreLinks replaces each placeholder with its original [text](url),
// consuming links left to right across all lines.
func restoreLinks(lines []string, links []string) []string {
	next := 0
	out := make([]string, len(lines))
	for i, ln := range lines {
		var b strings.Builder
		for _, r := range ln {
			switch r {
			case linkMarker:
				b.WriteString(links[next])
				next++
			case linkPad:
				// swallowed: padding for the preceding marker
			default:
				b.WriteRune(r)
			}
		}
		out[i] = b.String()
	}
	return out
}

// visualWidth is the number of code points a reader sees: raw length minus
// concealed link syntax (capped per link) minus emphasis markers.
func visualWidth(line string, conceal int) int {
	masked, _ := maskLinks(line, conceal)
	return utf8.RuneCountInString(masked) - emphasisCount(masked)
}

// exemptFromWrap reports lines whose raw length does not reflect
// reader-visible width the same way, and where wrapping would corrupt
// syntax.
func exemptFromWrap(line string) bool {
	return strings.TrimSpace(line) == "" ||
		atxHeadingRe.MatchString(line) ||
		hruleRe.MatchString(line) ||
		strings.HasPrefix(line, "|") ||
		strings.HasPrefix(line, "![")
}

// wrapWords greedily wraps a masked line at width code points, never
// breaking inside a word. Continuation lines are prefixed with indent,
// which counts toward the width.
func wrapWords(s string, width int, indent string) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{s}
	}
	indentWidth := utf8.RuneCountInString(indent)
	var lines []string
	cur := words[0]
	curWidth := utf8.RuneCountInString(words[0])
	for _, w := range words[1:] {
		wl := utf8.RuneCountInString(w)
		if curWidth+1+wl > width {
			lines = append(lines, cur)
			cur = indent + w
			curWidth = indentWidth + wl
		} else {
			cur += " " + w
			curWidth += 1 + wl
		}
	}
	return append(lines, cur)
}

// wrapLine wraps one non-exempt line: blockquote lines keep their "> "
// prefix on every continuation, list continuations align under the item's
// content start.
func wrapLine(line string, width, conceal int) []string {
	prefix := ""
	indent := ""
	inner := line
	if m := quoteRe.FindString(line); m != "" {
		prefix = "> "
		inner = line[len(m):]
		width -= utf8.RuneCountInString(prefix)
	} else if m := listMarkerRe.FindString(line); m != "" {
		indent = strings.Repeat(" ", len(m))
	}

	masked, links := maskLinks(inner, conceal)
	// Emphasis markers are concealed but still occupy the column budget,
	// so the effective width grows by their count.
	wrapped := wrapWords(masked, width+emphasisCount(masked), indent)
	restored := restoreLinks(wrapped, links)
	if prefix != "" {
		for i := range restored {
			restored[i] = prefix + restored[i]
		}
	}
	return restored
}

// Wrap re-wraps reflowed markdown so no rendered line exceeds width visible
// code points, except when a single concealed-adjusted word is itself wider
// than the budget (words are never split or hyphenated).
func Wrap(s string, cfg Config) string {
	width := cfg.Width
	if width <= 0 {
		width = DefaultWidth
	}
	conceal := cfg.ConcealCap
	if conceal <= 0 {
		conceal = DefaultConcealCap
	}

	var out []string
	inFence := false
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence || exemptFromWrap(line) || visualWidth(line, conceal) <= width {
			out = append(out, strings.TrimRight(line, " \t"))
			continue
		}
		for _, wl := range wrapLine(line, width, conceal) {
			out = append(out, strings.TrimRight(wl, " \t"))
		}
	}
	return strings.Join(out, "\n")
}
