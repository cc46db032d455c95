// Package extract produces candidate markdown from raw page HTML. Three
// interchangeable producers exist — the readability heuristic, a hosted
// model endpoint, and a reader service — plus shared metadata extraction
// and HTML pre-cleaning. The reconciliation pipeline downstream does not
// care which producer made the candidate.
package extract

import (
	"context"
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Extractor produces candidate markdown from raw page HTML.
type Extractor interface {
	Extract(ctx context.Context, rawHTML string, pageURL *url.URL) (string, error)
}

var (
	titleTagRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	ogTitleRe  = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']+)["']`)
	ogTitleRe2 = regexp.MustCompile(`(?i)<meta[^>]+content=["']([^"']+)["'][^>]+property=["']og:title["']`)
	h1Re       = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	linkOnlyRe = regexp.MustCompile(`(?is)^\s*<a\s[^>]*>.*?</a>\s*$`)
	authorRe   = regexp.MustCompile(`(?i)<meta[^>]+name=["']author["'][^>]+content=["']([^"']+)["']`)
	anyTagRe   = regexp.MustCompile(`<[^>]+>`)
)

// garbageTitles are SPA-shell and bot-challenge page titles that must not
// be mistaken for an article title.
var garbageTitles = map[string]bool{
	"javascript is not available": true,
	"just a moment":               true,
	"attention required":          true,
}

// Metadata pulls title and author out of the page head. Title priority:
// first non-link h1 > og:title > <title>. Nav/masthead h1 tags are
// typically a bare site link, so those are skipped.
func Metadata(rawHTML string) (title, author string) {
	if m := titleTagRe.FindStringSubmatch(rawHTML); m != nil {
		title = html.UnescapeString(strings.TrimSpace(m[1]))
	}
	if m := ogTitleRe.FindStringSubmatch(rawHTML); m != nil {
		title = html.UnescapeString(strings.TrimSpace(m[1]))
	} else if m := ogTitleRe2.FindStringSubmatch(rawHTML); m != nil {
		title = html.UnescapeString(strings.TrimSpace(m[1]))
	}
	for _, m := range h1Re.FindAllStringSubmatch(rawHTML, -1) {
		inner := strings.TrimSpace(m[1])
		if linkOnlyRe.MatchString(inner) {
			continue
		}
		if t := html.UnescapeString(strings.TrimSpace(anyTagRe.ReplaceAllString(inner, ""))); t != "" {
			title = t
			break
		}
	}
	if garbageTitles[strings.TrimRight(strings.ToLower(title), ".")] {
		title = ""
	}

	if m := authorRe.FindStringSubmatch(rawHTML); m != nil {
		author = html.UnescapeString(strings.TrimSpace(m[1]))
	}
	return title, author
}

var (
	scriptRe   = regexp.MustCompile(`(?is)<[ ]*script.*?/[ ]*script[ ]*>`)
	styleRe    = regexp.MustCompile(`(?is)<[ ]*style.*?/[ ]*style[ ]*>`)
	metaTagRe  = regexp.MustCompile(`(?is)<[ ]*meta.*?>`)
	commentRe  = regexp.MustCompile(`(?is)<[ ]*!--.*?--[ ]*>`)
	linkTagRe  = regexp.MustCompile(`(?is)<[ ]*link.*?>`)
	dataImgRe  = regexp.MustCompile(`<img[^>]+src="data:image/[^;]+;base64,[^"]+"[^>]*>`)
	svgInnerRe = regexp.MustCompile(`(?s)(<svg[^>]*>)(.*?)(</svg>)`)
)

// CleanHTML strips scripts, styles, meta/link tags, comments, base64 image
// payloads, and SVG bodies. Applied before heading extraction and before
// model submission, where the payload bytes only waste tokens.
func CleanHTML(rawHTML string) string {
	rawHTML = scriptRe.ReplaceAllString(rawHTML, "")
	rawHTML = styleRe.ReplaceAllString(rawHTML, "")
	rawHTML = metaTagRe.ReplaceAllString(rawHTML, "")
	rawHTML = commentRe.ReplaceAllString(rawHTML, "")
	rawHTML = linkTagRe.ReplaceAllString(rawHTML, "")
	rawHTML = dataImgRe.ReplaceAllString(rawHTML, `<img src="#"/>`)
	rawHTML = svgInnerRe.ReplaceAllString(rawHTML, "$1$3")
	return rawHTML
}
