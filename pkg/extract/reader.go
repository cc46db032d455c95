package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// ReaderService fetches candidate markdown from a reader-style endpoint
// (GET <base>/<url> with Accept: text/markdown). The service fetches and
// converts the page itself, so the raw HTML input is unused.
type ReaderService struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

func (r *ReaderService) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

func (r *ReaderService) Extract(ctx context.Context, rawHTML string, pageURL *url.URL) (string, error) {
	endpoint := strings.TrimSuffix(r.BaseURL, "/") + "/" + pageURL.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/markdown")
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("reader service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader service HTTP %d for %s", resp.StatusCode, pageURL)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reader service: reading response: %w", err)
	}
	return CleanReaderOutput(string(raw)), nil
}

var (
	emptyAnchorRe   = regexp.MustCompile(`\[\]\([^)]+\)`)
	figureCaptionRe = regexp.MustCompile(`(?m)^ +Figure \d+\..*$`)
	footnoteRefRe   = regexp.MustCompile(`(\w\.)(\d{1,2})(\s+[A-Z])`)
	linkNoSpaceLRe  = regexp.MustCompile(`(\w)\[([^\]]+)\]\(`)
	linkNoSpaceRRe  = regexp.MustCompile(`\]\(([^)]*)\)(\w)`)
	heroBoilerRe    = regexp.MustCompile(`(?m)^[_*]This was published`)
	setextLinkRe    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)\n-{3,}`)
	atxLinkRe       = regexp.MustCompile(`(?m)^(#{1,6})\s+\[([^\]]+)\]\([^)]+\)`)
	starRuleRe      = regexp.MustCompile(`(?m)^\* \* \*$`)
	starBulletRe    = regexp.MustCompile(`(?m)^\*\s{1,3}`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
	paraSplitRe     = regexp.MustCompile(`\n\n+`)
)

// captionish reports a plain-text line that duplicates an image caption:
// not a heading, image, link, list, code, quote, or table line.
func captionish(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	switch line[0] {
	case '#', '!', '[', '*', '-', '`', '>', '|', ' ':
		return false
	}
	return true
}

// CleanReaderOutput strips reader-service framing and artifacts: the
// metadata header, empty anchors, image blocks with their captions, stray
// footnote reference digits, malformed heading syntax, and duplicated
// paragraphs. The reported title is prepended as an h1.
func CleanReaderOutput(raw string) string {
	lines := strings.Split(raw, "\n")

	title := ""
	for _, line := range lines {
		if strings.HasPrefix(line, "Title: ") {
			title = strings.TrimSpace(line[7:])
			break
		}
	}

	// Drop the metadata header, everything up to "Markdown Content:".
	start := 0
	for i, line := range lines {
		if strings.HasPrefix(line, "Markdown Content:") {
			start = i + 1
			break
		}
	}
	md := strings.Join(lines[start:], "\n")

	md = emptyAnchorRe.ReplaceAllString(md, "")

	// Strip image blocks (standalone ![...](url) and linked [![...](url)](url))
	// along with their following caption lines.
	mlines := strings.Split(md, "\n")
	var filtered []string
	skipUntil := -1
	for i, line := range mlines {
		if i <= skipUntil {
			continue
		}
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "![") || strings.HasPrefix(t, "[![") {
			skipUntil = i
			if i+1 < len(mlines) && strings.TrimSpace(mlines[i+1]) == "" {
				skipUntil = i + 1
				if i+2 < len(mlines) && captionish(mlines[i+2]) {
					skipUntil = i + 2
				}
			}
			continue
		}
		filtered = append(filtered, line)
	}
	md = strings.Join(filtered, "\n")

	md = figureCaptionRe.ReplaceAllString(md, "")

	// Remove plain-text caption lines that precede an image they duplicate.
	mlines = strings.Split(md, "\n")
	var cleaned []string
	for i, line := range mlines {
		if i+2 < len(mlines) &&
			strings.TrimSpace(mlines[i+1]) == "" &&
			strings.HasPrefix(mlines[i+2], "![") &&
			captionish(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}
	md = strings.Join(cleaned, "\n")

	// Stray footnote reference numbers: "1972.3 IC" -> "1972. IC".
	md = footnoteRefRe.ReplaceAllString(md, "$1$3")

	// Ensure links are space-separated from adjacent words.
	md = linkNoSpaceLRe.ReplaceAllString(md, "$1 [$2](")
	md = linkNoSpaceRRe.ReplaceAllString(md, "]($1) $2")

	// Hero/nav content preceding the article body.
	if m := heroBoilerRe.FindStringIndex(md); m != nil {
		md = md[m[0]:]
	}

	if title != "" {
		md = "# " + title + "\n\n" + md
	}

	// Setext-style h2 under a link: [Text](url)\n--- -> ## Text.
	md = setextLinkRe.ReplaceAllString(md, "## $1")
	// ATX headings wrapped in links: ### [Text](url) -> ### Text.
	md = atxLinkRe.ReplaceAllString(md, "$1 $2")

	md = starRuleRe.ReplaceAllString(md, "---")
	md = starBulletRe.ReplaceAllString(md, "- ")

	// Deduplicate consecutive identical paragraphs.
	paras := paraSplitRe.Split(md, -1)
	var deduped []string
	for _, p := range paras {
		if len(deduped) == 0 || strings.TrimSpace(p) != strings.TrimSpace(deduped[len(deduped)-1]) {
			deduped = append(deduped, p)
		}
	}
	md = strings.Join(deduped, "\n\n")

	md = blankRunRe.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}
