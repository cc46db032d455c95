// Package epub bundles converted markdown articles into an epub3 with a
// front matter table of contents.
package epub

import (
	"bytes"
	"encoding/base64"
	"fmt"
	gohtml "html"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	goepub "github.com/go-shiori/go-epub"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Article is one markdown document to include. Body may carry front
// matter, which is stripped before rendering. ImagesDir, when set, is the
// directory holding the local files referenced by images/<name> links.
type Article struct {
	Title     string
	Author    string
	SourceURL string
	SavedAt   time.Time
	Body      string
	ImagesDir string
}

// Options controls epub generation.
type Options struct {
	Title  string
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

var (
	localImgRe  = regexp.MustCompile(`(<img\b[^>]*?\bsrc\s*=\s*")images/([^"]+)(")`)
	stripTagsRe = regexp.MustCompile(`<[^>]*>`)
	firstH1Re   = regexp.MustCompile(`(?is)<h1\b[^>]*>(.*?)</h1>`)
)

var mdRenderer = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough),
)

// StripFrontMatter removes a leading --- delimited front matter block.
func StripFrontMatter(doc string) string {
	if !strings.HasPrefix(doc, "---\n") {
		return doc
	}
	rest := doc[4:]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return doc
	}
	return strings.TrimLeft(rest[end+5:], "\n")
}

// renderHTML converts article markdown to an HTML fragment.
func renderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// embedImages registers each images/<name> reference from disk with the
// epub and rewrites src attributes to internal paths. Missing or rejected
// files keep their original src and are logged.
func embedImages(e *goepub.Epub, body, imagesDir string, chapterIdx int, log *slog.Logger) string {
	if imagesDir == "" {
		return body
	}
	return localImgRe.ReplaceAllStringFunc(body, func(match string) string {
		parts := localImgRe.FindStringSubmatch(match)
		if parts == nil {
			return match
		}
		name := parts[2]
		src := filepath.Join(imagesDir, filepath.Base(name))
		if _, err := os.Stat(src); err != nil {
			log.Warn("image file missing", "path", src)
			return match
		}
		internal, err := e.AddImage(src, fmt.Sprintf("ch%03d_%s", chapterIdx, filepath.Base(name)))
		if err != nil {
			log.Warn("could not add image", "path", src, "error", err)
			return match
		}
		return parts[1] + internal + parts[3]
	})
}

func extractH1Title(body string) string {
	m := firstH1Re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(stripTagsRe.ReplaceAllString(m[1], ""))
}

func isAllowedAttr(a html.Attribute) bool {
	switch a.Key {
	case "id", "class", "style", "title", "lang", "dir",
		"href", "src", "alt", "width", "height",
		"colspan", "rowspan", "scope", "headers",
		"cite", "datetime", "name", "value", "type",
		"rel", "media", "start", "reversed":
		return true
	}
	if strings.HasPrefix(a.Key, "aria-") {
		return true
	}
	return a.Key == "epub:type"
}

var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Wbr: true,
}

// sanitizeForXHTML converts an HTML fragment to valid XHTML for epub.
// Strips non-standard attributes, self-closes void elements, and drops
// fragment links pointing at IDs the document doesn't define.
func sanitizeForXHTML(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}

	ids := map[string]bool{}
	var collectIDs func(*html.Node)
	collectIDs = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" {
					ids[a.Val] = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectIDs(c)
		}
	}
	collectIDs(doc)

	var clean func(*html.Node)
	clean = func(n *html.Node) {
		if n.Type == html.ElementNode {
			var filtered []html.Attribute
			for _, a := range n.Attr {
				if !isAllowedAttr(a) {
					continue
				}
				if a.Key == "href" && strings.HasPrefix(a.Val, "#") {
					frag := a.Val[1:]
					if frag != "" && !ids[frag] {
						continue
					}
				}
				filtered = append(filtered, a)
			}
			n.Attr = filtered
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			clean(c)
		}
	}
	clean(doc)

	var buf bytes.Buffer
	renderXHTML(&buf, doc)
	result := buf.String()

	// html.Parse wraps in <html><head><body>, extract just the body content
	if idx := strings.Index(result, "<body>"); idx >= 0 {
		result = result[idx+len("<body>"):]
		if end := strings.LastIndex(result, "</body>"); end >= 0 {
			result = result[:end]
		}
	}
	return result
}

func renderXHTML(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(html.EscapeString(n.Data))
	case html.ElementNode:
		buf.WriteByte('<')
		buf.WriteString(n.Data)
		for _, a := range n.Attr {
			buf.WriteByte(' ')
			buf.WriteString(a.Key)
			buf.WriteString(`="`)
			buf.WriteString(html.EscapeString(a.Val))
			buf.WriteByte('"')
		}
		if voidElements[n.DataAtom] && n.FirstChild == nil {
			buf.WriteString("/>")
			return
		}
		buf.WriteByte('>')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(buf, c)
		}
		buf.WriteString("</")
		buf.WriteString(n.Data)
		buf.WriteByte('>')
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(buf, c)
		}
	case html.CommentNode:
		// skip comments
	case html.RawNode:
		buf.WriteString(n.Data)
	}
}

// buildTOCBody generates the HTML body for the front matter table of
// contents: a linked list of articles with their authors and source URLs.
func buildTOCBody(articles []Article) string {
	var b strings.Builder
	b.WriteString("<h1>Contents</h1>\n<ol class=\"toc\">\n")
	for i, a := range articles {
		filename := fmt.Sprintf("article%03d.xhtml", i+1)
		title := a.Title
		if title == "" {
			title = fmt.Sprintf("Article %d", i+1)
		}
		b.WriteString("<li>\n")
		b.WriteString(fmt.Sprintf(`<a href="%s">%s</a>`, filename, gohtml.EscapeString(title)))
		b.WriteByte('\n')

		var meta []string
		if !a.SavedAt.IsZero() {
			meta = append(meta, gohtml.EscapeString(a.SavedAt.Format("January 2, 2006")))
		}
		if a.Author != "" {
			meta = append(meta, gohtml.EscapeString(a.Author))
		}
		metaLine := strings.Join(meta, " · ")

		if a.SourceURL != "" {
			displayURL := a.SourceURL
			for _, prefix := range []string{"https://", "http://"} {
				displayURL = strings.TrimPrefix(displayURL, prefix)
			}
			displayURL = strings.TrimSuffix(displayURL, "/")
			link := fmt.Sprintf(`<a href="%s">%s</a>`,
				gohtml.EscapeString(a.SourceURL), gohtml.EscapeString(displayURL))
			if metaLine != "" {
				metaLine += "<br/>" + link
			} else {
				metaLine = link
			}
		}

		if metaLine != "" {
			b.WriteString(fmt.Sprintf(`<p class="toc-meta">%s</p>`, metaLine))
			b.WriteByte('\n')
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</ol>\n")
	return b.String()
}

// Build creates an epub3 file from converted articles. It generates a
// front matter table of contents followed by the article sections.
func Build(articles []Article, opts Options, outputPath string) error {
	log := opts.logger()

	title := opts.Title
	if title == "" {
		title = "pagefold"
	}
	e, err := goepub.NewEpub(title)
	if err != nil {
		return fmt.Errorf("creating epub: %w", err)
	}
	e.SetLang("en")
	e.SetAuthor("pagefold")

	css := `body { margin: 1em; line-height: 1.5; }
img { max-width: 100%; height: auto; }
pre, code { font-size: 0.85em; }
blockquote { margin-left: 1em; padding-left: 0.5em; border-left: 2px solid #999; }
.toc { list-style-type: none; padding-left: 0; }
.toc li { margin-bottom: 1.2em; }
.toc a { text-decoration: none; }
.toc-meta { font-size: 0.85em; color: #666; margin-top: 0.1em; }
.toc-meta a { color: #666; }`
	cssDataURI := "data:text/css;base64," + base64.StdEncoding.EncodeToString([]byte(css))
	cssPath, err := e.AddCSS(cssDataURI, "styles.css")
	if err != nil {
		// CSS is optional, continue without it
		log.Warn("could not add CSS", "error", err)
		cssPath = ""
	}

	if _, err := e.AddSection(buildTOCBody(articles), "Contents", "contents.xhtml", cssPath); err != nil {
		log.Warn("could not add table of contents", "error", err)
	}

	for i, a := range articles {
		body, err := renderHTML(StripFrontMatter(a.Body))
		if err != nil {
			log.Warn("could not render article", "title", a.Title, "error", err)
			continue
		}

		chTitle := extractH1Title(body)
		if chTitle == "" {
			chTitle = a.Title
		}
		if chTitle == "" {
			chTitle = fmt.Sprintf("Article %d", i+1)
		}

		body = sanitizeForXHTML(body)
		body = embedImages(e, body, a.ImagesDir, i+1, log)

		filename := fmt.Sprintf("article%03d.xhtml", i+1)
		if _, err := e.AddSection(body, chTitle, filename, cssPath); err != nil {
			log.Warn("could not add section", "title", chTitle, "error", err)
			continue
		}
	}

	if err := e.Write(outputPath); err != nil {
		return fmt.Errorf("writing epub: %w", err)
	}
	return nil
}
