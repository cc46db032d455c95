package extract

import (
	"context"
	"net/url"
	"strings"
	"testing"
)

func TestReadability_BasicHTML(t *testing.T) {
	html := `<html><head><title>Test Article</title></head><body>
		<nav><a href="/">Home</a><a href="/about">About</a></nav>
		<article>
			<h1>Test Article</h1>
			<p>This is a test article with enough content to be considered the main article.
			It needs to be reasonably long so that readability considers it significant content.
			Here is another paragraph to add more text. And another sentence for good measure.
			The readability algorithm needs substantial text to work properly.</p>
			<p>Second paragraph with more content. This helps readability determine that this
			is indeed the main article content of the page. More text here for thoroughness.
			And even more text to ensure this passes the readability threshold easily.</p>
		</article>
		<footer>Copyright 2024</footer>
	</body></html>`

	u, _ := url.Parse("https://example.com/article")
	got, err := (Readability{}).Extract(context.Background(), html, u)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "test article with enough content") {
		t.Errorf("article content missing from markdown: %q", got)
	}
	if strings.Contains(got, "<p>") || strings.Contains(got, "<article>") {
		t.Errorf("html tags leaked into markdown: %q", got)
	}
	if strings.Contains(got, "Copyright 2024") {
		t.Errorf("footer boilerplate survived: %q", got)
	}
}

func TestReadability_EmptyContent(t *testing.T) {
	html := `<html><head><title>Empty</title></head><body></body></html>`
	u, _ := url.Parse("https://example.com/empty")
	_, err := (Readability{}).Extract(context.Background(), html, u)
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	if !strings.Contains(err.Error(), "no content") {
		t.Errorf("expected 'no content' error, got: %v", err)
	}
}

func TestReadability_DataURIImageBecomesPlaceholder(t *testing.T) {
	html := `<html><head><title>Image Test</title></head><body>
		<article>
			<h1>Image Test</h1>
			<p>This article contains a base64 data URI image that must not be inlined
			into the markdown. It needs enough text so readability considers this the
			main content area. Here is additional padding for the algorithm.</p>
			<img src="data:image/png;base64,iVBORw0KGgoAAAANSUhEUg" alt="red square">
			<p>More article content here. This paragraph adds more text to the article
			so that readability is confident this is the main content region. The more
			text we have, the more confident readability will be in extracting it.</p>
		</article>
	</body></html>`

	u, _ := url.Parse("https://example.com/article")
	got, err := (Readability{}).Extract(context.Background(), html, u)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "base64") {
		t.Errorf("data URI leaked into markdown: %q", got)
	}
	if !strings.Contains(got, "[Image: red square]") {
		t.Errorf("alt placeholder missing: %q", got)
	}
}

func TestReadability_ConvertsMarkdownSyntax(t *testing.T) {
	html := `<html><body><article>
		<h1>Syntax Test</h1>
		<p>A paragraph with a <a href="https://example.com/ref">reference link</a> and
		<strong>bold text</strong> inside it. The surrounding prose needs to be long
		enough for the extraction heuristics to keep the whole region as content.</p>
		<p>Another chunk of prose so the density signals are comfortably met. This is
		filler text but the extractor does not know that, it just counts characters.</p>
	</article></body></html>`

	u, _ := url.Parse("https://example.com/syntax")
	got, err := (Readability{}).Extract(context.Background(), html, u)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "[reference link](https://example.com/ref)") {
		t.Errorf("link not converted: %q", got)
	}
	if !strings.Contains(got, "**bold text**") {
		t.Errorf("bold not converted: %q", got)
	}
}
