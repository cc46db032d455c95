package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pagefold/pagefold/pkg/config"
	"github.com/pagefold/pagefold/pkg/extract"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

const articleHTML = `<html><head><title>Pipeline Test Article</title></head><body>
<article>
<h1>Pipeline Test Article</h1>
<p>This is the main article content with enough text for the extraction
heuristics to identify it as significant. It keeps going for a while so the
content density thresholds are comfortably met across the whole region.</p>
<h2>Details</h2>
<p>The details section has its own paragraph of substantial following text
so the heading survives extraction and can be re-anchored downstream.</p>
</article>
</body></html>`

func testCLIConfig() cliConfig {
	return cliConfig{
		extractorName: "readability",
		timeout:       5 * time.Second,
		noImages:      true,
		logger:        quietLog,
	}
}

func TestProcessURL_EndToEnd(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	cfg := testCLIConfig()
	c, err := processURL(context.Background(), srv.URL, cfg, extract.Readability{})
	if err != nil {
		t.Fatal(err)
	}
	if c.meta.Title != "Pipeline Test Article" {
		t.Errorf("title = %q", c.meta.Title)
	}
	if !strings.HasPrefix(c.result.Body, "# Pipeline Test Article") {
		t.Errorf("body does not lead with h1: %q", c.result.Body)
	}
	if !strings.HasPrefix(c.result.Document, "---\n") {
		t.Errorf("document missing front matter: %q", c.result.Document)
	}
	if !strings.Contains(c.result.Document, "source: "+srv.URL) {
		t.Errorf("source missing: %q", c.result.Document)
	}
}

func TestProcessURL_TitleOverride(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	cfg := testCLIConfig()
	cfg.titleOverride = "My Custom Title"
	c, err := processURL(context.Background(), srv.URL, cfg, extract.Readability{})
	if err != nil {
		t.Fatal(err)
	}
	if c.meta.Title != "My Custom Title" {
		t.Errorf("title = %q", c.meta.Title)
	}
}

func TestProcessURL_FetchError(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := processURL(context.Background(), srv.URL, testCLIConfig(), extract.Readability{}); err == nil {
		t.Fatal("expected error for 404 page")
	}
}

func TestConvertConfig_ImageClientWired(t *testing.T) {
	mcfg := convertConfig(testCLIConfig())
	if mcfg.HTTPClient == nil {
		t.Fatal("image download client not set")
	}
	if mcfg.HTTPClient == http.DefaultClient {
		t.Error("image downloads must not fall back to http.DefaultClient")
	}
}

func TestHasContentH1(t *testing.T) {
	if !hasContentH1("<h1>Title</h1>") {
		t.Error("h1 not detected")
	}
	if hasContentH1("<h2>Only a subheading</h2><p>with some following text content</p>") {
		t.Error("h2 mistaken for h1")
	}
}

func TestReadURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	contents := "https://example.com/one\n\n# a comment\nhttps://example.com/two\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	urls, err := readURLFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 || urls[0] != "https://example.com/one" || urls[1] != "https://example.com/two" {
		t.Errorf("got %v", urls)
	}
}

func TestNewExtractor_Readability(t *testing.T) {
	cfg := testCLIConfig()
	ex, err := newExtractor(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ex.(extract.Readability); !ok {
		t.Errorf("got %T, want extract.Readability", ex)
	}
}

func TestNewExtractor_ReaderRequiresEndpoint(t *testing.T) {
	cfg := testCLIConfig()
	cfg.extractorName = "reader"
	if _, err := newExtractor(cfg); err == nil {
		t.Error("expected error without reader_endpoint")
	}
	cfg.file = config.Config{ReaderEndpoint: "https://reader.example.com"}
	if _, err := newExtractor(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewExtractor_Unknown(t *testing.T) {
	cfg := testCLIConfig()
	cfg.extractorName = "telepathy"
	if _, err := newExtractor(cfg); err == nil {
		t.Error("expected error for unknown extractor")
	}
}

func TestRun_SingleURLToStdoutFile(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "article.md")
	cfg := testCLIConfig()
	cfg.output = out
	cfg.args = []string{srv.URL}
	if err := run(cfg); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "---\n") {
		t.Errorf("output file missing front matter: %q", data)
	}
}

func TestRun_SavesToStore(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	cfg := testCLIConfig()
	cfg.dataDir = dataDir
	cfg.args = []string{srv.URL}
	if err := run(cfg); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dataDir, "index.json")); err != nil {
		t.Errorf("catalog not written: %v", err)
	}
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	foundDir := false
	for _, e := range entries {
		if e.IsDir() {
			foundDir = true
			if _, err := os.Stat(filepath.Join(dataDir, e.Name(), "index.md")); err != nil {
				t.Errorf("article index.md missing: %v", err)
			}
		}
	}
	if !foundDir {
		t.Error("no article directory created")
	}
}

func TestRun_SingleURLWrongArgCount(t *testing.T) {
	cfg := testCLIConfig()
	cfg.args = nil
	if err := run(cfg); err == nil {
		t.Error("expected error with no URL")
	}
}

func TestRun_EpubRequiresOutput(t *testing.T) {
	cfg := testCLIConfig()
	cfg.epubMode = true
	cfg.args = []string{"https://example.com"}
	if err := run(cfg); err == nil || !strings.Contains(err.Error(), "-o") {
		t.Errorf("got %v, want -o requirement error", err)
	}
}
