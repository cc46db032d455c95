// pagefold: Fetch articles and save them as wrapped markdown with local
// images.
//
// Single article mode:
//
//	pagefold [options] <URL>
//
// Epub mode (multiple articles):
//
//	pagefold [options] -epub -o output.epub <URL|file> [<URL|file>...]
//
// Catalog listing:
//
//	pagefold -list [query]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pagefold/pagefold/pkg/config"
	"github.com/pagefold/pagefold/pkg/epub"
	"github.com/pagefold/pagefold/pkg/extract"
	"github.com/pagefold/pagefold/pkg/fetch"
	"github.com/pagefold/pagefold/pkg/images"
	"github.com/pagefold/pagefold/pkg/markdown"
	"github.com/pagefold/pagefold/pkg/storage"
)

// logOut is the writer for informational/progress output.
// In silent mode it is set to io.Discard so only errors reach the user.
var logOut io.Writer = os.Stderr

// minCandidateLen is the extraction length below which the page is
// refetched once with a doubled timeout, for slow pages that render
// their content late.
const minCandidateLen = 500

// cliConfig holds parsed command-line options merged with the config file.
type cliConfig struct {
	output        string
	titleOverride string
	extractorName string
	timeout       time.Duration
	userAgent     string
	width         int
	noImages      bool
	optimize      bool
	optimizeOpts  images.OptimizeOpts
	epubMode      bool
	listMode      bool
	dataDir       string
	file          config.Config
	logger        *slog.Logger
	args          []string
}

// newExtractor selects the candidate producer for -extractor.
func newExtractor(cfg cliConfig) (extract.Extractor, error) {
	switch cfg.extractorName {
	case "", "readability":
		return extract.Readability{}, nil
	case "reader":
		if cfg.file.ReaderEndpoint == "" {
			return nil, fmt.Errorf("-extractor reader requires reader_endpoint in %s", config.Path())
		}
		return &extract.ReaderService{
			BaseURL:   cfg.file.ReaderEndpoint,
			UserAgent: cfg.userAgent,
		}, nil
	case "model":
		if cfg.file.Endpoint == "" {
			return nil, fmt.Errorf("-extractor model requires endpoint in %s", config.Path())
		}
		return &extract.ModelService{Endpoint: cfg.file.Endpoint}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q (want readability, reader, or model)", cfg.extractorName)
	}
}

// converted is one fully processed article ready for output.
type converted struct {
	meta   storage.Meta
	result *markdown.Result
}

// processURL fetches a URL and runs the full conversion pipeline.
func processURL(ctx context.Context, rawURL string, cfg cliConfig, ex extract.Extractor) (*converted, error) {
	htmlBytes, pageURL, err := fetch.HTML(rawURL, cfg.timeout, cfg.userAgent)
	if err != nil {
		return nil, err
	}
	rawHTML := string(htmlBytes)

	title, author := extract.Metadata(rawHTML)
	if cfg.titleOverride != "" {
		title = cfg.titleOverride
	}
	fmt.Fprintf(logOut, "Title: %s\n", title)

	candidate, err := ex.Extract(ctx, rawHTML, pageURL)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", rawURL, err)
	}

	// Slow pages sometimes serve a stub on the first request. One retry
	// with a doubled timeout, keeping whichever extraction is longer.
	if len(candidate) < minCandidateLen {
		fmt.Fprintf(logOut, "Short extraction (%d chars), retrying...\n", len(candidate))
		if retryBytes, retryURL, rerr := fetch.HTML(rawURL, 2*cfg.timeout, cfg.userAgent); rerr == nil {
			if retry, rerr := ex.Extract(ctx, string(retryBytes), retryURL); rerr == nil && len(retry) > len(candidate) {
				rawHTML = string(retryBytes)
				candidate = retry
			}
		}
	}

	// When the page has no content h1 the reconciler can't supply one, so
	// the document title leads the candidate instead.
	if title != "" && !hasContentH1(rawHTML) && !strings.HasPrefix(candidate, "# ") {
		candidate = "# " + title + "\n\n" + candidate
	}

	result, err := markdown.Convert(ctx, markdown.Input{
		RawHTML:   rawHTML,
		Candidate: candidate,
		Title:     title,
		Author:    author,
		SourceURL: pageURL.String(),
	}, convertConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", rawURL, err)
	}

	return &converted{
		meta: storage.Meta{
			Title:        title,
			Author:       author,
			SourceURL:    pageURL.String(),
			SourceDomain: pageURL.Hostname(),
		},
		result: result,
	}, nil
}

// convertConfig builds the conversion settings for one run. Image
// downloads share the page fetcher's client so they carry the same
// browser TLS fingerprint, SSRF guard, and proxy routing.
func convertConfig(cfg cliConfig) markdown.Config {
	mcfg := markdown.Config{
		Width:      cfg.width,
		SkipImages: cfg.noImages,
		HTTPClient: fetch.NewImageClient(cfg.timeout),
		Logger:     cfg.logger,
	}
	if cfg.optimize {
		opts := cfg.optimizeOpts
		mcfg.Optimize = &opts
	}
	return mcfg
}

func hasContentH1(rawHTML string) bool {
	for _, h := range markdown.ExtractHeadings(rawHTML) {
		if h.Level == 1 {
			return true
		}
	}
	return false
}

// readURLFile reads a file containing one URL per line, skipping blanks and comments.
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func openStore(cfg cliConfig) (*storage.Store, error) {
	dir := cfg.dataDir
	if dir == "" {
		dir = cfg.file.DataDir
	}
	return storage.New(dir)
}

func runList(cfg cliConfig) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	query := ""
	if len(cfg.args) > 0 {
		query = strings.Join(cfg.args, " ")
	}
	for _, meta := range store.Search(query) {
		line := fmt.Sprintf("%s  %s  %s", meta.ID, meta.SavedAt.Format("2006-01-02"), meta.Title)
		if meta.SourceDomain != "" {
			line += "  (" + meta.SourceDomain + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runEpub(ctx context.Context, cfg cliConfig, ex extract.Extractor) error {
	if cfg.output == "" {
		return fmt.Errorf("-epub requires -o output.epub")
	}
	if len(cfg.args) < 1 {
		return fmt.Errorf("epub mode requires at least one URL or file argument")
	}

	// Collect URLs from args (URLs or .txt files)
	var urls []string
	var txtFilename string // basename of first .txt file (for title derivation)
	for _, arg := range cfg.args {
		if strings.HasSuffix(arg, ".txt") {
			fileURLs, err := readURLFile(arg)
			if err != nil {
				return fmt.Errorf("reading %s: %w", arg, err)
			}
			urls = append(urls, fileURLs...)
			if txtFilename == "" {
				name := arg
				if idx := strings.LastIndex(name, "/"); idx >= 0 {
					name = name[idx+1:]
				}
				txtFilename = strings.TrimSuffix(name, ".txt")
			}
		} else {
			urls = append(urls, arg)
		}
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs provided")
	}

	// Parallelize with a bounded semaphore to avoid overwhelming resources
	results := make([]*converted, len(urls))
	var wg sync.WaitGroup
	sem := make(chan struct{}, 5)

	for i, rawURL := range urls {
		wg.Add(1)
		go func(i int, rawURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fmt.Fprintf(logOut, "[%d/%d] %s\n", i+1, len(urls), rawURL)
			c, err := processURL(ctx, rawURL, cfg, ex)
			if err != nil {
				fmt.Fprintf(logOut, "  Error: %v (skipping)\n", err)
				return
			}
			results[i] = c
		}(i, rawURL)
	}
	wg.Wait()

	// Image files live inside the epub itself, so the localized bytes go
	// to a scratch directory for go-epub to read from.
	tmpDir, err := os.MkdirTemp("", "pagefold-epub-")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	var articles []epub.Article
	for i, c := range results {
		if c == nil {
			continue
		}
		imagesDir := ""
		if len(c.result.Images) > 0 {
			imagesDir = fmt.Sprintf("%s/article%03d", tmpDir, i+1)
			if err := os.MkdirAll(imagesDir, 0755); err != nil {
				return fmt.Errorf("creating scratch directory: %w", err)
			}
			for _, img := range c.result.Images {
				name := strings.TrimPrefix(img.Path, "images/")
				if err := os.WriteFile(imagesDir+"/"+name, img.Data, 0644); err != nil {
					return fmt.Errorf("writing image %s: %w", name, err)
				}
			}
		}
		articles = append(articles, epub.Article{
			Title:     c.meta.Title,
			Author:    c.meta.Author,
			SourceURL: c.meta.SourceURL,
			SavedAt:   time.Now(),
			Body:      c.result.Body,
			ImagesDir: imagesDir,
		})
	}
	if len(articles) == 0 {
		return fmt.Errorf("no articles converted")
	}

	// Derive book title: -title flag > .txt filename > first article title > output filename
	bookTitle := cfg.titleOverride
	if bookTitle == "" && txtFilename != "" {
		bookTitle = txtFilename
	}
	if bookTitle == "" {
		bookTitle = articles[0].Title
		if len(articles) > 1 && bookTitle != "" {
			bookTitle += " & more"
		}
	}
	if bookTitle == "" {
		bookTitle = strings.TrimSuffix(cfg.output, ".epub")
		if idx := strings.LastIndex(bookTitle, "/"); idx >= 0 {
			bookTitle = bookTitle[idx+1:]
		}
	}

	fmt.Fprintf(logOut, "Building epub from %d articles...\n", len(articles))
	if err := epub.Build(articles, epub.Options{Title: bookTitle, Logger: cfg.logger}, cfg.output); err != nil {
		return fmt.Errorf("building epub: %w", err)
	}
	fmt.Fprintf(logOut, "✓ %s (%d articles)\n", cfg.output, len(articles))
	return nil
}

// run executes the main application logic, returning any error.
func run(cfg cliConfig) error {
	ctx := context.Background()

	if cfg.listMode {
		return runList(cfg)
	}

	ex, err := newExtractor(cfg)
	if err != nil {
		return err
	}

	if cfg.epubMode {
		return runEpub(ctx, cfg, ex)
	}

	// Single URL mode
	if len(cfg.args) != 1 {
		return fmt.Errorf("single URL mode requires exactly one URL argument")
	}

	c, err := processURL(ctx, cfg.args[0], cfg, ex)
	if err != nil {
		return err
	}

	if cfg.output == "-" {
		os.Stdout.WriteString(c.result.Document)
		return nil
	}
	if cfg.output != "" {
		if err := os.WriteFile(cfg.output, []byte(c.result.Document), 0644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		for _, img := range c.result.Images {
			fmt.Fprintf(logOut, "Note: image %s kept in-memory only; use the store for image files\n", img.Path)
		}
		return nil
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	article := &storage.Article{
		Meta:     c.meta,
		Document: c.result.Document,
		Images:   c.result.Images,
	}
	if err := store.Save(article); err != nil {
		return fmt.Errorf("saving article: %w", err)
	}
	dir, _ := store.Dir(article.Meta.ID)
	fmt.Fprintf(logOut, "✓ saved %s (%s)\n", article.Meta.ID, dir)
	return nil
}

func main() {
	output := flag.String("o", "", "Output file instead of the store (\"-\" for stdout)")
	titleOverride := flag.String("title", "", "Override article/book title")
	extractorName := flag.String("extractor", "readability", "Candidate extractor: readability, reader, or model")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP fetch timeout")
	userAgent := flag.String("user-agent", "", "HTTP User-Agent header (default: built-in browser UA)")
	width := flag.Int("width", 0, "Wrap column width (default: config file, 100)")
	noImages := flag.Bool("no-images", false, "Skip image download and rewriting")
	optimize := flag.Bool("optimize", false, "Re-encode images for e-readers")
	maxImageWidth := flag.Int("max-image-width", 800, "Max image pixel width when optimizing")
	quality := flag.Int("quality", 60, "JPEG quality 1-95 when optimizing")
	grayscale := flag.Bool("grayscale", false, "Convert images to grayscale when optimizing")
	epubMode := flag.Bool("epub", false, "Generate epub (requires -o, accepts multiple URLs or a .txt file)")
	listMode := flag.Bool("list", false, "List stored articles, optionally filtered by a query")
	dataDir := flag.String("data-dir", "", "Article store directory (default: config file)")
	proxy := flag.String("proxy", "", "HTTP proxy URL for all requests (disables browser TLS fingerprint)")
	silent := flag.Bool("silent", false, "Suppress all output except errors (for pipeline use)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pagefold [options] <URL>\n")
		fmt.Fprintf(os.Stderr, "       pagefold [options] -epub -o out.epub <URL|file.txt> [...]\n")
		fmt.Fprintf(os.Stderr, "       pagefold -list [query]\n\n")
		fmt.Fprintf(os.Stderr, "Fetch articles and save them as wrapped markdown with local images.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *silent {
		logOut = io.Discard
	}
	fetch.ProxyURL = *proxy

	fileCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ua := *userAgent
	if ua == "" {
		ua = fileCfg.UserAgent
	}
	w := *width
	if w == 0 {
		w = fileCfg.WrapWidth
	}

	cfg := cliConfig{
		output:        *output,
		titleOverride: *titleOverride,
		extractorName: *extractorName,
		timeout:       *timeout,
		userAgent:     ua,
		width:         w,
		noImages:      *noImages,
		optimize:      *optimize || *epubMode,
		optimizeOpts: images.OptimizeOpts{
			MaxWidth:  *maxImageWidth,
			Quality:   *quality,
			Grayscale: *grayscale,
		},
		epubMode: *epubMode,
		listMode: *listMode,
		dataDir:  *dataDir,
		file:     fileCfg,
		logger:   slog.New(slog.NewTextHandler(logOut, nil)),
		args:     flag.Args(),
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
