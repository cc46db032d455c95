// Package images localizes remote image references in markdown: each unique
// URL is downloaded once, given a deterministic deduplicated local filename
// under images/, and the reference is rewritten in place. Failures leave the
// original remote reference untouched.
package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

var markdownImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// Image is a localized image. Ownership transfers to the caller, which
// persists it; nothing is written to disk here.
type Image struct {
	Path string // always "images/<filename>"
	Data []byte
}

// Failure records one image that could not be downloaded.
type Failure struct {
	URL string
	Err error
}

// Options configures one localization pass.
type Options struct {
	Client      *http.Client  // nil: http.DefaultClient
	Timeout     time.Duration // per-download; default 30s
	Concurrency int           // max in-flight downloads; default 5
	Optimize    *OptimizeOpts // nil: store bytes exactly as fetched
	Logger      *slog.Logger  // nil: slog.Default
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return http.DefaultClient
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Localize scans body for remote image references, downloads each unique
// URL at most once, and rewrites successful ones to images/<filename>.
// The manifest is ordered by first appearance of each unique URL in the
// body, regardless of download completion order. One URL's failure never
// affects the others.
func Localize(ctx context.Context, body string, opts Options) (string, []Image, []Failure) {
	matches := markdownImageRe.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return body, nil, nil
	}

	names := make(map[string]string) // url -> local filename
	used := make(map[string]bool)    // filenames claimed so far
	var urls []string                // unique remote URLs, first-appearance order
	for _, loc := range matches {
		u := body[loc[4]:loc[5]]
		if !isRemoteURL(u) {
			continue
		}
		if _, ok := names[u]; ok {
			continue
		}
		name := localFilename(u, used)
		used[name] = true
		names[u] = name
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return body, nil, nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	client := opts.client()
	log := opts.logger()

	// Downloads are independent; fetch them concurrently behind a bounded
	// semaphore. Results land in per-URL slots so ordering stays with the
	// body, not with completion.
	type result struct {
		data []byte
		err  error
	}
	results := make([]result, len(urls))
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			data, err := download(ctx, client, u, timeout)
			results[i] = result{data: data, err: err}
		}(i, u)
	}
	wg.Wait()

	downloaded := make(map[string]bool)
	var manifest []Image
	var failures []Failure
	for i, u := range urls {
		r := results[i]
		if r.err != nil {
			failures = append(failures, Failure{URL: u, Err: r.err})
			log.Warn("image download failed", "url", u, "err", r.err)
			continue
		}
		data := r.data
		name := names[u]
		if opts.Optimize != nil {
			if optimized, ok := Optimize(data, *opts.Optimize); ok {
				data = optimized
				if renamed := jpegName(name, used); renamed != name {
					used[renamed] = true
					names[u] = renamed
					name = renamed
				}
			}
		}
		downloaded[u] = true
		manifest = append(manifest, Image{Path: "images/" + name, Data: data})
		log.Info("image localized", "file", name, "bytes", len(data))
	}

	// Rewrite references in reverse byte-offset order so earlier
	// replacements don't invalidate later offsets.
	rewritten := body
	for i := len(matches) - 1; i >= 0; i-- {
		loc := matches[i]
		u := body[loc[4]:loc[5]]
		if !downloaded[u] {
			continue
		}
		name := names[u]
		alt := body[loc[2]:loc[3]]
		if alt == "" {
			alt = strings.TrimSuffix(name, filepath.Ext(name))
		}
		rewritten = rewritten[:loc[0]] + fmt.Sprintf("![%s](images/%s)", alt, name) + rewritten[loc[1]:]
	}
	return rewritten, manifest, failures
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// localFilename derives a sanitized local filename from the URL's path
// basename, defaulting and extending as needed, deduplicated against used
// with -2, -3, … suffixes. Filenames, not URLs, are deduplicated: two URLs
// sharing a basename get distinct names.
func localFilename(rawURL string, used map[string]bool) string {
	base := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		base = path.Base(parsed.Path)
	}
	if base == "" || base == "." || base == "/" {
		base = "image.png"
	}

	var sb strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			sb.WriteRune(r)
		}
	}
	name := sb.String()
	if name == "" {
		name = "image.png"
	}
	if filepath.Ext(name) == "" {
		name += ".png"
	}

	if !used[name] {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if !used[candidate] {
			return candidate
		}
	}
}

// jpegName switches a filename's extension to .jpg after re-encoding,
// deduplicating against already claimed names.
func jpegName(name string, used map[string]bool) string {
	ext := filepath.Ext(name)
	if strings.EqualFold(ext, ".jpg") || strings.EqualFold(ext, ".jpeg") {
		return name
	}
	stem := strings.TrimSuffix(name, ext)
	if candidate := stem + ".jpg"; !used[candidate] {
		return candidate
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d.jpg", stem, i)
		if !used[candidate] {
			return candidate
		}
	}
}

func download(ctx context.Context, client *http.Client, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	return data, nil
}
