// Package markdown reconciles and formats extractor-produced markdown
// against the source HTML it came from: real headings are re-injected by
// fuzzy context matching, soft-wrapped lines are rejoined, text is
// re-wrapped to a visual column budget, remote images are localized, and
// the result is assembled under a front-matter block.
package markdown

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pagefold/pagefold/pkg/images"
)

// ErrorKind classifies fatal conversion errors.
type ErrorKind string

const (
	// KindInvalidInput marks a request missing a required field.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindInternal marks a stage-internal invariant violation, such as
	// malformed wrap configuration.
	KindInternal ErrorKind = "internal"
)

// ConvertError is a fatal, per-conversion error with a machine-readable
// kind. Non-fatal conditions are Diagnostics, never errors.
type ConvertError struct {
	Kind    ErrorKind
	Message string
}

func (e *ConvertError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Stage names the pipeline stage a diagnostic came from.
type Stage string

const (
	StageHeadings  Stage = "headings"
	StageReconcile Stage = "reconcile"
	StageImages    Stage = "images"
)

// Diagnostic is a non-fatal condition accumulated alongside a successful
// conversion: a parse failure, a heading that couldn't be anchored, a
// failed image download.
type Diagnostic struct {
	Stage   Stage
	Message string
}

// Diagnostics collects per-conversion diagnostics in occurrence order.
type Diagnostics []Diagnostic

func (d *Diagnostics) Addf(stage Stage, format string, args ...any) {
	*d = append(*d, Diagnostic{Stage: stage, Message: fmt.Sprintf(format, args...)})
}

// Config holds the immutable knobs for one conversion. The zero value uses
// defaults throughout.
type Config struct {
	Width        int                  // visual column budget; default 100
	ConcealCap   int                  // per-link concealment cap; default 50
	SkipImages   bool                 // skip the localization pass entirely
	HTTPClient   *http.Client         // client for image downloads; default http.DefaultClient
	ImageTimeout time.Duration        // per-image download timeout; default 30s
	Optimize     *images.OptimizeOpts // optional e-reader re-encoding of localized images
	Logger       *slog.Logger         // nil: slog.Default
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Input is one conversion request. RawHTML and Candidate are pure inputs:
// which upstream produced the candidate (heuristic extractor, model,
// reader service) is irrelevant here.
type Input struct {
	RawHTML   string
	Candidate string
	Title     string
	Author    string
	SourceURL string
}

// Result is a completed conversion.
type Result struct {
	Body        string         // canonical markdown
	Document    string         // front matter + body
	Images      []images.Image // localization manifest, first-appearance order
	Diagnostics Diagnostics
}

// Convert runs the full pipeline on one document. Stages run in strict
// sequence; only image localization performs I/O. A canceled context
// returns an error with no partial result, so the manifest always reflects
// exactly the images in the returned document.
func Convert(ctx context.Context, in Input, cfg Config) (*Result, error) {
	if strings.TrimSpace(in.SourceURL) == "" {
		return nil, &ConvertError{Kind: KindInvalidInput, Message: "source URL is required"}
	}
	if cfg.Width < 0 || cfg.ConcealCap < 0 {
		return nil, &ConvertError{Kind: KindInternal, Message: "negative wrap configuration"}
	}
	log := cfg.logger()

	var diags Diagnostics
	headings := ExtractHeadings(in.RawHTML)
	if len(headings) == 0 {
		diags.Addf(StageHeadings, "no content headings found in source HTML")
	}

	body := ReconcileHeadings(in.Candidate, headings, &diags)
	body = Reflow(Normalize(body))
	body = Wrap(body, cfg)
	body = strings.TrimSpace(body) + "\n"

	var manifest []images.Image
	if !cfg.SkipImages {
		rewritten, imgs, failures := images.Localize(ctx, body, images.Options{
			Client:   cfg.HTTPClient,
			Timeout:  cfg.ImageTimeout,
			Optimize: cfg.Optimize,
			Logger:   log,
		})
		body = rewritten
		manifest = imgs
		for _, f := range failures {
			diags.Addf(StageImages, "download failed for %s: %v", f.URL, f.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, d := range diags {
		log.Warn("conversion diagnostic", "stage", string(d.Stage), "msg", d.Message)
	}

	fm := FrontMatter{
		Title:  in.Title,
		Author: in.Author,
		Source: in.SourceURL,
		Saved:  time.Now().UTC(),
	}
	return &Result{
		Body:        body,
		Document:    fm.Render(body),
		Images:      manifest,
		Diagnostics: diags,
	}, nil
}
