package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ModelService posts cleaned HTML to a model-backed extraction endpoint
// and receives candidate markdown plus title/author metadata.
type ModelService struct {
	Endpoint string
	Client   *http.Client
}

type modelRequest struct {
	HTML string `json:"html"`
	URL  string `json:"url"`
}

type modelResponse struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Markdown string `json:"markdown"`
}

func (m *ModelService) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return http.DefaultClient
}

func (m *ModelService) Extract(ctx context.Context, rawHTML string, pageURL *url.URL) (string, error) {
	body, err := json.Marshal(modelRequest{HTML: CleanHTML(rawHTML), URL: pageURL.String()})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("model service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model service HTTP %d", resp.StatusCode)
	}
	var out modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("model service: decoding response: %w", err)
	}
	md := stripModelArtifacts(out.Markdown)
	if md == "" {
		return "", fmt.Errorf("model service returned empty markdown for %s", pageURL)
	}
	return md, nil
}

// stripModelArtifacts removes wrapper fences and leading metadata lines
// that models sometimes emit around the markdown payload.
func stripModelArtifacts(md string) string {
	md = strings.TrimSpace(md)
	if strings.HasPrefix(md, "```") {
		if i := strings.Index(md, "\n"); i >= 0 {
			md = md[i+1:]
		}
		md = strings.TrimSuffix(strings.TrimSpace(md), "```")
		md = strings.TrimSpace(md)
	}
	lines := strings.Split(md, "\n")
	start := 0
	for start < len(lines) {
		t := strings.TrimSpace(lines[start])
		if strings.HasPrefix(t, "Title: ") || strings.HasPrefix(t, "Author: ") || t == "" {
			start++
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}
