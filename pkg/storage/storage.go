// Package storage persists converted articles under a data directory:
// one directory per article holding index.md and an images/ subdirectory,
// with a JSON catalog at the root.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pagefold/pagefold/pkg/images"
)

// Article is a converted document ready to persist. Document is the full
// markdown text including front matter; Images are the localized files
// referenced by its body.
type Article struct {
	Meta     Meta
	Document string
	Images   []images.Image
}

// Meta is the catalog entry for a stored article.
type Meta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	SourceURL    string    `json:"source_url"`
	SourceDomain string    `json:"source_domain"`
	SavedAt      time.Time `json:"saved_at"`
	Dir          string    `json:"dir"`
}

type catalog struct {
	Articles []Meta `json:"articles"`
}

// Store manages the article data directory and its catalog.
type Store struct {
	basePath  string
	indexPath string
	index     *catalog
}

// New opens (or initializes) a store rooted at basePath.
func New(basePath string) (*Store, error) {
	s := &Store{
		basePath:  basePath,
		indexPath: filepath.Join(basePath, "index.json"),
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if err := s.loadIndex(); err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	return s, nil
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath)
	if os.IsNotExist(err) {
		s.index = &catalog{Articles: []Meta{}}
		return nil
	}
	if err != nil {
		return err
	}
	s.index = &catalog{}
	return json.Unmarshal(data, s.index)
}

func (s *Store) saveIndex() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.indexPath, data, 0644)
}

// Save writes the article directory, its images, and updates the catalog.
// On failure the partially written directory is removed.
func (s *Store) Save(article *Article) error {
	if article.Meta.ID == "" {
		article.Meta.ID = generateID()
	}
	if article.Meta.SavedAt.IsZero() {
		article.Meta.SavedAt = time.Now()
	}
	article.Meta.Dir = s.uniqueDir(article.Meta.SavedAt, article.Meta.Title)

	dir := filepath.Join(s.basePath, article.Meta.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating article directory: %w", err)
	}

	if err := s.writeArticle(dir, article); err != nil {
		os.RemoveAll(dir)
		return err
	}

	s.index.Articles = append(s.index.Articles, article.Meta)
	if err := s.saveIndex(); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("saving index: %w", err)
	}
	return nil
}

func (s *Store) writeArticle(dir string, article *Article) error {
	if err := os.WriteFile(filepath.Join(dir, "index.md"), []byte(article.Document), 0644); err != nil {
		return fmt.Errorf("writing article file: %w", err)
	}
	if len(article.Images) == 0 {
		return nil
	}
	imgDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imgDir, 0755); err != nil {
		return fmt.Errorf("creating images directory: %w", err)
	}
	for _, img := range article.Images {
		name := filepath.Base(img.Path)
		if err := os.WriteFile(filepath.Join(imgDir, name), img.Data, 0644); err != nil {
			return fmt.Errorf("writing image %s: %w", name, err)
		}
	}
	return nil
}

// uniqueDir derives a date-slug directory name, suffixing -2, -3, ... when
// a prior save already claimed it.
func (s *Store) uniqueDir(savedAt time.Time, title string) string {
	base := fmt.Sprintf("%s-%s", savedAt.Format("2006-01-02"), slugify(title))
	name := base
	for n := 2; s.dirTaken(name); n++ {
		name = fmt.Sprintf("%s-%d", base, n)
	}
	return name
}

func (s *Store) dirTaken(name string) bool {
	for _, meta := range s.index.Articles {
		if meta.Dir == name {
			return true
		}
	}
	_, err := os.Stat(filepath.Join(s.basePath, name))
	return err == nil
}

// List returns all catalog entries, newest first.
func (s *Store) List() []Meta {
	result := make([]Meta, len(s.index.Articles))
	copy(result, s.index.Articles)
	sort.Slice(result, func(i, j int) bool {
		return result[i].SavedAt.After(result[j].SavedAt)
	})
	return result
}

// Get retrieves a stored article's document by ID.
func (s *Store) Get(id string) (*Article, error) {
	var meta *Meta
	for i := range s.index.Articles {
		if s.index.Articles[i].ID == id {
			meta = &s.index.Articles[i]
			break
		}
	}
	if meta == nil {
		return nil, fmt.Errorf("article not found: %s", id)
	}
	content, err := os.ReadFile(filepath.Join(s.basePath, meta.Dir, "index.md"))
	if err != nil {
		return nil, fmt.Errorf("reading article file: %w", err)
	}
	return &Article{Meta: *meta, Document: string(content)}, nil
}

// Dir returns the absolute directory of a stored article by ID.
func (s *Store) Dir(id string) (string, error) {
	for i := range s.index.Articles {
		if s.index.Articles[i].ID == id {
			return filepath.Join(s.basePath, s.index.Articles[i].Dir), nil
		}
	}
	return "", fmt.Errorf("article not found: %s", id)
}

// Delete removes an article directory and its catalog entry.
func (s *Store) Delete(id string) error {
	idx := -1
	for i := range s.index.Articles {
		if s.index.Articles[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("article not found: %s", id)
	}
	dir := filepath.Join(s.basePath, s.index.Articles[idx].Dir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing article directory: %w", err)
	}
	s.index.Articles = append(s.index.Articles[:idx], s.index.Articles[idx+1:]...)
	return s.saveIndex()
}

// Search filters catalog entries matching the query against title, author,
// or source domain, newest first. An empty query lists everything.
func (s *Store) Search(query string) []Meta {
	if query == "" {
		return s.List()
	}
	query = strings.ToLower(query)
	var results []Meta
	for _, meta := range s.index.Articles {
		if strings.Contains(strings.ToLower(meta.Title), query) ||
			strings.Contains(strings.ToLower(meta.Author), query) ||
			strings.Contains(strings.ToLower(meta.SourceDomain), query) {
			results = append(results, meta)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].SavedAt.After(results[j].SavedAt)
	})
	return results
}

// Count returns the number of stored articles.
func (s *Store) Count() int {
	return len(s.index.Articles)
}

func generateID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

var hyphenRunRe = regexp.MustCompile(`-+`)

func slugify(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	lastWasHyphen := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			lastWasHyphen = false
		} else if !lastWasHyphen {
			result.WriteRune('-')
			lastWasHyphen = true
		}
	}

	slug := strings.Trim(result.String(), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	slug = hyphenRunRe.ReplaceAllString(slug, "-")
	if slug == "" {
		slug = "untitled"
	}
	return slug
}
