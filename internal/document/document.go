// Package document loads scraped pages into the text and image candidates
// the pipeline works on.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"ai-things/postforge/internal/utils"
)

// ErrNoContent means the page has no usable text.
var ErrNoContent = errors.New("document: no content")

// Document is one input page.
type Document struct {
	Path   string   `json:"-"`
	URL    string   `json:"url"`
	Title  string   `json:"title"`
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

// Slug names output files for the document.
func (d Document) Slug() string {
	if s := utils.Slugify(d.Title); s != "" {
		return s
	}
	if d.Path != "" {
		if s := utils.Slugify(strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))); s != "" {
			return s
		}
	}
	return "post-" + utils.ShortHash(d.Text)
}

type page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	Content string `json:"content"`
	HTML    string `json:"html"`
	Image   string `json:"image"`
}

var (
	sanitizer   = bluemonday.UGCPolicy()
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// Load reads a .json page or a plain text/markdown file.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if strings.EqualFold(filepath.Ext(path), ".json") {
		doc, err = FromJSON(data)
		if err != nil {
			return Document{}, fmt.Errorf("%s: %w", path, err)
		}
	} else {
		doc = Document{Text: normalize(string(data))}
		if doc.Text == "" {
			return Document{}, fmt.Errorf("%s: %w", path, ErrNoContent)
		}
		doc.Title = firstHeading(doc.Text)
	}
	doc.Path = path
	return doc, nil
}

// FromJSON decodes a scraped page. Text wins over content, which wins over
// html; html is sanitized and converted to Markdown.
func FromJSON(data []byte) (Document, error) {
	var p page
	if err := json.Unmarshal(data, &p); err != nil {
		return Document{}, fmt.Errorf("decode page: %w", err)
	}

	doc := Document{URL: strings.TrimSpace(p.URL), Title: strings.TrimSpace(p.Title)}
	switch {
	case strings.TrimSpace(p.Text) != "":
		doc.Text = normalize(p.Text)
	case strings.TrimSpace(p.Content) != "":
		doc.Text = normalize(p.Content)
	case strings.TrimSpace(p.HTML) != "":
		md, err := HTMLToMarkdown(p.HTML, doc.URL)
		if err != nil {
			return Document{}, err
		}
		doc.Text = md
	}
	if doc.Text == "" {
		return Document{}, ErrNoContent
	}

	// images may hold plain URLs or {"src"|"url": ...} objects.
	meta, err := utils.DecodeJSONMap(data)
	if err != nil {
		return Document{}, fmt.Errorf("decode page: %w", err)
	}
	doc.Images = dedupe(append(utils.GetStringSlice(meta, "images"), p.Image))
	return doc, nil
}

// HTMLToMarkdown sanitizes raw page HTML and converts it to Markdown.
func HTMLToMarkdown(html, sourceURL string) (string, error) {
	clean := sanitizer.Sanitize(html)
	var opts []converter.ConvertOptionFunc
	if sourceURL != "" {
		opts = append(opts, converter.WithDomain(sourceURL))
	}
	md, err := mdConverter.ConvertString(clean, opts...)
	if err != nil {
		return "", fmt.Errorf("html to markdown: %w", err)
	}
	return normalize(md), nil
}

func normalize(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
}

func firstHeading(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
