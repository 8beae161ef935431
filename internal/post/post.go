// Package post assembles a generation run into a Markdown document.
package post

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ai-things/postforge/internal/pipeline"
)

// Media is one rendered artifact. An empty Ref means the step was skipped or
// failed; Note then says why.
type Media struct {
	Ref      string
	Provider string
	Prompt   string
	Note     string
}

type Post struct {
	Title        string
	SourceURL    string
	PrimaryImage string
	Verses       []pipeline.Verse
	Image        Media
	Video        Media
	Audio        Media
	MusicTags    string
	MusicLength  string
	Lyrics       string
	RunID        string
	Template     string
	Voice        string
	Model        string
	GeneratedAt  time.Time
	// BaseDir is the directory the post is written to. Local media paths are
	// linked relative to it.
	BaseDir string
}

// link returns ref relative to BaseDir when ref is a local file path.
func (p Post) link(ref string) string {
	if ref == "" || p.BaseDir == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") {
		return ref
	}
	base, err := filepath.Abs(p.BaseDir)
	if err != nil {
		return ref
	}
	target, err := filepath.Abs(ref)
	if err != nil {
		return ref
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return ref
	}
	return filepath.ToSlash(rel)
}

type frontMatter struct {
	Title     string   `yaml:"title"`
	Source    string   `yaml:"source,omitempty"`
	RunID     string   `yaml:"run_id,omitempty"`
	Date      string   `yaml:"date,omitempty"`
	Template  string   `yaml:"template,omitempty"`
	Model     string   `yaml:"model,omitempty"`
	Voice     string   `yaml:"voice,omitempty"`
	MusicTags []string `yaml:"music_tags,omitempty"`
	Image     string   `yaml:"image,omitempty"`
	Video     string   `yaml:"video,omitempty"`
	Audio     string   `yaml:"audio,omitempty"`
}

// Render produces the Markdown post. Verses keep chunk order; failed chunks
// appear as quoted placeholders.
func Render(p Post) (string, error) {
	fm := frontMatter{
		Title:    p.Title,
		Source:   p.SourceURL,
		RunID:    p.RunID,
		Template: p.Template,
		Model:    p.Model,
		Voice:    p.Voice,
		Image:    p.link(p.Image.Ref),
		Video:    p.link(p.Video.Ref),
		Audio:    p.link(p.Audio.Ref),
	}
	if !p.GeneratedAt.IsZero() {
		fm.Date = p.GeneratedAt.UTC().Format(time.RFC3339)
	}
	for _, tag := range strings.Split(p.MusicTags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			fm.MusicTags = append(fm.MusicTags, tag)
		}
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")

	title := p.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if p.PrimaryImage != "" {
		fmt.Fprintf(&b, "![%s](%s)\n\n", escapeAlt(title), p.PrimaryImage)
	}

	for i, v := range p.Verses {
		fmt.Fprintf(&b, "## Verse %d\n\n", i+1)
		if v.Err != "" {
			fmt.Fprintf(&b, "> Generation failed for this passage: %s\n\n", v.Err)
			continue
		}
		b.WriteString(strings.TrimSpace(v.Text))
		b.WriteString("\n\n")
	}

	writeMedia(&b, "Image", p.Image, func(ref string) string {
		return fmt.Sprintf("![%s](%s)", escapeAlt(p.Image.Prompt), p.link(ref))
	})
	writeMedia(&b, "Video", p.Video, func(ref string) string {
		return fmt.Sprintf("[%s](%s)", filepath.Base(ref), p.link(ref))
	})
	writeMedia(&b, "Narration", p.Audio, func(ref string) string {
		return fmt.Sprintf("[%s](%s)", filepath.Base(ref), p.link(ref))
	})

	if p.MusicTags != "" || p.Lyrics != "" {
		b.WriteString("## Music\n\n")
		if p.MusicTags != "" {
			fmt.Fprintf(&b, "- Tags: %s\n", p.MusicTags)
		}
		if p.MusicLength != "" {
			fmt.Fprintf(&b, "- Duration: %ss\n", p.MusicLength)
		}
		b.WriteString("\n")
		if p.Lyrics != "" {
			b.WriteString("### Lyrics\n\n")
			b.WriteString(strings.TrimSpace(p.Lyrics))
			b.WriteString("\n\n")
		}
	}

	if p.SourceURL != "" {
		fmt.Fprintf(&b, "---\n\nSource: <%s>\n", p.SourceURL)
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

func writeMedia(b *strings.Builder, heading string, m Media, link func(ref string) string) {
	if m.Ref == "" && m.Note == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	if m.Ref == "" {
		fmt.Fprintf(b, "_%s_\n\n", m.Note)
		return
	}
	b.WriteString(link(m.Ref))
	b.WriteString("\n\n")
	if m.Provider != "" {
		fmt.Fprintf(b, "_Generated by %s._\n\n", m.Provider)
	}
}

func escapeAlt(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "[", "(")
	return strings.ReplaceAll(s, "]", ")")
}
