// Package prompts holds the generation templates and the persisted
// round-robin cursor that picks one per batch.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChunkPlaceholder is replaced by the chunk text in Template.User.
const ChunkPlaceholder = "{{chunk}}"

// Template is one system/user prompt pair.
type Template struct {
	Name   string `yaml:"name"`
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type catalogue struct {
	Templates []Template `yaml:"templates"`
}

// DefaultTemplate asks for every section the extractor understands.
var DefaultTemplate = Template{
	Name: "default",
	System: "You turn passages of an article into short narrated verses for a video post. " +
		"Answer in Markdown using these headings: Verse, Image Prompt, Video Prompt, Music, Lyrics. " +
		"Under Music give TAGS: and DURATION: lines.",
	User: "Passage:\n\n" + ChunkPlaceholder,
}

// Render substitutes chunk into the user template. A template without the
// placeholder gets the chunk appended.
func (t Template) Render(chunk string) (system, user string) {
	if strings.Contains(t.User, ChunkPlaceholder) {
		return t.System, strings.ReplaceAll(t.User, ChunkPlaceholder, chunk)
	}
	if strings.TrimSpace(t.User) == "" {
		return t.System, chunk
	}
	return t.System, strings.TrimRight(t.User, "\n") + "\n\n" + chunk
}

// LoadTemplates reads a YAML catalogue. An empty path yields the default
// template only.
func LoadTemplates(path string) ([]Template, error) {
	if path == "" {
		return []Template{DefaultTemplate}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseTemplates(data)
}

func ParseTemplates(data []byte) ([]Template, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	out := make([]Template, 0, len(c.Templates))
	for i, t := range c.Templates {
		if strings.TrimSpace(t.User) == "" && strings.TrimSpace(t.System) == "" {
			continue
		}
		if t.Name == "" {
			t.Name = fmt.Sprintf("template-%d", i+1)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, errors.New("parse templates: no templates defined")
	}
	return out, nil
}
