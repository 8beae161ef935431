package sections

import (
	"regexp"
	"strings"
)

const (
	DefaultMusicDuration = "90"
	DefaultMusicTags     = "instrumental, ambient"
)

// Music is the result of the music-only extraction pass.
type Music struct {
	Tags     string `json:"tags"`
	Duration string `json:"duration"`
	Lyrics   string `json:"lyrics"`
}

var (
	tagsMarker     = regexp.MustCompile("(?i)^[*_`#>\\s]*tags[*_`\\s]*:(.*)$")
	durationMarker = regexp.MustCompile("(?i)^[*_`#>\\s]*duration[*_`\\s]*:(.*)$")
	durationValue  = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ExtractMusic runs the two-pass variant for music-only responses. The
// section pass isolates the music buffer (the whole response when there is
// no music header); the second pass pulls TAGS: and DURATION: markers out of
// it and keeps the remainder as lyrics. Missing markers get the defaults.
func ExtractMusic(raw string) Music {
	first := Extract(raw)
	if first.MusicTags == "" {
		return parseMusicBody(raw)
	}
	m := parseMusicBody(first.MusicTags)
	switch {
	case first.Lyrics == "":
	case m.Lyrics == "":
		m.Lyrics = first.Lyrics
	default:
		m.Lyrics += "\n\n" + first.Lyrics
	}
	return m
}

// WithMusic resolves the music section of s into tags, duration and lyrics.
// Sections without a music section are returned unchanged.
func (s Sections) WithMusic() Sections {
	if s.MusicTags == "" {
		return s
	}
	m := parseMusicBody(s.MusicTags)
	s.MusicTags = m.Tags
	s.MusicDuration = m.Duration
	switch {
	case m.Lyrics == "":
	case s.Lyrics == "":
		s.Lyrics = m.Lyrics
	default:
		s.Lyrics = m.Lyrics + "\n\n" + s.Lyrics
	}
	return s
}

func parseMusicBody(body string) Music {
	out := Music{}
	var lyrics []string
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		if _, rest, ok := defaultParser.Transition(line); ok {
			if rest == "" {
				continue
			}
			trimmed = rest
			line = rest
		}
		if m := tagsMarker.FindStringSubmatch(trimmed); m != nil {
			if v := sanitize(m[1]); v != "" && out.Tags == "" {
				out.Tags = v
			}
			continue
		}
		if m := durationMarker.FindStringSubmatch(trimmed); m != nil {
			if v := durationValue.FindString(m[1]); v != "" && out.Duration == "" {
				out.Duration = v
			}
			continue
		}
		lyrics = append(lyrics, line)
	}

	out.Lyrics = strings.TrimSpace(strings.Join(lyrics, "\n"))
	if out.Tags == "" {
		out.Tags = DefaultMusicTags
	}
	if out.Duration == "" {
		out.Duration = DefaultMusicDuration
	}
	return out
}

func sanitize(value string) string {
	return strings.Trim(strings.TrimSpace(value), "*_` ")
}
