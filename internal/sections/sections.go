// Package sections splits one freeform model response into typed sections
// (verse, image prompt, video prompt, music, lyrics) with a line-oriented
// state machine.
package sections

import (
	"regexp"
	"strings"
)

// State names the section currently receiving lines.
type State int

const (
	StateVerse State = iota
	StateImagePrompt
	StateVideoPrompt
	StateMusic
	StateLyrics
)

func (s State) String() string {
	switch s {
	case StateVerse:
		return "verse"
	case StateImagePrompt:
		return "image_prompt"
	case StateVideoPrompt:
		return "video_prompt"
	case StateMusic:
		return "music"
	case StateLyrics:
		return "lyrics"
	default:
		return "unknown"
	}
}

// Sections is the typed result of one response. Every field defaults to "".
type Sections struct {
	Verse         string `json:"verse"`
	ImagePrompt   string `json:"image_prompt"`
	VideoPrompt   string `json:"video_prompt"`
	MusicTags     string `json:"music_tags"`
	MusicDuration string `json:"music_duration"`
	Lyrics        string `json:"lyrics"`
}

// Rule maps a header line pattern to the state it switches to. The pattern
// must expose the text following the header on the same line as the
// submatch named "rest" (may be empty). A Marked rule only fires when the
// line carries a heading marker, emphasis or a colon, so a bare word in
// running text is not taken for a header.
type Rule struct {
	Pattern *regexp.Regexp
	Next    State
	Marked  bool
}

// headerPattern matches a whole header line: optional markdown heading and
// emphasis markers, the title, optional colon, then optional inline content
// which is only accepted after a colon.
func headerPattern(title string) *regexp.Regexp {
	const emph = `(?:[*_]{1,3})?`
	return regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?` + emph + `\s*(?:` + title + `)\s*` + emph +
		`\s*(?:(?::\s*` + emph + `\s*(?P<rest>.*?))|` + emph + `)\s*$`)
}

// DefaultRules recognizes the headers the generation prompts ask for.
var DefaultRules = []Rule{
	{Pattern: headerPattern(`image\s+prompt`), Next: StateImagePrompt},
	{Pattern: headerPattern(`video\s+prompt`), Next: StateVideoPrompt},
	{Pattern: headerPattern(`music\s+(?:prompt|tags)(?:\s*/\s*tags)?`), Next: StateMusic},
	{Pattern: headerPattern(`music`), Next: StateMusic, Marked: true},
	{Pattern: headerPattern(`lyrics`), Next: StateLyrics, Marked: true},
	{Pattern: headerPattern(`verse\s+\d+`), Next: StateVerse},
	{Pattern: headerPattern(`verse`), Next: StateVerse, Marked: true},
}

func marked(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "*") ||
		strings.HasPrefix(trimmed, "_") || strings.Contains(trimmed, ":")
}

// Parser is a table-driven section state machine. The zero value uses DefaultRules.
type Parser struct {
	Rules []Rule
}

// NewParser returns a parser using rules, or DefaultRules when none are given.
func NewParser(rules ...Rule) *Parser {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Parser{Rules: rules}
}

// Transition reports the state a header line switches to, plus any inline
// content following the header.
func (p *Parser) Transition(line string) (State, string, bool) {
	rules := p.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}
	for _, rule := range rules {
		m := rule.Pattern.FindStringSubmatch(line)
		if m == nil || (rule.Marked && !marked(line)) {
			continue
		}
		rest := ""
		if idx := rule.Pattern.SubexpIndex("rest"); idx > 0 && idx < len(m) {
			rest = strings.TrimSpace(m[idx])
		}
		return rule.Next, rest, true
	}
	return StateVerse, "", false
}

// Parse scans raw line by line. Header lines switch state and are not kept;
// every other line is appended to the current state's buffer. When no verse
// text was collected the verse becomes the whole raw response.
func (p *Parser) Parse(raw string) Sections {
	buffers := map[State]*strings.Builder{}
	state := StateVerse

	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	for _, line := range strings.Split(normalized, "\n") {
		if next, rest, ok := p.Transition(line); ok {
			state = next
			if rest == "" {
				continue
			}
			line = rest
		}
		b, ok := buffers[state]
		if !ok {
			b = &strings.Builder{}
			buffers[state] = b
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	get := func(s State) string {
		if b, ok := buffers[s]; ok {
			return strings.TrimSpace(b.String())
		}
		return ""
	}

	out := Sections{
		Verse:       get(StateVerse),
		ImagePrompt: get(StateImagePrompt),
		VideoPrompt: get(StateVideoPrompt),
		MusicTags:   get(StateMusic),
		Lyrics:      get(StateLyrics),
	}
	if out.Verse == "" {
		out.Verse = raw
	}
	return out
}

var defaultParser = NewParser()

// Extract parses raw with DefaultRules. It is total over any input.
func Extract(raw string) Sections {
	return defaultParser.Parse(raw)
}
