package choice

import (
	"strings"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
)

// Sentinels and delimiter agreed with the backend. Changing any of them is
// a breaking protocol change.
const (
	DefaultStartMarker    = "**CHOICE_BUTTONS_START**"
	DefaultEndMarker      = "**CHOICE_BUTTONS_END**"
	DefaultFieldDelimiter = "|"
)

// Default parses the protocol with the stock sentinels.
var Default = Parser{
	StartMarker:    DefaultStartMarker,
	EndMarker:      DefaultEndMarker,
	FieldDelimiter: DefaultFieldDelimiter,
}

// Parser extracts the directive block embedded in assistant replies.
type Parser struct {
	StartMarker    string
	EndMarker      string
	FieldDelimiter string
}

// Reply is an assistant reply split into display prose and directives.
type Reply struct {
	Prose      string
	Directives []support.ChoiceDirective
}

// HasDirectives reports whether the reply offers any choices.
func (r Reply) HasDirectives() bool {
	return len(r.Directives) > 0
}

// New returns a parser, falling back to the defaults for empty values.
func New(start, end, delimiter string) Parser {
	p := Default
	if start != "" {
		p.StartMarker = start
	}
	if end != "" {
		p.EndMarker = end
	}
	if delimiter != "" {
		p.FieldDelimiter = delimiter
	}
	return p
}

// Parse splits raw into prose and directives. Anything that does not form a
// start marker followed by an end marker is returned as prose untouched.
func (p Parser) Parse(raw string) Reply {
	p = p.withDefaults()

	start := strings.Index(raw, p.StartMarker)
	if start < 0 {
		return Reply{Prose: raw}
	}

	rest := raw[start+len(p.StartMarker):]
	end := strings.Index(rest, p.EndMarker)
	if end < 0 {
		return Reply{Prose: raw}
	}

	before := strings.TrimSpace(raw[:start])
	after := strings.TrimSpace(rest[end+len(p.EndMarker):])

	prose := before
	if after != "" {
		if prose != "" {
			prose += "\n\n"
		}
		prose += after
	}

	return Reply{
		Prose:      prose,
		Directives: p.parseBlock(rest[:end]),
	}
}

func (p Parser) parseBlock(block string) []support.ChoiceDirective {
	var directives []support.ChoiceDirective
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, p.FieldDelimiter, 3)
		if len(fields) < 3 {
			continue
		}

		directive := support.ChoiceDirective{
			Action:      strings.TrimSpace(fields[0]),
			Label:       strings.TrimSpace(fields[1]),
			Description: strings.TrimSpace(fields[2]),
		}
		if directive.Action == "" {
			continue
		}
		directives = append(directives, directive)
	}
	return directives
}

func (p Parser) withDefaults() Parser {
	return New(p.StartMarker, p.EndMarker, p.FieldDelimiter)
}
