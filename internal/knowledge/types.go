package knowledge

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keyword is a curated keyword ability, keyword action or game concept definition.
type Keyword struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Example     string    `yaml:"example,omitempty" json:"example,omitempty"`
	RuleRefs    []string  `yaml:"rule_refs,omitempty" json:"rule_refs,omitempty"`
	Patterns    []Pattern `yaml:"patterns,omitempty" json:"-"`
}

// Interaction is a curated answer for two mechanics used together.
type Interaction struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description" json:"description"`
	Example     string    `yaml:"example,omitempty" json:"example,omitempty"`
	RuleRefs    []string  `yaml:"rule_refs,omitempty" json:"rule_refs,omitempty"`
	Patterns    []Pattern `yaml:"patterns" json:"-"`

	// Keywords must all be present (together with a generic interaction phrase)
	// for the keyword-set fallback to fire.
	Keywords []string `yaml:"keywords" json:"keywords,omitempty"`
}

// ComplexTopic is a curated answer for a rules subsystem (layers, priority, ...).
type ComplexTopic struct {
	ID          string      `yaml:"id" json:"id"`
	Title       string      `yaml:"title" json:"title"`
	Description string      `yaml:"description" json:"description"`
	Example     string      `yaml:"example,omitempty" json:"example,omitempty"`
	RuleRefs    []string    `yaml:"rule_refs,omitempty" json:"rule_refs,omitempty"`
	Patterns    []Pattern   `yaml:"patterns" json:"-"`
	Heuristics  []Heuristic `yaml:"heuristics,omitempty" json:"-"`
}

// Heuristic is the secondary substring test for a complex topic: every All
// term must be present and no None term may be present.
type Heuristic struct {
	All  []string `yaml:"all"`
	None []string `yaml:"none,omitempty"`
}

func (h Heuristic) Match(normalized string) bool {
	if len(h.All) == 0 {
		return false
	}
	for _, term := range h.All {
		if !strings.Contains(normalized, term) {
			return false
		}
	}
	for _, term := range h.None {
		if strings.Contains(normalized, term) {
			return false
		}
	}
	return true
}

// KeywordFallback maps a framing-free rules phrase directly to a keyword.
type KeywordFallback struct {
	Pattern Regex  `yaml:"pattern"`
	Keyword string `yaml:"keyword"`
}

// Pattern is a lowercase literal phrase matched on word boundaries.
type Pattern struct {
	Raw string
	re  *regexp.Regexp
}

func NewPattern(raw string) (Pattern, error) {
	phrase := strings.ToLower(strings.TrimSpace(raw))
	if phrase == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	expr := regexp.QuoteMeta(phrase)
	if isWordByte(phrase[0]) {
		expr = `\b` + expr
	}
	if isWordByte(phrase[len(phrase)-1]) {
		expr += `\b`
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Raw: phrase, re: re}, nil
}

func (p Pattern) Match(normalized string) bool {
	return p.re != nil && p.re.MatchString(normalized)
}

func (p *Pattern) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := NewPattern(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*p = parsed
	return nil
}

// Regex is a compiled regular expression decoded from YAML.
type Regex struct {
	Raw string
	re  *regexp.Regexp
}

func (r Regex) Match(normalized string) bool {
	return r.re != nil && r.re.MatchString(normalized)
}

func (r *Regex) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("line %d: empty regex", value.Line)
	}
	re, err := regexp.Compile(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*r = Regex{Raw: raw, re: re}
	return nil
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// MatchAny reports the index of the first pattern that matches, or -1.
func MatchAny(patterns []Pattern, normalized string) int {
	for i, p := range patterns {
		if p.Match(normalized) {
			return i
		}
	}
	return -1
}
