package knowledge

import (
	"bytes"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	KeywordsFile     = "keywords.yaml"
	FallbacksFile    = "keyword_fallbacks.yaml"
	InteractionsFile = "interactions.yaml"
	TopicsFile       = "complex_topics.yaml"
)

type keywordsFile struct {
	Keywords []Keyword `yaml:"keywords"`
}

type fallbacksFile struct {
	Fallbacks []KeywordFallback `yaml:"fallbacks"`
}

type interactionsFile struct {
	Interactions []Interaction `yaml:"interactions"`
}

type topicsFile struct {
	Topics []ComplexTopic `yaml:"topics"`
}

// Tables is the immutable set of curated knowledge tables. Order within each
// slice is the detection order.
type Tables struct {
	Keywords     []Keyword
	Fallbacks    []KeywordFallback
	Interactions []Interaction
	Topics       []ComplexTopic

	keywordIndex     map[string]int
	interactionIndex map[string]int
	topicIndex       map[string]int
}

// LoadFS reads and validates all four tables from fsys.
func LoadFS(fsys fs.FS) (*Tables, error) {
	var kw keywordsFile
	if err := decodeFile(fsys, KeywordsFile, &kw); err != nil {
		return nil, err
	}
	var fb fallbacksFile
	if err := decodeFile(fsys, FallbacksFile, &fb); err != nil {
		return nil, err
	}
	var in interactionsFile
	if err := decodeFile(fsys, InteractionsFile, &in); err != nil {
		return nil, err
	}
	var tp topicsFile
	if err := decodeFile(fsys, TopicsFile, &tp); err != nil {
		return nil, err
	}

	t := &Tables{
		Keywords:     kw.Keywords,
		Fallbacks:    fb.Fallbacks,
		Interactions: in.Interactions,
		Topics:       tp.Topics,
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeFile(fsys fs.FS, name string, out any) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (t *Tables) index() error {
	t.keywordIndex = make(map[string]int, len(t.Keywords))
	for i := range t.Keywords {
		k := &t.Keywords[i]
		k.Name = strings.TrimSpace(k.Name)
		k.Description = strings.TrimSpace(k.Description)
		k.Example = strings.TrimSpace(k.Example)
		k.RuleRefs = normalizeStringList(k.RuleRefs)
		if k.Name == "" {
			return fmt.Errorf("%s: keywords[%d]: missing name", KeywordsFile, i)
		}
		if k.Description == "" {
			return fmt.Errorf("%s: keyword %q: missing description", KeywordsFile, k.Name)
		}
		key := foldKey(k.Name)
		if _, exists := t.keywordIndex[key]; exists {
			return fmt.Errorf("%s: duplicate keyword %q", KeywordsFile, k.Name)
		}
		t.keywordIndex[key] = i
		if len(k.Patterns) == 0 {
			p, err := NewPattern(k.Name)
			if err != nil {
				return fmt.Errorf("%s: keyword %q: %w", KeywordsFile, k.Name, err)
			}
			k.Patterns = []Pattern{p}
		}
	}

	for i := range t.Fallbacks {
		f := &t.Fallbacks[i]
		f.Keyword = strings.TrimSpace(f.Keyword)
		if _, ok := t.keywordIndex[foldKey(f.Keyword)]; !ok {
			return fmt.Errorf("%s: fallbacks[%d]: unknown keyword %q", FallbacksFile, i, f.Keyword)
		}
	}

	t.interactionIndex = make(map[string]int, len(t.Interactions))
	for i := range t.Interactions {
		it := &t.Interactions[i]
		it.ID = strings.TrimSpace(it.ID)
		it.Title = strings.TrimSpace(it.Title)
		it.Description = strings.TrimSpace(it.Description)
		it.Example = strings.TrimSpace(it.Example)
		it.RuleRefs = normalizeStringList(it.RuleRefs)
		if it.ID == "" || it.Title == "" || it.Description == "" {
			return fmt.Errorf("%s: interactions[%d]: missing id, title or description", InteractionsFile, i)
		}
		if len(it.Patterns) == 0 {
			return fmt.Errorf("%s: interaction %q: no detection patterns", InteractionsFile, it.ID)
		}
		keywords := make([]string, 0, len(it.Keywords))
		for _, kw := range it.Keywords {
			if v := strings.ToLower(strings.TrimSpace(kw)); v != "" {
				keywords = append(keywords, v)
			}
		}
		it.Keywords = keywords
		key := foldKey(it.ID)
		if _, exists := t.interactionIndex[key]; exists {
			return fmt.Errorf("%s: duplicate interaction %q", InteractionsFile, it.ID)
		}
		t.interactionIndex[key] = i
	}

	t.topicIndex = make(map[string]int, len(t.Topics))
	for i := range t.Topics {
		tp := &t.Topics[i]
		tp.ID = strings.TrimSpace(tp.ID)
		tp.Title = strings.TrimSpace(tp.Title)
		tp.Description = strings.TrimSpace(tp.Description)
		tp.Example = strings.TrimSpace(tp.Example)
		tp.RuleRefs = normalizeStringList(tp.RuleRefs)
		if tp.ID == "" || tp.Title == "" || tp.Description == "" {
			return fmt.Errorf("%s: topics[%d]: missing id, title or description", TopicsFile, i)
		}
		if len(tp.Patterns) == 0 {
			return fmt.Errorf("%s: topic %q: no detection patterns", TopicsFile, tp.ID)
		}
		key := foldKey(tp.ID)
		if _, exists := t.topicIndex[key]; exists {
			return fmt.Errorf("%s: duplicate topic %q", TopicsFile, tp.ID)
		}
		t.topicIndex[key] = i
	}
	return nil
}

func (t *Tables) Keyword(name string) (Keyword, bool) {
	if t == nil {
		return Keyword{}, false
	}
	i, ok := t.keywordIndex[foldKey(name)]
	if !ok {
		return Keyword{}, false
	}
	return t.Keywords[i], true
}

func (t *Tables) Interaction(id string) (Interaction, bool) {
	if t == nil {
		return Interaction{}, false
	}
	i, ok := t.interactionIndex[foldKey(id)]
	if !ok {
		return Interaction{}, false
	}
	return t.Interactions[i], true
}

func (t *Tables) Topic(id string) (ComplexTopic, bool) {
	if t == nil {
		return ComplexTopic{}, false
	}
	i, ok := t.topicIndex[foldKey(id)]
	if !ok {
		return ComplexTopic{}, false
	}
	return t.Topics[i], true
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeStringList trims and de-duplicates while keeping the authored order.
func normalizeStringList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
