package rules

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// MaxRelevantRules caps FindRelevantRules results.
const MaxRelevantRules = 5

var ruleLineRe = regexp.MustCompile(`^(\d+\.\d+[a-z]?\.?|\d+\.)\s+(.+)$`)

// Record is one numbered clause of the comprehensive rules.
type Record struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// Corpus is an immutable parsed rules snapshot with its inverted index.
type Corpus struct {
	records  []Record
	lower    []string
	byNumber map[string]int
	index    map[string][]int
	loadedAt time.Time
	source   string
}

// Parse builds a corpus from raw rules text.
//
// A numbered line starts a new record; following non-empty, non-numbered lines
// are appended space-joined. Lines before the first rule are ignored. When a
// number repeats (the table of contents precedes the body), the later text
// replaces the earlier one in place.
func Parse(raw string) *Corpus {
	raw = strings.TrimPrefix(raw, "\ufeff")
	c := &Corpus{byNumber: make(map[string]int)}

	current := -1
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := ruleLineRe.FindStringSubmatch(line); m != nil {
			number := strings.TrimSuffix(m[1], ".")
			text := strings.TrimSpace(m[2])
			if i, ok := c.byNumber[number]; ok {
				c.records[i].Text = text
				current = i
				continue
			}
			c.records = append(c.records, Record{Number: number, Text: text})
			current = len(c.records) - 1
			c.byNumber[number] = current
			continue
		}
		if current < 0 {
			continue
		}
		c.records[current].Text += " " + line
	}

	c.lower = make([]string, len(c.records))
	c.index = make(map[string][]int)
	for i, rec := range c.records {
		text := strings.ToLower(rec.Text)
		c.lower[i] = text
		for _, term := range vocabulary {
			if strings.Contains(text, term) {
				c.index[term] = append(c.index[term], i)
			}
		}
	}
	return c
}

func emptyCorpus() *Corpus {
	return &Corpus{byNumber: map[string]int{}, index: map[string][]int{}}
}

func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// Records returns a copy of the records in parse order.
func (c *Corpus) Records() []Record {
	if c == nil || len(c.records) == 0 {
		return nil
	}
	return append([]Record(nil), c.records...)
}

// Lookup returns the record for a rule number such as "702.111" or "101.4.".
func (c *Corpus) Lookup(number string) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	i, ok := c.byNumber[strings.TrimSuffix(strings.TrimSpace(number), ".")]
	if !ok {
		return Record{}, false
	}
	return c.records[i], true
}

// FindRelevantRules scores every record against the question and returns the
// best matches, at most MaxRelevantRules. A record scores 2 per vocabulary
// term shared with the question and 1 per question word longer than three
// characters its text contains. Ties keep parse order.
func (c *Corpus) FindRelevantRules(question string) []Record {
	if c.Len() == 0 {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(question))
	if normalized == "" {
		return nil
	}

	scores := make([]int, len(c.records))
	for _, term := range questionTerms(normalized) {
		for _, i := range c.index[term] {
			scores[i] += 2
		}
	}
	words := questionWords(normalized)
	for i, text := range c.lower {
		for _, w := range words {
			if strings.Contains(text, w) {
				scores[i]++
			}
		}
	}

	type scored struct {
		pos   int
		score int
	}
	hits := make([]scored, 0, 16)
	for i, s := range scores {
		if s > 0 {
			hits = append(hits, scored{pos: i, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	if len(hits) > MaxRelevantRules {
		hits = hits[:MaxRelevantRules]
	}
	out := make([]Record, 0, len(hits))
	for _, h := range hits {
		out = append(out, c.records[h.pos])
	}
	return out
}

// Terms returns the vocabulary terms present in text, in vocabulary order.
func Terms(text string) []string {
	return questionTerms(strings.ToLower(text))
}

func questionTerms(normalized string) []string {
	var out []string
	for _, term := range vocabulary {
		if strings.Contains(normalized, term) {
			out = append(out, term)
		}
	}
	return out
}

// questionWords returns every word longer than three characters, in question
// order. Repeated words count once per occurrence.
func questionWords(normalized string) []string {
	parts := strings.FieldsFunc(normalized, func(r rune) bool {
		return !(r == '-' || r == '\'' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "-'")
		if len(part) <= 3 {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Stats describes a corpus snapshot.
type Stats struct {
	Rules    int       `json:"rules"`
	Terms    int       `json:"indexed_terms"`
	Source   string    `json:"source,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (c *Corpus) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		Rules:    len(c.records),
		Terms:    len(c.index),
		Source:   c.source,
		LoadedAt: c.loadedAt,
	}
}
