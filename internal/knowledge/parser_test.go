package knowledge

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestDefault_LoadsEmbeddedTables(t *testing.T) {
	t.Parallel()

	tables, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if len(tables.Keywords) == 0 || len(tables.Interactions) == 0 || len(tables.Topics) == 0 || len(tables.Fallbacks) == 0 {
		t.Fatalf("unexpected empty table: keywords=%d interactions=%d topics=%d fallbacks=%d",
			len(tables.Keywords), len(tables.Interactions), len(tables.Topics), len(tables.Fallbacks))
	}

	menace, ok := tables.Keyword("MENACE")
	if !ok {
		t.Fatalf("Keyword(MENACE) missing")
	}
	if !strings.HasPrefix(menace.Description, "Menace:") {
		t.Fatalf("menace description=%q", menace.Description)
	}
	if _, ok := tables.Topic("apnap_order"); !ok {
		t.Fatalf("apnap_order topic missing")
	}
	if _, ok := tables.Interaction("deathtouch_trample"); !ok {
		t.Fatalf("deathtouch_trample interaction missing")
	}
}

func TestDefault_APNAPTopicText(t *testing.T) {
	t.Parallel()

	tables, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	tp, ok := tables.Topic("apnap_order")
	if !ok {
		t.Fatalf("apnap_order missing")
	}
	if !strings.Contains(tp.Description, "Active Player") || !strings.Contains(tp.Description, "101.4") {
		t.Fatalf("apnap description missing required text: %q", tp.Description)
	}
	if strings.Contains(strings.ToLower(tp.Description), "damage assignment order") {
		t.Fatalf("apnap description mentions damage assignment order")
	}
}

func TestTopicPatterns_NoEarlierTopicMatches(t *testing.T) {
	t.Parallel()

	tables, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for i, tp := range tables.Topics {
		for _, p := range tp.Patterns {
			for j := 0; j < i; j++ {
				if MatchAny(tables.Topics[j].Patterns, p.Raw) >= 0 {
					t.Fatalf("topic %q pattern %q also matches earlier topic %q", tp.ID, p.Raw, tables.Topics[j].ID)
				}
			}
		}
	}
}

func TestInteractionPatterns_NoEarlierMatches(t *testing.T) {
	t.Parallel()

	tables, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for i, it := range tables.Interactions {
		for _, p := range it.Patterns {
			for _, tp := range tables.Topics {
				if MatchAny(tp.Patterns, p.Raw) >= 0 {
					t.Fatalf("interaction %q pattern %q matches topic %q", it.ID, p.Raw, tp.ID)
				}
			}
			for j := 0; j < i; j++ {
				if MatchAny(tables.Interactions[j].Patterns, p.Raw) >= 0 {
					t.Fatalf("interaction %q pattern %q also matches earlier interaction %q", it.ID, p.Raw, tables.Interactions[j].ID)
				}
			}
		}
	}
}

func TestKeywordNames_MatchOnlyThemselves(t *testing.T) {
	t.Parallel()

	tables, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for i, kw := range tables.Keywords {
		name := strings.ToLower(kw.Name)
		if MatchAny(kw.Patterns, name) < 0 {
			t.Fatalf("keyword %q does not match its own name", kw.Name)
		}
		for j, other := range tables.Keywords {
			if i == j {
				continue
			}
			if MatchAny(other.Patterns, name) >= 0 {
				t.Fatalf("keyword name %q also matches %q", kw.Name, other.Name)
			}
		}
	}
}

func TestPattern_WordBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pattern string
		input   string
		want    bool
	}{
		{pattern: "flash", input: "how does flash work?", want: true},
		{pattern: "flash", input: "how does flashback work?", want: false},
		{pattern: "layers", input: "how do layers work", want: true},
		{pattern: "layers", input: "how many players", want: false},
		{pattern: "first-strike", input: "a first-strike creature", want: true},
		{pattern: "0 toughness", input: "what happens at 0 toughness?", want: true},
		{pattern: "active player, non-active player", input: "is it active player, non-active player?", want: true},
	}
	for _, tc := range cases {
		p, err := NewPattern(tc.pattern)
		if err != nil {
			t.Fatalf("NewPattern(%q): %v", tc.pattern, err)
		}
		if got := p.Match(tc.input); got != tc.want {
			t.Fatalf("Pattern(%q).Match(%q)=%v, want %v", tc.pattern, tc.input, got, tc.want)
		}
	}
}

func TestHeuristic_Match(t *testing.T) {
	t.Parallel()

	h := Heuristic{All: []string{"layer"}, None: []string{"player"}}
	if !h.Match("which layer applies first") {
		t.Fatalf("expected layer heuristic to match")
	}
	if h.Match("does the player get a layer") {
		t.Fatalf("expected player to suppress heuristic")
	}
	if (Heuristic{}).Match("anything") {
		t.Fatalf("empty heuristic must not match")
	}
}

func minimalTables() fstest.MapFS {
	return fstest.MapFS{
		KeywordsFile: {Data: []byte(`keywords:
  - name: Flying
    description: "Flying: evasion."
`)},
		FallbacksFile: {Data: []byte(`fallbacks:
  - pattern: '\bfly over\b'
    keyword: flying
`)},
		InteractionsFile: {Data: []byte(`interactions:
  - id: flying_reach
    title: Flying + Reach
    description: Reach blocks flying.
    keywords: [Flying, " reach "]
    patterns: ["flying and reach"]
`)},
		TopicsFile: {Data: []byte(`topics:
  - id: priority
    title: Priority
    description: Who acts.
    rule_refs: ["117.1", " 117.1 ", ""]
    patterns: ["priority"]
`)},
	}
}

func TestLoadFS_NormalizesEntries(t *testing.T) {
	t.Parallel()

	tables, err := LoadFS(minimalTables())
	if err != nil {
		t.Fatalf("LoadFS: %v", err)
	}
	kw, ok := tables.Keyword("flying")
	if !ok {
		t.Fatalf("flying missing")
	}
	if len(kw.Patterns) != 1 || kw.Patterns[0].Raw != "flying" {
		t.Fatalf("default keyword pattern=%v", kw.Patterns)
	}
	it, _ := tables.Interaction("FLYING_REACH")
	if strings.Join(it.Keywords, ",") != "flying,reach" {
		t.Fatalf("interaction keywords=%v", it.Keywords)
	}
	tp, _ := tables.Topic("priority")
	if len(tp.RuleRefs) != 1 || tp.RuleRefs[0] != "117.1" {
		t.Fatalf("topic rule refs=%v", tp.RuleRefs)
	}
}

func TestLoadFS_RejectsInvalidTables(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		file string
		body string
		want string
	}{
		{
			name: "duplicate keyword",
			file: KeywordsFile,
			body: "keywords:\n  - name: Flying\n    description: a\n  - name: flying\n    description: b\n",
			want: "duplicate keyword",
		},
		{
			name: "unknown fallback keyword",
			file: FallbacksFile,
			body: "fallbacks:\n  - pattern: 'x'\n    keyword: Menace\n",
			want: "unknown keyword",
		},
		{
			name: "topic without patterns",
			file: TopicsFile,
			body: "topics:\n  - id: a\n    title: A\n    description: d\n",
			want: "no detection patterns",
		},
		{
			name: "unknown field",
			file: TopicsFile,
			body: "topics:\n  - id: a\n    titel: A\n",
			want: "titel",
		},
		{
			name: "bad regex",
			file: FallbacksFile,
			body: "fallbacks:\n  - pattern: '(unclosed'\n    keyword: Flying\n",
			want: "missing closing",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fsys := minimalTables()
			fsys[tc.file] = &fstest.MapFile{Data: []byte(tc.body)}
			_, err := LoadFS(fsys)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestEmbeddedManifest(t *testing.T) {
	t.Parallel()

	m, err := EmbeddedManifest()
	if err != nil {
		t.Fatalf("EmbeddedManifest: %v", err)
	}
	if m.SchemaVersion != SchemaVersion || len(m.FileSHA256) != 4 || m.TablesSHA256 == "" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if len(m.DetectionOrderIDs) != m.TopicCount+m.InteractionCount+m.KeywordCount {
		t.Fatalf("detection order size=%d", len(m.DetectionOrderIDs))
	}
	if m.DetectionOrderIDs[0] != "topic:damage_assignment_order" {
		t.Fatalf("first detection id=%q", m.DetectionOrderIDs[0])
	}
}
