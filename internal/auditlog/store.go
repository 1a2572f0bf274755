package auditlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxBytes   = int64(4 << 20) // 4 MiB
	defaultMaxBackups = 3

	activeName    = "answers.jsonl"
	rotatedPrefix = "answers-"
)

const (
	StatusAnswered  = "answered"
	StatusHedged    = "hedged"
	StatusNoRuling  = "no_ruling"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"
)

// Entry is one answered (or dropped) question.
type Entry struct {
	CreatedAt string `json:"created_at"`
	RequestID string `json:"request_id"`

	// Status is one of the Status* constants.
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	Question  string `json:"question"`
	KnownCard string `json:"known_card,omitempty"`

	Tier     string `json:"tier,omitempty"`
	Detector string `json:"detector,omitempty"`
	// CascadeVersion records the detector order the tier was chosen with.
	CascadeVersion int `json:"cascade_version,omitempty"`

	Attempts         int      `json:"attempts,omitempty"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	Sources          []string `json:"sources,omitempty"`
	ReferencedCards  []string `json:"referenced_cards,omitempty"`
	DurationMS       int64    `json:"duration_ms"`
}

type Options struct {
	Logger *slog.Logger
	// StateDir is the bot state directory; entries go to <StateDir>/audit.
	StateDir string

	// MaxBytes is the rotation threshold for the active file.
	// If <= 0, a safe default is used.
	MaxBytes int64
	// MaxBackups keeps the latest N rotated files (in addition to the active file).
	// If <= 0, a safe default is used.
	MaxBackups int
}

// Store appends entries to a size-rotated JSONL file.
type Store struct {
	log *slog.Logger

	dir        string
	activePath string

	maxBytes   int64
	maxBackups int
	now        func() time.Time

	mu sync.Mutex
}

func New(opts Options) (*Store, error) {
	stateDir := strings.TrimSpace(opts.StateDir)
	if stateDir == "" {
		return nil, errors.New("missing StateDir")
	}
	dir := filepath.Join(stateDir, "audit")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	activePath := filepath.Join(dir, activeName)
	if f, err := os.OpenFile(activePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil {
		_ = f.Close()
	} else {
		return nil, err
	}

	return &Store{
		log:        logger,
		dir:        dir,
		activePath: activePath,
		maxBytes:   maxBytes,
		maxBackups: maxBackups,
		now:        time.Now,
	}, nil
}

// Append writes e. Failures are logged, never returned: the audit trail must
// not fail an answer.
func (s *Store) Append(e Entry) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(e.CreatedAt) == "" {
		e.CreatedAt = s.now().UTC().Format(time.RFC3339Nano)
	}
	if strings.TrimSpace(e.Status) == "" {
		e.Status = StatusAnswered
	}

	f, err := os.OpenFile(s.activePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.log.Warn("auditlog append failed", "error", err)
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&e); err != nil {
		s.log.Warn("auditlog encode failed", "error", err)
		return
	}

	s.maybeRotateLocked()
}

// Query selects entries. Empty fields match everything.
type Query struct {
	Limit  int
	Status string
	Tier   string
}

func (q Query) match(e Entry) bool {
	if q.Status != "" && e.Status != q.Status {
		return false
	}
	if q.Tier != "" && e.Tier != q.Tier {
		return false
	}
	return true
}

// List returns up to limit entries, newest first, across rotated files.
func (s *Store) List(limit int) ([]Entry, error) {
	return s.Find(Query{Limit: limit})
}

// Find returns entries matching q, newest first.
func (s *Store) Find(q Query) ([]Entry, error) {
	if s == nil {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}

	s.mu.Lock()
	files := s.listFilesLocked()
	s.mu.Unlock()

	out := make([]Entry, 0, limit)
	for _, path := range files {
		if len(out) >= limit {
			break
		}
		entries, err := readFileNewestFirst(path, limit-len(out), q.match)
		if err != nil {
			s.log.Warn("auditlog read failed", "path", path, "error", err)
			continue
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Summary aggregates a set of entries.
type Summary struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	ByTier         map[string]int `json:"by_tier"`
	Regenerated    int            `json:"regenerated"`
	MeanDurationMS int64          `json:"mean_duration_ms"`
}

func Summarize(entries []Entry) Summary {
	sum := Summary{ByStatus: map[string]int{}, ByTier: map[string]int{}}
	var total int64
	for _, e := range entries {
		sum.Total++
		sum.ByStatus[e.Status]++
		if e.Tier != "" {
			sum.ByTier[e.Tier]++
		}
		if e.Attempts > 1 {
			sum.Regenerated++
		}
		total += e.DurationMS
	}
	if sum.Total > 0 {
		sum.MeanDurationMS = total / int64(sum.Total)
	}
	return sum
}

func (s *Store) listFilesLocked() []string {
	paths := []string{s.activePath}
	rotated := s.rotatedNamesLocked()
	// Names embed UnixMilli, so reverse lexical order is newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(rotated)))
	for _, name := range rotated {
		paths = append(paths, filepath.Join(s.dir, name))
	}
	return paths
}

func (s *Store) rotatedNamesLocked() []string {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, ent := range ents {
		if ent == nil || ent.IsDir() {
			continue
		}
		name := ent.Name()
		if strings.HasPrefix(name, rotatedPrefix) && strings.HasSuffix(name, ".jsonl") {
			out = append(out, name)
		}
	}
	return out
}

func (s *Store) maybeRotateLocked() {
	st, err := os.Stat(s.activePath)
	if err != nil || st.Size() <= s.maxBytes {
		return
	}

	dst := filepath.Join(s.dir, fmt.Sprintf("%s%d.jsonl", rotatedPrefix, s.now().UnixMilli()))
	if err := os.Rename(s.activePath, dst); err != nil {
		s.log.Warn("auditlog rotate failed", "error", err)
		return
	}
	if f, err := os.OpenFile(s.activePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600); err == nil {
		_ = f.Close()
	}

	rotated := s.rotatedNamesLocked()
	sort.Strings(rotated)
	if len(rotated) <= s.maxBackups {
		return
	}
	for _, name := range rotated[:len(rotated)-s.maxBackups] {
		_ = os.Remove(filepath.Join(s.dir, name))
	}
}

func readFileNewestFirst(path string, limit int, keep func(Entry) bool) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var entries []Entry
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		if keep != nil && !keep(e) {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
