// Package audit writes the compliance audit trail as day-partitioned
// NDJSON files. Raw conversation text never reaches disk; entries carry
// a hash and a redacted snippet only.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails"
)

// Entry is one audit record. It never contains the raw utterance.
type Entry struct {
	Timestamp                 time.Time `json:"timestamp"`
	SessionID                 string    `json:"session_id"`
	Role                      string    `json:"role"`
	TextHash                  string    `json:"text_hash"`
	TextSnippet               string    `json:"text_snippet"`
	MatchedRuleIDs            []string  `json:"matched_rule_ids"`
	Categories                []string  `json:"categories"`
	Severities                []string  `json:"severities"`
	ActionTaken               string    `json:"action_taken"`
	Locale                    string    `json:"locale,omitempty"`
	Violated                  bool      `json:"violated"`
	NoncomplianceDescriptions []string  `json:"noncompliance_descriptions,omitempty"`
}

const (
	ActionPassed    = "passed"
	ActionBlocked   = "blocked"
	ActionRewritten = "rewritten"
	ActionWarned    = "warned"
)

var (
	reSSN   = regexp.MustCompile(`\d{3}-\d{2}-\d{4}`)
	rePhone = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	reEmail = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	reID    = regexp.MustCompile(`\b\d{6,}\b`)
)

// Redact replaces common identifier shapes in s.
func Redact(s string) string {
	s = reSSN.ReplaceAllString(s, "[SSN]")
	s = rePhone.ReplaceAllString(s, "[PHONE]")
	s = reEmail.ReplaceAllString(s, "[EMAIL]")
	s = reID.ReplaceAllString(s, "[ID]")
	return s
}

const snippetEdge = 20

// Snippet builds the redacted audit snippet: the first and last
// snippetEdge characters of the redacted text, or "[REDACTED]" for
// short texts.
func Snippet(text string) string {
	red := Redact(text)
	runes := []rune(red)
	if len(runes) <= 2*snippetEdge {
		return "[REDACTED]"
	}
	return string(runes[:snippetEdge]) + "..." + string(runes[len(runes)-snippetEdge:])
}

// HashText returns the hex SHA-256 of the raw text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ActionFor classifies a check result.
func ActionFor(res guardrails.CheckResult) string {
	switch {
	case res.ShouldBlock():
		return ActionBlocked
	case res.ShouldRewrite():
		return ActionRewritten
	case res.ShouldWarn():
		return ActionWarned
	default:
		return ActionPassed
	}
}

// Log appends audit entries under a base directory, one file per UTC day.
type Log struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex // serializes appends
}

// NewLog picks the first writable directory of primary and fallback,
// deciding once with a write test, and creates it if needed.
func NewLog(primary, fallback string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	dir := primary
	if !writable(primary) {
		if primary != "" {
			logger.Warn("audit directory not writable, using fallback",
				"primary", primary, "fallback", fallback)
		}
		dir = fallback
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("audit fallback directory unusable", "dir", dir, "error", err)
		}
	}
	return &Log{dir: dir, logger: logger, now: time.Now}
}

func writable(dir string) bool {
	if dir == "" {
		return false
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".audit_probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// Dir returns the directory the log writes to.
func (l *Log) Dir() string { return l.dir }

func partitionName(day time.Time) string {
	return fmt.Sprintf("guardrails_audit_%s.ndjson", day.UTC().Format("2006-01-02"))
}

// LogCheck records one guardrail evaluation. It never returns an error;
// write failures are logged and the check outcome is unaffected.
func (l *Log) LogCheck(sessionID, role, text string, res guardrails.CheckResult, locale string) {
	entry := Entry{
		Timestamp:      l.now().UTC(),
		SessionID:      sessionID,
		Role:           role,
		TextHash:       HashText(text),
		TextSnippet:    Snippet(text),
		MatchedRuleIDs: res.RuleIDs(),
		Categories:     res.Categories(),
		Severities:     res.Severities(),
		ActionTaken:    ActionFor(res),
		Locale:         locale,
		Violated:       res.Violated(),
	}
	for _, v := range res.Violations {
		entry.NoncomplianceDescriptions = append(entry.NoncomplianceDescriptions, v.NoncomplianceDescription)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("audit entry marshal failed", "session_id", sessionID, "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	path := filepath.Join(l.dir, partitionName(entry.Timestamp))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error("audit append failed", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Error("audit write failed", "path", path, "error", err)
	}
}

// ReadSessionLogs returns all entries for a session across every
// partition, oldest first. Unless includeText is set, snippets are
// re-redacted before being returned.
func (l *Log) ReadSessionLogs(sessionID string, includeText bool) ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(l.dir, "guardrails_audit_*.ndjson"))
	if err != nil {
		return nil, fmt.Errorf("list audit partitions: %w", err)
	}
	sort.Strings(paths)

	var out []Entry
	for _, path := range paths {
		entries, err := l.readPartition(path, sessionID, includeText)
		if err != nil {
			l.logger.Warn("audit partition unreadable", "path", path, "error", err)
			continue
		}
		out = append(out, entries...)
	}
	return out, nil
}

func (l *Log) readPartition(path, sessionID string, includeText bool) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			l.logger.Warn("malformed audit line skipped", "path", path, "error", err)
			continue
		}
		if e.SessionID != sessionID {
			continue
		}
		if !includeText {
			e.TextSnippet = Redact(e.TextSnippet)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// DailyStats aggregates one UTC day's partition.
type DailyStats struct {
	Date       string         `json:"date"`
	Total      int            `json:"total"`
	ByAction   map[string]int `json:"by_action"`
	ByCategory map[string]int `json:"by_category"`
	ByRule     map[string]int `json:"by_rule"`
}

// Stats aggregates the entries of the given UTC day.
func (l *Log) Stats(day time.Time) (DailyStats, error) {
	stats := DailyStats{
		Date:       day.UTC().Format("2006-01-02"),
		ByAction:   make(map[string]int),
		ByCategory: make(map[string]int),
		ByRule:     make(map[string]int),
	}

	path := filepath.Join(l.dir, partitionName(day))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("open audit partition: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		stats.Total++
		stats.ByAction[e.ActionTaken]++
		for _, c := range e.Categories {
			stats.ByCategory[c]++
		}
		for _, id := range e.MatchedRuleIDs {
			stats.ByRule[id]++
		}
	}
	return stats, sc.Err()
}
