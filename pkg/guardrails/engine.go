// Package guardrails evaluates conversation text against the loaded
// compliance rule set and decides whether an utterance passes, is
// rewritten, or is blocked.
package guardrails

import (
	"log/slog"
	"strings"
	"time"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/rules"
)

// Violation is one rule match.
type Violation struct {
	RuleID                   string         `json:"rule_id"`
	Category                 string         `json:"category"`
	Severity                 rules.Severity `json:"severity"`
	ActionMessage            string         `json:"action_message"`
	NoncomplianceDescription string         `json:"noncompliance_description"`
	MatchedText              string         `json:"matched_text,omitempty"`
}

// CheckResult is the outcome of evaluating one utterance.
type CheckResult struct {
	Violations []Violation `json:"violations"`
	Locale     string      `json:"locale,omitempty"`
	Role       string      `json:"role,omitempty"`
}

// Violated reports whether any rule matched.
func (r CheckResult) Violated() bool { return len(r.Violations) > 0 }

// ShouldBlock reports whether any violation carries block severity.
func (r CheckResult) ShouldBlock() bool {
	for _, v := range r.Violations {
		if v.Severity == rules.SeverityBlock {
			return true
		}
	}
	return false
}

// ShouldRewrite reports whether the utterance should be rewritten. A
// block always wins over a rewrite.
func (r CheckResult) ShouldRewrite() bool {
	if r.ShouldBlock() {
		return false
	}
	for _, v := range r.Violations {
		if v.Severity == rules.SeverityRewrite {
			return true
		}
	}
	return false
}

// ShouldWarn reports whether any violation carries warn severity.
func (r CheckResult) ShouldWarn() bool {
	for _, v := range r.Violations {
		if v.Severity == rules.SeverityWarn {
			return true
		}
	}
	return false
}

// HighestSeverity returns the strictest severity among the violations,
// or "" when nothing matched.
func (r CheckResult) HighestSeverity() rules.Severity {
	best := rules.Severity("")
	for _, v := range r.Violations {
		if best == "" || rules.SeverityRank(v.Severity) < rules.SeverityRank(best) {
			best = v.Severity
		}
	}
	return best
}

// ActionMessage returns the action message of the first violation at the
// highest severity, in rule declaration order.
func (r CheckResult) ActionMessage() string {
	best := r.HighestSeverity()
	if best == "" {
		return ""
	}
	for _, v := range r.Violations {
		if v.Severity == best {
			return v.ActionMessage
		}
	}
	return ""
}

// RuleIDs returns the matched rule ids in declaration order.
func (r CheckResult) RuleIDs() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.RuleID)
	}
	return out
}

// Categories returns the matched categories in declaration order.
func (r CheckResult) Categories() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Category)
	}
	return out
}

// Severities returns the matched severities in declaration order.
func (r CheckResult) Severities() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, string(v.Severity))
	}
	return out
}

// Engine evaluates text against the store's current rule generation.
type Engine struct {
	store  *rules.Store
	logger *slog.Logger
}

func NewEngine(store *rules.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Check evaluates one utterance. The locale gate runs first: a rejected
// locale produces a single block violation and no rule evaluation.
// Empty or whitespace-only text never violates.
func (e *Engine) Check(text, locale, role string) CheckResult {
	result := CheckResult{Locale: locale, Role: role}
	if strings.TrimSpace(text) == "" {
		return result
	}

	rs, err := e.store.Cached()
	if err != nil {
		// No generation has ever loaded. Fail open but loudly.
		e.logger.Error("guardrail check without a loaded rule set", "error", err)
		return result
	}

	if rs.Policy != nil && !rs.Policy.Allows(locale) {
		result.Violations = append(result.Violations, Violation{
			RuleID:                   "LANGUAGE_001",
			Category:                 "LANGUAGE_EN_ONLY",
			Severity:                 rules.SeverityBlock,
			ActionMessage:            rs.Policy.FallbackMessage,
			NoncomplianceDescription: "Conversation locale outside the allowed set",
		})
		return result
	}

	for _, r := range rs.Rules {
		if !r.Enabled {
			continue
		}
		matched, ok := r.MatchText(text)
		if !ok {
			continue
		}
		result.Violations = append(result.Violations, Violation{
			RuleID:                   r.RuleID,
			Category:                 r.Category,
			Severity:                 r.Severity,
			ActionMessage:            r.ActionMessage,
			NoncomplianceDescription: r.NoncomplianceDescription,
			MatchedText:              matched,
		})
	}
	return result
}

// ReloadRules forces a fresh load of the workbook.
func (e *Engine) ReloadRules() error {
	_, err := e.store.Reload()
	return err
}

// Status describes the current rule generation for the admin endpoint.
type Status struct {
	RulesPath         string    `json:"rules_path"`
	LoadedAt          time.Time `json:"loaded_at"`
	FileModified      time.Time `json:"file_modified"`
	TotalRules        int       `json:"total_rules"`
	EnabledRules      int       `json:"enabled_rules"`
	MissingCategories []string  `json:"missing_categories,omitempty"`
	AllowedLocales    []string  `json:"allowed_locales,omitempty"`
}

// Status reports the loaded generation.
func (e *Engine) Status() (Status, error) {
	rs, err := e.store.Cached()
	if err != nil {
		return Status{}, err
	}
	st := Status{
		RulesPath:         e.store.Path(),
		LoadedAt:          rs.LoadedAt,
		FileModified:      rs.FileModified,
		TotalRules:        len(rs.Rules),
		EnabledRules:      len(rs.Enabled()),
		MissingCategories: rs.MissingCategories(),
	}
	if rs.Policy != nil {
		st.AllowedLocales = rs.Policy.AllowedLocales
	}
	return st, nil
}
