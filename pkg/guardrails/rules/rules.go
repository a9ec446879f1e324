// Package rules loads and caches pharma compliance rule sets from an
// Excel workbook. A loaded generation is immutable; readers always see
// either the previous complete set or the new one.
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type PatternType string

const (
	PatternRegex   PatternType = "regex"
	PatternKeyword PatternType = "keyword"
	PatternLLMHint PatternType = "llm_hint"
)

type Severity string

const (
	SeverityBlock   Severity = "block"
	SeverityRewrite Severity = "rewrite"
	SeverityWarn    Severity = "warn"
)

// SeverityRank orders severities by strictness. Lower is stricter.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityBlock:
		return 0
	case SeverityRewrite:
		return 1
	case SeverityWarn:
		return 2
	default:
		return 3
	}
}

// Rule is one compliance rule from the rules_v1 sheet.
type Rule struct {
	RuleID                   string
	Category                 string
	PatternType              PatternType
	Pattern                  string
	Severity                 Severity
	ActionMessage            string
	NoncomplianceDescription string
	Enabled                  bool
	Notes                    string

	// Compiled at load time. Nil for llm_hint rules and for regex rules
	// whose pattern failed to compile (those are skipped at check time).
	re       *regexp.Regexp
	keywords []*regexp.Regexp
}

// Match reports whether the rule matches the given text. text must
// already be the raw utterance; keyword rules lowercase it themselves.
func (r *Rule) Match(text string) bool {
	switch r.PatternType {
	case PatternRegex:
		if r.re == nil {
			return false
		}
		return r.re.MatchString(text)
	case PatternKeyword:
		lowered := strings.ToLower(text)
		for _, kw := range r.keywords {
			if kw.MatchString(lowered) {
				return true
			}
		}
		return false
	default:
		// llm_hint rules never match mechanically.
		return false
	}
}

// MatchText returns the matched fragment. For keyword rules the first
// keyword in declaration order wins.
func (r *Rule) MatchText(text string) (string, bool) {
	switch r.PatternType {
	case PatternRegex:
		if r.re == nil {
			return "", false
		}
		if loc := r.re.FindStringIndex(text); loc != nil {
			return text[loc[0]:loc[1]], true
		}
		return "", false
	case PatternKeyword:
		lowered := strings.ToLower(text)
		for _, kw := range r.keywords {
			if m := kw.FindString(lowered); m != "" {
				return m, true
			}
		}
		return "", false
	default:
		return "", false
	}
}

// LanguagePolicy restricts the locales a session may run in.
type LanguagePolicy struct {
	AllowedLocales  []string
	FallbackMessage string
	Notes           string
}

// DefaultFallbackMessage is used when the workbook has no language sheet.
const DefaultFallbackMessage = "I can only assist in English. Please continue in English."

// Allows reports whether the normalized locale is permitted. Normalization
// lowercases and converts underscores to dashes; a locale is allowed on an
// exact match, a dash-prefixed extension of an allowed locale, or when its
// base language tag matches an allowed locale's base language tag.
func (p *LanguagePolicy) Allows(locale string) bool {
	if p == nil || len(p.AllowedLocales) == 0 {
		return true
	}
	norm := NormalizeLocale(locale)
	if norm == "" {
		return true
	}
	normBase, _, _ := strings.Cut(norm, "-")
	for _, allowed := range p.AllowedLocales {
		a := NormalizeLocale(allowed)
		if norm == a {
			return true
		}
		if strings.HasPrefix(norm, a+"-") {
			return true
		}
		aBase, _, _ := strings.Cut(a, "-")
		if normBase == aBase {
			return true
		}
	}
	return false
}

// NormalizeLocale lowercases a BCP-47-ish tag and converts underscores
// to dashes ("en_US" -> "en-us").
func NormalizeLocale(locale string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
}

// RuleSet is one immutable loaded generation of the workbook.
type RuleSet struct {
	Rules        []Rule
	Policy       *LanguagePolicy
	LoadedAt     time.Time
	FileModified time.Time
}

// Enabled returns the enabled rules in declaration order.
func (rs *RuleSet) Enabled() []Rule {
	out := make([]Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// EnabledByCategory counts enabled rules per category.
func (rs *RuleSet) EnabledByCategory() map[string]int {
	out := make(map[string]int)
	for _, r := range rs.Rules {
		if r.Enabled {
			out[r.Category]++
		}
	}
	return out
}

// RequiredCategories must each have at least one enabled rule; a gap is
// reported as a load warning, not a failure.
var RequiredCategories = []string{
	"PHI_HIPAA",
	"OFF_LABEL",
	"AE_DETECTION",
	"COMPARATIVE_CLAIM",
	"PRICING_REBATE",
	"UNAPPROVED_INDICATION",
	"GUARANTEE",
	"CLINICAL_GUIDANCE",
	"LANGUAGE_EN_ONLY",
	"PII_PROMPT",
}

// MissingCategories lists required categories with no enabled rule.
func (rs *RuleSet) MissingCategories() []string {
	counts := rs.EnabledByCategory()
	var missing []string
	for _, cat := range RequiredCategories {
		if counts[cat] == 0 {
			missing = append(missing, cat)
		}
	}
	return missing
}

// SchemaError reports a structurally unusable workbook (missing sheet or
// required column). Fatal at startup.
type SchemaError struct {
	Sheet  string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("rules schema error in sheet %q: %s", e.Sheet, e.Detail)
}

// ValidationError reports a row with an out-of-set or empty required value.
type ValidationError struct {
	Sheet  string
	Row    int
	Column string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rules validation error in sheet %q row %d column %q: %s", e.Sheet, e.Row, e.Column, e.Detail)
}
