package rules

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	SheetRules    = "rules_v1"
	SheetLanguage = "language_policies"
)

var rulesColumns = []string{
	"rule_id",
	"category",
	"pattern_type",
	"pattern",
	"severity",
	"action_message",
	"noncompliance_description",
	"enabled",
}

// LoadFile reads and validates the rules workbook at path. It returns a
// *SchemaError when the workbook structure is unusable and a
// *ValidationError when a row carries an out-of-set value. Required
// categories with no enabled rule only produce a warning log.
func LoadFile(path string, logger *slog.Logger) (*RuleSet, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat rules file: %w", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open rules workbook: %w", err)
	}
	defer f.Close()

	loaded, err := parseRules(f, logger)
	if err != nil {
		return nil, err
	}

	policy, err := parseLanguagePolicy(f)
	if err != nil {
		return nil, err
	}

	rs := &RuleSet{
		Rules:        loaded,
		Policy:       policy,
		LoadedAt:     time.Now().UTC(),
		FileModified: info.ModTime(),
	}

	if missing := rs.MissingCategories(); len(missing) > 0 {
		logger.Warn("rules workbook missing required categories",
			"path", path,
			"categories", strings.Join(missing, ","))
	}

	return rs, nil
}

func parseRules(f *excelize.File, logger *slog.Logger) ([]Rule, error) {
	rows, err := f.GetRows(SheetRules)
	if err != nil {
		return nil, &SchemaError{Sheet: SheetRules, Detail: "sheet not found"}
	}
	if len(rows) == 0 {
		return nil, &SchemaError{Sheet: SheetRules, Detail: "empty sheet"}
	}

	colIdx, err := headerIndex(rows[0], rulesColumns)
	if err != nil {
		return nil, err
	}
	notesIdx := columnIndex(rows[0], "notes")

	var out []Rule
	for i, row := range rows[1:] {
		rowNum := i + 2 // 1-based, after header
		if isBlankRow(row) {
			continue
		}
		r := Rule{
			RuleID:                   cell(row, colIdx["rule_id"]),
			Category:                 cell(row, colIdx["category"]),
			PatternType:              PatternType(strings.ToLower(cell(row, colIdx["pattern_type"]))),
			Pattern:                  cell(row, colIdx["pattern"]),
			Severity:                 Severity(strings.ToLower(cell(row, colIdx["severity"]))),
			ActionMessage:            cell(row, colIdx["action_message"]),
			NoncomplianceDescription: cell(row, colIdx["noncompliance_description"]),
			Enabled:                  parseEnabled(cell(row, colIdx["enabled"])),
		}
		if notesIdx >= 0 {
			r.Notes = cell(row, notesIdx)
		}

		if r.RuleID == "" {
			return nil, &ValidationError{Sheet: SheetRules, Row: rowNum, Column: "rule_id", Detail: "must not be empty"}
		}
		if r.Category == "" {
			return nil, &ValidationError{Sheet: SheetRules, Row: rowNum, Column: "category", Detail: "must not be empty"}
		}
		switch r.PatternType {
		case PatternRegex, PatternKeyword, PatternLLMHint:
		default:
			return nil, &ValidationError{Sheet: SheetRules, Row: rowNum, Column: "pattern_type",
				Detail: fmt.Sprintf("%q is not one of regex|keyword|llm_hint", r.PatternType)}
		}
		switch r.Severity {
		case SeverityBlock, SeverityRewrite, SeverityWarn:
		default:
			return nil, &ValidationError{Sheet: SheetRules, Row: rowNum, Column: "severity",
				Detail: fmt.Sprintf("%q is not one of block|rewrite|warn", r.Severity)}
		}
		if r.ActionMessage == "" {
			return nil, &ValidationError{Sheet: SheetRules, Row: rowNum, Column: "action_message", Detail: "must not be empty"}
		}

		compileRule(&r, logger)
		out = append(out, r)
	}
	return out, nil
}

// compileRule builds the rule's matcher. An invalid regex does not fail
// the load; the rule is kept with a nil matcher and never fires.
func compileRule(r *Rule, logger *slog.Logger) {
	switch r.PatternType {
	case PatternRegex:
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			logger.Warn("invalid regex pattern, rule will not match",
				"rule_id", r.RuleID, "pattern", r.Pattern, "error", err)
			return
		}
		r.re = re
	case PatternKeyword:
		for _, kw := range strings.Split(r.Pattern, ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			re, err := regexp.Compile(`\b` + regexp.QuoteMeta(kw) + `\b`)
			if err != nil {
				logger.Warn("invalid keyword, skipped",
					"rule_id", r.RuleID, "keyword", kw, "error", err)
				continue
			}
			r.keywords = append(r.keywords, re)
		}
	}
}

func parseLanguagePolicy(f *excelize.File) (*LanguagePolicy, error) {
	rows, err := f.GetRows(SheetLanguage)
	if err != nil {
		// The language sheet is optional.
		return nil, nil
	}
	if len(rows) < 2 {
		return nil, nil
	}

	localesIdx := columnIndex(rows[0], "allowed_locales")
	fallbackIdx := columnIndex(rows[0], "fallback_message")
	if localesIdx < 0 || fallbackIdx < 0 {
		return nil, &SchemaError{Sheet: SheetLanguage, Detail: "missing allowed_locales or fallback_message column"}
	}
	notesIdx := columnIndex(rows[0], "notes")

	// First data row wins.
	row := rows[1]
	policy := &LanguagePolicy{
		FallbackMessage: cell(row, fallbackIdx),
	}
	for _, loc := range strings.Split(cell(row, localesIdx), ",") {
		loc = strings.TrimSpace(loc)
		if loc != "" {
			policy.AllowedLocales = append(policy.AllowedLocales, loc)
		}
	}
	if notesIdx >= 0 {
		policy.Notes = cell(row, notesIdx)
	}
	if policy.FallbackMessage == "" {
		policy.FallbackMessage = DefaultFallbackMessage
	}
	return policy, nil
}

func headerIndex(header []string, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(required))
	for _, col := range required {
		i := columnIndex(header, col)
		if i < 0 {
			return nil, &SchemaError{Sheet: SheetRules, Detail: fmt.Sprintf("missing required column %q", col)}
		}
		idx[col] = i
	}
	return idx, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseEnabled(raw string) bool {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TRUE", "YES", "1", "ENABLED":
		return true
	default:
		return false
	}
}
