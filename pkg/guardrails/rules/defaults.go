package rules

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// DefaultRuleRow is one row of the starter workbook.
type DefaultRuleRow struct {
	RuleID                   string
	Category                 string
	PatternType              string
	Pattern                  string
	Severity                 string
	ActionMessage            string
	NoncomplianceDescription string
	Enabled                  string
	Notes                    string
}

// DefaultRules is the starter compliance rule set covering every
// required category.
var DefaultRules = []DefaultRuleRow{
	{
		RuleID:                   "PHI_001",
		Category:                 "PHI_HIPAA",
		PatternType:              "regex",
		Pattern:                  `\b(patient|mrn|medical record|date of birth|dob)\b.{0,40}\b(name|number|id)\b`,
		Severity:                 "block",
		ActionMessage:            "I can't discuss patient-identifiable information. Let's keep this to approved product topics.",
		NoncomplianceDescription: "Potential PHI disclosure under HIPAA",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "PHI_002",
		Category:                 "PHI_HIPAA",
		PatternType:              "regex",
		Pattern:                  `\b\d{3}-\d{2}-\d{4}\b`,
		Severity:                 "block",
		ActionMessage:            "I can't process identifiers like that. Let's continue without personal identifiers.",
		NoncomplianceDescription: "SSN-format identifier in conversation",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "OFF_LABEL_001",
		Category:                 "OFF_LABEL",
		PatternType:              "keyword",
		Pattern:                  "off-label,off label,unapproved use,not approved for",
		Severity:                 "block",
		ActionMessage:            "I can only discuss uses consistent with the approved label. Please refer to the full prescribing information.",
		NoncomplianceDescription: "Off-label use discussion",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "AE_001",
		Category:                 "AE_DETECTION",
		PatternType:              "keyword",
		Pattern:                  "side effect,adverse event,reaction,hospitalized,emergency room,allergic",
		Severity:                 "warn",
		ActionMessage:            "This may describe an adverse event. Please report it through the appropriate pharmacovigilance channel.",
		NoncomplianceDescription: "Possible adverse event mention",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "COMPARATIVE_001",
		Category:                 "COMPARATIVE_CLAIM",
		PatternType:              "keyword",
		Pattern:                  "better than,superior to,more effective than,outperforms,beats",
		Severity:                 "rewrite",
		ActionMessage:            "I can't make comparative claims between products. Each product's efficacy is described in its own approved labeling.",
		NoncomplianceDescription: "Unsubstantiated comparative claim",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "PRICING_001",
		Category:                 "PRICING_REBATE",
		PatternType:              "keyword",
		Pattern:                  "cost,price,copay,rebate,discount,cheaper,reimbursement rate",
		Severity:                 "block",
		ActionMessage:            "I can't discuss pricing or rebates. Please contact your account manager for contracting questions.",
		NoncomplianceDescription: "Pricing or rebate discussion",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "UNAPPROVED_001",
		Category:                 "UNAPPROVED_INDICATION",
		PatternType:              "regex",
		Pattern:                  `\b(cure|cures|curing)\b|\bworks for (everything|anything)\b`,
		Severity:                 "block",
		ActionMessage:            "I can't characterize the product that way. Its approved indications are listed in the prescribing information.",
		NoncomplianceDescription: "Claim outside approved indication",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "GUARANTEE_001",
		Category:                 "GUARANTEE",
		PatternType:              "keyword",
		Pattern:                  "guarantee,guaranteed,promise,100% effective,always works",
		Severity:                 "rewrite",
		ActionMessage:            "I can't guarantee outcomes. Individual results vary; please see the prescribing information for efficacy data.",
		NoncomplianceDescription: "Outcome guarantee language",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "CLINICAL_001",
		Category:                 "CLINICAL_GUIDANCE",
		PatternType:              "keyword",
		Pattern:                  "you should take,increase your dose,stop taking,switch to,adjust the dose",
		Severity:                 "rewrite",
		ActionMessage:            "Treatment decisions belong with the prescribing clinician. I can share the approved dosing information instead.",
		NoncomplianceDescription: "Direct clinical guidance to a patient",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "LANGUAGE_001",
		Category:                 "LANGUAGE_EN_ONLY",
		PatternType:              "llm_hint",
		Pattern:                  "respond only in English",
		Severity:                 "block",
		ActionMessage:            "I can only assist in English. Please continue in English.",
		NoncomplianceDescription: "Non-English conversation",
		Enabled:                  "TRUE",
	},
	{
		RuleID:                   "PII_001",
		Category:                 "PII_PROMPT",
		PatternType:              "keyword",
		Pattern:                  "social security,ssn,credit card,home address,passport number",
		Severity:                 "block",
		ActionMessage:            "I can't collect personal identifiers. Let's continue without that information.",
		NoncomplianceDescription: "Prompting for personal identifiers",
		Enabled:                  "TRUE",
	},
}

// DefaultAllowedLocales is the starter language policy.
const DefaultAllowedLocales = "en-US,en-GB,en-CA,en-AU"

// WriteDefaultWorkbook writes the starter workbook to path. Used to
// bootstrap a deployment that has no rules file yet.
func WriteDefaultWorkbook(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, SheetRules); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := append(append([]string{}, rulesColumns...), "notes")
	if err := setRow(f, SheetRules, 1, header); err != nil {
		return err
	}
	for i, r := range DefaultRules {
		row := []string{
			r.RuleID, r.Category, r.PatternType, r.Pattern, r.Severity,
			r.ActionMessage, r.NoncomplianceDescription, r.Enabled, r.Notes,
		}
		if err := setRow(f, SheetRules, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetLanguage); err != nil {
		return fmt.Errorf("create language sheet: %w", err)
	}
	if err := setRow(f, SheetLanguage, 1, []string{"allowed_locales", "fallback_message", "notes"}); err != nil {
		return err
	}
	if err := setRow(f, SheetLanguage, 2, []string{
		DefaultAllowedLocales,
		DefaultFallbackMessage,
		"English-only sessions",
	}); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
