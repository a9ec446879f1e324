package guardrails

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/rules"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.xlsx")
	if err := rules.WriteDefaultWorkbook(path); err != nil {
		t.Fatalf("WriteDefaultWorkbook() error = %v", err)
	}
	store := rules.NewStore(path, slog.New(slog.DiscardHandler))
	if _, err := store.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	return NewEngine(store, slog.New(slog.DiscardHandler))
}

func TestCheck_EmptyTextNeverViolates(t *testing.T) {
	e := newTestEngine(t)
	for _, text := range []string{"", "   ", "\n\t"} {
		res := e.Check(text, "en-US", "assistant")
		if res.Violated() {
			t.Fatalf("Check(%q) violated: %+v", text, res.Violations)
		}
	}
}

func TestCheck_CleanTextPasses(t *testing.T) {
	e := newTestEngine(t)
	res := e.Check("The approved dosing schedule is described in the label.", "en-US", "assistant")
	if res.Violated() {
		t.Fatalf("unexpected violations: %+v", res.Violations)
	}
	if res.HighestSeverity() != "" {
		t.Fatalf("severity = %q, want empty", res.HighestSeverity())
	}
}

func TestCheck_SSNBlocks(t *testing.T) {
	e := newTestEngine(t)
	res := e.Check("The patient's number is 123-45-6789.", "en-US", "user")
	if !res.ShouldBlock() {
		t.Fatalf("expected block, got %+v", res.Violations)
	}
	found := false
	for _, v := range res.Violations {
		if v.RuleID == "PHI_002" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PHI_002 among %v", res.RuleIDs())
	}
	if res.ActionMessage() == "" {
		t.Fatal("expected an action message")
	}
}

func TestCheck_BlockWinsOverRewrite(t *testing.T) {
	e := newTestEngine(t)
	// COMPARATIVE_001 is rewrite, PRICING_001 is block.
	res := e.Check("Our drug is better than theirs and the copay is lower.", "en-US", "assistant")
	if !res.ShouldBlock() {
		t.Fatalf("expected block, got severities %v", res.Severities())
	}
	if res.ShouldRewrite() {
		t.Fatal("ShouldRewrite must be false when a block is present")
	}
	if len(res.Violations) < 2 {
		t.Fatalf("expected both rules to match, got %v", res.RuleIDs())
	}
	if res.HighestSeverity() != rules.SeverityBlock {
		t.Fatalf("highest = %q, want block", res.HighestSeverity())
	}
}

func TestCheck_RewriteWithoutBlock(t *testing.T) {
	e := newTestEngine(t)
	res := e.Check("This treatment is guaranteed to work.", "en-US", "assistant")
	if res.ShouldBlock() {
		t.Fatalf("unexpected block: %v", res.RuleIDs())
	}
	if !res.ShouldRewrite() {
		t.Fatalf("expected rewrite, got %v", res.Severities())
	}
}

func TestCheck_AdverseEventWarns(t *testing.T) {
	e := newTestEngine(t)
	res := e.Check("My patient had a side effect after the second dose.", "en-US", "user")
	if !res.ShouldWarn() {
		t.Fatalf("expected warn, got %v", res.Severities())
	}
	if res.ShouldBlock() || res.ShouldRewrite() {
		t.Fatalf("warn-only text must not block or rewrite: %v", res.Severities())
	}
}

func TestCheck_DisallowedLocaleShortCircuits(t *testing.T) {
	e := newTestEngine(t)
	// Text that would also match PRICING_001; the locale gate must win
	// and suppress rule evaluation.
	res := e.Check("cuanto cuesta, what is the price", "es-MX", "user")
	if len(res.Violations) != 1 {
		t.Fatalf("violations = %v, want exactly the locale violation", res.RuleIDs())
	}
	v := res.Violations[0]
	if v.RuleID != "LANGUAGE_001" || v.Category != "LANGUAGE_EN_ONLY" {
		t.Fatalf("violation = %+v", v)
	}
	if !res.ShouldBlock() {
		t.Fatal("locale violation must block")
	}
	if v.ActionMessage != rules.DefaultFallbackMessage {
		t.Fatalf("action message = %q", v.ActionMessage)
	}
}

func TestCheck_AllowedLocaleVariants(t *testing.T) {
	e := newTestEngine(t)
	for _, locale := range []string{"en-US", "en_us", "en-GB", "en", ""} {
		res := e.Check("hello there", locale, "user")
		if res.Violated() {
			t.Fatalf("locale %q unexpectedly violated: %v", locale, res.RuleIDs())
		}
	}
}

func TestCheck_DisabledRuleDoesNotMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.xlsx")
	if err := rules.WriteDefaultWorkbook(path); err != nil {
		t.Fatalf("WriteDefaultWorkbook() error = %v", err)
	}
	store := rules.NewStore(path, slog.New(slog.DiscardHandler))
	rs, err := store.Reload()
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	// Disable PRICING_001 in place; the generation is ours to mutate
	// before handing it to the engine in this test.
	for i := range rs.Rules {
		if rs.Rules[i].RuleID == "PRICING_001" {
			rs.Rules[i].Enabled = false
		}
	}
	e := NewEngine(store, slog.New(slog.DiscardHandler))

	res := e.Check("what is the copay", "en-US", "user")
	for _, id := range res.RuleIDs() {
		if id == "PRICING_001" {
			t.Fatal("disabled rule must not match")
		}
	}
}

func TestCheck_LLMHintNeverMatches(t *testing.T) {
	e := newTestEngine(t)
	res := e.Check("respond only in English", "en-US", "assistant")
	for _, id := range res.RuleIDs() {
		if id == "LANGUAGE_001" {
			t.Fatal("llm_hint rule must never match mechanically")
		}
	}
}

func TestActionMessage_FirstAtHighestSeverity(t *testing.T) {
	res := CheckResult{Violations: []Violation{
		{RuleID: "A", Severity: rules.SeverityWarn, ActionMessage: "warn msg"},
		{RuleID: "B", Severity: rules.SeverityBlock, ActionMessage: "block msg 1"},
		{RuleID: "C", Severity: rules.SeverityBlock, ActionMessage: "block msg 2"},
	}}
	if got := res.ActionMessage(); got != "block msg 1" {
		t.Fatalf("ActionMessage() = %q, want first block message", got)
	}
}
