package conversation

import (
	"strings"
	"testing"
)

func TestMissingRequiredSlots_OrderAndCompletion(t *testing.T) {
	s := NewState("sess-1")

	missing := s.MissingRequiredSlots()
	if len(missing) != 4 {
		t.Fatalf("missing = %v, want all four", missing)
	}
	if missing[0] != SlotHCPName {
		t.Fatalf("first missing = %q, want hcp_name", missing[0])
	}

	s.Set(SlotHCPName, "Dr. William Harper")
	s.Set(SlotDate, "2026-08-30")
	missing = s.MissingRequiredSlots()
	if len(missing) != 2 || missing[0] != SlotTime || missing[1] != SlotProduct {
		t.Fatalf("missing = %v", missing)
	}

	s.Set(SlotTime, "2:30 PM")
	s.Set(SlotProduct, "Cardiofix")
	if got := s.MissingRequiredSlots(); len(got) != 0 {
		t.Fatalf("missing = %v, want none", got)
	}
}

func TestNextQuestion_TracksFirstGap(t *testing.T) {
	s := NewState("sess-1")
	if q := s.NextQuestion(); !strings.Contains(q, "healthcare professional") {
		t.Fatalf("question = %q", q)
	}
	s.Set(SlotHCPName, "Dr. Harper")
	if q := s.NextQuestion(); !strings.Contains(q, "date") {
		t.Fatalf("question = %q", q)
	}
	s.Set(SlotDate, "2026-08-30")
	s.Set(SlotTime, "9:00 AM")
	s.Set(SlotProduct, "Cardiofix")
	if q := s.NextQuestion(); q != "" {
		t.Fatalf("question = %q, want empty", q)
	}
}

func TestSummary_ReadsBackRecord(t *testing.T) {
	s := NewState("sess-1")
	s.Set(SlotHCPName, "Dr. Harper")
	s.Set(SlotDate, "2026-08-30")
	s.Set(SlotTime, "2:30 PM")
	s.Set(SlotProduct, "Cardiofix")
	s.AdverseEvent = true

	sum := s.Summary()
	for _, want := range []string{"Dr. Harper", "2026-08-30", "2:30 PM", "Cardiofix", "adverse event"} {
		if !strings.Contains(sum, want) {
			t.Fatalf("summary %q missing %q", sum, want)
		}
	}
}

func TestOutputRecord_Shape(t *testing.T) {
	s := NewState("sess-1")
	s.Set(SlotHCPName, "Dr. Harper")
	s.Set(SlotHCPID, "0013K000013ez2RQAQ")
	s.Set(SlotDate, "2026-08-30")
	s.Set(SlotTime, "2:30 PM")
	s.Set(SlotProduct, "Cardiofix")
	s.FollowUpTask = &FollowUpTask{TaskType: "Sample Drop", Description: "bring samples", DueDate: "2026-09-05"}

	rec := s.OutputRecord()
	if rec["call_channel"] != "In-person" || rec["status"] != "Saved_vod" {
		t.Fatalf("record = %v", rec)
	}
	if rec["account"] != "Dr. Harper" || rec["id"] != "0013K000013ez2RQAQ" {
		t.Fatalf("record = %v", rec)
	}
	task, ok := rec["call_follow_up_task"].(map[string]any)
	if !ok || task["description"] != "bring samples" {
		t.Fatalf("task = %v", rec["call_follow_up_task"])
	}
}

func TestOutputRecord_NoTaskOmitsBlock(t *testing.T) {
	s := NewState("sess-1")
	rec := s.OutputRecord()
	if _, ok := rec["call_follow_up_task"]; ok {
		t.Fatal("task block present without a task")
	}
}

func TestTranscriptAndConfirmation(t *testing.T) {
	s := NewState("sess-1")
	s.AddTurn("user", "I met Dr. Harper today")
	s.AddTurn("assistant", "Got it.")
	s.AddTurn("assistant", "   ") // ignored

	turns := s.Transcript()
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Fatalf("turns = %+v", turns)
	}

	if s.Confirmed(SlotHCPName) {
		t.Fatal("slot confirmed before Confirm")
	}
	s.Confirm(SlotHCPName)
	if !s.Confirmed(SlotHCPName) {
		t.Fatal("slot not confirmed")
	}
}

func TestStore_GetOrCreateAndDelete(t *testing.T) {
	st := NewStore()
	a := st.GetOrCreate("sess-a")
	if again := st.GetOrCreate("sess-a"); again != a {
		t.Fatal("GetOrCreate must return the same state")
	}
	if _, ok := st.Get("sess-b"); ok {
		t.Fatal("unexpected state for sess-b")
	}
	st.Delete("sess-a")
	if _, ok := st.Get("sess-a"); ok {
		t.Fatal("state survived Delete")
	}
}
