// Package conversation tracks the call-recording slot state built up
// over a voice session and renders the CRM call record from it.
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Slot names collected during a call recording conversation.
const (
	SlotHCPName         = "hcp_name"
	SlotHCPID           = "hcp_id"
	SlotDate            = "date"
	SlotTime            = "time"
	SlotProduct         = "product"
	SlotCallNotes       = "call_notes"
	SlotDiscussionTopic = "discussion_topic"
)

// RequiredSlots must all be filled before the record can be saved.
var RequiredSlots = []string{SlotHCPName, SlotDate, SlotTime, SlotProduct}

// FollowUpTask is an optional follow-up attached to the call.
type FollowUpTask struct {
	TaskType    string `json:"task_type,omitempty"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

// Turn is one transcript entry.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// State is the slot-filling record for one session.
type State struct {
	mu sync.Mutex

	SessionID string

	HCPName         string
	HCPID           string
	HCOID           string
	HCOName         string
	Date            string
	Time            string
	Product         string
	CallNotes       string
	DiscussionTopic string
	FollowUpTask    *FollowUpTask

	AdverseEvent             bool
	AdverseEventDetails      string
	NoncomplianceEvent       bool
	NoncomplianceDescription string

	confirmed  map[string]bool
	transcript []Turn

	SummaryReadBack bool
	Finalized       bool
	CallPK          int64
}

func NewState(sessionID string) *State {
	return &State{
		SessionID: sessionID,
		confirmed: make(map[string]bool),
	}
}

// Set fills a slot by name. Unknown slot names are ignored.
func (s *State) Set(slot, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch slot {
	case SlotHCPName:
		s.HCPName = value
	case SlotHCPID:
		s.HCPID = value
	case SlotDate:
		s.Date = value
	case SlotTime:
		s.Time = value
	case SlotProduct:
		s.Product = value
	case SlotCallNotes:
		s.CallNotes = value
	case SlotDiscussionTopic:
		s.DiscussionTopic = value
	}
}

// Confirm marks a slot as read back and confirmed by the user.
func (s *State) Confirm(slot string) {
	s.mu.Lock()
	s.confirmed[slot] = true
	s.mu.Unlock()
}

// Confirmed reports whether a slot was confirmed.
func (s *State) Confirmed(slot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed[slot]
}

// AddTurn appends one transcript entry.
func (s *State) AddTurn(role, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.mu.Lock()
	s.transcript = append(s.transcript, Turn{Role: role, Text: text, At: time.Now().UTC()})
	s.mu.Unlock()
}

// Transcript returns a copy of the turns so far.
func (s *State) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *State) slotValue(slot string) string {
	switch slot {
	case SlotHCPName:
		return s.HCPName
	case SlotDate:
		return s.Date
	case SlotTime:
		return s.Time
	case SlotProduct:
		return s.Product
	default:
		return ""
	}
}

// MissingRequiredSlots lists the required slots still unfilled, in
// collection order.
func (s *State) MissingRequiredSlots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []string
	for _, slot := range RequiredSlots {
		if strings.TrimSpace(s.slotValue(slot)) == "" {
			missing = append(missing, slot)
		}
	}
	return missing
}

var slotQuestions = map[string]string{
	SlotHCPName: "Which healthcare professional did you meet with?",
	SlotDate:    "What date did the call take place?",
	SlotTime:    "What time was the call?",
	SlotProduct: "Which product did you discuss?",
}

// NextQuestion returns the prompt for the first missing required slot,
// or "" when the record is complete.
func (s *State) NextQuestion() string {
	missing := s.MissingRequiredSlots()
	if len(missing) == 0 {
		return ""
	}
	return slotQuestions[missing[0]]
}

// Summary renders the read-back text the agent speaks before saving.
func (s *State) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	b.WriteString("Here's what I have: ")
	fmt.Fprintf(&b, "a call with %s on %s at %s about %s.", orUnknown(s.HCPName), orUnknown(s.Date), orUnknown(s.Time), orUnknown(s.Product))
	if s.DiscussionTopic != "" {
		fmt.Fprintf(&b, " Discussion topic: %s.", s.DiscussionTopic)
	}
	if s.CallNotes != "" {
		fmt.Fprintf(&b, " Notes: %s.", s.CallNotes)
	}
	if s.FollowUpTask != nil && s.FollowUpTask.Description != "" {
		fmt.Fprintf(&b, " Follow-up: %s due %s.", s.FollowUpTask.Description, orUnknown(s.FollowUpTask.DueDate))
	}
	if s.AdverseEvent {
		b.WriteString(" An adverse event was flagged for reporting.")
	}
	b.WriteString(" Shall I save it?")
	return b.String()
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}

// OutputRecord builds the CRM call record payload.
func (s *State) OutputRecord() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := map[string]any{
		"call_channel":              "In-person",
		"discussion_topic":          s.DiscussionTopic,
		"status":                    "Saved_vod",
		"account":                   s.HCPName,
		"id":                        s.HCPID,
		"adverse_event":             s.AdverseEvent,
		"adverse_event_details":     s.AdverseEventDetails,
		"noncompliance_event":       s.NoncomplianceEvent,
		"noncompliance_description": s.NoncomplianceDescription,
		"call_notes":                s.CallNotes,
		"call_date":                 s.Date,
		"call_time":                 s.Time,
		"product":                   s.Product,
	}
	if s.FollowUpTask != nil {
		rec["call_follow_up_task"] = map[string]any{
			"task_type":   s.FollowUpTask.TaskType,
			"description": s.FollowUpTask.Description,
			"due_date":    s.FollowUpTask.DueDate,
			"assigned_to": s.FollowUpTask.AssignedTo,
		}
	}
	return rec
}

// Store keeps one State per session.
type Store struct {
	mu     sync.Mutex
	states map[string]*State
}

func NewStore() *Store {
	return &Store{states: make(map[string]*State)}
}

// GetOrCreate returns the session's state, creating it on first use.
func (st *Store) GetOrCreate(sessionID string) *State {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.states[sessionID]; ok {
		return s
	}
	s := NewState(sessionID)
	st.states[sessionID] = s
	return s
}

// Get returns the session's state if it exists.
func (st *Store) Get(sessionID string) (*State, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.states[sessionID]
	return s, ok
}

// Delete removes a session's state.
func (st *Store) Delete(sessionID string) {
	st.mu.Lock()
	delete(st.states, sessionID)
	st.mu.Unlock()
}
