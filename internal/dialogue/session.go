package dialogue

import "medical-voice-agent/internal/catalog"

// State is the conversation phase.
type State string

const (
	StateAwaitingMonolog  State = "awaiting_monolog"
	StateClarifying       State = "clarifying"
	StateAwaitingFollowUp State = "awaiting_follow_up"
	StateEnded            State = "ended"
)

// SymptomState is what the dialogue knows about one symptom. Confirmed is set
// once the value no longer needs a question: the user mentioned the symptom,
// answered about it, or said there is nothing else.
type SymptomState struct {
	Status    catalog.Status `json:"status"`
	Confirmed bool           `json:"confirmed"`
}

// Session is the whole mutable state of one conversation. It is a plain value
// so it can be stored between requests and resumed later.
type Session struct {
	State    State                   `json:"state"`
	Symptoms map[string]SymptomState `json:"symptoms"`
	// Pending is the symptom the last clarification question was about.
	Pending string `json:"pending,omitempty"`
	// Unresolved counts consecutive unresolved answers about Pending.
	Unresolved int `json:"unresolved,omitempty"`
	// Diagnosis is the recommendation given once every symptom was settled.
	Diagnosis string `json:"diagnosis,omitempty"`
}

func NewSession() Session {
	return Session{
		State:    StateAwaitingMonolog,
		Symptoms: map[string]SymptomState{},
	}
}

// ExtractionDone reports whether the opening description was analyzed.
func (s Session) ExtractionDone() bool {
	return s.State != StateAwaitingMonolog
}

func (s Session) AwaitingFollowUp() bool {
	return s.State == StateAwaitingFollowUp
}

// Statuses flattens the session into a symptom map. Symptoms never touched are
// reported Unknown.
func (s Session) Statuses(c *catalog.Catalog) map[string]catalog.Status {
	out := make(map[string]catalog.Status, len(c.Symptoms))
	for _, sym := range c.Symptoms {
		out[sym.ID] = s.Symptoms[sym.ID].Status
	}
	return out
}

// Complete reports whether every catalog symptom is confirmed and resolved.
func (s Session) Complete(c *catalog.Catalog) bool {
	_, open := s.nextOpen(c)
	return !open
}

// nextOpen returns the first symptom, in catalog order, that still needs a
// question.
func (s Session) nextOpen(c *catalog.Catalog) (string, bool) {
	for _, sym := range c.Symptoms {
		st := s.Symptoms[sym.ID]
		if !st.Confirmed || !st.Status.Resolved() {
			return sym.ID, true
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	out.Symptoms = make(map[string]SymptomState, len(s.Symptoms))
	for id, st := range s.Symptoms {
		out.Symptoms[id] = st
	}
	return out
}
