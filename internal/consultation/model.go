package consultation

import (
	"time"

	"github.com/google/uuid"

	"medical-voice-agent/internal/dialogue"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Consultation represents the aggregate root
type Consultation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PatientID uuid.UUID `json:"patient_id" db:"patient_id"`

	History []Message `json:"history" db:"history"`

	// Dialogue state, resumed on every turn.
	Session dialogue.Session `json:"session" db:"session"`

	// Last recommendation given to the patient.
	Diagnosis string `json:"diagnosis" db:"diagnosis"`

	IsComplete bool      `json:"is_complete" db:"is_complete"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Reply is the assistant's answer to one user turn.
type Reply struct {
	Text  string         `json:"response"`
	Done  bool           `json:"done"`
	State dialogue.State `json:"state"`
}

// StreamEvent is one server-sent event of the streaming audio endpoint.
type StreamEvent struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

const (
	EventUserText = "user_text"
	EventResponse = "response"
	EventAudio    = "audio"
	EventDone     = "done"
	EventError    = "error"
)
