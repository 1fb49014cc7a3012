package catalog

import (
	"fmt"
	"strings"
)

// Status is the tri-state value of a symptom. The zero value is Unknown, which
// also stands for an unresolved answer.
type Status int

const (
	Unknown Status = iota
	Present
	Absent
)

func (s Status) String() string {
	switch s {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// Resolved reports whether the status is Present or Absent.
func (s Status) Resolved() bool {
	return s == Present || s == Absent
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts both the canonical names and the yes/no/unsure
// spelling used by the affirmation table.
func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "present", "yes", "true":
		*s = Present
	case "absent", "no", "false":
		*s = Absent
	case "unknown", "unsure", "":
		*s = Unknown
	default:
		return fmt.Errorf("unknown status %q", string(text))
	}
	return nil
}
