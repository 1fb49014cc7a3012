// Package catalog holds the static configuration of the consultation: the
// required symptoms, trigger phrases, the ordered affirmation table, the
// disease rule table and the phrasebook. A Catalog is loaded once, validated
// and then treated as immutable.
package catalog

import "strings"

type Symptom struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Synonyms []string `yaml:"synonyms" json:"synonyms"`
}

// Phrases returns the name followed by the synonyms, lower-cased.
func (s Symptom) Phrases() []string {
	phrases := make([]string, 0, len(s.Synonyms)+1)
	phrases = append(phrases, strings.ToLower(s.Name))
	for _, syn := range s.Synonyms {
		phrases = append(phrases, strings.ToLower(syn))
	}
	return phrases
}

// Pattern maps a phrase found in a yes/no answer to a status. Patterns are
// evaluated in declaration order and the first match wins.
type Pattern struct {
	Phrase string `yaml:"phrase" json:"phrase"`
	Status Status `yaml:"answer" json:"answer"`
}

// Disease is a row of the rule table. Symptoms listed in Present are expected
// present, every other catalog symptom is expected absent.
type Disease struct {
	Name           string   `yaml:"name" json:"name"`
	Present        []string `yaml:"present" json:"present"`
	Specialist     string   `yaml:"specialist" json:"specialist"`
	Recommendation string   `yaml:"recommendation" json:"recommendation"`
}

// Expects returns the status the disease declares for the symptom.
func (d Disease) Expects(symptomID string) Status {
	for _, id := range d.Present {
		if id == symptomID {
			return Present
		}
	}
	return Absent
}

// Messages is the phrasebook. Every list holds interchangeable variants of the
// same message; placeholders are written as {symptom}, {symptoms},
// {specialist} and {recommendation}.
type Messages struct {
	Greeting       []string `yaml:"greeting"`
	Summary        []string `yaml:"summary"`
	NothingFound   []string `yaml:"nothing_found"`
	Ask            []string `yaml:"ask"`
	AskAgain       []string `yaml:"ask_again"`
	Diagnosis      []string `yaml:"diagnosis"`
	FollowUp       []string `yaml:"follow_up"`
	FollowUpAgain  []string `yaml:"follow_up_again"`
	Restart        []string `yaml:"restart"`
	Farewell       []string `yaml:"farewell"`
	Reset          []string `yaml:"reset"`
	Closed         []string `yaml:"closed"`
	FallbackPrompt []string `yaml:"fallback_prompt"`
	NoDiagnosis    []string `yaml:"no_diagnosis"`
	PresentLabel   string   `yaml:"present_label"`
	AbsentLabel    string   `yaml:"absent_label"`
	UnknownLabel   string   `yaml:"unknown_label"`
}

type Catalog struct {
	Language        string    `yaml:"language"`
	Symptoms        []Symptom `yaml:"symptoms"`
	NoOtherSymptoms []string  `yaml:"no_other_symptoms"`
	ResetPhrases    []string  `yaml:"reset"`
	EndPhrases      []string  `yaml:"end"`
	Affirmations    []Pattern `yaml:"affirmations"`
	Diseases        []Disease `yaml:"diseases"`
	Messages        Messages  `yaml:"messages"`
}

// Symptom looks a symptom up by ID.
func (c *Catalog) Symptom(id string) (Symptom, bool) {
	for _, s := range c.Symptoms {
		if s.ID == id {
			return s, true
		}
	}
	return Symptom{}, false
}

func (c *Catalog) SymptomIDs() []string {
	ids := make([]string, len(c.Symptoms))
	for i, s := range c.Symptoms {
		ids[i] = s.ID
	}
	return ids
}

// ContainsAny reports whether text contains one of the phrases, ignoring case.
func ContainsAny(text string, phrases []string) bool {
	_, ok := FirstContained(text, phrases)
	return ok
}

// FirstContained returns the first phrase, in declaration order, that occurs
// in text ignoring case.
func FirstContained(text string, phrases []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}
