package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCatalog    = errors.New("catalog: no symptoms declared")
	ErrNoDiseases      = errors.New("catalog: no diseases declared")
	ErrNoResetPhrases  = errors.New("catalog: no reset phrases declared")
	ErrShadowedPattern = errors.New("catalog: affirmation pattern is unreachable")
	ErrUnknownSymptom  = errors.New("catalog: unknown symptom")
	ErrDuplicateEntry  = errors.New("catalog: duplicate entry")
	ErrEmptyPhrase     = errors.New("catalog: empty phrase")
	ErrMissingMessage  = errors.New("catalog: missing message")
)

// Validate checks the invariants the dialogue relies on. It is called by every
// loader, so a Catalog obtained from this package is always valid.
func (c *Catalog) Validate() error {
	if len(c.Symptoms) == 0 {
		return ErrEmptyCatalog
	}
	if err := c.validateSymptoms(); err != nil {
		return err
	}
	if len(c.ResetPhrases) == 0 {
		return ErrNoResetPhrases
	}
	for name, phrases := range map[string][]string{
		"no_other_symptoms": c.NoOtherSymptoms,
		"reset":             c.ResetPhrases,
		"end":               c.EndPhrases,
	} {
		if err := checkPhrases(name, phrases); err != nil {
			return err
		}
	}
	if err := ValidatePatterns(c.Affirmations); err != nil {
		return err
	}
	if err := c.validateDiseases(); err != nil {
		return err
	}
	return c.Messages.validate()
}

func (c *Catalog) validateSymptoms() error {
	ids := make(map[string]bool, len(c.Symptoms))
	names := make(map[string]bool, len(c.Symptoms))
	for i, s := range c.Symptoms {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: symptom #%d has no id or name", ErrEmptyPhrase, i)
		}
		if ids[s.ID] {
			return fmt.Errorf("%w: symptom id %q", ErrDuplicateEntry, s.ID)
		}
		lower := strings.ToLower(s.Name)
		if names[lower] {
			return fmt.Errorf("%w: symptom name %q", ErrDuplicateEntry, s.Name)
		}
		ids[s.ID] = true
		names[lower] = true
		if err := checkPhrases("synonyms of "+s.ID, s.Synonyms); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) validateDiseases() error {
	if len(c.Diseases) == 0 {
		return ErrNoDiseases
	}
	seen := make(map[string]bool, len(c.Diseases))
	for _, d := range c.Diseases {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("%w: disease without a name", ErrEmptyPhrase)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: disease %q", ErrDuplicateEntry, d.Name)
		}
		seen[d.Name] = true
		for _, id := range d.Present {
			if _, ok := c.Symptom(id); !ok {
				return fmt.Errorf("%w: %q in disease %q", ErrUnknownSymptom, id, d.Name)
			}
		}
	}
	return nil
}

// ValidatePatterns rejects an affirmation table in which a phrase contains an
// earlier phrase: under first-match-wins the later, more specific phrase could
// never be selected.
func ValidatePatterns(patterns []Pattern) error {
	for j, later := range patterns {
		phrase := strings.ToLower(strings.TrimSpace(later.Phrase))
		if phrase == "" {
			return fmt.Errorf("%w: affirmation #%d", ErrEmptyPhrase, j)
		}
		for i := 0; i < j; i++ {
			earlier := strings.ToLower(strings.TrimSpace(patterns[i].Phrase))
			if earlier == phrase {
				return fmt.Errorf("%w: affirmation %q", ErrDuplicateEntry, later.Phrase)
			}
			if strings.Contains(phrase, earlier) {
				return fmt.Errorf("%w: %q is shadowed by earlier %q", ErrShadowedPattern, later.Phrase, patterns[i].Phrase)
			}
		}
	}
	return nil
}

func checkPhrases(name string, phrases []string) error {
	for _, p := range phrases {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: in %s", ErrEmptyPhrase, name)
		}
	}
	return nil
}

func (m Messages) validate() error {
	for name, variants := range map[string][]string{
		"greeting":        m.Greeting,
		"summary":         m.Summary,
		"nothing_found":   m.NothingFound,
		"ask":             m.Ask,
		"ask_again":       m.AskAgain,
		"diagnosis":       m.Diagnosis,
		"follow_up":       m.FollowUp,
		"follow_up_again": m.FollowUpAgain,
		"restart":         m.Restart,
		"farewell":        m.Farewell,
		"reset":           m.Reset,
		"closed":          m.Closed,
		"fallback_prompt": m.FallbackPrompt,
		"no_diagnosis":    m.NoDiagnosis,
	} {
		if len(variants) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingMessage, name)
		}
		if err := checkPhrases("message "+name, variants); err != nil {
			return err
		}
	}
	for name, label := range map[string]string{
		"present_label": m.PresentLabel,
		"absent_label":  m.AbsentLabel,
		"unknown_label": m.UnknownLabel,
	} {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("%w: %s", ErrMissingMessage, name)
		}
	}
	return nil
}
