package dialogue

import (
	"strings"

	"medical-voice-agent/internal/catalog"
)

// Detection is the raw result of scanning a monolog.
type Detection struct {
	// Present holds every catalog symptom; true when its name or a synonym was
	// mentioned.
	Present map[string]bool
	// NoOtherSymptoms is set when the user said there is nothing else.
	NoOtherSymptoms bool
}

// Mentioned returns the names of the detected symptoms in catalog order.
func (d Detection) Mentioned(c *catalog.Catalog) []string {
	var names []string
	for _, s := range c.Symptoms {
		if d.Present[s.ID] {
			names = append(names, s.Name)
		}
	}
	return names
}

// Scan looks for every catalog symptom in the utterance and for the
// no-other-symptoms phrases.
func Scan(utterance string, c *catalog.Catalog) Detection {
	lower := strings.ToLower(utterance)
	d := Detection{Present: make(map[string]bool, len(c.Symptoms))}
	for _, s := range c.Symptoms {
		d.Present[s.ID] = mentions(lower, s)
	}
	d.NoOtherSymptoms = catalog.ContainsAny(lower, c.NoOtherSymptoms)
	return d
}

// Extract maps every catalog symptom to true when it was mentioned in the
// utterance. A no-other-symptoms phrase marks every symptom true.
func Extract(utterance string, c *catalog.Catalog) map[string]bool {
	d := Scan(utterance, c)
	if d.NoOtherSymptoms {
		for id := range d.Present {
			d.Present[id] = true
		}
	}
	return d.Present
}

func mentions(lowerUtterance string, s catalog.Symptom) bool {
	for _, phrase := range s.Phrases() {
		if strings.Contains(lowerUtterance, phrase) {
			return true
		}
	}
	return false
}
