package dialogue

import (
	"context"
	"strings"

	"medical-voice-agent/internal/catalog"
)

// Match returns the first disease, in table order, whose vector equals the
// symptom map on every catalog symptom. Symptoms missing from the map count
// as absent.
func Match(symptoms map[string]catalog.Status, c *catalog.Catalog) (catalog.Disease, bool) {
	for _, d := range c.Diseases {
		if matches(d, symptoms, c) {
			return d, true
		}
	}
	return catalog.Disease{}, false
}

func matches(d catalog.Disease, symptoms map[string]catalog.Status, c *catalog.Catalog) bool {
	for _, s := range c.Symptoms {
		got, ok := symptoms[s.ID]
		if !ok {
			got = catalog.Absent
		}
		if got != d.Expects(s.ID) {
			return false
		}
	}
	return true
}

// Recommend builds the diagnosis text from the matched disease. When nothing
// matches, the advisor is asked instead; an empty reply yields the catalog's
// no-diagnosis message.
func Recommend(ctx context.Context, symptoms map[string]catalog.Status, c *catalog.Catalog, advisor Advisor) string {
	if d, ok := Match(symptoms, c); ok {
		return render(c.Messages.Diagnosis[0],
			"{specialist}", d.Specialist,
			"{recommendation}", d.Recommendation,
		)
	}
	prompt := render(c.Messages.FallbackPrompt[0], "{symptoms}", DescribeSymptoms(symptoms, c))
	if reply := strings.TrimSpace(advisor.Ask(ctx, prompt)); reply != "" {
		return reply
	}
	return c.Messages.NoDiagnosis[0]
}

// DescribeSymptoms renders the symptom map in catalog order, e.g.
// "Ból głowy: tak, Wymioty: nie".
func DescribeSymptoms(symptoms map[string]catalog.Status, c *catalog.Catalog) string {
	parts := make([]string, 0, len(c.Symptoms))
	for _, s := range c.Symptoms {
		parts = append(parts, s.Name+": "+Label(symptoms[s.ID], c))
	}
	return strings.Join(parts, ", ")
}

func Label(status catalog.Status, c *catalog.Catalog) string {
	switch status {
	case catalog.Present:
		return c.Messages.PresentLabel
	case catalog.Absent:
		return c.Messages.AbsentLabel
	default:
		return c.Messages.UnknownLabel
	}
}

func render(template string, oldnew ...string) string {
	return strings.NewReplacer(oldnew...).Replace(template)
}
