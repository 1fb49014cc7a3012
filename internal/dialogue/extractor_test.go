package dialogue

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-voice-agent/internal/catalog"
)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func allSymptoms(c *catalog.Catalog, value bool) map[string]bool {
	m := make(map[string]bool, len(c.Symptoms))
	for _, s := range c.Symptoms {
		m[s.ID] = value
	}
	return m
}

func TestExtract(t *testing.T) {
	c := defaultCatalog(t)

	want := allSymptoms(c, false)
	want["headache"] = true
	want["fever"] = true

	got := Extract("Boli mnie głowa i mam gorączkę", c)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractEverySynonym(t *testing.T) {
	c := defaultCatalog(t)
	for _, s := range c.Symptoms {
		for _, phrase := range s.Phrases() {
			utterance := "Od wczoraj " + strings.ToUpper(phrase) + " niestety"
			assert.True(t, Extract(utterance, c)[s.ID], "%q should detect %s", utterance, s.ID)
		}
	}
}

func TestExtractNothing(t *testing.T) {
	c := defaultCatalog(t)
	if diff := cmp.Diff(allSymptoms(c, false), Extract("czuję się dziwnie", c)); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractNoOtherSymptoms(t *testing.T) {
	c := defaultCatalog(t)
	if diff := cmp.Diff(allSymptoms(c, true), Extract("Kaszlę, to wszystko", c)); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestScan(t *testing.T) {
	c := defaultCatalog(t)

	d := Scan("Mam dreszcze i kaszel, nic więcej", c)
	assert.True(t, d.NoOtherSymptoms)
	assert.Equal(t, []string{"Kaszel", "Dreszcze"}, d.Mentioned(c))
	assert.False(t, d.Present["fever"])

	d = Scan("boli mnie brzuch", c)
	assert.False(t, d.NoOtherSymptoms)
	assert.Equal(t, []string{"Ból brzucha"}, d.Mentioned(c))
}
