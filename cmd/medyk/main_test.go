package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-voice-agent/internal/catalog"
	"medical-voice-agent/internal/dialogue"
)

func TestRunChat(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	engine := dialogue.New(cat, dialogue.AdvisorFunc(func(context.Context, string) string { return "" }),
		dialogue.Options{Picker: dialogue.FixedPicker(0)})

	in := strings.NewReader("Boli mnie głowa, to wszystko\n\nnie\nto już nie zostanie przeczytane\n")
	var out bytes.Buffer
	var spoken []string

	require.NoError(t, runChat(context.Background(), in, &out, engine, func(s string) { spoken = append(spoken, s) }))

	lines := out.String()
	assert.True(t, strings.HasPrefix(lines, cat.Messages.Greeting[0]+"\n"))
	assert.Contains(t, lines, cat.Messages.NoDiagnosis[0])
	assert.True(t, strings.HasSuffix(lines, cat.Messages.Farewell[0]+"\n"))
	assert.Len(t, spoken, 3)
	assert.Equal(t, dialogue.StateEnded, engine.Session().State)
}

func TestValidateCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newValidateCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "catalog ok (pl): 13 symptoms, 16 affirmations, 5 diseases\n", out.String())
}

func TestValidateCmdRejectsBrokenCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: pl\nsymptoms: []\n"), 0o600))

	cmd := newValidateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
}
