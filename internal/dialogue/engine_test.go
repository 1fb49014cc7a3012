package dialogue

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-voice-agent/internal/catalog"
)

const (
	askVomiting    = "Czy występują u Ciebie objawy takie jak wymioty?"
	followUp       = "Czy spełniłem twoje oczekiwania?"
	migraineAdvice = "Zalecany specjalista: Neurolog\nZalecenia: Leki przeciwbólowe, unikanie czynników wywołujących"
)

func newEngine(t *testing.T, opts Options) (*Engine, *catalog.Catalog) {
	t.Helper()
	c := defaultCatalog(t)
	if opts.Picker == nil {
		opts.Picker = FixedPicker(0)
	}
	return New(c, &recordingAdvisor{reply: "Porada."}, opts), c
}

// answerAll replies "nie" until the engine reports done.
func answerAll(t *testing.T, e *Engine, reply string) string {
	t.Helper()
	for i := 0; i < 20; i++ {
		done, msg := e.Analyze(context.Background(), reply)
		if done {
			return msg
		}
	}
	t.Fatal("dialogue did not finish")
	return ""
}

func TestEngineFirstTurn(t *testing.T) {
	e, _ := newEngine(t, Options{})

	done, msg := e.Analyze(context.Background(), "Boli mnie głowa i mam gorączkę")
	assert.False(t, done)
	assert.Equal(t, "Rozumiem. Czyli twoje objawy to: Ból głowy, Gorączka. "+askVomiting, msg)

	s := e.Session()
	assert.Equal(t, StateClarifying, s.State)
	assert.Equal(t, "vomiting", s.Pending)
	assert.Equal(t, SymptomState{Status: catalog.Present, Confirmed: true}, s.Symptoms["headache"])
	assert.Equal(t, SymptomState{Status: catalog.Absent}, s.Symptoms["vomiting"])
}

func TestEngineNothingDetected(t *testing.T) {
	e, _ := newEngine(t, Options{})

	done, msg := e.Analyze(context.Background(), "Źle się czuję")
	assert.False(t, done)
	assert.Equal(t, "Rozumiem. Czy występują u Ciebie objawy takie jak ból głowy?", msg)
}

func TestEngineMigraine(t *testing.T) {
	e, c := newEngine(t, Options{})
	ctx := context.Background()

	done, _ := e.Analyze(ctx, "boli mnie głowa i jestem wyczerpany")
	require.False(t, done)
	assert.True(t, e.Session().ExtractionDone())
	assert.False(t, e.Session().Complete(c))

	asked := []string{"vomiting"}
	for i := 0; i < len(c.Symptoms)-3; i++ {
		done, msg := e.Analyze(ctx, "nie")
		require.False(t, done, msg)
		asked = append(asked, e.Session().Pending)
	}
	assert.Equal(t, []string{
		"vomiting", "fever", "joint_pain", "nausea", "abdominal_pain", "cough",
		"dyspnea", "weight_loss", "sleep_problems", "muscle_pain", "chills",
	}, asked)

	done, msg := e.Analyze(ctx, "nie")
	assert.True(t, done)
	assert.Equal(t, migraineAdvice+"\n"+followUp, msg)
	assert.True(t, e.Session().AwaitingFollowUp())
	assert.True(t, e.Session().Complete(c))
}

func TestEngineFollowUpUnresolvedIsIdempotent(t *testing.T) {
	e, _ := newEngine(t, Options{})
	ctx := context.Background()

	e.Analyze(ctx, "boli mnie głowa i jestem wyczerpany")
	answerAll(t, e, "nie")
	before := e.Session()

	done1, msg1 := e.Analyze(ctx, "nie wiem")
	done2, msg2 := e.Analyze(ctx, "nie wiem")
	assert.False(t, done1)
	assert.Equal(t, done1, done2)
	assert.Equal(t, msg1, msg2)
	assert.Contains(t, msg1, followUp)
	if diff := cmp.Diff(before, e.Session()); diff != "" {
		t.Errorf("session changed (-before +after):\n%s", diff)
	}
}

func TestEngineFollowUpPolicy(t *testing.T) {
	tests := []struct {
		name      string
		action    FollowUpAction
		reply     string
		wantDone  bool
		wantState State
		wantMsg   string
	}{
		{"restart on yes", FollowUpRestart, "tak", false, StateAwaitingMonolog, "Dobrze, spróbujmy jeszcze raz. Opisz mi co Ci dolega."},
		{"end on no", FollowUpRestart, "nie", true, StateEnded, "Dziękuję za rozmowę."},
		{"end on yes", FollowUpEnd, "tak", true, StateEnded, "Dziękuję za rozmowę."},
		{"restart on no", FollowUpEnd, "nie", false, StateAwaitingMonolog, "Dobrze, spróbujmy jeszcze raz."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(t, Options{OnAffirmativeFollowUp: tt.action})
			ctx := context.Background()
			e.Analyze(ctx, "boli mnie głowa i jestem wyczerpany")
			answerAll(t, e, "nie")

			done, msg := e.Analyze(ctx, tt.reply)
			assert.Equal(t, tt.wantDone, done)
			assert.True(t, strings.HasPrefix(msg, tt.wantMsg), msg)
			assert.Equal(t, tt.wantState, e.Session().State)
		})
	}
}

func TestEngineEndedConversation(t *testing.T) {
	e, c := newEngine(t, Options{})
	ctx := context.Background()

	e.Analyze(ctx, "mam dreszcze")
	done, msg := e.Analyze(ctx, "Dziękuję, koniec rozmowy")
	assert.True(t, done)
	assert.Equal(t, c.Messages.Farewell[0], msg)

	done, msg = e.Analyze(ctx, "boli mnie głowa")
	assert.True(t, done)
	assert.Equal(t, c.Messages.Closed[0], msg)
	assert.Equal(t, StateEnded, e.Session().State)

	done, msg = e.Analyze(ctx, "od nowa")
	assert.False(t, done)
	assert.Equal(t, c.Messages.Reset[0], msg)
	assert.Equal(t, StateAwaitingMonolog, e.Session().State)
}

func TestEngineResetFromAnyState(t *testing.T) {
	c := defaultCatalog(t)
	setups := map[string][]string{
		"awaiting monolog":   nil,
		"clarifying":         {"boli mnie głowa"},
		"awaiting follow-up": {"boli mnie głowa, to wszystko"},
		"ended":              {"do widzenia"},
	}
	for name, turns := range setups {
		t.Run(name, func(t *testing.T) {
			e, _ := newEngine(t, Options{})
			ctx := context.Background()
			for _, turn := range turns {
				e.Analyze(ctx, turn)
			}

			done, msg := e.Analyze(ctx, "Zacznijmy od nowa, mam gorączkę")
			assert.False(t, done)
			assert.Equal(t, c.Messages.Reset[0], msg)
			if diff := cmp.Diff(NewSession(), e.Session()); diff != "" {
				t.Errorf("session not reset (-want +got):\n%s", diff)
			}
			assert.False(t, e.Session().ExtractionDone())
			assert.False(t, e.Session().AwaitingFollowUp())
		})
	}
}

func TestEngineNoOtherSymptomsClosesMonolog(t *testing.T) {
	c := defaultCatalog(t)
	advisor := &recordingAdvisor{reply: "Może to napięciowy ból głowy."}
	e := New(c, advisor, Options{Picker: FixedPicker(0)})

	done, msg := e.Analyze(context.Background(), "Boli mnie głowa, to wszystko")
	assert.True(t, done)
	assert.Equal(t, "Rozumiem. Czyli twoje objawy to: Ból głowy. Może to napięciowy ból głowy.\n"+followUp, msg)
	require.Len(t, advisor.prompts, 1)
	assert.Contains(t, advisor.prompts[0], "Ból głowy: tak, Wymioty: nie")
}

func TestEngineUnresolvedRepeatsQuestion(t *testing.T) {
	e, _ := newEngine(t, Options{})
	ctx := context.Background()

	_, msg := e.Analyze(ctx, "boli mnie głowa")
	assert.True(t, strings.HasSuffix(msg, askVomiting))

	for i := 0; i < 5; i++ {
		done, msg := e.Analyze(ctx, "nie wiem")
		assert.False(t, done)
		assert.Equal(t, "Czy możesz powtórzyć? "+askVomiting, msg)
	}
	assert.Equal(t, SymptomState{Status: catalog.Unknown}, e.Session().Symptoms["vomiting"])

	done, msg := e.Analyze(ctx, "tak, wymiotuję")
	assert.False(t, done)
	assert.Equal(t, "Czy występują u Ciebie objawy takie jak gorączka?", msg)
	assert.Equal(t, SymptomState{Status: catalog.Present, Confirmed: true}, e.Session().Symptoms["vomiting"])
}

func TestEngineBoundedRetries(t *testing.T) {
	e, _ := newEngine(t, Options{MaxUnresolvedReplies: 2})
	ctx := context.Background()

	e.Analyze(ctx, "boli mnie głowa")
	_, msg := e.Analyze(ctx, "hmm")
	assert.Equal(t, "Czy możesz powtórzyć? "+askVomiting, msg)

	_, msg = e.Analyze(ctx, "hmm")
	assert.Equal(t, "Czy występują u Ciebie objawy takie jak gorączka?", msg)

	s := e.Session()
	assert.Equal(t, SymptomState{Status: catalog.Absent, Confirmed: true}, s.Symptoms["vomiting"])
	assert.Zero(t, s.Unresolved)
}

func TestEnginePhraseVariants(t *testing.T) {
	e, _ := newEngine(t, Options{Picker: FixedPicker(1)})

	_, msg := e.Analyze(context.Background(), "boli mnie głowa")
	assert.Equal(t, "Rozumiem. Czyli twoje objawy to: Ból głowy. Czy zauważyłeś u siebie taki objaw: wymioty?", msg)
}

func TestEngineResume(t *testing.T) {
	c := defaultCatalog(t)
	ctx := context.Background()
	turns := []string{"boli mnie głowa i jestem wyczerpany", "nie", "nie wiem", "nie"}

	straight := New(c, &recordingAdvisor{}, Options{Picker: FixedPicker(0)})
	var want []string
	for _, turn := range turns {
		_, msg := straight.Analyze(ctx, turn)
		want = append(want, msg)
	}

	var got []string
	session := NewSession()
	for _, turn := range turns {
		e := Resume(c, &recordingAdvisor{}, session, Options{Picker: FixedPicker(0)})
		_, msg := e.Analyze(ctx, turn)
		got = append(got, msg)

		data, err := json.Marshal(e.Session())
		require.NoError(t, err)
		session = Session{}
		require.NoError(t, json.Unmarshal(data, &session))
	}

	assert.Equal(t, want, got)
	if diff := cmp.Diff(straight.Session(), session); diff != "" {
		t.Errorf("resumed session differs (-straight +resumed):\n%s", diff)
	}
}

func TestEngineSessionIsSnapshot(t *testing.T) {
	e, _ := newEngine(t, Options{})
	e.Analyze(context.Background(), "boli mnie głowa")

	s := e.Session()
	s.Symptoms["headache"] = SymptomState{Status: catalog.Absent}
	assert.Equal(t, catalog.Present, e.Session().Symptoms["headache"].Status)
}

func TestEngineGreetAndRestart(t *testing.T) {
	e, c := newEngine(t, Options{})
	assert.Equal(t, c.Messages.Greeting[0], e.Greet())

	e.Analyze(context.Background(), "boli mnie głowa, to wszystko")
	assert.NotEmpty(t, e.Session().Diagnosis)

	assert.Equal(t, c.Messages.Reset[0], e.Restart())
	if diff := cmp.Diff(NewSession(), e.Session()); diff != "" {
		t.Errorf("session not reset (-want +got):\n%s", diff)
	}
}
