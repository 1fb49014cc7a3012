// Package dialogue drives a symptom-elicitation conversation: it reads a free
// monolog, asks yes/no questions about the symptoms that were not mentioned,
// matches the answers against the disease table and closes with a follow-up
// question.
package dialogue

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"medical-voice-agent/internal/catalog"
)

// DefaultMaxUnresolvedReplies is the retry bound used by the service
// configuration.
const DefaultMaxUnresolvedReplies = 3

// FollowUpAction is what an affirmative answer to the follow-up question does.
// A negative answer does the opposite.
type FollowUpAction int

const (
	FollowUpRestart FollowUpAction = iota
	FollowUpEnd
)

func (a FollowUpAction) String() string {
	if a == FollowUpEnd {
		return "end"
	}
	return "restart"
}

func (a FollowUpAction) opposite() FollowUpAction {
	if a == FollowUpEnd {
		return FollowUpRestart
	}
	return FollowUpEnd
}

type Options struct {
	// MaxUnresolvedReplies settles a symptom as absent after that many
	// consecutive unresolved answers. Zero asks forever.
	MaxUnresolvedReplies int
	// OnAffirmativeFollowUp defaults to FollowUpRestart.
	OnAffirmativeFollowUp FollowUpAction
	// Picker chooses phrase variants. Nil means a clock-seeded random picker.
	Picker Picker
	Logger *zerolog.Logger
}

// Engine is not safe for concurrent use; callers serialize turns of the same
// conversation.
type Engine struct {
	catalog *catalog.Catalog
	advisor Advisor
	opts    Options
	log     zerolog.Logger
	session Session
}

func New(c *catalog.Catalog, advisor Advisor, opts Options) *Engine {
	return Resume(c, advisor, NewSession(), opts)
}

// Resume continues a stored conversation.
func Resume(c *catalog.Catalog, advisor Advisor, s Session, opts Options) *Engine {
	if opts.Picker == nil {
		opts.Picker = NewPicker(0)
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	if s.State == "" {
		s.State = StateAwaitingMonolog
	}
	s = s.Clone()
	return &Engine{
		catalog: c,
		advisor: advisor,
		opts:    opts,
		log:     log,
		session: s,
	}
}

// Session returns a snapshot of the conversation state.
func (e *Engine) Session() Session {
	return e.session.Clone()
}

// Reset forgets everything and waits for a new monolog.
func (e *Engine) Reset() {
	e.session = NewSession()
	e.log.Debug().Msg("session reset")
}

// Restart resets the session and returns the acknowledgement a reset phrase
// would get.
func (e *Engine) Restart() string {
	e.Reset()
	return e.say(e.catalog.Messages.Reset)
}

// Greet returns the opening line of a conversation.
func (e *Engine) Greet() string {
	return e.say(e.catalog.Messages.Greeting)
}

// Analyze processes one user utterance and returns the reply. done is true
// when the turn produced a diagnosis or closed the conversation.
func (e *Engine) Analyze(ctx context.Context, text string) (bool, string) {
	if catalog.ContainsAny(text, e.catalog.ResetPhrases) {
		return false, e.Restart()
	}
	if catalog.ContainsAny(text, e.catalog.EndPhrases) {
		e.transition(StateEnded)
		return true, e.say(e.catalog.Messages.Farewell)
	}

	switch {
	case e.session.State == StateEnded:
		return true, e.say(e.catalog.Messages.Closed)
	case e.session.AwaitingFollowUp():
		return e.followUp(text)
	case !e.session.ExtractionDone():
		return e.monolog(ctx, text)
	default:
		e.clarify(text)
		return e.next(ctx)
	}
}

func (e *Engine) monolog(ctx context.Context, text string) (bool, string) {
	d := Scan(text, e.catalog)
	for _, s := range e.catalog.Symptoms {
		st := SymptomState{Status: catalog.Absent, Confirmed: d.NoOtherSymptoms}
		if d.Present[s.ID] {
			st = SymptomState{Status: catalog.Present, Confirmed: true}
		}
		e.session.Symptoms[s.ID] = st
	}
	e.transition(StateClarifying)

	summary := e.say(e.catalog.Messages.NothingFound)
	if names := d.Mentioned(e.catalog); len(names) > 0 {
		summary = e.say(e.catalog.Messages.Summary, "{symptoms}", strings.Join(names, ", "))
	}
	done, msg := e.next(ctx)
	return done, summary + " " + msg
}

func (e *Engine) clarify(text string) {
	id := e.session.Pending
	if id == "" {
		return
	}
	e.session.Pending = ""

	answer := Classify(text, e.catalog.Affirmations)
	if answer.Resolved() {
		e.session.Symptoms[id] = SymptomState{Status: answer, Confirmed: true}
		e.session.Unresolved = 0
		return
	}

	e.session.Unresolved++
	if limit := e.opts.MaxUnresolvedReplies; limit > 0 && e.session.Unresolved >= limit {
		e.log.Warn().Str("symptom", id).Int("replies", e.session.Unresolved).Msg("settling unresolved symptom as absent")
		e.session.Symptoms[id] = SymptomState{Status: catalog.Absent, Confirmed: true}
		e.session.Unresolved = 0
		return
	}
	e.session.Symptoms[id] = SymptomState{Status: catalog.Unknown}
}

// next either finishes with a recommendation or asks about the first symptom
// that still needs an answer.
func (e *Engine) next(ctx context.Context) (bool, string) {
	if e.session.Complete(e.catalog) {
		diagnosis := Recommend(ctx, e.session.Statuses(e.catalog), e.catalog, e.advisor)
		e.session.Pending = ""
		e.session.Diagnosis = diagnosis
		e.transition(StateAwaitingFollowUp)
		return true, diagnosis + "\n" + e.say(e.catalog.Messages.FollowUp)
	}

	id, _ := e.session.nextOpen(e.catalog)
	e.session.Pending = id
	sym, _ := e.catalog.Symptom(id)
	name := strings.ToLower(sym.Name)
	if e.session.Symptoms[id].Status == catalog.Unknown {
		return false, e.say(e.catalog.Messages.AskAgain, "{symptom}", name)
	}
	return false, e.say(e.catalog.Messages.Ask, "{symptom}", name)
}

func (e *Engine) followUp(text string) (bool, string) {
	var action FollowUpAction
	switch Classify(text, e.catalog.Affirmations) {
	case catalog.Present:
		action = e.opts.OnAffirmativeFollowUp
	case catalog.Absent:
		action = e.opts.OnAffirmativeFollowUp.opposite()
	default:
		return false, e.say(e.catalog.Messages.FollowUpAgain)
	}

	if action == FollowUpRestart {
		e.Reset()
		return false, e.say(e.catalog.Messages.Restart)
	}
	e.transition(StateEnded)
	return true, e.say(e.catalog.Messages.Farewell)
}

func (e *Engine) transition(to State) {
	if e.session.State == to {
		return
	}
	e.log.Debug().Str("from", string(e.session.State)).Str("to", string(to)).Msg("state transition")
	e.session.State = to
}

func (e *Engine) say(variants []string, oldnew ...string) string {
	v := variants[e.opts.Picker.Intn(len(variants))]
	if len(oldnew) == 0 {
		return v
	}
	return render(v, oldnew...)
}
