package dialogue

import "context"

// Advisor is the free-text reasoning collaborator consulted when no disease
// in the rule table matches. Ask never fails: implementations turn their own
// errors into a readable reply.
type Advisor interface {
	Ask(ctx context.Context, prompt string) string
}

// AdvisorFunc adapts a function to the Advisor interface.
type AdvisorFunc func(ctx context.Context, prompt string) string

func (f AdvisorFunc) Ask(ctx context.Context, prompt string) string {
	return f(ctx, prompt)
}
