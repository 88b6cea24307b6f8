package workflow

import "context"

// ActionPlanner prepares a domain-specific follow-up action from a completed
// turn. Planners must be side-effect free: they return a descriptor the caller
// may later execute after explicit confirmation, never perform the action.
type ActionPlanner interface {
	Plan(ctx context.Context, state State) (*ActionDescriptor, error)
}

// ActionPlannerFunc adapts a function to ActionPlanner.
type ActionPlannerFunc func(ctx context.Context, state State) (*ActionDescriptor, error)

// Plan implements ActionPlanner.
func (f ActionPlannerFunc) Plan(ctx context.Context, state State) (*ActionDescriptor, error) {
	return f(ctx, state)
}

// DraftTicketPlanner prepares a draft support ticket when the turn ended
// degraded or with unresolved validation errors, so a human can follow up.
type DraftTicketPlanner struct{}

// Plan returns a draft-ticket descriptor, or nil when the turn needs no
// follow-up.
func (DraftTicketPlanner) Plan(_ context.Context, state State) (*ActionDescriptor, error) {
	if !state.Degraded && len(state.ValidationErrors) == 0 {
		return nil, nil
	}
	return &ActionDescriptor{
		Type:   "draft_ticket",
		Domain: state.Domain,
		Payload: map[string]any{
			"query":             state.Query,
			"user_id":           state.UserID,
			"degraded":          state.Degraded,
			"validation_errors": state.ValidationErrors,
		},
	}, nil
}
