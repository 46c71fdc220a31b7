// Package fsm checks draft lease transitions with looplab/fsm.
package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

var _ domain.TransitionValidator = (*Validator)(nil)

// Validator applies lease events to a draft's lease state. The transition
// table is domain.Transitions; a fresh machine is seeded with the draft's
// state on every call because looplab machines are stateful.
type Validator struct {
	events loopfsm.Events
}

// New builds a validator over domain.Transitions.
func New() *Validator {
	// looplab wants one entry per (event, destination) with all sources.
	byEdge := make(map[domain.Transition][]string)
	var edges []domain.Transition
	for _, t := range domain.Transitions {
		edge := domain.Transition{Event: t.Event, Dst: t.Dst}
		if _, seen := byEdge[edge]; !seen {
			edges = append(edges, edge)
		}
		byEdge[edge] = append(byEdge[edge], string(t.Src))
	}

	events := make(loopfsm.Events, 0, len(edges))
	for _, e := range edges {
		events = append(events, loopfsm.EventDesc{Name: string(e.Event), Src: byEdge[e], Dst: string(e.Dst)})
	}
	return &Validator{events: events}
}

// Apply returns the state event leads to from current, or a
// *domain.TransitionError. Lock on a locked draft and edits are
// self-transitions and leave the state unchanged.
func (v *Validator) Apply(ctx context.Context, current domain.LeaseState, event domain.LeaseEvent) (domain.LeaseState, error) {
	machine := loopfsm.NewFSM(string(current), v.events, nil)
	if !machine.Can(string(event)) {
		return "", &domain.TransitionError{Event: event, Current: current}
	}

	err := machine.Event(ctx, string(event))
	var same loopfsm.NoTransitionError
	switch {
	case err == nil:
		return domain.LeaseState(machine.Current()), nil
	case errors.As(err, &same) && same.Err == nil:
		return current, nil
	}
	return "", err
}
