// Package engine drives the Mealy-style state machine interpreter
// (spec §4.5): hello on state entry, onMessage on user input,
// onTimeout on inactivity thresholds.
package engine

import (
	"context"

	"github.com/ehrlich-b/scriptbot/internal/eval"
	"github.com/ehrlich-b/scriptbot/internal/ir"
)

// Machine binds a StateGraph to the evaluators that execute it.
type Machine struct {
	graph *ir.StateGraph
	store eval.Store
}

func New(graph *ir.StateGraph, store eval.Store) *Machine {
	return &Machine{graph: graph, store: store}
}

// Hello executes the current state's onEnter speaks. Used standalone
// on initial connect and appended automatically after any transition
// that leaves the session non-terminal (spec §8 property 7).
func (m *Machine) Hello(ctx context.Context, sess eval.Session) ([]string, error) {
	idx := sess.StateIndex()
	if idx < 0 || idx >= len(m.graph.States) {
		return nil, nil
	}
	var replies []string
	st := m.graph.States[idx]
	for _, a := range st.OnEnter {
		if err := eval.Exec(ctx, a, sess, m.store, "", &replies); err != nil {
			return nil, err
		}
	}
	return replies, nil
}

// OnMessage evaluates the current state's cases in source order; the
// first match consumes the message. No match falls through to the
// default actions. Either way, a non-terminal resulting state appends
// Hello's output (spec §4.5).
func (m *Machine) OnMessage(ctx context.Context, sess eval.Session, msg string) (replies []string, exited bool, err error) {
	idx := sess.StateIndex()
	st := m.graph.States[idx]

	actions := st.DefaultActions
	for _, c := range st.Cases {
		if eval.MatchCondition(c.Condition, msg) {
			actions = c.Actions
			break
		}
	}

	for _, a := range actions {
		if err := eval.Exec(ctx, a, sess, m.store, msg, &replies); err != nil {
			return nil, false, err
		}
	}

	if sess.StateIndex() != -1 {
		hello, err := m.Hello(ctx, sess)
		if err != nil {
			return nil, false, err
		}
		replies = append(replies, hello...)
	}

	return replies, sess.StateIndex() == -1, nil
}

// OnTimeout advances the session's idle clock and fires at most the
// first threshold whose actions change state (spec §4.5, §8 property
// 8 — this is the corrected behavior; the source this was distilled
// from keeps iterating all thresholds after a state change).
func (m *Machine) OnTimeout(ctx context.Context, sess eval.Session, nowIdleSeconds int) (replies []string, exited bool, moved bool, err error) {
	last := sess.LastIdleSeconds()
	sess.SetLastIdleSeconds(nowIdleSeconds)
	oldState := sess.StateIndex()

	st := m.graph.States[oldState]
	for _, tc := range st.Timeouts {
		if !(int64(last) < tc.Seconds && tc.Seconds <= int64(nowIdleSeconds)) {
			continue
		}
		for _, a := range tc.Actions {
			if err := eval.Exec(ctx, a, sess, m.store, "", &replies); err != nil {
				return nil, false, false, err
			}
		}
		if sess.StateIndex() != oldState {
			if sess.StateIndex() != -1 {
				hello, err := m.Hello(ctx, sess)
				if err != nil {
					return nil, false, false, err
				}
				replies = append(replies, hello...)
			}
			break
		}
	}

	return replies, sess.StateIndex() == -1, sess.StateIndex() != oldState, nil
}
