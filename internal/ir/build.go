package ir

import (
	"fmt"
	"math"

	"github.com/ehrlich-b/scriptbot/internal/lang"
)

// Build folds a parsed Program into a validated StateGraph and its
// VariableSchema, per spec §4.2's two-pass build. Any violation
// produces a *lang.GrammarError; errors tied to a source construct
// carry its line, while a missing or Verified Welcome carries none.
func Build(prog *lang.Program) (*StateGraph, *VariableSchema, error) {
	schema, err := buildSchema(prog)
	if err != nil {
		return nil, nil, err
	}

	names, verified, err := collectStateNames(prog)
	if err != nil {
		return nil, nil, err
	}

	welcomeIdx := -1
	for i, n := range names {
		if n == "Welcome" {
			welcomeIdx = i
			break
		}
	}
	if welcomeIdx == -1 {
		return nil, nil, &lang.GrammarError{Msg: "script must define a state named Welcome"}
	}
	if verified[welcomeIdx] {
		return nil, nil, &lang.GrammarError{Msg: "Welcome must not carry Verified"}
	}
	names[0], names[welcomeIdx] = names[welcomeIdx], names[0]
	verified[0], verified[welcomeIdx] = verified[welcomeIdx], verified[0]

	nameIndex := make(map[string]int, len(names))
	for i, n := range names {
		nameIndex[n] = i
	}

	g := &StateGraph{
		States:    make([]State, len(names)),
		nameIndex: nameIndex,
	}
	for i, n := range names {
		g.States[i] = State{Name: n, Verified: verified[i]}
	}

	defsByName := make(map[string]*lang.StateDef, len(prog.States))
	for i := range prog.States {
		defsByName[prog.States[i].Name] = &prog.States[i]
	}

	for i, n := range names {
		if err := lowerState(g, schema, i, defsByName[n]); err != nil {
			return nil, nil, err
		}
	}

	return g, schema, nil
}

func buildSchema(prog *lang.Program) (*VariableSchema, error) {
	schema := newVariableSchema()
	for _, def := range prog.Variables {
		for _, c := range def.Clauses {
			var vt VarType
			switch c.Type {
			case "Int":
				vt = VarInt
			case "Real":
				vt = VarReal
			case "Text":
				vt = VarText
			default:
				return nil, &lang.GrammarError{
					Msg:     fmt.Sprintf("unknown variable type %q for $%s", c.Type, c.Name),
					Context: fmt.Sprintf("line %d", c.Line),
				}
			}
			if err := schema.Declare(c.Name, vt, convertLiteral(c.Default)); err != nil {
				return nil, &lang.GrammarError{Msg: err.Error(), Context: fmt.Sprintf("line %d", c.Line)}
			}
		}
	}
	return schema, nil
}

func convertLiteral(l lang.Literal) Literal {
	switch l.Kind {
	case lang.LitInt:
		return Literal{Kind: LitInt, Int: l.Int}
	case lang.LitReal:
		return Literal{Kind: LitReal, Real: l.Real}
	default:
		return Literal{Kind: LitText, Text: l.Text}
	}
}

func collectStateNames(prog *lang.Program) ([]string, []bool, error) {
	seen := make(map[string]bool, len(prog.States))
	names := make([]string, 0, len(prog.States))
	verified := make([]bool, 0, len(prog.States))
	for _, s := range prog.States {
		if seen[s.Name] {
			return nil, nil, &lang.GrammarError{
				Msg:     fmt.Sprintf("duplicate state %q", s.Name),
				Context: fmt.Sprintf("line %d", s.Line),
			}
		}
		seen[s.Name] = true
		names = append(names, s.Name)
		verified = append(verified, s.Verified)
	}
	return names, verified, nil
}

func lowerState(g *StateGraph, schema *VariableSchema, idx int, def *lang.StateDef) error {
	st := &g.States[idx]

	for _, sp := range def.OnEnter {
		act, err := lowerSpeak(schema, sp, false)
		if err != nil {
			return err
		}
		st.OnEnter = append(st.OnEnter, act)
	}

	for _, c := range def.Cases {
		cond, err := lowerCondition(c.Condition)
		if err != nil {
			return err
		}
		actions, err := lowerActions(schema, g, st.Verified, c.Actions, &cond)
		if err != nil {
			return err
		}
		st.Cases = append(st.Cases, CaseClause{Condition: cond, Actions: actions})
	}

	defaultActions, err := lowerActions(schema, g, st.Verified, def.Default.Actions, nil)
	if err != nil {
		return err
	}
	st.DefaultActions = defaultActions

	for _, t := range def.Timeouts {
		actions, err := lowerTimeoutActions(schema, g, st.Verified, t.Actions)
		if err != nil {
			return err
		}
		st.Timeouts = append(st.Timeouts, TimeoutClause{Seconds: t.Seconds, Actions: actions})
	}

	return nil
}

// lowerSpeak lowers a parsed Speak action. allowCopy mirrors the
// grammar's speak_action / speak_copy_action split (spec §4.1): false
// for state-enter and Timeout speaks, true for Case/Default speaks.
func lowerSpeak(schema *VariableSchema, sp lang.SpeakAction, allowCopy bool) (Action, error) {
	parts := make([]SpeakPart, 0, len(sp.Parts))
	for _, part := range sp.Parts {
		switch part.Kind {
		case lang.SpeakLiteral:
			parts = append(parts, SpeakPart{Kind: SpeakLiteral, Text: part.Text})
		case lang.SpeakVar:
			if _, ok := schema.Type(part.Var); !ok {
				return Action{}, &lang.GrammarError{
					Msg:     fmt.Sprintf("Speak references unknown variable $%s", part.Var),
					Context: fmt.Sprintf("line %d", sp.Line),
				}
			}
			parts = append(parts, SpeakPart{Kind: SpeakVar, Var: part.Var})
		case lang.SpeakCopy:
			if !allowCopy {
				return Action{}, &lang.GrammarError{
					Msg:     "Copy is not allowed in a state-enter or Timeout Speak",
					Context: fmt.Sprintf("line %d", sp.Line),
				}
			}
			parts = append(parts, SpeakPart{Kind: SpeakCopy})
		}
	}
	return Action{Kind: ActSpeak, Parts: parts}, nil
}

func lowerCondition(c lang.Condition) (Condition, error) {
	switch c.Kind {
	case lang.CondLength:
		return Condition{Kind: CondLength, LengthOp: c.LengthOp, LengthN: c.LengthN}, nil
	case lang.CondContain:
		return Condition{Kind: CondContain, Str: c.Str}, nil
	case lang.CondType:
		return Condition{Kind: CondType, TypeName: c.TypeName}, nil
	case lang.CondEqual:
		return Condition{Kind: CondEqual, Str: c.Str}, nil
	default:
		return Condition{}, &lang.GrammarError{Msg: "unknown condition kind", Context: fmt.Sprintf("line %d", c.Line)}
	}
}

// lowerActions lowers the (update_action | speak_copy_action)*
// [exit_action | goto_action] tail shared by case_clause and
// default_clause. cond is the enclosing Case's condition, or nil for
// Default (the "Text context" of spec §4.2).
func lowerActions(schema *VariableSchema, g *StateGraph, stateVerified bool, actions []lang.Action, cond *Condition) ([]Action, error) {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		switch a.Kind {
		case lang.ActExit:
			out = append(out, Action{Kind: ActExit})
		case lang.ActGoto:
			act, err := lowerGoto(g, a)
			if err != nil {
				return nil, err
			}
			out = append(out, act)
		case lang.ActUpdate:
			act, err := lowerUpdate(schema, stateVerified, a, cond)
			if err != nil {
				return nil, err
			}
			out = append(out, act)
		case lang.ActSpeak:
			act, err := lowerSpeak(schema, lang.SpeakAction{Parts: a.Parts, Line: a.Line}, true)
			if err != nil {
				return nil, err
			}
			out = append(out, act)
		}
	}
	return out, nil
}

// lowerTimeoutActions lowers timeout_clause's action tail: Speak here
// forbids Copy, and Update has no enclosing condition (cond == nil).
func lowerTimeoutActions(schema *VariableSchema, g *StateGraph, stateVerified bool, actions []lang.Action) ([]Action, error) {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		switch a.Kind {
		case lang.ActExit:
			out = append(out, Action{Kind: ActExit})
		case lang.ActGoto:
			act, err := lowerGoto(g, a)
			if err != nil {
				return nil, err
			}
			out = append(out, act)
		case lang.ActUpdate:
			if a.ValueIsCopy {
				return nil, &lang.GrammarError{
					Msg:     fmt.Sprintf("Copy is not allowed in a Timeout Update of $%s", a.Var),
					Context: fmt.Sprintf("line %d", a.Line),
				}
			}
			act, err := lowerUpdate(schema, stateVerified, a, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, act)
		case lang.ActSpeak:
			act, err := lowerSpeak(schema, lang.SpeakAction{Parts: a.Parts, Line: a.Line}, false)
			if err != nil {
				return nil, err
			}
			out = append(out, act)
		}
	}
	return out, nil
}

func lowerGoto(g *StateGraph, a lang.Action) (Action, error) {
	idx, ok := g.IndexOf(a.Target)
	if !ok {
		return Action{}, &lang.GrammarError{
			Msg:     fmt.Sprintf("Goto target %q does not resolve to a known state", a.Target),
			Context: fmt.Sprintf("line %d", a.Line),
		}
	}
	return Action{Kind: ActGoto, Target: idx, TargetVerified: g.States[idx].Verified}, nil
}

func lowerUpdate(schema *VariableSchema, stateVerified bool, a lang.Action, cond *Condition) (Action, error) {
	if !stateVerified {
		return Action{}, &lang.GrammarError{
			Msg:     fmt.Sprintf("Update $%s is not allowed in a non-Verified state", a.Var),
			Context: fmt.Sprintf("line %d", a.Line),
		}
	}
	vt, ok := schema.Type(a.Var)
	if !ok {
		return Action{}, &lang.GrammarError{
			Msg:     fmt.Sprintf("Update references unknown variable $%s", a.Var),
			Context: fmt.Sprintf("line %d", a.Line),
		}
	}

	out := Action{Kind: ActUpdate, Var: a.Var, VarType: vt, Op: a.Op}

	if a.ValueIsCopy {
		if !copyCompatible(vt, cond) {
			return Action{}, &lang.GrammarError{
				Msg:     fmt.Sprintf("Copy is not compatible with $%s's declared %s in this context", a.Var, vt),
				Context: fmt.Sprintf("line %d", a.Line),
			}
		}
		out.ValueIsCopy = true
		return out, nil
	}

	switch vt {
	case VarText:
		if a.Op != "Set" {
			return Action{}, &lang.GrammarError{
				Msg:     fmt.Sprintf("Update $%s (Text) only allows Set", a.Var),
				Context: fmt.Sprintf("line %d", a.Line),
			}
		}
		if a.Value.Kind != lang.LitText {
			return Action{}, &lang.GrammarError{
				Msg:     fmt.Sprintf("Update $%s (Text) requires a string literal", a.Var),
				Context: fmt.Sprintf("line %d", a.Line),
			}
		}
		out.Value = Literal{Kind: LitText, Text: a.Value.Text}
	case VarInt:
		if a.Value.Kind == lang.LitText {
			return Action{}, &lang.GrammarError{
				Msg:     fmt.Sprintf("Update $%s (Int) requires a numeric literal", a.Var),
				Context: fmt.Sprintf("line %d", a.Line),
			}
		}
		real := literalAsReal(a.Value)
		if real != math.Trunc(real) {
			return Action{}, &lang.GrammarError{
				Msg:     fmt.Sprintf("Update $%s (Int) requires an integral value, got %v", a.Var, real),
				Context: fmt.Sprintf("line %d", a.Line),
			}
		}
		out.Value = Literal{Kind: LitInt, Int: int64(real)}
	case VarReal:
		if a.Value.Kind == lang.LitText {
			return Action{}, &lang.GrammarError{
				Msg:     fmt.Sprintf("Update $%s (Real) requires a numeric literal", a.Var),
				Context: fmt.Sprintf("line %d", a.Line),
			}
		}
		out.Value = Literal{Kind: LitReal, Real: literalAsReal(a.Value)}
	}
	return out, nil
}

func literalAsReal(l lang.Literal) float64 {
	if l.Kind == lang.LitInt {
		return float64(l.Int)
	}
	return l.Real
}

// copyCompatible implements spec §4.2's Copy-into-Update type table.
func copyCompatible(vt VarType, cond *Condition) bool {
	if vt == VarText {
		return true
	}
	if cond == nil || cond.Kind != CondType {
		return false
	}
	switch vt {
	case VarInt:
		return cond.TypeName == "Int"
	case VarReal:
		return cond.TypeName == "Int" || cond.TypeName == "Real"
	default:
		return false
	}
}
