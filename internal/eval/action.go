package eval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ehrlich-b/scriptbot/internal/apperr"
	"github.com/ehrlich-b/scriptbot/internal/ir"
)

// Session is the subset of per-client session state an action may
// read or mutate. Implemented by internal/session.Session.
type Session interface {
	StateIndex() int
	SetStateIndex(int)
	LoggedIn() bool
	Username() string
	LastIdleSeconds() int
	SetLastIdleSeconds(int)
}

// Store is the subset of variable-store operations an action needs.
// Implemented by internal/store.Store.
type Store interface {
	Read(ctx context.Context, username, varName string) (ir.Literal, error)
	Write(ctx context.Context, username, varName, op string, value ir.Literal) error
}

// Exec executes one IR action against (session, store, requestInput),
// appending any Speak output to replies (spec §4.4).
func Exec(ctx context.Context, a ir.Action, sess Session, store Store, requestInput string, replies *[]string) error {
	switch a.Kind {
	case ir.ActExit:
		sess.SetStateIndex(-1)
		return nil
	case ir.ActGoto:
		if a.TargetVerified && !sess.LoggedIn() {
			return &apperr.LoginError{State: fmt.Sprintf("state #%d", a.Target)}
		}
		sess.SetStateIndex(a.Target)
		return nil
	case ir.ActUpdate:
		value := a.Value
		if a.ValueIsCopy {
			v, err := copyValue(a.VarType, requestInput)
			if err != nil {
				return err
			}
			value = v
		}
		return store.Write(ctx, sess.Username(), a.Var, a.Op, value)
	case ir.ActSpeak:
		s, err := renderSpeak(ctx, a.Parts, sess, store, requestInput)
		if err != nil {
			return err
		}
		*replies = append(*replies, s)
		return nil
	default:
		return fmt.Errorf("eval: unknown action kind %d", a.Kind)
	}
}

func renderSpeak(ctx context.Context, parts []ir.SpeakPart, sess Session, store Store, requestInput string) (string, error) {
	var sb strings.Builder
	for _, p := range parts {
		switch p.Kind {
		case ir.SpeakLiteral:
			sb.WriteString(p.Text)
		case ir.SpeakVar:
			v, err := store.Read(ctx, sess.Username(), p.Var)
			if err != nil {
				return "", fmt.Errorf("eval: read $%s: %w", p.Var, err)
			}
			sb.WriteString(literalString(v))
		case ir.SpeakCopy:
			sb.WriteString(requestInput)
		}
	}
	return sb.String(), nil
}

func literalString(l ir.Literal) string {
	switch l.Kind {
	case ir.LitInt:
		return strconv.FormatInt(l.Int, 10)
	case ir.LitReal:
		return strconv.FormatFloat(l.Real, 'g', -1, 64)
	default:
		return l.Text
	}
}

// copyValue materializes a Copy marker into a typed Literal per the
// enclosing variable's declared type — the build-time validation in
// internal/ir guarantees this conversion cannot fail for a
// well-formed script executing a matched Type Int/Real case, but
// Update actions reachable only via Default (Copy into Text) still
// pass through here uniformly.
func copyValue(vt ir.VarType, input string) (ir.Literal, error) {
	switch vt {
	case ir.VarInt:
		n, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
		if err != nil {
			return ir.Literal{}, fmt.Errorf("eval: Copy into an Int variable requires digits, got %q", input)
		}
		return ir.Literal{Kind: ir.LitInt, Int: n}, nil
	case ir.VarReal:
		f, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
		if err != nil {
			return ir.Literal{}, fmt.Errorf("eval: Copy into a Real variable requires a number, got %q", input)
		}
		return ir.Literal{Kind: ir.LitReal, Real: f}, nil
	default:
		return ir.Literal{Kind: ir.LitText, Text: input}, nil
	}
}
