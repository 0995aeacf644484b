// Package lang implements the scriptbot dialog-script grammar: a
// hand-written lexer and recursive-descent parser that turn source
// files into a concrete parse tree (see ast.go).
package lang

import "fmt"

type TokenKind int

const (
	TokEOF TokenKind = iota
	TokWord           // bare identifier or keyword: State, Verified, Welcome, Add, <, etc. handled separately
	TokVariable       // $name
	TokString         // "quoted text"
	TokNumber         // raw numeric literal, sign+digits[.digits][e[sign]digits]
	TokPlus           // +
	TokLT             // <
	TokGT             // >
	TokLE             // <=
	TokGE             // >=
	TokEQ             // =
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "EOF"
	case TokWord:
		return "word"
	case TokVariable:
		return "variable"
	case TokString:
		return "string"
	case TokNumber:
		return "number"
	case TokPlus:
		return "+"
	case TokLT:
		return "<"
	case TokGT:
		return ">"
	case TokLE:
		return "<="
	case TokGE:
		return ">="
	case TokEQ:
		return "="
	}
	return "?"
}

// Token is one lexical unit, with its source position for error context.
type Token struct {
	Kind Kind
	Text string // literal text; for TokString the unquoted contents, for TokVariable the name without '$'
	Line int
	Col  int
}

type Kind = TokenKind

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", t.Kind, t.Text, t.Line, t.Col)
}
