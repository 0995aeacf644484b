// Package ir folds a parsed script (internal/lang) into the state graph
// and variable schema the runtime executes against, performing every
// static check the grammar alone cannot express.
package ir

import "fmt"

// VarType is the declared type of a scripted variable.
type VarType int

const (
	VarInt VarType = iota
	VarReal
	VarText
)

func (t VarType) String() string {
	switch t {
	case VarInt:
		return "Int"
	case VarReal:
		return "Real"
	case VarText:
		return "Text"
	}
	return "?"
}

// Literal is a typed constant surviving into the IR: a variable
// default or an Update value.
type Literal struct {
	Kind LiteralKind
	Int  int64
	Real float64
	Text string
}

type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitReal
	LitText
)

// VariableSchema maps variable name to declared type and default
// value. It always carries the reserved username/passwd columns
// (spec §3), inserted before any script-declared variable.
type VariableSchema struct {
	order    []string
	types    map[string]VarType
	defaults map[string]Literal
}

const (
	ReservedUsername = "username"
	ReservedPasswd    = "passwd"
)

// NewVariableSchemaForTest builds a schema with only the reserved
// username/passwd columns, for tests that need a VariableSchema
// without going through a full script build.
func NewVariableSchemaForTest() *VariableSchema {
	return newVariableSchema()
}

func newVariableSchema() *VariableSchema {
	s := &VariableSchema{
		types:    make(map[string]VarType),
		defaults: make(map[string]Literal),
	}
	s.add(ReservedUsername, VarText, Literal{Kind: LitText, Text: ""})
	s.add(ReservedPasswd, VarText, Literal{Kind: LitText, Text: ""})
	return s
}

// add registers a variable unconditionally; callers needing duplicate
// detection should use Declare.
func (s *VariableSchema) add(name string, typ VarType, def Literal) {
	s.order = append(s.order, name)
	s.types[name] = typ
	s.defaults[name] = def
}

// Declare adds a script-declared variable, rejecting redeclaration of
// any name (including the two reserved columns).
func (s *VariableSchema) Declare(name string, typ VarType, def Literal) error {
	if _, exists := s.types[name]; exists {
		return fmt.Errorf("duplicate variable $%s", name)
	}
	s.add(name, typ, def)
	return nil
}

func (s *VariableSchema) Type(name string) (VarType, bool) {
	t, ok := s.types[name]
	return t, ok
}

func (s *VariableSchema) Default(name string) (Literal, bool) {
	d, ok := s.defaults[name]
	return d, ok
}

// Names returns every variable name, reserved columns first, in
// declaration order.
func (s *VariableSchema) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
