package lang

import "fmt"

// Parse tokenizes and parses a single source file's contents into the
// top-level definitions it contributes.
func Parse(file, src string) (*Program, error) {
	toks, err := newLexer(file, src).tokenize()
	if err != nil {
		return nil, wrapFile(file, err)
	}
	p := &parser{toks: toks, file: file}
	prog, err := p.parseLanguage()
	if err != nil {
		return nil, wrapFile(file, err)
	}
	return prog, nil
}

// ParseFiles parses each file in order and concatenates their
// definitions into one Program, per spec §4.1.
func ParseFiles(files []string, read func(string) (string, error)) (*Program, error) {
	out := &Program{}
	for _, f := range files {
		src, err := read(f)
		if err != nil {
			return nil, err
		}
		prog, err := Parse(f, src)
		if err != nil {
			return nil, err
		}
		out.Variables = append(out.Variables, prog.Variables...)
		out.States = append(out.States, prog.States...)
	}
	return out, nil
}

func wrapFile(file string, err error) error {
	ge, ok := err.(*GrammarError)
	if !ok || file == "" {
		return err
	}
	return &GrammarError{Msg: ge.Msg, Context: fmt.Sprintf("%s (%s)", ge.Context, file)}
}

type parser struct {
	toks []Token
	pos  int
	file string
}

func (p *parser) cur() Token  { return p.toks[p.pos] }
func (p *parser) at(k Kind) bool { return p.cur().Kind == k }
func (p *parser) atWord(w string) bool {
	return p.cur().Kind == TokWord && p.cur().Text == w
}
func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errHere(format string, args ...any) error {
	t := p.cur()
	return errf(t.Line, t.Col, format, args...)
}

func (p *parser) expectWord(w string) (Token, error) {
	if !p.atWord(w) {
		return Token{}, p.errHere("expected %q, found %s", w, p.cur())
	}
	return p.advance(), nil
}

func (p *parser) expect(k Kind) (Token, error) {
	if !p.at(k) {
		return Token{}, p.errHere("expected %s, found %s", k, p.cur())
	}
	return p.advance(), nil
}

// parseLanguage implements `language := {state_def | variable_def}`.
func (p *parser) parseLanguage() (*Program, error) {
	prog := &Program{}
	for !p.at(TokEOF) {
		switch {
		case p.atWord("Variable"):
			def, err := p.parseVariableDef()
			if err != nil {
				return nil, err
			}
			prog.Variables = append(prog.Variables, *def)
		case p.atWord("State"):
			def, err := p.parseStateDef()
			if err != nil {
				return nil, err
			}
			prog.States = append(prog.States, *def)
		default:
			return nil, p.errHere("expected 'Variable' or 'State', found %s", p.cur())
		}
	}
	return prog, nil
}

// variable_def := "Variable" var_clause+
func (p *parser) parseVariableDef() (*VariableDef, error) {
	tok, err := p.expectWord("Variable")
	if err != nil {
		return nil, err
	}
	def := &VariableDef{Line: tok.Line}
	clause, err := p.parseVarClause()
	if err != nil {
		return nil, err
	}
	def.Clauses = append(def.Clauses, *clause)
	for p.at(TokVariable) {
		clause, err := p.parseVarClause()
		if err != nil {
			return nil, err
		}
		def.Clauses = append(def.Clauses, *clause)
	}
	return def, nil
}

// var_clause := variable ("Int" int_const | "Real" real_const | "Text" string_const)
func (p *parser) parseVarClause() (*VarClause, error) {
	vtok, err := p.expect(TokVariable)
	if err != nil {
		return nil, err
	}
	c := &VarClause{Name: vtok.Text, Line: vtok.Line}
	switch {
	case p.atWord("Int"):
		p.advance()
		n, err := p.parseIntConst()
		if err != nil {
			return nil, err
		}
		c.Type = "Int"
		c.Default = Literal{Kind: LitInt, Int: n}
	case p.atWord("Real"):
		p.advance()
		r, err := p.parseRealConst()
		if err != nil {
			return nil, err
		}
		c.Type = "Real"
		c.Default = Literal{Kind: LitReal, Real: r}
	case p.atWord("Text"):
		p.advance()
		s, err := p.expect(TokString)
		if err != nil {
			return nil, err
		}
		c.Type = "Text"
		c.Default = Literal{Kind: LitText, Text: s.Text}
	default:
		return nil, p.errHere("expected 'Int', 'Real', or 'Text' after variable %s, found %s", vtok.Text, p.cur())
	}
	return c, nil
}

// parseIntConst accepts an optional leading '+' token (tokenized separately
// from a '-'-prefixed number) followed by a TokNumber with no '.' or exponent.
func (p *parser) parseIntConst() (int64, error) {
	if p.at(TokPlus) {
		p.advance()
	}
	tok, err := p.expect(TokNumber)
	if err != nil {
		return 0, err
	}
	n, ok := parseIntText(tok.Text)
	if !ok {
		return 0, errf(tok.Line, tok.Col, "expected an integer constant, found %q", tok.Text)
	}
	return n, nil
}

func (p *parser) parseRealConst() (float64, error) {
	if p.at(TokPlus) {
		p.advance()
	}
	tok, err := p.expect(TokNumber)
	if err != nil {
		return 0, err
	}
	r, ok := parseRealText(tok.Text)
	if !ok {
		return 0, errf(tok.Line, tok.Col, "expected a real constant, found %q", tok.Text)
	}
	return r, nil
}

// state_def := "State" ident ["Verified"] speak_action* case_clause* default_clause timeout_clause*
func (p *parser) parseStateDef() (*StateDef, error) {
	tok, err := p.expectWord("State")
	if err != nil {
		return nil, err
	}
	nameTok, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	s := &StateDef{Name: nameTok.Text, Line: tok.Line}
	if p.atWord("Verified") {
		p.advance()
		s.Verified = true
	}
	for p.atWord("Speak") {
		sp, err := p.parseSpeakAction(false)
		if err != nil {
			return nil, err
		}
		s.OnEnter = append(s.OnEnter, *sp)
	}
	for p.atWord("Case") {
		c, err := p.parseCaseClause()
		if err != nil {
			return nil, err
		}
		s.Cases = append(s.Cases, *c)
	}
	def, err := p.parseDefaultClause()
	if err != nil {
		return nil, err
	}
	s.Default = *def
	for p.atWord("Timeout") {
		t, err := p.parseTimeoutClause()
		if err != nil {
			return nil, err
		}
		s.Timeouts = append(s.Timeouts, *t)
	}
	return s, nil
}

// ident := [A-Za-z]+ — lexed as TokWord, but must not be a reserved keyword.
var reservedWords = map[string]bool{
	"Variable": true, "Int": true, "Real": true, "Text": true, "State": true,
	"Verified": true, "Speak": true, "Case": true, "Default": true, "Timeout": true,
	"Update": true, "Add": true, "Sub": true, "Set": true, "Copy": true,
	"Exit": true, "Goto": true, "Length": true, "Contain": true, "Type": true,
}

func (p *parser) parseIdent() (Token, error) {
	if !p.at(TokWord) {
		return Token{}, p.errHere("expected identifier, found %s", p.cur())
	}
	if reservedWords[p.cur().Text] {
		return Token{}, p.errHere("expected identifier, found reserved word %q", p.cur().Text)
	}
	return p.advance(), nil
}

// speak_content := variable | string_const
func (p *parser) parseSpeakContent() (SpeakPart, error) {
	switch {
	case p.at(TokVariable):
		t := p.advance()
		return SpeakPart{Kind: SpeakVar, Var: t.Text}, nil
	case p.at(TokString):
		t := p.advance()
		return SpeakPart{Kind: SpeakLiteral, Text: t.Text}, nil
	default:
		return SpeakPart{}, p.errHere("expected a $variable or string literal, found %s", p.cur())
	}
}

// speak_action := "Speak" speak_content ("+" speak_content)*
// when allowCopy, the "Copy" keyword is also accepted wherever speak_content is (speak_copy_action).
func (p *parser) parseSpeakAction(allowCopy bool) (*SpeakAction, error) {
	tok, err := p.expectWord("Speak")
	if err != nil {
		return nil, err
	}
	sa := &SpeakAction{Line: tok.Line}
	part, err := p.parseSpeakContentOrCopy(allowCopy)
	if err != nil {
		return nil, err
	}
	sa.Parts = append(sa.Parts, part)
	for p.at(TokPlus) {
		p.advance()
		part, err := p.parseSpeakContentOrCopy(allowCopy)
		if err != nil {
			return nil, err
		}
		sa.Parts = append(sa.Parts, part)
	}
	return sa, nil
}

func (p *parser) parseSpeakContentOrCopy(allowCopy bool) (SpeakPart, error) {
	if allowCopy && p.atWord("Copy") {
		p.advance()
		return SpeakPart{Kind: SpeakCopy}, nil
	}
	return p.parseSpeakContent()
}

// condition := ("Length" op int_const) | ("Contain" string_const) | ("Type" ("Int"|"Real")) | string_const
func (p *parser) parseCondition() (Condition, error) {
	tok := p.cur()
	switch {
	case p.atWord("Length"):
		p.advance()
		op, err := p.parseLengthOp()
		if err != nil {
			return Condition{}, err
		}
		n, err := p.parseIntConst()
		if err != nil {
			return Condition{}, err
		}
		return Condition{Kind: CondLength, LengthOp: op, LengthN: n, Line: tok.Line}, nil
	case p.atWord("Contain"):
		p.advance()
		s, err := p.expect(TokString)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Kind: CondContain, Str: s.Text, Line: tok.Line}, nil
	case p.atWord("Type"):
		p.advance()
		if p.atWord("Int") {
			p.advance()
			return Condition{Kind: CondType, TypeName: "Int", Line: tok.Line}, nil
		}
		if p.atWord("Real") {
			p.advance()
			return Condition{Kind: CondType, TypeName: "Real", Line: tok.Line}, nil
		}
		return Condition{}, p.errHere("expected 'Int' or 'Real' after Type, found %s", p.cur())
	case p.at(TokString):
		s := p.advance()
		return Condition{Kind: CondEqual, Str: s.Text, Line: tok.Line}, nil
	default:
		return Condition{}, p.errHere("expected a condition (Length/Contain/Type/string), found %s", p.cur())
	}
}

func (p *parser) parseLengthOp() (string, error) {
	switch p.cur().Kind {
	case TokLE:
		p.advance()
		return "<=", nil
	case TokGE:
		p.advance()
		return ">=", nil
	case TokLT:
		p.advance()
		return "<", nil
	case TokGT:
		p.advance()
		return ">", nil
	case TokEQ:
		p.advance()
		return "=", nil
	default:
		return "", p.errHere("expected a comparison operator after Length, found %s", p.cur())
	}
}

// update_action := "Update" variable ( (Add|Sub|Set) (real_const|Copy) | Set (string_const|Copy) )
func (p *parser) parseUpdateAction() (Action, error) {
	tok, err := p.expectWord("Update")
	if err != nil {
		return Action{}, err
	}
	vtok, err := p.expect(TokVariable)
	if err != nil {
		return Action{}, err
	}
	a := Action{Kind: ActUpdate, Line: tok.Line, Var: vtok.Text}

	var op string
	switch {
	case p.atWord("Add"):
		op = "Add"
	case p.atWord("Sub"):
		op = "Sub"
	case p.atWord("Set"):
		op = "Set"
	default:
		return Action{}, p.errHere("expected Add/Sub/Set after Update %s, found %s", vtok.Text, p.cur())
	}
	p.advance()
	a.Op = op

	if p.atWord("Copy") {
		p.advance()
		a.ValueIsCopy = true
		return a, nil
	}
	if op == "Set" && p.at(TokString) {
		s := p.advance()
		a.Value = Literal{Kind: LitText, Text: s.Text}
		return a, nil
	}
	r, err := p.parseRealConst()
	if err != nil {
		return Action{}, p.errHere("expected a numeric constant, string literal, or Copy after Update %s %s, found %s", vtok.Text, op, p.cur())
	}
	a.Value = Literal{Kind: LitReal, Real: r}
	return a, nil
}

func (p *parser) parseExitAction() (Action, error) {
	tok, err := p.expectWord("Exit")
	if err != nil {
		return Action{}, err
	}
	return Action{Kind: ActExit, Line: tok.Line}, nil
}

func (p *parser) parseGotoAction() (Action, error) {
	tok, err := p.expectWord("Goto")
	if err != nil {
		return Action{}, err
	}
	target, err := p.parseIdent()
	if err != nil {
		return Action{}, err
	}
	return Action{Kind: ActGoto, Line: tok.Line, Target: target.Text}, nil
}

func (p *parser) atUpdate() bool { return p.atWord("Update") }
func (p *parser) atSpeak() bool  { return p.atWord("Speak") }
func (p *parser) atExit() bool   { return p.atWord("Exit") }
func (p *parser) atGoto() bool   { return p.atWord("Goto") }

// parseClauseActionsWithCopy parses (update_action | speak_copy_action)* [exit_action | goto_action],
// shared by case_clause and default_clause.
func (p *parser) parseClauseActionsWithCopy() ([]Action, error) {
	var actions []Action
	for p.atUpdate() || p.atSpeak() {
		if p.atUpdate() {
			a, err := p.parseUpdateAction()
			if err != nil {
				return nil, err
			}
			actions = append(actions, a)
			continue
		}
		sa, err := p.parseSpeakAction(true)
		if err != nil {
			return nil, err
		}
		actions = append(actions, Action{Kind: ActSpeak, Line: sa.Line, Parts: sa.Parts})
	}
	if p.atExit() {
		a, err := p.parseExitAction()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	} else if p.atGoto() {
		a, err := p.parseGotoAction()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// case_clause := "Case" condition (update_action | speak_copy_action)* [exit_action | goto_action]
func (p *parser) parseCaseClause() (*CaseClause, error) {
	tok, err := p.expectWord("Case")
	if err != nil {
		return nil, err
	}
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	actions, err := p.parseClauseActionsWithCopy()
	if err != nil {
		return nil, err
	}
	return &CaseClause{Condition: cond, Actions: actions, Line: tok.Line}, nil
}

// default_clause := "Default" (update_action | speak_copy_action)* [exit_action | goto_action]
func (p *parser) parseDefaultClause() (*DefaultClause, error) {
	tok, err := p.expectWord("Default")
	if err != nil {
		return nil, err
	}
	actions, err := p.parseClauseActionsWithCopy()
	if err != nil {
		return nil, err
	}
	return &DefaultClause{Actions: actions, Line: tok.Line}, nil
}

// timeout_clause := "Timeout" int_const (update_action | speak_action)* [exit_action | goto_action]
// Note: timeout_clause uses speak_action (no Copy), unlike case/default.
func (p *parser) parseTimeoutClause() (*TimeoutClause, error) {
	tok, err := p.expectWord("Timeout")
	if err != nil {
		return nil, err
	}
	seconds, err := p.parseIntConst()
	if err != nil {
		return nil, err
	}
	var actions []Action
	for p.atUpdate() || p.atSpeak() {
		if p.atUpdate() {
			a, err := p.parseUpdateAction()
			if err != nil {
				return nil, err
			}
			actions = append(actions, a)
			continue
		}
		sa, err := p.parseSpeakAction(false)
		if err != nil {
			return nil, err
		}
		actions = append(actions, Action{Kind: ActSpeak, Line: sa.Line, Parts: sa.Parts})
	}
	if p.atExit() {
		a, err := p.parseExitAction()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	} else if p.atGoto() {
		a, err := p.parseGotoAction()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return &TimeoutClause{Seconds: seconds, Actions: actions, Line: tok.Line}, nil
}
