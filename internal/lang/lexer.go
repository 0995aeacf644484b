package lang

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// GrammarError is raised by the lexer, parser, or validator on any
// malformed script. It carries enough context to point an operator at
// the offending source.
type GrammarError struct {
	Msg     string
	Context string
}

func (e *GrammarError) Error() string {
	if e.Context == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Context)
}

func errf(line, col int, format string, args ...any) error {
	return &GrammarError{
		Msg:     fmt.Sprintf(format, args...),
		Context: fmt.Sprintf("line %d, col %d", line, col),
	}
}

type lexer struct {
	src  string
	file string
	pos  int
	line int
	col  int
}

func newLexer(file, src string) *lexer {
	return &lexer{src: src, file: file, pos: 0, line: 1, col: 1}
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		b := l.peekByte()
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			l.advance()
			continue
		}
		if b == '#' {
			for l.pos < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func isAlpha(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// tokenize lexes the entire source into a token slice ending in TokEOF.
func (l *lexer) tokenize() ([]Token, error) {
	var toks []Token
	for {
		l.skipSpaceAndComments()
		if l.pos >= len(l.src) {
			toks = append(toks, Token{Kind: TokEOF, Line: l.line, Col: l.col})
			return toks, nil
		}
		startLine, startCol := l.line, l.col
		b := l.peekByte()

		switch {
		case b == '+':
			l.advance()
			toks = append(toks, Token{Kind: TokPlus, Text: "+", Line: startLine, Col: startCol})
		case b == '<':
			l.advance()
			if l.peekByte() == '=' {
				l.advance()
				toks = append(toks, Token{Kind: TokLE, Text: "<=", Line: startLine, Col: startCol})
			} else {
				toks = append(toks, Token{Kind: TokLT, Text: "<", Line: startLine, Col: startCol})
			}
		case b == '>':
			l.advance()
			if l.peekByte() == '=' {
				l.advance()
				toks = append(toks, Token{Kind: TokGE, Text: ">=", Line: startLine, Col: startCol})
			} else {
				toks = append(toks, Token{Kind: TokGT, Text: ">", Line: startLine, Col: startCol})
			}
		case b == '=':
			l.advance()
			toks = append(toks, Token{Kind: TokEQ, Text: "=", Line: startLine, Col: startCol})
		case b == '"':
			s, err := l.lexString()
			if err != nil {
				return nil, err
			}
			toks = append(toks, Token{Kind: TokString, Text: s, Line: startLine, Col: startCol})
		case b == '$':
			name, err := l.lexVariable()
			if err != nil {
				return nil, err
			}
			toks = append(toks, Token{Kind: TokVariable, Text: name, Line: startLine, Col: startCol})
		case b == '-' || isDigit(b):
			num, err := l.lexNumber()
			if err != nil {
				return nil, err
			}
			toks = append(toks, Token{Kind: TokNumber, Text: num, Line: startLine, Col: startCol})
		case isAlpha(rune(b)):
			word := l.lexWord()
			toks = append(toks, Token{Kind: TokWord, Text: word, Line: startLine, Col: startCol})
		default:
			return nil, errf(startLine, startCol, "unexpected character %q", string(rune(b)))
		}
	}
}

func (l *lexer) lexString() (string, error) {
	startLine, startCol := l.line, l.col
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return "", errf(startLine, startCol, "unterminated string literal")
		}
		b := l.peekByte()
		if b == '"' {
			l.advance()
			return sb.String(), nil
		}
		if b == '\\' && l.pos+1 < len(l.src) {
			l.advance()
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteByte(esc)
			}
			continue
		}
		sb.WriteByte(l.advance())
	}
}

func (l *lexer) lexVariable() (string, error) {
	startLine, startCol := l.line, l.col
	l.advance() // '$'
	start := l.pos
	if l.pos >= len(l.src) {
		return "", errf(startLine, startCol, "expected variable name after '$'")
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	if !isIdentStart(r) {
		return "", errf(startLine, startCol, "invalid variable name after '$'")
	}
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentCont(r) {
			break
		}
		for i := 0; i < size; i++ {
			l.advance()
		}
	}
	return l.src[start:l.pos], nil
}

// lexNumber consumes the widest valid numeric literal: [-+]?digits[.digits][e[-+]digits].
// Validity against int_const vs real_const is decided by the parser, per context.
func (l *lexer) lexNumber() (string, error) {
	start := l.pos
	if l.peekByte() == '+' || l.peekByte() == '-' {
		l.advance()
	}
	for isDigit(l.peekByte()) {
		l.advance()
	}
	if l.peekByte() == '.' {
		l.advance()
		for isDigit(l.peekByte()) {
			l.advance()
		}
	}
	if l.peekByte() == 'e' || l.peekByte() == 'E' {
		save := l.pos
		saveLine, saveCol := l.line, l.col
		l.advance()
		if l.peekByte() == '+' || l.peekByte() == '-' {
			l.advance()
		}
		if !isDigit(l.peekByte()) {
			// not actually an exponent; rewind
			l.pos, l.line, l.col = save, saveLine, saveCol
		} else {
			for isDigit(l.peekByte()) {
				l.advance()
			}
		}
	}
	if l.pos == start {
		return "", errf(l.line, l.col, "malformed numeric literal")
	}
	return l.src[start:l.pos], nil
}

func (l *lexer) lexWord() string {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isAlpha(r) {
			break
		}
		for i := 0; i < size; i++ {
			l.advance()
		}
	}
	return l.src[start:l.pos]
}
