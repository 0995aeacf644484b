// Package eval executes the IR's Condition and Action tagged variants
// (spec §4.4) against a session, a variable store, and the raw
// request input, using type switches rather than virtual dispatch
// (spec §9).
package eval

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ehrlich-b/scriptbot/internal/ir"
)

// MatchCondition evaluates c against the raw user input.
func MatchCondition(c ir.Condition, input string) bool {
	switch c.Kind {
	case ir.CondLength:
		n := int64(utf8.RuneCountInString(input))
		switch c.LengthOp {
		case "<":
			return n < c.LengthN
		case ">":
			return n > c.LengthN
		case "<=":
			return n <= c.LengthN
		case ">=":
			return n >= c.LengthN
		case "=":
			return n == c.LengthN
		default:
			return false
		}
	case ir.CondContain:
		// haystack (input) contains needle (literal) — spec §9 Open
		// Question 1, the reverse of the source's literal-contains-input.
		return strings.Contains(input, c.Str)
	case ir.CondType:
		switch c.TypeName {
		case "Int":
			return isUnsignedDigits(input)
		case "Real":
			_, err := strconv.ParseFloat(input, 64)
			return err == nil
		default:
			return false
		}
	case ir.CondEqual:
		return strings.TrimSpace(input) == strings.TrimSpace(c.Str)
	default:
		return false
	}
}

// isUnsignedDigits reports whether s is one or more decimal digits
// and nothing else. Spec §9 Open Question 4: Type Int rejects a
// leading sign, so "-5" is not an Int.
func isUnsignedDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
