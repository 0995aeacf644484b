package lang

import (
	"strings"
	"testing"
)

const sampleScript = `
Variable $name Text ""

State Welcome
Speak "hello"
Speak "say balance or exit"
Case "balance"
	Speak "your balance is 0"
Case "exit"
	Exit
Case "rename"
	Goto ChangeName
Default
	Speak "unrecognized"

State ChangeName Verified
Speak "enter your new name, 30 chars max"
Case Length <= 30
	Update $name Set Copy
	Speak "your new name is" + Copy
	Goto Greet
Default
	Speak "name too long"
Timeout 60
	Speak "session timed out"
	Goto Welcome

State Greet Verified
Speak "hello " + $name
Case "exit"
	Exit
Default
	Speak "unrecognized"
`

func TestParseSampleScript(t *testing.T) {
	prog, err := Parse("sample.txt", sampleScript)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(prog.Variables) != 1 || len(prog.Variables[0].Clauses) != 1 {
		t.Fatalf("expected one variable clause, got %+v", prog.Variables)
	}
	vc := prog.Variables[0].Clauses[0]
	if vc.Name != "name" || vc.Type != "Text" {
		t.Fatalf("unexpected variable clause: %+v", vc)
	}
	if len(prog.States) != 3 {
		t.Fatalf("expected 3 states, got %d", len(prog.States))
	}
	welcome := prog.States[0]
	if welcome.Name != "Welcome" || welcome.Verified {
		t.Fatalf("unexpected Welcome state: %+v", welcome)
	}
	if len(welcome.Cases) != 3 {
		t.Fatalf("expected 3 cases in Welcome, got %d", len(welcome.Cases))
	}
	if welcome.Cases[1].Actions[0].Kind != ActExit {
		t.Fatalf("expected exit case action")
	}
	if welcome.Cases[2].Actions[0].Kind != ActGoto || welcome.Cases[2].Actions[0].Target != "ChangeName" {
		t.Fatalf("expected goto ChangeName action, got %+v", welcome.Cases[2].Actions)
	}

	changeName := prog.States[1]
	if !changeName.Verified {
		t.Fatalf("expected ChangeName to be Verified")
	}
	if len(changeName.Cases) != 1 || changeName.Cases[0].Condition.Kind != CondLength {
		t.Fatalf("unexpected ChangeName case: %+v", changeName.Cases)
	}
	cond := changeName.Cases[0].Condition
	if cond.LengthOp != "<=" || cond.LengthN != 30 {
		t.Fatalf("unexpected length condition: %+v", cond)
	}
	actions := changeName.Cases[0].Actions
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions in ChangeName case, got %d: %+v", len(actions), actions)
	}
	if actions[0].Kind != ActUpdate || actions[0].Var != "name" || actions[0].Op != "Set" || !actions[0].ValueIsCopy {
		t.Fatalf("unexpected update action: %+v", actions[0])
	}
	if actions[1].Kind != ActSpeak || len(actions[1].Parts) != 2 || actions[1].Parts[1].Kind != SpeakCopy {
		t.Fatalf("unexpected speak-with-copy action: %+v", actions[1])
	}
	if actions[2].Kind != ActGoto || actions[2].Target != "Greet" {
		t.Fatalf("unexpected trailing goto: %+v", actions[2])
	}
	if len(changeName.Timeouts) != 1 || changeName.Timeouts[0].Seconds != 60 {
		t.Fatalf("unexpected timeout clause: %+v", changeName.Timeouts)
	}
	if changeName.Timeouts[0].Actions[len(changeName.Timeouts[0].Actions)-1].Kind != ActGoto {
		t.Fatalf("expected timeout to end in Goto")
	}

	greet := prog.States[2]
	if len(greet.OnEnter) != 1 || len(greet.OnEnter[0].Parts) != 2 || greet.OnEnter[0].Parts[1].Kind != SpeakVar {
		t.Fatalf("unexpected Greet onEnter: %+v", greet.OnEnter)
	}
}

func TestParseVariableDefs(t *testing.T) {
	src := `Variable $age Int 0 $balance Real 0.0 $name Text "guest"
State Welcome
Speak "hi"
Default
	Speak "ok"
`
	prog, err := Parse("vars.txt", src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	clauses := prog.Variables[0].Clauses
	if len(clauses) != 3 {
		t.Fatalf("expected 3 clauses, got %d", len(clauses))
	}
	if clauses[0].Type != "Int" || clauses[0].Default.Int != 0 {
		t.Fatalf("unexpected int clause: %+v", clauses[0])
	}
	if clauses[1].Type != "Real" || clauses[1].Default.Real != 0.0 {
		t.Fatalf("unexpected real clause: %+v", clauses[1])
	}
	if clauses[2].Type != "Text" || clauses[2].Default.Text != "guest" {
		t.Fatalf("unexpected text clause: %+v", clauses[2])
	}
}

func TestParseSignedNumericLiterals(t *testing.T) {
	src := `Variable $balance Real +5.5
State Welcome
Speak "hi"
Default
	Update $balance Add +1.0
`
	prog, err := Parse("signed.txt", src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if prog.Variables[0].Clauses[0].Default.Real != 5.5 {
		t.Fatalf("unexpected default: %+v", prog.Variables[0].Clauses[0].Default)
	}
	act := prog.States[0].Default.Actions[0]
	if act.Kind != ActUpdate || act.Op != "Add" || act.Value.Real != 1.0 {
		t.Fatalf("unexpected update action: %+v", act)
	}
}

func TestParseRejectsMissingDefault(t *testing.T) {
	src := `State Welcome
Speak "hi"
Case "x"
	Exit
`
	_, err := Parse("nodefault.txt", src)
	if err == nil {
		t.Fatalf("expected a GrammarError for a state with no Default clause")
	}
	if !strings.Contains(err.Error(), "Default") {
		t.Fatalf("expected error to mention Default, got: %v", err)
	}
}

func TestParseRejectsCopyInStateEnterSpeak(t *testing.T) {
	src := `State Welcome
Speak Copy
Default
	Exit
`
	_, err := Parse("copy_in_enter.txt", src)
	if err == nil {
		t.Fatalf("expected a GrammarError: Copy is not valid in a state-enter Speak")
	}
}

func TestParseRejectsCopyInTimeoutSpeak(t *testing.T) {
	src := `State Welcome
Speak "hi"
Default
	Exit
Timeout 5
	Speak Copy
`
	_, err := Parse("copy_in_timeout.txt", src)
	if err == nil {
		t.Fatalf("expected a GrammarError: Copy is not valid in a Timeout Speak")
	}
}

func TestParseRejectsUnknownVariableType(t *testing.T) {
	src := `Variable $x Bool true
State Welcome
Speak "hi"
Default
	Exit
`
	_, err := Parse("badtype.txt", src)
	if err == nil {
		t.Fatalf("expected a GrammarError for an unsupported variable type")
	}
}

func TestParseRejectsUnterminatedString(t *testing.T) {
	src := `State Welcome
Speak "hi
Default
	Exit
`
	_, err := Parse("unterminated.txt", src)
	if err == nil {
		t.Fatalf("expected a GrammarError for an unterminated string literal")
	}
	if !strings.Contains(err.Error(), "unterminated.txt") {
		t.Fatalf("expected error context to include the file name, got: %v", err)
	}
}

func TestParseRejectsReservedWordAsStateName(t *testing.T) {
	src := `State Verified
Speak "hi"
Default
	Exit
`
	_, err := Parse("reserved.txt", src)
	if err == nil {
		t.Fatalf("expected a GrammarError for using a reserved word as a state name")
	}
}

func TestParseRejectsGibberish(t *testing.T) {
	_, err := Parse("gibberish.txt", "this is not a script at all")
	if err == nil {
		t.Fatalf("expected a GrammarError for unparseable input")
	}
}

func TestParseFilesConcatenates(t *testing.T) {
	files := map[string]string{
		"a.txt": "Variable $x Int 0\n",
		"b.txt": "State Welcome\nSpeak \"hi\"\nDefault\n\tExit\n",
	}
	prog, err := ParseFiles([]string{"a.txt", "b.txt"}, func(name string) (string, error) {
		return files[name], nil
	})
	if err != nil {
		t.Fatalf("ParseFiles failed: %v", err)
	}
	if len(prog.Variables) != 1 || len(prog.States) != 1 {
		t.Fatalf("unexpected concatenation: %+v", prog)
	}
}
