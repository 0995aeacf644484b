package engine

import (
	"context"
	"testing"

	"github.com/ehrlich-b/scriptbot/internal/ir"
	"github.com/ehrlich-b/scriptbot/internal/lang"
)

const referenceScript = `
Variable $name Text ""

State Welcome
Speak "您好"
Speak "输入 余额 以查看余额，输入 退出 以退出"
Case "余额"
	Speak "您的余额为 0"
Case "退出"
	Exit
Case "改名"
	Goto ChangeName
Default
	Speak "无法识别的输入"

State ChangeName Verified
Speak "请输入您的新名字，不超过30个字符"
Case Length <= 30
	Update $name Set Copy
	Speak "您的新名字为" + Copy
	Goto Greet
Default
	Speak "名字过长，请重新输入"
Timeout 60
	Speak "您已经很久没有操作了，即将返回主菜单"
	Goto Welcome

State Greet Verified
Speak "你好，" + $name
Case "退出"
	Exit
Default
	Speak "无法识别的输入"
`

type memSession struct {
	stateIndex int
	loggedIn   bool
	username   string
	idle       int
}

func (s *memSession) StateIndex() int          { return s.stateIndex }
func (s *memSession) SetStateIndex(i int)      { s.stateIndex = i }
func (s *memSession) LoggedIn() bool           { return s.loggedIn }
func (s *memSession) Username() string         { return s.username }
func (s *memSession) LastIdleSeconds() int     { return s.idle }
func (s *memSession) SetLastIdleSeconds(i int) { s.idle = i }

type memStore struct {
	rows map[string]map[string]ir.Literal
}

func newMemStore() *memStore { return &memStore{rows: map[string]map[string]ir.Literal{}} }

func (s *memStore) Read(_ context.Context, username, varName string) (ir.Literal, error) {
	return s.rows[username][varName], nil
}

func (s *memStore) Write(_ context.Context, username, varName, op string, value ir.Literal) error {
	if s.rows[username] == nil {
		s.rows[username] = map[string]ir.Literal{}
	}
	s.rows[username][varName] = value
	return nil
}

func buildReference(t *testing.T) (*ir.StateGraph, *ir.VariableSchema) {
	t.Helper()
	prog, err := lang.Parse("reference.txt", referenceScript)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	g, schema, err := ir.Build(prog)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g, schema
}

func TestHelloAtWelcome(t *testing.T) {
	g, _ := buildReference(t)
	m := New(g, newMemStore())
	sess := &memSession{stateIndex: 0, username: "Guest_1"}
	replies, err := m.Hello(context.Background(), sess)
	if err != nil {
		t.Fatalf("Hello failed: %v", err)
	}
	want := []string{"您好", "输入 余额 以查看余额，输入 退出 以退出"}
	if len(replies) != len(want) || replies[0] != want[0] || replies[1] != want[1] {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

// S2/S3: a verified Goto into ChangeName requires login; once logged
// in, Case Length <= 30 captures the input via Copy, greets the new
// name, and transitions into Greet, whose onEnter reads $name back
// from the store.
func TestLoginGatedBranchAndCopyIntoTextAndGreet(t *testing.T) {
	g, _ := buildReference(t)
	store := newMemStore()
	m := New(g, store)

	sess := &memSession{stateIndex: 0, username: "Guest_1", loggedIn: false}
	_, exited, err := m.OnMessage(context.Background(), sess, "改名")
	if err == nil {
		t.Fatalf("expected LoginError for 改名 while not logged in")
	}
	if exited {
		t.Fatalf("should not report exited on a failed Goto")
	}

	sess.loggedIn = true
	sess.username = "test1"
	replies, exited, err := m.OnMessage(context.Background(), sess, "改名")
	if err != nil {
		t.Fatalf("OnMessage(改名) failed once logged in: %v", err)
	}
	if exited {
		t.Fatalf("did not expect exit")
	}
	if len(replies) != 1 || replies[0] != "请输入您的新名字，不超过30个字符" {
		t.Fatalf("unexpected replies entering ChangeName: %+v", replies)
	}

	replies, exited, err = m.OnMessage(context.Background(), sess, "测试用户")
	if err != nil {
		t.Fatalf("OnMessage(测试用户) failed: %v", err)
	}
	if exited {
		t.Fatalf("did not expect exit")
	}
	want := []string{"您的新名字为测试用户", "你好，测试用户"}
	if len(replies) != len(want) || replies[0] != want[0] || replies[1] != want[1] {
		t.Fatalf("unexpected replies: %+v", replies)
	}

	got := store.rows["test1"]["name"]
	if got.Kind != ir.LitText || got.Text != "测试用户" {
		t.Fatalf("unexpected stored $name: %+v", got)
	}
}

func TestExitTerminates(t *testing.T) {
	g, _ := buildReference(t)
	m := New(g, newMemStore())
	sess := &memSession{stateIndex: 0, username: "Guest_1"}
	_, exited, err := m.OnMessage(context.Background(), sess, "退出")
	if err != nil {
		t.Fatalf("OnMessage(退出) failed: %v", err)
	}
	if !exited {
		t.Fatalf("expected exited=true")
	}
	if sess.StateIndex() != -1 {
		t.Fatalf("expected terminal state index -1, got %d", sess.StateIndex())
	}
}

func TestOnTimeoutFiresThresholdAndAppendsHello(t *testing.T) {
	g, _ := buildReference(t)
	m := New(g, newMemStore())
	changeIdx, ok := g.IndexOf("ChangeName")
	if !ok {
		t.Fatalf("expected ChangeName in graph")
	}
	sess := &memSession{stateIndex: changeIdx, username: "test1", loggedIn: true}

	replies, exited, moved, err := m.OnTimeout(context.Background(), sess, 60)
	if err != nil {
		t.Fatalf("OnTimeout failed: %v", err)
	}
	if exited {
		t.Fatalf("did not expect exit")
	}
	if !moved {
		t.Fatalf("expected moved=true")
	}
	want := []string{"您已经很久没有操作了，即将返回主菜单", "您好", "输入 余额 以查看余额，输入 退出 以退出"}
	if len(replies) != len(want) {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	for i := range want {
		if replies[i] != want[i] {
			t.Fatalf("unexpected replies: %+v", replies)
		}
	}
	if sess.StateIndex() != 0 {
		t.Fatalf("expected Welcome (index 0) after timeout Goto, got %d", sess.StateIndex())
	}
}

func TestOnTimeoutNoThresholdReachedYet(t *testing.T) {
	g, _ := buildReference(t)
	m := New(g, newMemStore())
	changeIdx, _ := g.IndexOf("ChangeName")
	sess := &memSession{stateIndex: changeIdx, username: "test1", loggedIn: true}

	replies, exited, moved, err := m.OnTimeout(context.Background(), sess, 30)
	if err != nil {
		t.Fatalf("OnTimeout failed: %v", err)
	}
	if exited || moved {
		t.Fatalf("expected no transition at 30s (threshold is 60s)")
	}
	if len(replies) != 0 {
		t.Fatalf("expected no replies, got %+v", replies)
	}
}

func TestFirstMatchingCaseWins(t *testing.T) {
	// property 6: the first matching case consumes the message; later
	// clauses and the default are not evaluated.
	src := `State Welcome
Speak "hi"
Case Length > 0
	Speak "first"
Case "x"
	Speak "second"
Default
	Speak "default"
`
	prog, err := lang.Parse("order.txt", src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	g, _, err := ir.Build(prog)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	m := New(g, newMemStore())
	sess := &memSession{stateIndex: 0, username: "Guest_1"}
	replies, _, err := m.OnMessage(context.Background(), sess, "x")
	if err != nil {
		t.Fatalf("OnMessage failed: %v", err)
	}
	if len(replies) == 0 || replies[0] != "first" {
		t.Fatalf("expected the first matching case ('first') to win, got %+v", replies)
	}
}
