package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/ehrlich-b/scriptbot/internal/engine"
	"github.com/ehrlich-b/scriptbot/internal/ir"
	"github.com/ehrlich-b/scriptbot/internal/lang"
	"github.com/ehrlich-b/scriptbot/internal/session"
	"github.com/ehrlich-b/scriptbot/internal/store"
)

const testScript = `
Variable $name Text ""

State Welcome
Speak "hello"
Speak "say balance, rename or exit"
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
	Speak "idle, returning to welcome"
	Goto Welcome

State Greet Verified
Speak "hello " + $name
Case "exit"
	Exit
Default
	Speak "unrecognized"
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	prog, err := lang.Parse("test.txt", testScript)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	graph, schema, err := ir.Build(prog)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	dsn := filepath.Join(t.TempDir(), "vars.db")
	st, err := store.Open(dsn, true)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Init(context.Background(), schema); err != nil {
		t.Fatalf("init store: %v", err)
	}

	reg := session.New(st, []byte("test-signing-key"), 0)
	t.Cleanup(reg.Close)

	m := engine.New(graph, st)
	srv := New(reg, m)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, ts *httptest.Server, path string, query url.Values, out any) *http.Response {
	t.Helper()
	u := ts.URL + path
	if query != nil {
		u += "?" + query.Encode()
	}
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp
}

func TestConnectAndSendAndBadToken(t *testing.T) {
	ts := newTestServer(t)

	var welcome connectResponse
	resp := getJSON(t, ts, "/", nil, &welcome)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	if len(welcome.Msg) != 2 || welcome.Token == "" {
		t.Fatalf("unexpected welcome response: %+v", welcome)
	}

	resp = getJSON(t, ts, "/send", url.Values{"msg": {"x"}, "token": {""}}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("empty token: status = %d, want 403", resp.StatusCode)
	}

	resp = getJSON(t, ts, "/send", url.Values{"msg": {"x"}}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing token: status = %d, want 400", resp.StatusCode)
	}
}

func TestLoginGatedGoto(t *testing.T) {
	ts := newTestServer(t)

	var welcome connectResponse
	getJSON(t, ts, "/", nil, &welcome)
	token := welcome.Token

	var send sendResponse
	resp := getJSON(t, ts, "/send", url.Values{"msg": {"rename"}, "token": {token}}, &send)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated rename: status = %d, want 401", resp.StatusCode)
	}

	var reg tokenResponse
	resp = getJSON(t, ts, "/register", url.Values{"username": {"test1"}, "passwd": {"test1"}, "token": {token}}, &reg)
	if resp.StatusCode != http.StatusOK || reg.Token == nil {
		t.Fatalf("register failed: status=%d token=%v", resp.StatusCode, reg.Token)
	}

	resp = getJSON(t, ts, "/send", url.Values{"msg": {"rename"}, "token": {*reg.Token}}, &send)
	if resp.StatusCode != http.StatusOK || send.Exit {
		t.Fatalf("rename after register: status=%d send=%+v", resp.StatusCode, send)
	}
	if len(send.Msg) != 1 {
		t.Fatalf("expected one reply entering ChangeName, got %+v", send.Msg)
	}
}

func TestCopyIntoTextAndGreetNewState(t *testing.T) {
	ts := newTestServer(t)

	var welcome connectResponse
	getJSON(t, ts, "/", nil, &welcome)

	var reg tokenResponse
	getJSON(t, ts, "/register", url.Values{"username": {"test1"}, "passwd": {"test1"}, "token": {welcome.Token}}, &reg)
	token := *reg.Token

	var send sendResponse
	getJSON(t, ts, "/send", url.Values{"msg": {"rename"}, "token": {token}}, &send)

	resp := getJSON(t, ts, "/send", url.Values{"msg": {"测试用户"}, "token": {token}}, &send)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(send.Msg) != 2 {
		t.Fatalf("expected name-set speak + greet hello, got %+v", send.Msg)
	}
	if send.Msg[1] != "hello 测试用户" {
		t.Fatalf("unexpected greet: %q", send.Msg[1])
	}
}

func TestExitTerminatesSession(t *testing.T) {
	ts := newTestServer(t)

	var welcome connectResponse
	getJSON(t, ts, "/", nil, &welcome)

	var send sendResponse
	resp := getJSON(t, ts, "/send", url.Values{"msg": {"exit"}, "token": {welcome.Token}}, &send)
	if resp.StatusCode != http.StatusOK || !send.Exit {
		t.Fatalf("exit: status=%d send=%+v", resp.StatusCode, send)
	}

	resp = getJSON(t, ts, "/send", url.Values{"msg": {"anything"}, "token": {welcome.Token}}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("post-exit request: status = %d, want 403", resp.StatusCode)
	}
}

func TestEchoTimeoutTransition(t *testing.T) {
	ts := newTestServer(t)

	var welcome connectResponse
	getJSON(t, ts, "/", nil, &welcome)

	var reg tokenResponse
	getJSON(t, ts, "/register", url.Values{"username": {"test2"}, "passwd": {"test2"}, "token": {welcome.Token}}, &reg)
	token := *reg.Token

	var send sendResponse
	getJSON(t, ts, "/send", url.Values{"msg": {"rename"}, "token": {token}}, &send)

	var echo echoResponse
	resp := getJSON(t, ts, "/echo", url.Values{"seconds": {"60"}, "token": {token}}, &echo)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("echo status = %d", resp.StatusCode)
	}
	if echo.Exit || echo.Reset {
		t.Fatalf("unexpected echo flags: %+v", echo)
	}
	if len(echo.Msg) < 2 {
		t.Fatalf("expected timeout speak + welcome's greeting, got %+v", echo.Msg)
	}
}
