package mal

import (
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestSession(t *testing.T, dir string) *Session {
	t.Helper()
	j, err := OpenFileJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSession(j, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return s
}

func request(t *testing.T, s *Session, msg map[string]any) map[string]any {
	t.Helper()
	if _, ok := msg["id"]; !ok {
		msg["id"] = NextID()
	}
	resp := s.handleRequest(msg)
	if resp["id"] != msg["id"] {
		t.Fatalf("response id %v does not echo request id %v", resp["id"], msg["id"])
	}
	return resp
}

func mustOK(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	if resp["ok"] != true {
		t.Fatalf("expected ok response, got %v", resp)
	}
	return resp
}

func TestSessionEval(t *testing.T) {
	s := newTestSession(t, t.TempDir())

	resp := mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(define x 40) (add x 2)"}))
	if resp["printed"] != "42" {
		t.Fatalf("expected printed 42, got %v", resp["printed"])
	}
	if resp["value"] != int64(42) {
		t.Fatalf("expected value 42, got %#v", resp["value"])
	}

	resp = mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "x"}))
	if resp["printed"] != "40" {
		t.Fatalf("definitions must persist between requests, got %v", resp["printed"])
	}
}

func TestSessionEvalFunctionValue(t *testing.T) {
	s := newTestSession(t, t.TempDir())
	resp := mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(fn* (a) a)"}))
	printed, _ := resp["printed"].(string)
	if resp["value"] != printed || !strings.HasPrefix(printed, "<fn") {
		t.Fatalf("functions should fall back to printed form, got %v", resp)
	}
}

func TestSessionEvalErrors(t *testing.T) {
	s := newTestSession(t, t.TempDir())

	resp := request(t, s, map[string]any{"op": "eval"})
	if resp["ok"] != false {
		t.Fatalf("expected missing expr error, got %v", resp)
	}

	resp = request(t, s, map[string]any{"op": "eval", "expr": "(add 1"})
	if resp["ok"] != false || resp["incomplete"] != true {
		t.Fatalf("expected incomplete parse error, got %v", resp)
	}

	resp = request(t, s, map[string]any{"op": "eval", "expr": ")"})
	if resp["ok"] != false || resp["incomplete"] != false {
		t.Fatalf("expected terminal parse error, got %v", resp)
	}

	resp = request(t, s, map[string]any{"op": "eval", "expr": "(undefined-thing)"})
	errMsg, _ := resp["error"].(string)
	if resp["ok"] != false || !strings.Contains(errMsg, "undefined-thing") {
		t.Fatalf("expected undefined symbol error, got %v", resp)
	}
}

func TestSessionUnknownOp(t *testing.T) {
	s := newTestSession(t, t.TempDir())
	resp := request(t, s, map[string]any{"op": "frobnicate"})
	if resp["ok"] != false {
		t.Fatalf("expected error for unknown op, got %v", resp)
	}
}

func TestSessionManual(t *testing.T) {
	s := newTestSession(t, t.TempDir())
	resp := mustOK(t, request(t, s, map[string]any{}))
	value, _ := resp["value"].(map[string]any)
	builtins, _ := value["builtins"].([]string)
	found := false
	for _, b := range builtins {
		if b == "traces" {
			found = true
		}
	}
	if !found {
		t.Fatalf("manual should list the traces native, got %v", builtins)
	}
}

func TestSessionDefineOp(t *testing.T) {
	s := newTestSession(t, t.TempDir())

	mustOK(t, request(t, s, map[string]any{"op": "define", "name": "inc", "expr": "(fn* (n) (add n 1))"}))
	resp := mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(inc 41)"}))
	if resp["printed"] != "42" {
		t.Fatalf("expected 42, got %v", resp["printed"])
	}

	resp = request(t, s, map[string]any{"op": "define", "name": "bad", "expr": "(nope)"})
	if resp["ok"] != false {
		t.Fatalf("expected define error, got %v", resp)
	}
	resp = request(t, s, map[string]any{"op": "define", "expr": "1"})
	if resp["ok"] != false {
		t.Fatalf("expected missing name error, got %v", resp)
	}
}

func TestSessionJournalReplay(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, dir)

	mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": `(define greeting "hi") (define twice (fn* (s) (str s s)))`}))
	mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(twice greeting)"}))
	// The first define is kept even though a later form fails.
	request(t, s, map[string]any{"op": "eval", "expr": "(define kept 1) (define lost (missing))"})

	restarted := newTestSession(t, dir)
	resp := mustOK(t, request(t, restarted, map[string]any{"op": "eval", "expr": "(twice greeting)"}))
	if resp["printed"] != `"hihi"` {
		t.Fatalf("expected replayed definitions, got %v", resp["printed"])
	}
	if _, ok := restarted.Env().Lookup("kept"); !ok {
		t.Fatal("expected kept to survive replay")
	}
	if _, ok := restarted.Env().Lookup("lost"); ok {
		t.Fatal("failed define must not be journaled")
	}
}

func TestSessionTraces(t *testing.T) {
	s := newTestSession(t, t.TempDir())

	request(t, s, map[string]any{"op": "eval", "expr": "(add 1 1)"})
	request(t, s, map[string]any{"op": "eval", "expr": "(boom)"})
	request(t, s, map[string]any{"op": "eval", "expr": "(add 2 2)"})

	resp := mustOK(t, request(t, s, map[string]any{"op": "traces", "n": float64(2)}))
	entries, _ := resp["value"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected 2 traces, got %v", resp["value"])
	}
	first := entries[0].(map[string]any)
	if first["input"] != "(boom)" || first["error"] == nil {
		t.Fatalf("expected failing trace first, got %v", first)
	}
	second := entries[1].(map[string]any)
	if second["result"] != "4" {
		t.Fatalf("expected result 4, got %v", second)
	}

	resp = mustOK(t, request(t, s, map[string]any{"op": "traces", "n": float64(-3)}))
	if entries, _ := resp["value"].([]any); len(entries) != 0 {
		t.Fatalf("negative n should return no traces, got %v", entries)
	}
}

func TestSessionTracesNative(t *testing.T) {
	s := newTestSession(t, t.TempDir())

	request(t, s, map[string]any{"op": "eval", "expr": "(add 20 22)"})
	resp := mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(first (traces 1))"}))
	printed, _ := resp["printed"].(string)
	if !strings.HasPrefix(printed, `(:input "(add 20 22)" :result 42 :error nil :timestamp "`) {
		t.Fatalf("unexpected trace plist: %v", resp["printed"])
	}

	resp = mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(count (traces))"}))
	if resp["printed"] != "2" {
		t.Fatalf("expected 2 traces, got %v", resp["printed"])
	}

	resp = request(t, s, map[string]any{"op": "eval", "expr": "(traces 1 2)"})
	if resp["ok"] != false {
		t.Fatalf("expected arity error, got %v", resp)
	}
	resp = request(t, s, map[string]any{"op": "eval", "expr": `(traces "x")`})
	if resp["ok"] != false {
		t.Fatalf("expected type error, got %v", resp)
	}
}

func TestSessionClear(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, dir)

	mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(define x 1)"}))
	mustOK(t, request(t, s, map[string]any{"op": "clear"}))

	resp := request(t, s, map[string]any{"op": "eval", "expr": "x"})
	if resp["ok"] != false {
		t.Fatalf("x should be gone after clear, got %v", resp)
	}
	if _, ok := s.Env().Lookup("traces"); !ok {
		t.Fatal("fresh root must still carry the traces native")
	}

	restarted := newTestSession(t, dir)
	if _, ok := restarted.Env().Lookup("x"); ok {
		t.Fatal("clear must reset the journal")
	}
}

func TestSessionOverSocket(t *testing.T) {
	s := newTestSession(t, t.TempDir())
	sock := filepath.Join(t.TempDir(), "mal.sock")
	if err := s.Listen(sock); err != nil {
		t.Fatal(err)
	}
	go s.Run()
	defer s.Shutdown()

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	for _, expr := range []string{"(define sq (fn* (n) (mul n n)))", "(sq 9)"} {
		if err := WriteMsg(conn, map[string]any{"id": NextID(), "op": "eval", "expr": expr}); err != nil {
			t.Fatal(err)
		}
		resp, err := ReadMsg(conn)
		if err != nil {
			t.Fatal(err)
		}
		if resp["ok"] != true {
			t.Fatalf("eval %q failed: %v", expr, resp)
		}
		if expr == "(sq 9)" && resp["value"] != float64(81) {
			t.Fatalf("expected 81 over the wire, got %#v", resp["value"])
		}
	}
}

func TestSessionJournalsNestedAndExpandedDefines(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, dir)

	mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(do (define y 1))"}))
	mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(define defn (macro* (name params body) (list 'define name (list 'fn* params body))))"}))
	mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(defn inc (n) (add n y))"}))
	mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(define x (inc y))"}))
	mustOK(t, request(t, s, map[string]any{"op": "eval", "expr": "(let* (local 1) (define scratch local))"}))

	restarted := newTestSession(t, dir)
	resp := mustOK(t, request(t, restarted, map[string]any{"op": "eval", "expr": "(list y x (inc 10))"}))
	if resp["printed"] != "(1 2 11)" {
		t.Fatalf("expected (1 2 11) after restart, got %v", resp["printed"])
	}

	entries, err := restarted.journal.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("only root-binding forms should be journaled, got %q", entries)
	}
}

func TestSessionDefineRejectsUnreadableNames(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, dir)

	for _, name := range []string{"123", "a b", "", ":kw", "(x)", "nil", "true"} {
		resp := request(t, s, map[string]any{"op": "define", "name": name, "expr": "5"})
		if resp["ok"] != false {
			t.Fatalf("define with name %q should fail, got %v", name, resp)
		}
	}
	mustOK(t, request(t, s, map[string]any{"op": "define", "name": "five", "expr": "5"}))

	restarted := newTestSession(t, dir)
	resp := mustOK(t, request(t, restarted, map[string]any{"op": "eval", "expr": "five"}))
	if resp["printed"] != "5" {
		t.Fatalf("expected five = 5 after restart, got %v", resp["printed"])
	}
}

func TestSessionStartsWithDamagedJournal(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenFileJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	j.Append("(define x y)")
	j.Append("(define z 3)")
	j.Close()

	s := newTestSession(t, dir)
	if _, ok := s.Env().Lookup("x"); ok {
		t.Fatal("x should not be bound from a failing entry")
	}
	if v, ok := s.Env().Lookup("z"); !ok || !ValuesEqual(v, IntVal(3)) {
		t.Fatalf("expected z = 3, got %v", v)
	}
}

func TestSessionShutdownWithOpenClient(t *testing.T) {
	s := newTestSession(t, t.TempDir())
	sock := filepath.Join(t.TempDir(), "mal.sock")
	if err := s.Listen(sock); err != nil {
		t.Fatal(err)
	}
	go s.Run()

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := WriteMsg(conn, map[string]any{"id": NextID(), "op": "eval", "expr": "(define a 1)"}); err != nil {
		t.Fatal(err)
	}
	if resp, err := ReadMsg(conn); err != nil || resp["ok"] != true {
		t.Fatalf("eval before shutdown failed: %v %v", resp, err)
	}

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return with a client still connected")
	}

	if _, err := ReadMsg(conn); err == nil {
		t.Fatal("expected the server side of the connection to be closed")
	}
}
