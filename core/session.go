package mal

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

// Session owns one root environment and evaluates requests against it. All
// evaluation runs on the actor goroutine, so the environment is never touched
// concurrently even with many clients connected.
type Session struct {
	env       *Env
	journal   Journal
	requests  chan sessionRequest
	listener  net.Listener
	traces    []Trace
	maxTraces int

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup // live connection handlers
}

type sessionRequest struct {
	msg      map[string]any
	response chan map[string]any
}

// NewSession builds a root environment, replays journal into it and returns
// a session that has not started listening yet.
func NewSession(journal Journal, maxTraces int) (*Session, error) {
	if maxTraces <= 0 {
		maxTraces = 1000
	}
	s := &Session{
		journal:   journal,
		requests:  make(chan sessionRequest, 64),
		conns:     make(map[net.Conn]struct{}),
		maxTraces: maxTraces,
	}
	s.env = s.newRoot()
	n, err := Replay(journal, s.env)
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}
	if n > 0 {
		log.Printf("replayed %d journal entries", n)
	}
	return s, nil
}

func (s *Session) newRoot() *Env {
	env := NewStdEnv()
	env.DefineNative("traces", []string{"n..."}, s.builtinTraces)
	return env
}

// Env exposes the session's root frame.
func (s *Session) Env() *Env {
	return s.env
}

// Listen opens the unix socket clients connect to, replacing a stale one.
func (s *Session) Listen(sockPath string) error {
	os.Remove(sockPath)
	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = listener
	return nil
}

// Run starts the actor goroutine and accepts connections. Blocks until the
// listener is closed.
func (s *Session) Run() {
	go s.actorLoop()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		go func() {
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

func (s *Session) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Session) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Shutdown stops accepting clients, closes the open connections and waits
// for their handlers before stopping the actor and closing the journal.
func (s *Session) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	s.closing = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	close(s.requests)
	if err := s.journal.Close(); err != nil {
		log.Printf("close journal: %v", err)
	}
}

// actorLoop is the single goroutine that owns the environment.
func (s *Session) actorLoop() {
	for req := range s.requests {
		req.response <- s.handleRequest(req.msg)
	}
}

func (s *Session) sendToActor(msg map[string]any) map[string]any {
	resp := make(chan map[string]any, 1)
	s.requests <- sessionRequest{msg: msg, response: resp}
	return <-resp
}

func (s *Session) handleConnection(conn net.Conn) {
	defer conn.Close()

	for {
		msg, err := ReadMsg(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Printf("read client message: %v", err)
			}
			return
		}

		resp := s.sendToActor(msg)
		if err := WriteMsg(conn, resp); err != nil {
			log.Printf("write client response: %v", err)
			return
		}
	}
}

func (s *Session) handleRequest(msg map[string]any) map[string]any {
	id, _ := msg["id"].(string)

	op, _ := msg["op"].(string)
	switch op {
	case "":
		return s.manual(id)
	case "eval":
		return s.handleEval(id, msg)
	case "define":
		return s.handleDefine(id, msg)
	case "traces":
		return s.handleTraces(id, msg)
	case "clear":
		return s.handleClear(id)
	default:
		return errorResponse(id, fmt.Sprintf("unknown op: %s", op))
	}
}

func (s *Session) manual(id string) map[string]any {
	return map[string]any{
		"id": id,
		"ok": true,
		"value": map[string]any{
			"name": "mal-session",
			"ops": map[string]any{
				"eval":   "Evaluate source text. Params: expr (string)",
				"define": "Bind a name in the root environment. Params: name (string), expr (string)",
				"traces": "Recent evaluations. Params: n (number, optional)",
				"clear":  "Reset the root environment, journal and traces.",
			},
			"builtins": s.env.Names(),
			"forms": []any{
				"define", "let*", "do", "if", "fn*", "macro*",
				"quote", "quasiquote", "macroexpand",
			},
		},
	}
}

func (s *Session) handleEval(id string, msg map[string]any) map[string]any {
	expr, ok := msg["expr"].(string)
	if !ok {
		return errorResponse(id, "eval: missing 'expr' string")
	}
	forms, err := ReadAll(expr)
	if err != nil {
		s.appendTrace(&Trace{Input: expr, Error: err.Error(), Timestamp: now()})
		resp := errorResponse(id, fmt.Sprintf("parse error: %s", err))
		resp["incomplete"] = IsIncomplete(err)
		return resp
	}
	return s.evalForms(id, expr, forms)
}

func (s *Session) handleDefine(id string, msg map[string]any) map[string]any {
	name, ok := msg["name"].(string)
	if !ok {
		return errorResponse(id, "define: missing 'name' string")
	}
	expr, ok := msg["expr"].(string)
	if !ok {
		return errorResponse(id, "define: missing 'expr' string")
	}
	if sym, err := ReadStr(name); err != nil || sym.Kind != ValSymbol || sym.Str != name {
		return errorResponse(id, fmt.Sprintf("define: invalid name %q", name))
	}
	body, err := ReadStr(expr)
	if err != nil {
		return errorResponse(id, fmt.Sprintf("parse error: %s", err))
	}
	form := ListVal([]Value{SymbolVal("define"), SymbolVal(name), body})
	return s.evalForms(id, form.String(), []Value{form})
}

// evalForms evaluates forms in order against the root environment. Each
// successful top-level form that changed a root binding is journaled as soon
// as it succeeds, so an error in a later form does not lose earlier
// definitions. That covers defines nested in do and defines produced by macro
// expansion.
func (s *Session) evalForms(id, input string, forms []Value) map[string]any {
	trace := &Trace{Input: input, Timestamp: now()}
	result := NilVal()
	for _, form := range forms {
		before := s.env.snapshot()
		val, err := Eval(form, s.env)
		if err != nil {
			trace.Error = err.Error()
			s.appendTrace(trace)
			return errorResponse(id, err.Error())
		}
		if s.env.changedSince(before) {
			if err := s.journal.Append(form.String()); err != nil {
				log.Printf("journal append: %v", err)
			}
		}
		result = val
	}
	trace.Result = result
	s.appendTrace(trace)

	resp := map[string]any{"id": id, "ok": true, "printed": result.String()}
	if goVal, err := ValueToGo(result); err == nil {
		resp["value"] = goVal
	} else {
		resp["value"] = result.String()
	}
	return resp
}

func (s *Session) handleTraces(id string, msg map[string]any) map[string]any {
	n := len(s.traces)
	if limit, ok := msg["n"].(float64); ok && int(limit) < n {
		n = max(int(limit), 0)
	}
	out := make([]any, 0, n)
	for _, t := range s.traces[len(s.traces)-n:] {
		entry := map[string]any{"input": t.Input, "timestamp": t.Timestamp}
		if t.Error != "" {
			entry["error"] = t.Error
		} else {
			entry["result"] = t.Result.String()
		}
		out = append(out, entry)
	}
	return map[string]any{"id": id, "ok": true, "value": out}
}

func (s *Session) handleClear(id string) map[string]any {
	if err := s.journal.Reset(); err != nil {
		return errorResponse(id, err.Error())
	}
	s.env = s.newRoot()
	s.traces = nil
	return map[string]any{"id": id, "ok": true, "value": "cleared"}
}

func errorResponse(id, errMsg string) map[string]any {
	return map[string]any{"id": id, "ok": false, "error": errMsg}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// builtinTraces returns the last n traces, or all of them, as property lists.
func (s *Session) builtinTraces(env *Env) (Value, error) {
	opt, err := listArg(env, "n")
	if err != nil {
		return Value{}, err
	}
	n := len(s.traces)
	switch len(opt) {
	case 0:
	case 1:
		if opt[0].Kind != ValInt {
			return Value{}, &InvalidTypeError{Expected: "Integer", Actual: opt[0]}
		}
		if limit := int(opt[0].Int); limit < n {
			n = limit
		}
	default:
		return Value{}, &LengthMismatchError{Context: "traces", Expected: "0 or 1 args", Got: len(opt)}
	}
	if n < 0 {
		n = 0
	}

	start := len(s.traces) - n
	result := make([]Value, n)
	for i := 0; i < n; i++ {
		result[i] = s.traces[start+i].ToValue()
	}
	return ListVal(result), nil
}

// appendTrace adds a trace and enforces the maxTraces cap.
func (s *Session) appendTrace(t *Trace) {
	s.traces = append(s.traces, *t)
	if len(s.traces) > s.maxTraces {
		excess := len(s.traces) - s.maxTraces
		s.traces = s.traces[excess:]
	}
}
