package mal

import (
	"fmt"
	"strings"
)

// restSuffix marks the parameter that absorbs the remaining arguments.
const restSuffix = "..."

// Eval expands macros in expr and then evaluates it in env.
func Eval(expr Value, env *Env) (Value, error) {
	expr, err := macroExpand(expr, env)
	if err != nil {
		return Value{}, err
	}
	switch expr.Kind {
	case ValList:
		return evalList(expr, env)
	case ValSymbol:
		val, ok := env.Lookup(expr.Str)
		if !ok {
			return Value{}, &UndefinedSymbolError{Name: expr.Str}
		}
		return val, nil
	default:
		return expr, nil
	}
}

// EvalString reads every form in input and evaluates them in order,
// returning the value of the last one.
func EvalString(input string, env *Env) (Value, error) {
	forms, err := ReadAll(input)
	if err != nil {
		return Value{}, fmt.Errorf("parse error: %w", err)
	}
	result := NilVal()
	for _, form := range forms {
		result, err = Eval(form, env)
		if err != nil {
			return Value{}, err
		}
	}
	return result, nil
}

func evalList(expr Value, env *Env) (Value, error) {
	items := expr.List
	if len(items) == 0 {
		return expr, nil
	}

	if head := items[0]; head.Kind == ValSymbol {
		switch head.Str {
		case "define":
			return evalDefine(items, env)
		case "let*":
			return evalLet(items, env)
		case "do":
			return evalDo(items, env)
		case "if":
			return evalIf(items, env)
		case "fn*":
			return evalFn(items, env, FnClosure)
		case "macro*":
			return evalFn(items, env, FnMacro)
		case "quote":
			return evalQuote(items)
		case "quasiquote":
			return evalQuasiquote(items, env)
		case "macroexpand":
			return evalMacroexpand(items, env)
		}
	}

	return apply(items, env)
}

// evalElements evaluates each element left to right, stopping at the first
// error.
func evalElements(items []Value, env *Env) ([]Value, error) {
	out := make([]Value, len(items))
	for i, item := range items {
		val, err := Eval(item, env)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func apply(items []Value, env *Env) (Value, error) {
	evaluated, err := evalElements(items, env)
	if err != nil {
		return Value{}, err
	}
	head := evaluated[0]
	if head.Kind != ValFn {
		return Value{}, &NotAFunctionError{Value: head}
	}
	return Call(head.Fn, evaluated[1:])
}

// Call applies a closure or native to already evaluated arguments.
func Call(fn *FnValue, args []Value) (Value, error) {
	switch fn.Kind {
	case FnClosure:
		frame, err := bindParams(fn, args)
		if err != nil {
			return Value{}, err
		}
		return Eval(fn.Body, frame)
	case FnNative:
		frame, err := bindParams(fn, args)
		if err != nil {
			return Value{}, err
		}
		return fn.Native(frame)
	case FnMacro:
		return Value{}, ErrMacroApplication
	default:
		return Value{}, fmt.Errorf("unknown function kind: %d", fn.Kind)
	}
}

// bindParams makes a child of the callee's defining frame and binds the
// parameter list against args. A rest parameter must come last and collects
// whatever is left, possibly nothing.
func bindParams(fn *FnValue, args []Value) (*Env, error) {
	frame := NewEnv(fn.Env)
	rest := args
	for i, param := range fn.Params {
		if name, ok := strings.CutSuffix(param, restSuffix); ok {
			if i != len(fn.Params)-1 {
				return nil, &LengthMismatchError{
					Context:  fnContext(fn),
					Expected: fmt.Sprintf("rest parameter %s to be last", param),
					Got:      len(fn.Params),
				}
			}
			frame.Define(name, ListVal(rest))
			return frame, nil
		}
		if len(rest) == 0 {
			return nil, arityError(fn, len(args))
		}
		frame.Define(param, rest[0])
		rest = rest[1:]
	}
	if len(rest) > 0 {
		return nil, arityError(fn, len(args))
	}
	return frame, nil
}

func arityError(fn *FnValue, got int) error {
	return &LengthMismatchError{
		Context:  fnContext(fn),
		Expected: fmt.Sprintf("%d args", len(fn.Params)),
		Got:      got,
	}
}

func fnContext(fn *FnValue) string {
	switch fn.Kind {
	case FnNative:
		return fn.Name
	case FnMacro:
		return "macro*"
	default:
		return "fn*"
	}
}

func checkArity(form string, items []Value, want int) error {
	if len(items) != want {
		return &LengthMismatchError{Context: form, Expected: fmt.Sprintf("%d elements", want), Got: len(items)}
	}
	return nil
}

// evalDefine handles (define name expr), binding in the current frame.
func evalDefine(items []Value, env *Env) (Value, error) {
	if err := checkArity("define", items, 3); err != nil {
		return Value{}, err
	}
	if items[1].Kind != ValSymbol {
		return Value{}, &InvalidTypeError{Expected: "Symbol", Actual: items[1]}
	}
	val, err := Eval(items[2], env)
	if err != nil {
		return Value{}, err
	}
	env.Define(items[1].Str, val)
	return val, nil
}

// evalLet handles (let* (a 1 b (add a 1)) body) with sequential bindings in a fresh
// child frame.
func evalLet(items []Value, env *Env) (Value, error) {
	if err := checkArity("let*", items, 3); err != nil {
		return Value{}, err
	}
	bindings := items[1]
	if bindings.Kind != ValList {
		return Value{}, &InvalidTypeError{Expected: "List", Actual: bindings}
	}
	if len(bindings.List)%2 != 0 {
		return Value{}, &InvalidTypeError{Expected: "even-length binding list", Actual: bindings}
	}
	frame := NewEnv(env)
	for i := 0; i < len(bindings.List); i += 2 {
		name := bindings.List[i]
		if name.Kind != ValSymbol {
			return Value{}, &InvalidTypeError{Expected: "Symbol", Actual: name}
		}
		val, err := Eval(bindings.List[i+1], frame)
		if err != nil {
			return Value{}, err
		}
		frame.Define(name.Str, val)
	}
	return Eval(items[2], frame)
}

// evalDo returns the value of the last expression, nil when empty.
func evalDo(items []Value, env *Env) (Value, error) {
	result := NilVal()
	for _, item := range items[1:] {
		val, err := Eval(item, env)
		if err != nil {
			return Value{}, err
		}
		result = val
	}
	return result, nil
}

// evalIf handles (if cond then [else]). cond must be a Bool.
func evalIf(items []Value, env *Env) (Value, error) {
	if len(items) != 3 && len(items) != 4 {
		return Value{}, &LengthMismatchError{Context: "if", Expected: "3 or 4 elements", Got: len(items)}
	}
	cond, err := Eval(items[1], env)
	if err != nil {
		return Value{}, err
	}
	if cond.Kind != ValBool {
		return Value{}, &InvalidTypeError{Expected: "Bool", Actual: cond}
	}
	if cond.Bool {
		return Eval(items[2], env)
	}
	if len(items) == 4 {
		return Eval(items[3], env)
	}
	return NilVal(), nil
}

// evalFn: (fn* (params...) body) and (macro* (params...) body).
func evalFn(items []Value, env *Env, kind FnKind) (Value, error) {
	form := "fn*"
	if kind == FnMacro {
		form = "macro*"
	}
	if err := checkArity(form, items, 3); err != nil {
		return Value{}, err
	}
	params, err := paramList(form, items[1])
	if err != nil {
		return Value{}, err
	}
	return FnVal(&FnValue{
		Kind:   kind,
		Params: params,
		Body:   items[2],
		Env:    env,
	}), nil
}

func paramList(form string, raw Value) ([]string, error) {
	if raw.Kind != ValList {
		return nil, &InvalidTypeError{Expected: "List", Actual: raw}
	}
	params := make([]string, len(raw.List))
	for i, p := range raw.List {
		if p.Kind != ValSymbol {
			return nil, &InvalidTypeError{Expected: "Symbol", Actual: p}
		}
		if strings.HasSuffix(p.Str, restSuffix) {
			if p.Str == restSuffix {
				return nil, &InvalidTypeError{Expected: "named rest parameter", Actual: p}
			}
			if i != len(raw.List)-1 {
				return nil, &LengthMismatchError{
					Context:  form,
					Expected: fmt.Sprintf("rest parameter %s to be last", p.Str),
					Got:      len(raw.List),
				}
			}
		}
		params[i] = p.Str
	}
	return params, nil
}

// evalQuote returns its argument unevaluated.
func evalQuote(items []Value) (Value, error) {
	if err := checkArity("quote", items, 2); err != nil {
		return Value{}, err
	}
	return items[1], nil
}
