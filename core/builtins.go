package mal

import (
	"fmt"
	"strings"
)

// NewStdEnv returns a fresh root frame holding the minimal native set.
// Every call builds new bindings; nothing is shared between roots.
func NewStdEnv() *Env {
	env := NewEnv(nil)

	// Arithmetic
	env.DefineNative("add", []string{"args..."}, builtinAdd)
	env.DefineNative("mul", []string{"args..."}, builtinMul)
	env.DefineNative("sub", []string{"a", "b"}, builtinSub)
	env.DefineNative("div", []string{"a", "b"}, builtinDiv)
	env.DefineNative("mod", []string{"a", "b"}, builtinMod)

	// Comparison
	env.DefineNative("=", []string{"a", "b"}, builtinEq)
	env.DefineNative("<", []string{"a", "b"}, builtinLt)
	env.DefineNative(">", []string{"a", "b"}, builtinGt)

	// List
	env.DefineNative("list", []string{"args..."}, builtinList)
	env.DefineNative("list?", []string{"x"}, builtinIsList)
	env.DefineNative("empty?", []string{"xs"}, builtinEmpty)
	env.DefineNative("count", []string{"xs"}, builtinCount)
	env.DefineNative("first", []string{"xs"}, builtinFirst)
	env.DefineNative("rest", []string{"xs"}, builtinRest)
	env.DefineNative("nth", []string{"xs", "n"}, builtinNth)
	env.DefineNative("cons", []string{"x", "xs"}, builtinCons)
	env.DefineNative("concat", []string{"lists..."}, builtinConcat)

	// Misc
	env.DefineNative("str", []string{"args..."}, builtinStr)
	env.DefineNative("type", []string{"x"}, builtinType)
	env.DefineNative("throw", []string{"err"}, builtinThrow)

	return env
}

// arg reads a bound parameter back out of a native's call frame.
func arg(env *Env, name string) Value {
	val, ok := env.Lookup(name)
	if !ok {
		return NilVal()
	}
	return val
}

func intArg(env *Env, name string) (int64, error) {
	v := arg(env, name)
	if v.Kind != ValInt {
		return 0, &InvalidTypeError{Expected: "Integer", Actual: v}
	}
	return v.Int, nil
}

func listArg(env *Env, name string) ([]Value, error) {
	v := arg(env, name)
	if v.Kind != ValList {
		return nil, &InvalidTypeError{Expected: "List", Actual: v}
	}
	return v.List, nil
}

func intPair(env *Env) (int64, int64, error) {
	a, err := intArg(env, "a")
	if err != nil {
		return 0, 0, err
	}
	b, err := intArg(env, "b")
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// --- Arithmetic ---

func foldInts(env *Env, start int64, op func(acc, x int64) int64) (Value, error) {
	args, err := listArg(env, "args")
	if err != nil {
		return Value{}, err
	}
	acc := start
	for _, a := range args {
		if a.Kind != ValInt {
			return Value{}, &InvalidTypeError{Expected: "Integer", Actual: a}
		}
		acc = op(acc, a.Int)
	}
	return IntVal(acc), nil
}

func builtinAdd(env *Env) (Value, error) {
	return foldInts(env, 0, func(acc, x int64) int64 { return acc + x })
}

func builtinMul(env *Env) (Value, error) {
	return foldInts(env, 1, func(acc, x int64) int64 { return acc * x })
}

func builtinSub(env *Env) (Value, error) {
	a, b, err := intPair(env)
	if err != nil {
		return Value{}, err
	}
	return IntVal(a - b), nil
}

func builtinDiv(env *Env) (Value, error) {
	a, b, err := intPair(env)
	if err != nil {
		return Value{}, err
	}
	if b == 0 {
		return Value{}, fmt.Errorf("div: division by zero")
	}
	return IntVal(a / b), nil
}

func builtinMod(env *Env) (Value, error) {
	a, b, err := intPair(env)
	if err != nil {
		return Value{}, err
	}
	if b == 0 {
		return Value{}, fmt.Errorf("mod: division by zero")
	}
	return IntVal(a % b), nil
}

// --- Comparison ---

func builtinEq(env *Env) (Value, error) {
	return BoolVal(ValuesEqual(arg(env, "a"), arg(env, "b"))), nil
}

func builtinLt(env *Env) (Value, error) {
	a, b, err := intPair(env)
	if err != nil {
		return Value{}, err
	}
	return BoolVal(a < b), nil
}

func builtinGt(env *Env) (Value, error) {
	a, b, err := intPair(env)
	if err != nil {
		return Value{}, err
	}
	return BoolVal(a > b), nil
}

// --- List ---

func builtinList(env *Env) (Value, error) {
	return arg(env, "args"), nil
}

func builtinIsList(env *Env) (Value, error) {
	return BoolVal(arg(env, "x").Kind == ValList), nil
}

func builtinEmpty(env *Env) (Value, error) {
	xs, err := listArg(env, "xs")
	if err != nil {
		return Value{}, err
	}
	return BoolVal(len(xs) == 0), nil
}

func builtinCount(env *Env) (Value, error) {
	v := arg(env, "xs")
	switch v.Kind {
	case ValNil:
		return IntVal(0), nil
	case ValList:
		return IntVal(int64(len(v.List))), nil
	case ValString:
		return IntVal(int64(len(v.Str))), nil
	default:
		return Value{}, &InvalidTypeError{Expected: "List", Actual: v}
	}
}

func builtinFirst(env *Env) (Value, error) {
	xs, err := listArg(env, "xs")
	if err != nil {
		return Value{}, err
	}
	if len(xs) == 0 {
		return NilVal(), nil
	}
	return xs[0], nil
}

func builtinRest(env *Env) (Value, error) {
	xs, err := listArg(env, "xs")
	if err != nil {
		return Value{}, err
	}
	if len(xs) == 0 {
		return ListVal(nil), nil
	}
	return ListVal(xs[1:]), nil
}

func builtinNth(env *Env) (Value, error) {
	xs, err := listArg(env, "xs")
	if err != nil {
		return Value{}, err
	}
	n, err := intArg(env, "n")
	if err != nil {
		return Value{}, err
	}
	if n < 0 || n >= int64(len(xs)) {
		return Value{}, fmt.Errorf("nth: index %d out of range for list of length %d", n, len(xs))
	}
	return xs[n], nil
}

func builtinCons(env *Env) (Value, error) {
	xs, err := listArg(env, "xs")
	if err != nil {
		return Value{}, err
	}
	result := make([]Value, len(xs)+1)
	result[0] = arg(env, "x")
	copy(result[1:], xs)
	return Value{Kind: ValList, List: result}, nil
}

func builtinConcat(env *Env) (Value, error) {
	lists, err := listArg(env, "lists")
	if err != nil {
		return Value{}, err
	}
	result := []Value{}
	for _, l := range lists {
		if l.Kind != ValList {
			return Value{}, &InvalidTypeError{Expected: "List", Actual: l}
		}
		result = append(result, l.List...)
	}
	return Value{Kind: ValList, List: result}, nil
}

// --- Misc ---

// builtinStr joins its arguments; strings contribute their raw contents.
func builtinStr(env *Env) (Value, error) {
	args, err := listArg(env, "args")
	if err != nil {
		return Value{}, err
	}
	var sb strings.Builder
	for _, a := range args {
		if a.Kind == ValString {
			sb.WriteString(a.Str)
		} else {
			sb.WriteString(a.String())
		}
	}
	return StringVal(sb.String()), nil
}

func builtinType(env *Env) (Value, error) {
	return KeywordVal(strings.ToLower(arg(env, "x").KindName())), nil
}

// builtinThrow always fails with a ThrowError carrying its message.
func builtinThrow(env *Env) (Value, error) {
	v := arg(env, "err")
	if v.Kind != ValString {
		return Value{}, &InvalidTypeError{Expected: "String", Actual: v}
	}
	return Value{}, &ThrowError{Payload: v.Str}
}
