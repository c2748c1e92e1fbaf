package mal

import (
	"fmt"
	"strconv"
	"strings"
)

type ValueKind int

const (
	ValNil ValueKind = iota
	ValBool
	ValInt
	ValString
	ValKeyword
	ValSymbol
	ValList
	ValFn
)

// FnKind distinguishes the three function shapes.
type FnKind int

const (
	FnNative FnKind = iota
	FnClosure
	FnMacro
)

// NativeFunc is the host side of a Native. It receives the frame produced by
// parameter binding and reads its arguments back out of it by name.
type NativeFunc func(env *Env) (Value, error)

// FnValue is a Native, Closure or Macro. Params is the parameter list; the
// last entry may carry the rest suffix.
type FnValue struct {
	Kind   FnKind
	Name   string
	Params []string
	Body   Value      // Closure and Macro only
	Env    *Env       // defining frame, shared not copied
	Native NativeFunc // Native only
}

type Value struct {
	Kind ValueKind
	Int  int64
	Bool bool
	Str  string
	List []Value
	Fn   *FnValue
}

func NilVal() Value             { return Value{Kind: ValNil} }
func BoolVal(b bool) Value      { return Value{Kind: ValBool, Bool: b} }
func IntVal(n int64) Value      { return Value{Kind: ValInt, Int: n} }
func StringVal(s string) Value  { return Value{Kind: ValString, Str: s} }
func KeywordVal(s string) Value { return Value{Kind: ValKeyword, Str: s} }
func SymbolVal(s string) Value  { return Value{Kind: ValSymbol, Str: s} }
func FnVal(fn *FnValue) Value   { return Value{Kind: ValFn, Fn: fn} }

// ListVal takes a private copy of elems so later writes to the caller's
// slice never show through the list.
func ListVal(elems []Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{Kind: ValList, List: cp}
}

// IsSymbol reports whether v is the symbol name.
func (v Value) IsSymbol(name string) bool {
	return v.Kind == ValSymbol && v.Str == name
}

func (v Value) IsMacro() bool {
	return v.Kind == ValFn && v.Fn.Kind == FnMacro
}

// String renders v in reader syntax. For everything except functions the
// result reads back to an equal value.
func (v Value) String() string {
	switch v.Kind {
	case ValNil:
		return "nil"
	case ValBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValInt:
		return strconv.FormatInt(v.Int, 10)
	case ValString:
		return quoteString(v.Str)
	case ValKeyword:
		return ":" + v.Str
	case ValSymbol:
		return v.Str
	case ValList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, " ") + ")"
	case ValFn:
		ps := strings.Join(v.Fn.Params, " ")
		switch v.Fn.Kind {
		case FnNative:
			return fmt.Sprintf("<native %s(%s)>", v.Fn.Name, ps)
		case FnMacro:
			return fmt.Sprintf("<macro(%s)>", ps)
		default:
			return fmt.Sprintf("<fn(%s)>", ps)
		}
	default:
		return fmt.Sprintf("<unknown:%d>", v.Kind)
	}
}

func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func (v Value) KindName() string {
	switch v.Kind {
	case ValNil:
		return "Nil"
	case ValBool:
		return "Bool"
	case ValInt:
		return "Integer"
	case ValString:
		return "String"
	case ValKeyword:
		return "Keyword"
	case ValSymbol:
		return "Symbol"
	case ValList:
		return "List"
	case ValFn:
		switch v.Fn.Kind {
		case FnNative:
			return "Native"
		case FnMacro:
			return "Macro"
		default:
			return "Closure"
		}
	default:
		return "Unknown"
	}
}

// ValuesEqual compares two Values for deep equality. Functions are equal
// only to themselves.
func ValuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ValNil:
		return true
	case ValBool:
		return a.Bool == b.Bool
	case ValInt:
		return a.Int == b.Int
	case ValString, ValKeyword, ValSymbol:
		return a.Str == b.Str
	case ValList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !ValuesEqual(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case ValFn:
		return a.Fn == b.Fn
	}
	return false
}

// ValueToGo converts a Value to a native Go value for JSON serialization.
func ValueToGo(v Value) (any, error) {
	switch v.Kind {
	case ValNil:
		return nil, nil
	case ValBool:
		return v.Bool, nil
	case ValInt:
		return v.Int, nil
	case ValString:
		return v.Str, nil
	case ValKeyword:
		return ":" + v.Str, nil
	case ValSymbol:
		return "sym:" + v.Str, nil
	case ValList:
		arr := make([]any, len(v.List))
		for i, e := range v.List {
			j, err := ValueToGo(e)
			if err != nil {
				return nil, err
			}
			arr[i] = j
		}
		return arr, nil
	case ValFn:
		return nil, fmt.Errorf("cannot serialize %s to JSON", v.KindName())
	default:
		return nil, fmt.Errorf("unknown value kind")
	}
}
