package mal

// macroFor returns the macro named by expr's head, if any.
func macroFor(expr Value, env *Env) (*FnValue, bool) {
	if expr.Kind != ValList || len(expr.List) == 0 {
		return nil, false
	}
	head := expr.List[0]
	if head.Kind != ValSymbol {
		return nil, false
	}
	val, ok := env.Lookup(head.Str)
	if !ok || !val.IsMacro() {
		return nil, false
	}
	return val.Fn, true
}

// macroExpand rewrites expr until its head no longer names a macro. Macro
// parameters are bound to the argument forms as written.
func macroExpand(expr Value, env *Env) (Value, error) {
	for {
		macro, ok := macroFor(expr, env)
		if !ok {
			return expr, nil
		}
		frame, err := bindParams(macro, expr.List[1:])
		if err != nil {
			return Value{}, err
		}
		expr, err = Eval(macro.Body, frame)
		if err != nil {
			return Value{}, err
		}
	}
}

// evalMacroexpand returns the expansion of form without evaluating it.
func evalMacroexpand(items []Value, env *Env) (Value, error) {
	if err := checkArity("macroexpand", items, 2); err != nil {
		return Value{}, err
	}
	return macroExpand(items[1], env)
}

// evalQuasiquote: (quasiquote template). Substitution happens one level deep:
// unquote and splice-unquote are honoured only as the template itself or as
// its direct elements.
func evalQuasiquote(items []Value, env *Env) (Value, error) {
	if err := checkArity("quasiquote", items, 2); err != nil {
		return Value{}, err
	}
	tmpl := items[1]
	if tmpl.Kind != ValList {
		return tmpl, nil
	}
	if headedBy(tmpl, "unquote") {
		return evalUnquote(tmpl, env)
	}

	result := make([]Value, 0, len(tmpl.List))
	for _, elem := range tmpl.List {
		switch {
		case headedBy(elem, "unquote"):
			val, err := evalUnquote(elem, env)
			if err != nil {
				return Value{}, err
			}
			result = append(result, val)
		case headedBy(elem, "splice-unquote"):
			val, err := evalUnquote(elem, env)
			if err != nil {
				return Value{}, err
			}
			if val.Kind != ValList {
				return Value{}, &InvalidTypeError{Expected: "List", Actual: val}
			}
			result = append(result, val.List...)
		default:
			result = append(result, elem)
		}
	}
	return Value{Kind: ValList, List: result}, nil
}

func headedBy(v Value, name string) bool {
	return v.Kind == ValList && len(v.List) > 0 && v.List[0].IsSymbol(name)
}

// evalUnquote evaluates the single argument of an unquote or splice-unquote.
func evalUnquote(form Value, env *Env) (Value, error) {
	if err := checkArity(form.List[0].Str, form.List, 2); err != nil {
		return Value{}, err
	}
	return Eval(form.List[1], env)
}
