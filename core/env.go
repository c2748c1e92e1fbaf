package mal

import "sort"

// Env is one binding frame. Frames are shared by reference: a closure keeps
// its defining frame reachable for as long as the closure itself is.
type Env struct {
	bindings map[string]Value
	parent   *Env
}

// NewEnv returns an empty frame whose lookups fall through to parent.
// A nil parent makes a root frame.
func NewEnv(parent *Env) *Env {
	return &Env{bindings: make(map[string]Value), parent: parent}
}

func (e *Env) Parent() *Env {
	return e.parent
}

// Define binds name in this frame only, replacing any previous binding here.
func (e *Env) Define(name string, val Value) {
	e.bindings[name] = val
}

// Lookup walks from this frame to the root.
func (e *Env) Lookup(name string) (Value, bool) {
	for f := e; f != nil; f = f.parent {
		if val, ok := f.bindings[name]; ok {
			return val, true
		}
	}
	return Value{}, false
}

// Names lists the names bound directly in this frame, sorted.
func (e *Env) Names() []string {
	names := make([]string, 0, len(e.bindings))
	for k := range e.bindings {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DefineNative registers a host function in this frame. The frame becomes the
// native's defining frame, so its call frames are children of e.
func (e *Env) DefineNative(name string, params []string, fn NativeFunc) {
	e.Define(name, FnVal(&FnValue{
		Kind:   FnNative,
		Name:   name,
		Params: params,
		Env:    e,
		Native: fn,
	}))
}

// snapshot copies the bindings held directly in this frame.
func (e *Env) snapshot() map[string]Value {
	out := make(map[string]Value, len(e.bindings))
	for k, v := range e.bindings {
		out[k] = v
	}
	return out
}

// changedSince reports whether any binding in this frame was added or
// rebound to a different value after before was taken.
func (e *Env) changedSince(before map[string]Value) bool {
	if len(e.bindings) != len(before) {
		return true
	}
	for k, v := range e.bindings {
		old, ok := before[k]
		if !ok || !ValuesEqual(old, v) {
			return true
		}
	}
	return false
}
