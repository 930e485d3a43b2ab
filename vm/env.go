package vm

import "github.com/quill-lang/quill/bytecode"

// Env holds the variable and function bindings visible to one call frame.
// Lookup walks the parent chain, so callees read names their callers bound;
// writes always land in the frame's own Env, so they vanish when the frame
// is popped. Functions live here too, which keeps a definition executed
// inside a call from leaking into the caller.
type Env struct {
	parent *Env
	vars   map[string]bytecode.Value
	funcs  map[string]*bytecode.Function
}

func NewEnv(parent *Env) *Env {
	return &Env{
		parent: parent,
		vars:   make(map[string]bytecode.Value),
		funcs:  make(map[string]*bytecode.Function),
	}
}

func (e *Env) Define(name string, v bytecode.Value) {
	e.vars[name] = v
}

func (e *Env) Lookup(name string) (bytecode.Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (e *Env) DefineFunc(f *bytecode.Function) {
	e.funcs[f.Name] = f
}

func (e *Env) LookupFunc(name string) (*bytecode.Function, bool) {
	for env := e; env != nil; env = env.parent {
		if f, ok := env.funcs[name]; ok {
			return f, true
		}
	}
	return nil, false
}
